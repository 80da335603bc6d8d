package model

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/goerr/v2"
)

// RecordType discriminates the domain of a career record
type RecordType string

const (
	RecordTypeProject       RecordType = "project"
	RecordTypeExperience    RecordType = "experience"
	RecordTypeEducation     RecordType = "education"
	RecordTypeCertification RecordType = "certification"
	RecordTypePublication   RecordType = "publication"
	RecordTypeAward         RecordType = "award"
)

// KnownRecordTypes lists the types offered to the decision layer as enum hints.
// Stores accept any non-empty type.
var KnownRecordTypes = []RecordType{
	RecordTypeProject,
	RecordTypeExperience,
	RecordTypeEducation,
	RecordTypeCertification,
	RecordTypePublication,
	RecordTypeAward,
}

const (
	PriorityLow     = 1
	PriorityDefault = 2
	PriorityHigh    = 3
)

// Link is a labeled URL attached to a record
type Link struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// Record is one structured career-history item
type Record struct {
	ID            string      `json:"id"`
	Type          RecordType  `json:"type"`
	Title         string      `json:"title"`
	Summary       string      `json:"summary,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Facts         []string    `json:"facts,omitempty"`
	DetailSite    string      `json:"detail_site,omitempty"`
	AdditionalURL []Link      `json:"additional_url,omitempty"`
	StartDate     *civil.Date `json:"start_date,omitempty"`
	EndDate       *civil.Date `json:"end_date,omitempty"`
	Priority      int         `json:"priority"`
}

// IndexID returns the namespaced identifier used by the semantic index
func (r *Record) IndexID() string {
	return IndexID(r.Type, r.ID)
}

// IndexID builds "{type}:{id}"
func IndexID(recordType RecordType, id string) string {
	return string(recordType) + ":" + id
}

// Ongoing reports whether the record has started and has no end date
func (r *Record) Ongoing() bool {
	return r.StartDate != nil && r.EndDate == nil
}

// HasTag matches case-insensitively
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DateSpan renders the record period, e.g. "2023-01-01 to present"
func (r *Record) DateSpan() string {
	return dateSpan(r.StartDate, r.EndDate)
}

func dateSpan(start, end *civil.Date) string {
	if start == nil {
		if end == nil {
			return ""
		}
		return "until " + end.String()
	}
	if end == nil {
		return start.String() + " to present"
	}
	return start.String() + " to " + end.String()
}

// Validate checks the fields every store requires
func (r *Record) Validate() error {
	if r.ID == "" {
		return goerr.Wrap(ErrInvalidRecord, "id is required")
	}
	if r.Type == "" {
		return goerr.Wrap(ErrInvalidRecord, "type is required", goerr.V("id", r.ID))
	}
	if strings.TrimSpace(r.Title) == "" {
		return goerr.Wrap(ErrInvalidRecord, "title is required", goerr.V("id", r.ID))
	}
	return nil
}

// Normalize fills defaults in place
func (r *Record) Normalize() {
	if r.Priority == 0 {
		r.Priority = PriorityDefault
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Summary = strings.TrimSpace(r.Summary)
}

// Citation is a concrete reference to a retrieved record
type Citation struct {
	ID        string      `json:"id"`
	Type      RecordType  `json:"type,omitempty"`
	Title     string      `json:"title,omitempty"`
	StartDate *civil.Date `json:"start_date,omitempty"`
	EndDate   *civil.Date `json:"end_date,omitempty"`
}

// CitationOf extracts the citable fields of a record
func CitationOf(r *Record) Citation {
	return Citation{
		ID:        r.ID,
		Type:      r.Type,
		Title:     r.Title,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
}

// DateSpan renders the cited period like Record.DateSpan
func (c Citation) DateSpan() string {
	return dateSpan(c.StartDate, c.EndDate)
}

// Citer is implemented by tool result payloads that reference records
type Citer interface {
	Citations() []Citation
}

// Citations lets a single record act as a tool payload
func (r *Record) Citations() []Citation {
	return []Citation{CitationOf(r)}
}
