package repository

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/model"
)

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// DateQuery selects records by inclusive start/end date bounds
type DateQuery struct {
	RecordType  model.RecordType
	StartAfter  *civil.Date
	StartBefore *civil.Date
	EndAfter    *civil.Date
	EndBefore   *civil.Date
	Order       SortOrder
	Limit       int
}

// Match reports whether r satisfies every supplied bound. Records without a
// start date never match; records without an end date never satisfy an end
// bound.
func (q *DateQuery) Match(r *model.Record) bool {
	if r.StartDate == nil {
		return false
	}
	if q.RecordType != "" && r.Type != q.RecordType {
		return false
	}
	if q.StartAfter != nil && r.StartDate.Before(*q.StartAfter) {
		return false
	}
	if q.StartBefore != nil && r.StartDate.After(*q.StartBefore) {
		return false
	}
	if q.EndAfter != nil || q.EndBefore != nil {
		if r.EndDate == nil {
			return false
		}
		if q.EndAfter != nil && r.EndDate.Before(*q.EndAfter) {
			return false
		}
		if q.EndBefore != nil && r.EndDate.After(*q.EndBefore) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits records in memory
func (q *DateQuery) Apply(records []*model.Record) []*model.Record {
	var out []*model.Record
	for _, r := range records {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	SortByDate(out, q.Order)
	return limit(out, q.Limit)
}

// FilterQuery selects records by type, tags, priority and start year
type FilterQuery struct {
	RecordType   model.RecordType
	Tags         []string
	MatchAllTags bool
	PriorityMin  *int
	PriorityMax  *int
	StartYear    *int
	EndYear      *int
	Limit        int
}

// Match applies exact type, case-insensitive tag intersection and inclusive
// priority and year bounds. Year bounds exclude records without a start date.
func (q *FilterQuery) Match(r *model.Record) bool {
	if q == nil {
		return true
	}
	if q.RecordType != "" && r.Type != q.RecordType {
		return false
	}
	if len(q.Tags) > 0 && !matchTags(r, q.Tags, q.MatchAllTags) {
		return false
	}
	if q.PriorityMin != nil && r.Priority < *q.PriorityMin {
		return false
	}
	if q.PriorityMax != nil && r.Priority > *q.PriorityMax {
		return false
	}
	if q.StartYear != nil || q.EndYear != nil {
		if r.StartDate == nil {
			return false
		}
		if q.StartYear != nil && r.StartDate.Year < *q.StartYear {
			return false
		}
		if q.EndYear != nil && r.StartDate.Year > *q.EndYear {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits records in memory
func (q *FilterQuery) Apply(records []*model.Record) []*model.Record {
	var out []*model.Record
	for _, r := range records {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	SortByPriority(out)
	if q == nil {
		return out
	}
	return limit(out, q.Limit)
}

// LowerTags returns the lower-cased, de-duplicated tag set
func LowerTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		lt := strings.ToLower(strings.TrimSpace(t))
		if lt == "" {
			continue
		}
		if _, ok := seen[lt]; ok {
			continue
		}
		seen[lt] = struct{}{}
		out = append(out, lt)
	}
	return out
}

func matchTags(r *model.Record, tags []string, all bool) bool {
	for _, t := range tags {
		has := r.HasTag(strings.TrimSpace(t))
		if all && !has {
			return false
		}
		if !all && has {
			return true
		}
	}
	return all
}

// SortByDate orders by start date, then descending priority, then id.
// Records without a start date sort last.
func SortByDate(records []*model.Record, order SortOrder) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if (a.StartDate == nil) != (b.StartDate == nil) {
			return a.StartDate != nil
		}
		if a.StartDate != nil && *a.StartDate != *b.StartDate {
			if order == SortAsc {
				return a.StartDate.Before(*b.StartDate)
			}
			return a.StartDate.After(*b.StartDate)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
}

// SortByPriority orders by descending priority, then id
func SortByPriority(records []*model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority > records[j].Priority
		}
		return records[i].ID < records[j].ID
	})
}

// SortHits orders by descending score, then descending priority, then id
func SortHits(hits []*SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.Priority != b.Metadata.Priority {
			return a.Metadata.Priority > b.Metadata.Priority
		}
		return a.Metadata.RecordID < b.Metadata.RecordID
	})
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
