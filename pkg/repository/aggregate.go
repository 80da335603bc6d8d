package repository

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/model"
)

type StatType string

const (
	StatCount             StatType = "count"
	StatTagsDistribution  StatType = "tags_distribution"
	StatTimeline          StatType = "timeline"
	StatTypesDistribution StatType = "types_distribution"
)

var StatTypes = []StatType{StatCount, StatTagsDistribution, StatTimeline, StatTypesDistribution}

type TypeCount struct {
	Type  model.RecordType `json:"type"`
	Count int              `json:"count"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type TimelineEntry struct {
	ID        string           `json:"id"`
	Type      model.RecordType `json:"type"`
	Title     string           `json:"title"`
	StartDate civil.Date       `json:"start_date"`
	EndDate   *civil.Date      `json:"end_date,omitempty"`
}

// Aggregate is the result of a statistics query. Only the fields of the
// requested StatType are populated.
type Aggregate struct {
	StatType StatType                 `json:"stat_type"`
	Total    int                      `json:"total"`
	Counts   map[model.RecordType]int `json:"counts,omitempty"`
	Types    []TypeCount              `json:"types,omitempty"`
	Tags     map[string]int           `json:"tags,omitempty"`
	TopTags  []TagCount               `json:"top_tags,omitempty"`
	Timeline []TimelineEntry          `json:"timeline,omitempty"`
}

// Citations returns timeline entries as record references
func (a *Aggregate) Citations() []model.Citation {
	out := make([]model.Citation, 0, len(a.Timeline))
	for _, e := range a.Timeline {
		start := e.StartDate
		out = append(out, model.Citation{
			ID:        e.ID,
			Type:      e.Type,
			Title:     e.Title,
			StartDate: &start,
			EndDate:   e.EndDate,
		})
	}
	return out
}

// Summarize computes stat over records that already passed the filter.
// topN bounds ranked lists; zero means unbounded.
func Summarize(records []*model.Record, stat StatType, topN int) *Aggregate {
	agg := &Aggregate{StatType: stat, Total: len(records)}

	switch stat {
	case StatCount:
		agg.Counts = make(map[model.RecordType]int)
		for _, r := range records {
			agg.Counts[r.Type]++
		}

	case StatTypesDistribution:
		counts := make(map[model.RecordType]int)
		for _, r := range records {
			counts[r.Type]++
		}
		for t, n := range counts {
			agg.Types = append(agg.Types, TypeCount{Type: t, Count: n})
		}
		sort.Slice(agg.Types, func(i, j int) bool {
			if agg.Types[i].Count != agg.Types[j].Count {
				return agg.Types[i].Count > agg.Types[j].Count
			}
			return agg.Types[i].Type < agg.Types[j].Type
		})

	case StatTagsDistribution:
		// group case-insensitively, display the first spelling seen in id order
		ordered := make([]*model.Record, len(records))
		copy(ordered, records)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

		display := make(map[string]string)
		counts := make(map[string]int)
		for _, r := range ordered {
			seen := make(map[string]bool)
			for _, t := range r.Tags {
				key := strings.ToLower(strings.TrimSpace(t))
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				if _, ok := display[key]; !ok {
					display[key] = strings.TrimSpace(t)
				}
				counts[key]++
			}
		}

		agg.Tags = make(map[string]int, len(counts))
		for key, n := range counts {
			agg.Tags[display[key]] = n
			agg.TopTags = append(agg.TopTags, TagCount{Tag: display[key], Count: n})
		}
		sort.Slice(agg.TopTags, func(i, j int) bool {
			if agg.TopTags[i].Count != agg.TopTags[j].Count {
				return agg.TopTags[i].Count > agg.TopTags[j].Count
			}
			return strings.ToLower(agg.TopTags[i].Tag) < strings.ToLower(agg.TopTags[j].Tag)
		})
		agg.TopTags = limit(agg.TopTags, topN)

	case StatTimeline:
		dated := make([]*model.Record, 0, len(records))
		for _, r := range records {
			if r.StartDate != nil {
				dated = append(dated, r)
			}
		}
		SortByDate(dated, SortAsc)
		for _, r := range dated {
			agg.Timeline = append(agg.Timeline, TimelineEntry{
				ID:        r.ID,
				Type:      r.Type,
				Title:     r.Title,
				StartDate: *r.StartDate,
				EndDate:   r.EndDate,
			})
		}
	}

	return agg
}
