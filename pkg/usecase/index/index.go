// Package index writes records and their semantic entries to the stores.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/m-mizutani/dossier/pkg/usecase/index"

// Indexer upserts records and keeps the semantic index in step with them
type Indexer struct {
	records  repository.RecordWriter
	index    repository.IndexWriter
	embedder repository.Embedder
}

func New(records repository.RecordWriter, index repository.IndexWriter, embedder repository.Embedder) *Indexer {
	return &Indexer{records: records, index: index, embedder: embedder}
}

// Report summarizes one Index run
type Report struct {
	Indexed []string
	Removed []string
}

// Index writes every record and its entry. It stops at the first failure;
// records before it stay written.
func (x *Indexer) Index(ctx context.Context, loaded []*repository.LoadedRecord) (*Report, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.records")
	defer span.End()
	span.SetAttributes(attribute.Int("index.records", len(loaded)))

	report := &Report{}
	for _, l := range loaded {
		removed, err := x.indexOne(ctx, l)
		if err != nil {
			return report, err
		}
		report.Indexed = append(report.Indexed, l.Record.ID)
		report.Removed = append(report.Removed, removed...)
	}
	return report, nil
}

func (x *Indexer) indexOne(ctx context.Context, l *repository.LoadedRecord) ([]string, error) {
	r := l.Record
	logger := logging.From(ctx).With("id", r.ID, "type", r.Type)

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := x.records.PutRecord(ctx, r); err != nil {
		return nil, goerr.Wrap(err, "failed to put record", goerr.V("id", r.ID))
	}

	text := EnrichedText(r)
	vec, err := x.embedder.Embedding(ctx, text, adapter.EmbeddingTaskDocument)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed record", goerr.V("id", r.ID))
	}

	entry := &repository.IndexEntry{
		ID:     r.IndexID(),
		Text:   text,
		Vector: vec,
		Metadata: repository.EntryMetadata{
			RecordID:  r.ID,
			Type:      r.Type,
			Title:     r.Title,
			Tags:      r.Tags,
			Priority:  r.Priority,
			StartDate: r.StartDate,
			EndDate:   r.EndDate,
		},
	}
	if err := x.index.UpsertEntry(ctx, entry); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert index entry", goerr.V("id", r.ID))
	}
	logger.Debug("indexed record", "entry", entry.ID)

	var removed []string
	prevID, prevType := l.PreviousID, l.PreviousType
	if prevID == "" && prevType == "" {
		return nil, nil
	}
	if prevID == "" {
		prevID = r.ID
	}
	if prevType == "" {
		prevType = r.Type
	}

	if stale := model.IndexID(prevType, prevID); stale != entry.ID {
		if err := x.index.DeleteEntry(ctx, stale); err != nil {
			return nil, goerr.Wrap(err, "failed to delete stale index entry", goerr.V("entry", stale))
		}
		removed = append(removed, stale)
		logger.Info("removed stale index entry", "entry", stale)
	}
	if prevID != r.ID {
		if err := x.records.DeleteRecord(ctx, prevID); err != nil {
			return nil, goerr.Wrap(err, "failed to delete renamed record", goerr.V("previous_id", prevID))
		}
	}
	return removed, nil
}

// EnrichedText renders a record as natural sentences for embedding
func EnrichedText(r *model.Record) string {
	var sentences []string

	sentences = append(sentences, fmt.Sprintf("%s is %s %s.", r.Title, article(string(r.Type)), r.Type))
	if r.Summary != "" {
		sentences = append(sentences, ensurePeriod(r.Summary))
	}
	for _, f := range r.Facts {
		if f = strings.TrimSpace(f); f != "" {
			sentences = append(sentences, ensurePeriod(f))
		}
	}
	if len(r.Tags) > 0 {
		sentences = append(sentences, "It involves "+strings.Join(r.Tags, ", ")+".")
	}
	if period := periodSentence(r); period != "" {
		sentences = append(sentences, period)
	}
	if r.DetailSite != "" {
		sentences = append(sentences, "More details are at "+r.DetailSite+".")
	}
	for _, link := range r.AdditionalURL {
		sentences = append(sentences, fmt.Sprintf("%s: %s.", link.Label, link.URL))
	}

	return strings.Join(sentences, " ")
}

func periodSentence(r *model.Record) string {
	const layout = "January 2006"
	switch {
	case r.StartDate != nil && r.EndDate == nil:
		return "It started in " + r.StartDate.In(time.UTC).Format(layout) + " and is ongoing."
	case r.StartDate != nil:
		return "It ran from " + r.StartDate.In(time.UTC).Format(layout) + " to " + r.EndDate.In(time.UTC).Format(layout) + "."
	case r.EndDate != nil:
		return "It ended in " + r.EndDate.In(time.UTC).Format(layout) + "."
	}
	return ""
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiou", rune(strings.ToLower(word)[0])) {
		return "an"
	}
	return "a"
}

func ensurePeriod(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune(".!?", rune(s[len(s)-1])) {
		return s
	}
	return s + "."
}
