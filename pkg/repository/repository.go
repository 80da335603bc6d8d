package repository

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
)

const tracerName = "github.com/m-mizutani/dossier/pkg/repository"

// RecordStore answers structured queries over records. Implementations must
// follow the predicate semantics of DateQuery.Match and FilterQuery.Match.
type RecordStore interface {
	// QueryByDate returns records satisfying all date bounds, sorted by start date
	QueryByDate(ctx context.Context, q *DateQuery) ([]*model.Record, error)

	// QueryByFilter returns records matching type, tags and priority bounds
	QueryByFilter(ctx context.Context, q *FilterQuery) ([]*model.Record, error)

	// GetByID returns the record or an error wrapping model.ErrNotFound
	GetByID(ctx context.Context, id string) (*model.Record, error)

	// Aggregate computes statistics over records matching the filter
	Aggregate(ctx context.Context, stat StatType, q *FilterQuery, topN int) (*Aggregate, error)
}

// RecordWriter persists records. The agent never uses it; indexing does.
type RecordWriter interface {
	PutRecord(ctx context.Context, record *model.Record) error
	DeleteRecord(ctx context.Context, id string) error
}

// SemanticIndex is a nearest-neighbor search over embedded record text
type SemanticIndex interface {
	// Search returns up to topK hits ordered by descending score. An empty
	// domain searches every record type.
	Search(ctx context.Context, query string, domain model.RecordType, topK int) ([]*SearchHit, error)
}

// IndexWriter maintains semantic index entries
type IndexWriter interface {
	UpsertEntry(ctx context.Context, entry *IndexEntry) error
	DeleteEntry(ctx context.Context, indexID string) error
}

// Embedder turns text into a vector. adapter.Gemini satisfies it.
type Embedder interface {
	Embedding(ctx context.Context, text string, task adapter.EmbeddingTask) ([]float32, error)
}

// EntryMetadata mirrors the filterable record fields on an index entry
type EntryMetadata struct {
	RecordID  string           `json:"record_id"`
	Type      model.RecordType `json:"type"`
	Title     string           `json:"title"`
	Tags      []string         `json:"tags,omitempty"`
	Priority  int              `json:"priority"`
	StartDate *civil.Date      `json:"start_date,omitempty"`
	EndDate   *civil.Date      `json:"end_date,omitempty"`
}

// IndexEntry is the derived semantic representation of one record
type IndexEntry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata EntryMetadata
}

// SearchHit is one nearest-neighbor result
type SearchHit struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata EntryMetadata `json:"metadata"`
}
