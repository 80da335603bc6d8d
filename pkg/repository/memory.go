package repository

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory keeps records and index entries in process. It serves tests and
// the file-backed offline mode.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]*model.Record
	entries  map[string]*IndexEntry
	embedder Embedder
}

// NewMemory creates an empty store. embedder may be nil when semantic search
// is not used.
func NewMemory(embedder Embedder, records ...*model.Record) *Memory {
	m := &Memory{
		records:  make(map[string]*model.Record),
		entries:  make(map[string]*IndexEntry),
		embedder: embedder,
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *Memory) snapshot() []*model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) QueryByDate(ctx context.Context, q *DateQuery) ([]*model.Record, error) {
	return q.Apply(m.snapshot()), nil
}

func (m *Memory) QueryByFilter(ctx context.Context, q *FilterQuery) ([]*model.Record, error) {
	return q.Apply(m.snapshot()), nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "no such record", goerr.V("id", id))
	}
	return r, nil
}

func (m *Memory) Aggregate(ctx context.Context, stat StatType, q *FilterQuery, topN int) (*Aggregate, error) {
	var filter FilterQuery
	if q != nil {
		filter = *q
	}
	filter.Limit = 0
	return Summarize(filter.Apply(m.snapshot()), stat, topN), nil
}

func (m *Memory) PutRecord(ctx context.Context, record *model.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *Memory) DeleteRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) UpsertEntry(ctx context.Context, entry *IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *Memory) DeleteEntry(ctx context.Context, indexID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, indexID)
	return nil
}

// Search ranks entries by cosine similarity to the embedded query
func (m *Memory) Search(ctx context.Context, query string, domain model.RecordType, topK int) ([]*SearchHit, error) {
	if m.embedder == nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "no embedder configured for memory index")
	}

	vec, err := m.embedder.Embedding(ctx, query, adapter.EmbeddingTaskQuery)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to embed query", goerr.V("cause", err.Error()))
	}

	m.mu.RLock()
	hits := make([]*SearchHit, 0, len(m.entries))
	for _, e := range m.entries {
		if domain != "" && e.Metadata.Type != domain {
			continue
		}
		hits = append(hits, &SearchHit{
			ID:       e.ID,
			Score:    cosine(vec, e.Vector),
			Metadata: e.Metadata,
		})
	}
	m.mu.RUnlock()

	SortHits(hits)
	return limit(hits, topK), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
