package retrieval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/tool"
	"github.com/m-mizutani/dossier/pkg/tool/retrieval"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type stubEmbedder struct{}

func (stubEmbedder) Embedding(ctx context.Context, text string, task adapter.EmbeddingTask) ([]float32, error) {
	if text == "streaming" {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type brokenStore struct {
	repository.RecordStore
	err error
}

func (x *brokenStore) QueryByDate(ctx context.Context, q *repository.DateQuery) ([]*model.Record, error) {
	return nil, x.err
}

func date(y int, m time.Month, d int) *civil.Date {
	return &civil.Date{Year: y, Month: m, Day: d}
}

func setup(t *testing.T) *tool.Registry {
	ctx := context.Background()
	records := []*model.Record{
		{ID: "pipeline", Type: model.RecordTypeProject, Title: "Log Pipeline", Tags: []string{"Go", "Kafka"}, StartDate: date(2023, 1, 1), EndDate: date(2023, 6, 30), Priority: 2},
		{ID: "careerbot", Type: model.RecordTypeProject, Title: "Career Bot", Tags: []string{"Python", "RAG"}, StartDate: date(2024, 10, 1), Priority: 3},
		{ID: "notes", Type: model.RecordTypeProject, Title: "Side Notes", Tags: []string{"go"}, Priority: 1},
		{ID: "bsc", Type: model.RecordTypeEducation, Title: "BSc", StartDate: date(2015, 4, 1), EndDate: date(2019, 3, 31), Priority: 2},
	}
	mem := repository.NewMemory(stubEmbedder{}, records...)
	for _, r := range records {
		vec := []float32{0, 1}
		if r.HasTag("kafka") {
			vec = []float32{1, 0}
		}
		gt.NoError(t, mem.UpsertEntry(ctx, &repository.IndexEntry{
			ID:     r.IndexID(),
			Vector: vec,
			Metadata: repository.EntryMetadata{
				RecordID: r.ID, Type: r.Type, Title: r.Title, Priority: r.Priority,
				StartDate: r.StartDate, EndDate: r.EndDate,
			},
		}))
	}

	reg, err := tool.New(retrieval.Tools(mem, mem)...)
	gt.NoError(t, err)
	return reg
}

func recordIDs(t *testing.T, result *model.ToolResult) []string {
	t.Helper()
	gt.True(t, result.OK())
	list, ok := result.Data().(*retrieval.RecordList)
	gt.True(t, ok)
	gt.Equal(t, list.Count, len(list.Records))
	out := make([]string, 0, len(list.Records))
	for _, r := range list.Records {
		out = append(out, r.ID)
	}
	return out
}

func TestCatalog(t *testing.T) {
	reg := setup(t)
	names := []string{}
	for _, d := range reg.Describe() {
		names = append(names, d.Name)
	}
	gt.Equal(t, names, []string{
		"rag_search_by_domain",
		"get_records_by_date",
		"filter_records",
		"get_record_details",
		"get_statistics",
	})
	gt.S(t, reg.Prompts()).Contains("get_records_by_date")
}

func TestRecordsByDate(t *testing.T) {
	reg := setup(t)
	ctx := context.Background()

	t.Run("latest project by default order", func(t *testing.T) {
		result := reg.Dispatch(ctx, "get_records_by_date", map[string]any{
			"record_type": "project",
			"limit":       float64(1),
		})
		gt.Equal(t, recordIDs(t, result), []string{"careerbot"})
		gt.Equal(t, result.Citations()[0].Title, "Career Bot")
	})

	t.Run("oldest first", func(t *testing.T) {
		result := reg.Dispatch(ctx, "get_records_by_date", map[string]any{"sort_order": "ASC"})
		gt.Equal(t, recordIDs(t, result), []string{"bsc", "pipeline", "careerbot"})
	})

	t.Run("end bound skips ongoing", func(t *testing.T) {
		result := reg.Dispatch(ctx, "get_records_by_date", map[string]any{"end_date_after": "2020-01-01"})
		gt.Equal(t, recordIDs(t, result), []string{"pipeline"})
	})

	t.Run("malformed date", func(t *testing.T) {
		result := reg.Dispatch(ctx, "get_records_by_date", map[string]any{"start_date_after": "last year"})
		gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)
	})

	t.Run("limit out of range", func(t *testing.T) {
		result := reg.Dispatch(ctx, "get_records_by_date", map[string]any{"limit": float64(51)})
		gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)
	})
}

func TestFilterRecords(t *testing.T) {
	reg := setup(t)
	ctx := context.Background()

	result := reg.Dispatch(ctx, "filter_records", map[string]any{"tags": []any{"GO"}})
	gt.Equal(t, recordIDs(t, result), []string{"pipeline", "notes"})

	result = reg.Dispatch(ctx, "filter_records", map[string]any{"tags": []any{"cobol"}})
	gt.Equal(t, recordIDs(t, result), []string{})

	result = reg.Dispatch(ctx, "filter_records", map[string]any{"priority_min": float64(3), "priority_max": float64(1)})
	gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)

	result = reg.Dispatch(ctx, "filter_records", map[string]any{"tags": []any{}})
	gt.False(t, result.OK())
	gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)

	result = reg.Dispatch(ctx, "get_statistics", map[string]any{"stat_type": "count", "tags": []any{}})
	gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)
}

func TestRecordDetails(t *testing.T) {
	reg := setup(t)
	ctx := context.Background()

	result := reg.Dispatch(ctx, "get_record_details", map[string]any{"record_id": "bsc"})
	gt.True(t, result.OK())
	gt.Equal(t, result.Data().(*model.Record).Title, "BSc")

	result = reg.Dispatch(ctx, "get_record_details", map[string]any{"record_id": "ghost"})
	gt.False(t, result.OK())
	gt.Equal(t, result.Kind(), model.ErrorKindNotFound)
}

func TestSemanticSearch(t *testing.T) {
	reg := setup(t)
	ctx := context.Background()

	result := reg.Dispatch(ctx, "rag_search_by_domain", map[string]any{"query": "streaming", "top_k": float64(2)})
	gt.True(t, result.OK())
	hits := result.Data().(*retrieval.SearchResults)
	gt.Equal(t, hits.Count, 2)
	gt.Equal(t, hits.Hits[0].Metadata.RecordID, "pipeline")

	result = reg.Dispatch(ctx, "rag_search_by_domain", map[string]any{"query": "streaming", "domain": "education"})
	hits = result.Data().(*retrieval.SearchResults)
	gt.A(t, hits.Hits).Length(1)
	gt.Equal(t, hits.Hits[0].Metadata.RecordID, "bsc")

	result = reg.Dispatch(ctx, "rag_search_by_domain", map[string]any{"query": "   "})
	gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)
}

func TestStatistics(t *testing.T) {
	reg := setup(t)
	ctx := context.Background()

	result := reg.Dispatch(ctx, "get_statistics", map[string]any{"stat_type": "count"})
	gt.True(t, result.OK())
	agg := result.Data().(*repository.Aggregate)
	gt.Equal(t, agg.Total, 4)
	gt.Equal(t, agg.Counts[model.RecordTypeProject], 3)

	result = reg.Dispatch(ctx, "get_statistics", map[string]any{"stat_type": "timeline", "start_year": float64(2023)})
	agg = result.Data().(*repository.Aggregate)
	gt.A(t, agg.Timeline).Length(2)
	gt.A(t, result.Citations()).Length(2)

	result = reg.Dispatch(ctx, "get_statistics", map[string]any{"stat_type": "median"})
	gt.Equal(t, result.Kind(), model.ErrorKindInvalidArguments)
}

func TestStoreErrors(t *testing.T) {
	testCases := map[string]struct {
		err  error
		kind model.ErrorKind
	}{
		"unavailable": {goerr.Wrap(model.ErrStoreUnavailable, "firestore down"), model.ErrorKindStoreUnavailable},
		"deadline":    {context.DeadlineExceeded, model.ErrorKindTimeout},
		"unknown":     {errors.New("boom"), model.ErrorKindStoreUnavailable},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			reg, err := tool.New(retrieval.NewRecordsByDate(&brokenStore{err: tc.err}))
			gt.NoError(t, err)
			result := reg.Dispatch(context.Background(), "get_records_by_date", map[string]any{})
			gt.False(t, result.OK())
			gt.Equal(t, result.Kind(), tc.kind)
		})
	}
}
