package index_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/usecase/index"
	"github.com/m-mizutani/gt"
)

type fakeEmbedder struct {
	texts []string
	tasks []adapter.EmbeddingTask
	err   error
}

func (x *fakeEmbedder) Embedding(ctx context.Context, text string, task adapter.EmbeddingTask) ([]float32, error) {
	if x.err != nil {
		return nil, x.err
	}
	x.texts = append(x.texts, text)
	x.tasks = append(x.tasks, task)
	if strings.Contains(text, "Kafka") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func TestEnrichedText(t *testing.T) {
	start := civil.Date{Year: 2023, Month: 3, Day: 1}
	r := &model.Record{
		ID:         "pipeline",
		Type:       model.RecordTypeExperience,
		Title:      "Log Pipeline",
		Summary:    "Streaming ingestion for security logs",
		Facts:      []string{"Handled 2 TB per day", "Cut cost by half."},
		Tags:       []string{"Go", "Kafka"},
		DetailSite: "https://example.com/pipeline",
		AdditionalURL: []model.Link{
			{Label: "Slides", URL: "https://example.com/slides"},
		},
		StartDate: &start,
	}

	got := index.EnrichedText(r)
	gt.S(t, got).Contains("Log Pipeline is an experience.")
	gt.S(t, got).Contains("Streaming ingestion for security logs.")
	gt.S(t, got).Contains("Handled 2 TB per day. Cut cost by half.")
	gt.S(t, got).Contains("It involves Go, Kafka.")
	gt.S(t, got).Contains("It started in March 2023 and is ongoing.")
	gt.S(t, got).Contains("More details are at https://example.com/pipeline.")
	gt.S(t, got).Contains("Slides: https://example.com/slides.")

	end := civil.Date{Year: 2023, Month: 9, Day: 30}
	r.EndDate = &end
	gt.S(t, index.EnrichedText(r)).Contains("It ran from March 2023 to September 2023.")
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	mem := repository.NewMemory(embedder)
	indexer := index.New(mem, mem, embedder)

	first := []*repository.LoadedRecord{
		{Record: &model.Record{ID: "old-pipeline", Type: model.RecordTypeProject, Title: "Pipeline", Tags: []string{"Kafka"}, Priority: 2}},
	}
	report, err := indexer.Index(ctx, first)
	gt.NoError(t, err)
	gt.Equal(t, report.Indexed, []string{"old-pipeline"})
	gt.Equal(t, embedder.tasks[0], adapter.EmbeddingTaskDocument)

	renamed := []*repository.LoadedRecord{
		{
			Record:     &model.Record{ID: "pipeline", Type: model.RecordTypeProject, Title: "Pipeline", Tags: []string{"Kafka"}, Priority: 2},
			PreviousID: "old-pipeline",
		},
	}
	report, err = indexer.Index(ctx, renamed)
	gt.NoError(t, err)
	gt.Equal(t, report.Removed, []string{"project:old-pipeline"})

	_, err = mem.GetByID(ctx, "old-pipeline")
	gt.True(t, errors.Is(err, model.ErrNotFound))
	got, err := mem.GetByID(ctx, "pipeline")
	gt.NoError(t, err)
	gt.Equal(t, got.Title, "Pipeline")

	hits, err := mem.Search(ctx, "Kafka", "", 10)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, "project:pipeline")
}

func TestIndexTypeChange(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	mem := repository.NewMemory(embedder)
	indexer := index.New(mem, mem, embedder)

	_, err := indexer.Index(ctx, []*repository.LoadedRecord{
		{Record: &model.Record{ID: "talk", Type: model.RecordTypeAward, Title: "Talk", Priority: 1}},
	})
	gt.NoError(t, err)

	report, err := indexer.Index(ctx, []*repository.LoadedRecord{
		{Record: &model.Record{ID: "talk", Type: model.RecordTypePublication, Title: "Talk", Priority: 1}, PreviousType: model.RecordTypeAward},
	})
	gt.NoError(t, err)
	gt.Equal(t, report.Removed, []string{"award:talk"})

	got, err := mem.GetByID(ctx, "talk")
	gt.NoError(t, err)
	gt.Equal(t, got.Type, model.RecordTypePublication)
}

func TestIndexStopsOnEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	mem := repository.NewMemory(embedder)
	indexer := index.New(mem, mem, embedder)

	report, err := indexer.Index(context.Background(), []*repository.LoadedRecord{
		{Record: &model.Record{ID: "a", Type: model.RecordTypeProject, Title: "A", Priority: 2}},
	})
	gt.Error(t, err)
	gt.A(t, report.Indexed).Length(0)
}
