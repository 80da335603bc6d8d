package chat

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

func transcriptKey(id model.HistoryID) string {
	return "transcripts/" + string(id) + ".json"
}

// loadHistory loads a transcript from Cloud Storage
func loadHistory(ctx context.Context, storage adapter.Storage, historyID model.HistoryID) (*model.History, error) {
	reader, err := storage.Get(ctx, transcriptKey(historyID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get transcript from storage", goerr.V("id", historyID))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript data")
	}

	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal transcript", goerr.V("id", historyID))
	}
	if history.ID == "" {
		history.ID = historyID
	}
	return &history, nil
}

// saveHistory saves a transcript to Cloud Storage, assigning an id on first save
func saveHistory(ctx context.Context, storage adapter.Storage, history *model.History) error {
	now := time.Now()
	if history.ID == "" {
		history.ID = model.NewHistoryID()
		history.CreatedAt = now
	}
	history.UpdatedAt = now

	data, err := json.Marshal(history)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal transcript")
	}

	writer, err := storage.Put(ctx, transcriptKey(history.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer")
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write transcript to storage")
	}
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer")
	}
	return nil
}
