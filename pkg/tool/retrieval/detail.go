package retrieval

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
)

type recordDetailsInput struct {
	RecordID string `json:"record_id"`
}

// RecordDetails fetches one full record
type RecordDetails struct {
	store repository.RecordStore
}

func NewRecordDetails(store repository.RecordStore) *RecordDetails {
	return &RecordDetails{store: store}
}

func (x *RecordDetails) Name() string { return "get_record_details" }

func (x *RecordDetails) Description() string {
	return "Get every field of one record, including facts and links, by its id. Use after another tool returned the id."
}

func (x *RecordDetails) Prompt() string { return "" }

func (x *RecordDetails) Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"record_id": {Type: "string", Description: "Record id as returned by other tools"},
		},
		Required: []string{"record_id"},
	}
}

func (x *RecordDetails) Execute(ctx context.Context, args map[string]any) *model.ToolResult {
	var input recordDetailsInput
	if failure := decodeArgs(args, &input); failure != nil {
		return failure
	}
	id := strings.TrimSpace(input.RecordID)
	if id == "" {
		return model.Failure(model.ErrorKindInvalidArguments, "record_id must not be empty")
	}

	record, err := x.store.GetByID(ctx, id)
	if err != nil {
		return storeFailure(err, "record lookup failed")
	}
	return model.Success(record, nil)
}
