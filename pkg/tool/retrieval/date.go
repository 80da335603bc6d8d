package retrieval

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
)

type recordsByDateInput struct {
	RecordType      *string `json:"record_type"`
	StartDateAfter  *string `json:"start_date_after"`
	StartDateBefore *string `json:"start_date_before"`
	EndDateAfter    *string `json:"end_date_after"`
	EndDateBefore   *string `json:"end_date_before"`
	SortOrder       string  `json:"sort_order"`
	Limit           int     `json:"limit"`
}

// RecordsByDate lists records within date bounds in chronological order
type RecordsByDate struct {
	store repository.RecordStore
}

func NewRecordsByDate(store repository.RecordStore) *RecordsByDate {
	return &RecordsByDate{store: store}
}

func (x *RecordsByDate) Name() string { return "get_records_by_date" }

func (x *RecordsByDate) Description() string {
	return "List records by start/end date bounds sorted by start date. Use sort_order DESC with a small limit for the latest or most recent items and ASC for the oldest or earliest."
}

func (x *RecordsByDate) Prompt() string {
	return `### Temporal questions

Questions about the latest, most recent, newest, oldest, earliest or first records, or about a specific period, MUST be answered with ` + "`get_records_by_date`" + `. Do not use semantic search for them: similarity scores do not know about time.`
}

func (x *RecordsByDate) Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"record_type":       recordTypeSchema(),
			"start_date_after":  dateSchema("Earliest start date"),
			"start_date_before": dateSchema("Latest start date"),
			"end_date_after":    dateSchema("Earliest end date; ongoing records never match"),
			"end_date_before":   dateSchema("Latest end date; ongoing records never match"),
			"sort_order": {
				Type:        "string",
				Description: "Start date order",
				Enum:        []any{string(repository.SortAsc), string(repository.SortDesc)},
				Default:     json.RawMessage(`"DESC"`),
			},
			"limit": intSchema("Maximum number of records", 10, 1, 50),
		},
	}
}

func (x *RecordsByDate) Execute(ctx context.Context, args map[string]any) *model.ToolResult {
	var input recordsByDateInput
	if failure := decodeArgs(args, &input); failure != nil {
		return failure
	}

	q := &repository.DateQuery{
		RecordType: recordType(input.RecordType),
		Order:      repository.SortOrder(input.SortOrder),
		Limit:      input.Limit,
	}

	var failure *model.ToolResult
	if q.StartAfter, failure = parseDate("start_date_after", input.StartDateAfter); failure != nil {
		return failure
	}
	if q.StartBefore, failure = parseDate("start_date_before", input.StartDateBefore); failure != nil {
		return failure
	}
	if q.EndAfter, failure = parseDate("end_date_after", input.EndDateAfter); failure != nil {
		return failure
	}
	if q.EndBefore, failure = parseDate("end_date_before", input.EndDateBefore); failure != nil {
		return failure
	}

	records, err := x.store.QueryByDate(ctx, q)
	if err != nil {
		return storeFailure(err, "date query failed")
	}

	return model.Success(newRecordList(records), map[string]any{
		"sort_order": input.SortOrder,
		"limit":      input.Limit,
	})
}
