package retrieval

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
)

type filterRecordsInput struct {
	RecordType   *string  `json:"record_type"`
	Tags         []string `json:"tags"`
	TagsMatchAll bool     `json:"tags_match_all"`
	PriorityMin  *int     `json:"priority_min"`
	PriorityMax  *int     `json:"priority_max"`
	Limit        int      `json:"limit"`
}

// FilterRecords lists records matching exact attributes
type FilterRecords struct {
	store repository.RecordStore
}

func NewFilterRecords(store repository.RecordStore) *FilterRecords {
	return &FilterRecords{store: store}
}

func (x *FilterRecords) Name() string { return "filter_records" }

func (x *FilterRecords) Description() string {
	return "Filter records by type, tags and priority. Results are ordered by priority, highest first."
}

func (x *FilterRecords) Prompt() string { return "" }

func (x *FilterRecords) Schema() *jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"record_type": recordTypeSchema(),
		"limit":       intSchema("Maximum number of records", 20, 1, 50),
	}
	tagProps(props)
	priorityProps(props)
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func (x *FilterRecords) Execute(ctx context.Context, args map[string]any) *model.ToolResult {
	var input filterRecordsInput
	if failure := decodeArgs(args, &input); failure != nil {
		return failure
	}
	if failure := checkRange("priority", input.PriorityMin, input.PriorityMax); failure != nil {
		return failure
	}

	records, err := x.store.QueryByFilter(ctx, &repository.FilterQuery{
		RecordType:   recordType(input.RecordType),
		Tags:         input.Tags,
		MatchAllTags: input.TagsMatchAll,
		PriorityMin:  input.PriorityMin,
		PriorityMax:  input.PriorityMax,
		Limit:        input.Limit,
	})
	if err != nil {
		return storeFailure(err, "filter query failed")
	}

	return model.Success(newRecordList(records), map[string]any{"limit": input.Limit})
}
