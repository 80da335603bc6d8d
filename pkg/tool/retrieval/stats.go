package retrieval

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
)

type statisticsInput struct {
	StatType     string   `json:"stat_type"`
	RecordType   *string  `json:"record_type"`
	Tags         []string `json:"tags"`
	TagsMatchAll bool     `json:"tags_match_all"`
	PriorityMin  *int     `json:"priority_min"`
	PriorityMax  *int     `json:"priority_max"`
	StartYear    *int     `json:"start_year"`
	EndYear      *int     `json:"end_year"`
	TopN         int      `json:"top_n"`
}

// Statistics aggregates over matching records
type Statistics struct {
	store repository.RecordStore
}

func NewStatistics(store repository.RecordStore) *Statistics {
	return &Statistics{store: store}
}

func (x *Statistics) Name() string { return "get_statistics" }

func (x *Statistics) Description() string {
	return "Aggregate statistics over records: count per type, tag distribution, chronological timeline or type distribution. Use for 'how many' and 'which skills most often' questions."
}

func (x *Statistics) Prompt() string { return "" }

func (x *Statistics) Schema() *jsonschema.Schema {
	stats := make([]any, 0, len(repository.StatTypes))
	for _, s := range repository.StatTypes {
		stats = append(stats, string(s))
	}

	props := map[string]*jsonschema.Schema{
		"stat_type":   {Type: "string", Description: "Statistic to compute", Enum: stats},
		"record_type": recordTypeSchema(),
		"start_year":  {Type: "integer", Description: "Earliest start year, inclusive"},
		"end_year":    {Type: "integer", Description: "Latest start year, inclusive"},
		"top_n":       intSchema("Length of ranked lists", 10, 1, 50),
	}
	tagProps(props)
	priorityProps(props)

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"stat_type"},
	}
}

func (x *Statistics) Execute(ctx context.Context, args map[string]any) *model.ToolResult {
	var input statisticsInput
	if failure := decodeArgs(args, &input); failure != nil {
		return failure
	}
	if failure := checkRange("priority", input.PriorityMin, input.PriorityMax); failure != nil {
		return failure
	}
	if input.StartYear != nil && input.EndYear != nil && *input.StartYear > *input.EndYear {
		return model.Failure(model.ErrorKindInvalidArguments, "start_year (%d) exceeds end_year (%d)", *input.StartYear, *input.EndYear)
	}

	stat := repository.StatType(input.StatType)
	agg, err := x.store.Aggregate(ctx, stat, &repository.FilterQuery{
		RecordType:   recordType(input.RecordType),
		Tags:         input.Tags,
		MatchAllTags: input.TagsMatchAll,
		PriorityMin:  input.PriorityMin,
		PriorityMax:  input.PriorityMax,
		StartYear:    input.StartYear,
		EndYear:      input.EndYear,
	}, input.TopN)
	if err != nil {
		return storeFailure(err, "statistics query failed")
	}

	return model.Success(agg, map[string]any{"stat_type": input.StatType})
}
