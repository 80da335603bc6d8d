// Package retrieval provides the tools that read career records on behalf of
// the answer generator.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/tool"
)

// Tools returns the full retrieval catalog in advertised order
func Tools(store repository.RecordStore, index repository.SemanticIndex) []tool.Tool {
	return []tool.Tool{
		NewSemanticSearch(index),
		NewRecordsByDate(store),
		NewFilterRecords(store),
		NewRecordDetails(store),
		NewStatistics(store),
	}
}

// RecordList is the payload of record-returning tools
type RecordList struct {
	Records []*model.Record `json:"records"`
	Count   int             `json:"count"`
}

func newRecordList(records []*model.Record) *RecordList {
	if records == nil {
		records = []*model.Record{}
	}
	return &RecordList{Records: records, Count: len(records)}
}

// Citations returns one reference per listed record
func (x *RecordList) Citations() []model.Citation {
	out := make([]model.Citation, 0, len(x.Records))
	for _, r := range x.Records {
		out = append(out, model.CitationOf(r))
	}
	return out
}

// decodeArgs maps validated arguments onto a typed input struct
func decodeArgs(args map[string]any, v any) *model.ToolResult {
	raw, err := json.Marshal(args)
	if err != nil {
		return model.Failure(model.ErrorKindInvalidArguments, "cannot encode arguments: %s", err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return model.Failure(model.ErrorKindInvalidArguments, "cannot decode arguments: %s", err.Error())
	}
	return nil
}

// storeFailure converts a store error into a failed result
func storeFailure(err error, op string) *model.ToolResult {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.Failure(model.ErrorKindNotFound, "%s: %s", op, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return model.Failure(model.ErrorKindTimeout, "%s: %s", op, err.Error())
	default:
		return model.Failure(model.ErrorKindStoreUnavailable, "%s: %s", op, err.Error())
	}
}

func parseDate(field string, v *string) (*civil.Date, *model.ToolResult) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(*v))
	if err != nil {
		return nil, model.Failure(model.ErrorKindInvalidArguments, "%s must be YYYY-MM-DD, got %q", field, *v)
	}
	return &d, nil
}

func recordType(v *string) model.RecordType {
	if v == nil {
		return ""
	}
	return model.RecordType(strings.TrimSpace(*v))
}

func checkRange(field string, lower, upper *int) *model.ToolResult {
	if lower != nil && upper != nil && *lower > *upper {
		return model.Failure(model.ErrorKindInvalidArguments, "%s_min (%d) exceeds %s_max (%d)", field, *lower, field, *upper)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func intSchema(desc string, def, minimum, maximum int) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "integer",
		Description: desc,
		Default:     json.RawMessage(fmt.Sprintf("%d", def)),
		Minimum:     ptr(float64(minimum)),
		Maximum:     ptr(float64(maximum)),
	}
}

func recordTypeSchema() *jsonschema.Schema {
	names := make([]string, 0, len(model.KnownRecordTypes))
	for _, t := range model.KnownRecordTypes {
		names = append(names, string(t))
	}
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Record type, e.g. " + strings.Join(names, ", "),
	}
}

func dateSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "date", Description: desc + " (YYYY-MM-DD, inclusive)"}
}

func priorityProps(props map[string]*jsonschema.Schema) {
	props["priority_min"] = &jsonschema.Schema{
		Type: "integer", Description: "Minimum priority, 3 is highest",
		Minimum: ptr(float64(model.PriorityLow)), Maximum: ptr(float64(model.PriorityHigh)),
	}
	props["priority_max"] = &jsonschema.Schema{
		Type: "integer", Description: "Maximum priority",
		Minimum: ptr(float64(model.PriorityLow)), Maximum: ptr(float64(model.PriorityHigh)),
	}
}

func tagProps(props map[string]*jsonschema.Schema) {
	props["tags"] = &jsonschema.Schema{
		Type:        "array",
		Description: "Tags to match, case-insensitive. Omit to match any tags.",
		Items:       &jsonschema.Schema{Type: "string"},
		MinItems:    ptr(1),
	}
	props["tags_match_all"] = &jsonschema.Schema{
		Type:        "boolean",
		Description: "Require every tag instead of any tag",
		Default:     json.RawMessage("false"),
	}
}
