package tool

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
)

// Tool is a named, schema-validated retrieval operation the answer generator
// can invoke
type Tool interface {
	// Name is the function name advertised to the generator
	Name() string

	// Description explains when to use the tool
	Description() string

	// Schema describes the arguments. It must be an object schema.
	Schema() *jsonschema.Schema

	// Prompt returns guidance added to the system prompt.
	// Returns empty string if no additional prompt is needed.
	Prompt() string

	// Execute runs the tool with arguments already validated against Schema
	// and completed with schema defaults. Failures are returned as failed
	// results, never as Go errors.
	Execute(ctx context.Context, args map[string]any) *model.ToolResult
}
