package tool

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestConvertJSONSchemaToGenai(t *testing.T) {
	minTopK := 1.0
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"domain": {
				Types: []string{"string", "null"},
				Enum:  []any{"project", "award"},
			},
			"top_k": {Type: "integer", Minimum: &minTopK, Default: json.RawMessage("5")},
			"tags":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"query"},
	}

	got, err := convertJSONSchemaToGenai(schema)
	gt.NoError(t, err)
	gt.Equal(t, got.Type, genai.TypeObject)

	domain := got.Properties["domain"]
	gt.Equal(t, domain.Type, genai.TypeString)
	gt.True(t, domain.Nullable != nil && *domain.Nullable)
	gt.Equal(t, domain.Enum, []string{"project", "award"})

	topK := got.Properties["top_k"]
	gt.Equal(t, topK.Type, genai.TypeInteger)
	gt.Equal(t, *topK.Minimum, 1.0)
	gt.Equal(t, topK.Default, any(float64(5)))

	gt.Equal(t, got.Properties["tags"].Items.Type, genai.TypeString)
}

func TestConvertUnsupportedType(t *testing.T) {
	_, err := convertJSONSchemaToGenai(&jsonschema.Schema{Type: "tuple"})
	gt.Error(t, err)
}
