package retrieval

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/repository"
)

const domainAll = "all"

type semanticSearchInput struct {
	Query  string `json:"query"`
	Domain string `json:"domain"`
	TopK   int    `json:"top_k"`
}

// SearchResults is the payload of rag_search_by_domain
type SearchResults struct {
	Hits  []*repository.SearchHit `json:"hits"`
	Count int                     `json:"count"`
}

// Citations returns one reference per hit
func (x *SearchResults) Citations() []model.Citation {
	out := make([]model.Citation, 0, len(x.Hits))
	for _, h := range x.Hits {
		out = append(out, model.Citation{
			ID:        h.Metadata.RecordID,
			Type:      h.Metadata.Type,
			Title:     h.Metadata.Title,
			StartDate: h.Metadata.StartDate,
			EndDate:   h.Metadata.EndDate,
		})
	}
	return out
}

// SemanticSearch finds records by meaning rather than exact attributes
type SemanticSearch struct {
	index repository.SemanticIndex
}

func NewSemanticSearch(index repository.SemanticIndex) *SemanticSearch {
	return &SemanticSearch{index: index}
}

func (x *SemanticSearch) Name() string { return "rag_search_by_domain" }

func (x *SemanticSearch) Description() string {
	return "Semantic search over career records by topic or skill. Use for open-ended questions such as 'what have you done with Kubernetes'. Never use it for questions about the most recent or oldest items."
}

func (x *SemanticSearch) Prompt() string { return "" }

func (x *SemanticSearch) Schema() *jsonschema.Schema {
	domain := recordTypeSchema()
	domain.Description += `, or "all" for every type`
	domain.Default = json.RawMessage(`"all"`)

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":  {Type: "string", Description: "Natural language search text"},
			"domain": domain,
			"top_k":  intSchema("Maximum number of hits", 5, 1, 20),
		},
		Required: []string{"query"},
	}
}

func (x *SemanticSearch) Execute(ctx context.Context, args map[string]any) *model.ToolResult {
	var input semanticSearchInput
	if failure := decodeArgs(args, &input); failure != nil {
		return failure
	}

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return model.Failure(model.ErrorKindInvalidArguments, "query must not be empty")
	}

	var domain model.RecordType
	if d := strings.TrimSpace(input.Domain); d != "" && !strings.EqualFold(d, domainAll) {
		domain = model.RecordType(d)
	}

	hits, err := x.index.Search(ctx, query, domain, input.TopK)
	if err != nil {
		return storeFailure(err, "semantic search failed")
	}

	// Index backends disagree on tie order; restore the documented one.
	var filtered []*repository.SearchHit
	for _, h := range hits {
		if domain == "" || h.Metadata.Type == domain {
			filtered = append(filtered, h)
		}
	}
	repository.SortHits(filtered)
	if len(filtered) > input.TopK {
		filtered = filtered[:input.TopK]
	}
	if filtered == nil {
		filtered = []*repository.SearchHit{}
	}

	return model.Success(&SearchResults{Hits: filtered, Count: len(filtered)}, map[string]any{
		"domain": input.Domain,
		"top_k":  input.TopK,
	})
}
