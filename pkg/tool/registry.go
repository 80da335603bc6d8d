package tool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

const tracerName = "github.com/m-mizutani/dossier/pkg/tool"

// Descriptor is the advertised shape of a tool
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Schema      *jsonschema.Schema `json:"parameters"`
}

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
	decl     *genai.FunctionDeclaration
}

// Registry manages the tools available to the answer generator
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates a registry with the given tools. It fails on duplicate names
// or unusable schemas.
func New(tools ...Tool) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool keyed by its name
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return goerr.New("tool name is empty")
	}

	schema := t.Schema()
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return goerr.Wrap(err, "invalid tool schema", goerr.V("name", name))
	}
	params, err := convertJSONSchemaToGenai(schema)
	if err != nil {
		return goerr.Wrap(err, "failed to convert tool schema", goerr.V("name", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return goerr.Wrap(model.ErrDuplicateTool, "tool already registered", goerr.V("name", name))
	}
	r.entries[name] = &entry{
		tool:     t,
		resolved: resolved,
		decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: t.Description(),
			Parameters:  params,
		},
	}
	r.order = append(r.order, name)
	return nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Describe returns every tool in registration order
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Descriptor{
			Name:        name,
			Description: e.tool.Description(),
			Schema:      e.tool.Schema(),
		})
	}
	return out
}

// Specs returns all tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.entries[name].decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var prompts []string
	for _, name := range r.order {
		if p := r.entries[name].tool.Prompt(); p != "" {
			prompts = append(prompts, p)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Prepare validates args and fills schema defaults. The returned mapping is a
// copy; args is not modified. On failure the second value is the result to
// report instead of invoking the tool.
func (r *Registry) Prepare(name string, args map[string]any) (map[string]any, *model.ToolResult) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, model.Failure(model.ErrorKindUnregisteredTool, "tool %q is not registered", name)
	}

	prepared := make(map[string]any, len(args))
	for k, v := range args {
		prepared[k] = v
	}

	if err := e.resolved.ApplyDefaults(&prepared); err != nil {
		return nil, model.Failure(model.ErrorKindInvalidArguments, "cannot apply defaults: %s", err.Error())
	}
	if err := e.resolved.Validate(prepared); err != nil {
		return nil, model.Failure(model.ErrorKindInvalidArguments, "%s", err.Error())
	}
	return prepared, nil
}

// Invoke runs a tool with prepared arguments
func (r *Registry) Invoke(ctx context.Context, name string, prepared map[string]any) *model.ToolResult {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return model.Failure(model.ErrorKindUnregisteredTool, "tool %q is not registered", name)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool."+name)
	defer span.End()

	logger := logging.From(ctx).With("tool", name)
	logger.Debug("dispatch tool", "args", prepared)

	started := time.Now()
	result := e.tool.Execute(ctx, prepared)
	if result == nil {
		result = model.Failure(model.ErrorKindStoreUnavailable, "tool %q returned no result", name)
	}

	span.SetAttributes(attribute.Bool("tool.success", result.OK()))
	if !result.OK() {
		span.SetAttributes(attribute.String("tool.error_kind", string(result.Kind())))
		logger.Debug("tool failed", "kind", result.Kind(), "message", result.Message(), "elapsed", time.Since(started))
	} else {
		logger.Debug("tool succeeded", "elapsed", time.Since(started))
	}
	return result
}

// Dispatch validates and invokes in one step
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) *model.ToolResult {
	prepared, failure := r.Prepare(name, args)
	if failure != nil {
		logging.From(ctx).Debug("tool call rejected", "tool", name, "kind", failure.Kind(), "message", failure.Message())
		return failure
	}
	return r.Invoke(ctx, name, prepared)
}
