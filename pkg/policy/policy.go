// Package policy evaluates the rego routing policy that turns a question and
// its classifier hint into tool requirements and prompt guidance.
package policy

import (
	"context"
	_ "embed"
	"os"
	"sort"

	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

//go:embed routing.rego
var defaultRouting string

const query = "data.routing"

// Decision is the outcome of routing one question
type Decision struct {
	// Required tools must be called before the answer is finalized
	Required []string
	// Guidance lines are rendered into the system prompt
	Guidance []string
}

// Router holds the prepared routing query
type Router struct {
	prepared *rego.PreparedEvalQuery
}

type options struct {
	modules map[string]string
}

type Option func(*options)

// WithPolicyFile replaces the embedded policy with a rego file. The file must
// declare package routing.
func WithPolicyFile(path string) Option {
	return func(o *options) {
		o.modules = map[string]string{path: ""}
	}
}

// WithModule replaces the embedded policy with rego source
func WithModule(name, src string) Option {
	return func(o *options) {
		o.modules = map[string]string{name: src}
	}
}

type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// New prepares the routing query
func New(ctx context.Context, opts ...Option) (*Router, error) {
	o := &options{modules: map[string]string{"routing.rego": defaultRouting}}
	for _, opt := range opts {
		opt(o)
	}

	regoOpts := []func(*rego.Rego){rego.Query(query), rego.EnablePrintStatements(true)}
	for name, src := range o.modules {
		if src == "" {
			data, err := os.ReadFile(name)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", name))
			}
			src = string(data)
		}
		regoOpts = append(regoOpts, rego.Module(name, src))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare routing policy")
	}
	return &Router{prepared: &prepared}, nil
}

// Route evaluates the policy. An undefined result yields an empty decision.
func (r *Router) Route(ctx context.Context, question string, hint model.Hint) (*Decision, error) {
	counts := make(map[string]any, len(model.Categories))
	for _, c := range model.Categories {
		counts[string(c)] = hint[c]
	}
	input := map[string]any{
		"question": question,
		"hint":     counts,
	}

	rs, err := r.prepared.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate routing policy")
	}

	decision := &Decision{}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}
	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("routing policy returned unexpected value", goerr.V("value", rs[0].Expressions[0].Value))
	}

	if decision.Required, err = stringList(data, "required"); err != nil {
		return nil, err
	}
	if decision.Guidance, err = stringList(data, "guidance"); err != nil {
		return nil, err
	}
	return decision, nil
}

func stringList(data map[string]any, key string) ([]string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, goerr.New("routing field must be a set or array", goerr.V("field", key))
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, goerr.New("routing field must contain strings", goerr.V("field", key), goerr.V("item", item))
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
