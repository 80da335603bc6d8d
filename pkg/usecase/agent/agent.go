// Package agent answers questions about career records by letting Gemini
// call retrieval tools over a bounded number of steps.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/cache"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/policy"
	"github.com/m-mizutani/dossier/pkg/tool"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

const tracerName = "github.com/m-mizutani/dossier/pkg/usecase/agent"

// FallbackMessage is returned when no answer is produced within the step
// budget or the deadline.
const FallbackMessage = "I apologize, but I couldn't complete your request within the allowed steps. Please try rephrasing your question or breaking it into smaller parts."

const (
	DefaultMaxIterations = 5
	DefaultDeadline      = 60 * time.Second
	DefaultCallTimeout   = 10 * time.Second
	DefaultRetries       = 2
	DefaultBackoff       = 200 * time.Millisecond
	DefaultParallelism   = 4
	DefaultTemperature   = 0.1
)

// Reason explains how a cycle ended
type Reason string

const (
	ReasonAnswered        Reason = "answered"
	ReasonBudgetExhausted Reason = "iteration_budget_exceeded"
	ReasonDeadline        Reason = "deadline_exceeded"
	ReasonGeneratorFailed Reason = "generator_failed"
)

// Agent runs question-answer cycles. It is safe for concurrent use; cycles
// share only the cache and the clients behind the registry.
type Agent struct {
	gemini   adapter.Gemini
	registry *tool.Registry
	cache    *cache.Cache
	router   *policy.Router

	maxIterations int
	deadline      time.Duration
	callTimeout   time.Duration
	retries       int
	backoff       time.Duration
	parallelism   int
	temperature   float32
}

type Option func(*Agent)

func WithCache(c *cache.Cache) Option {
	return func(a *Agent) { a.cache = c }
}

func WithRouter(r *policy.Router) Option {
	return func(a *Agent) { a.router = r }
}

func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

func WithDeadline(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.deadline = d
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithRetry sets how many times a transient failure is re-dispatched and the
// linear backoff unit between attempts
func WithRetry(retries int, backoff time.Duration) Option {
	return func(a *Agent) {
		if retries >= 0 {
			a.retries = retries
		}
		if backoff >= 0 {
			a.backoff = backoff
		}
	}
}

func WithParallelism(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(a *Agent) { a.temperature = t }
}

// New creates an agent. The registry must be fully built.
func New(gemini adapter.Gemini, registry *tool.Registry, opts ...Option) (*Agent, error) {
	if gemini == nil {
		return nil, goerr.New("answer generator is required")
	}
	if registry == nil {
		return nil, goerr.New("tool registry is required")
	}

	a := &Agent{
		gemini:        gemini,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		deadline:      DefaultDeadline,
		callTimeout:   DefaultCallTimeout,
		retries:       DefaultRetries,
		backoff:       DefaultBackoff,
		parallelism:   DefaultParallelism,
		temperature:   DefaultTemperature,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Outcome is the result of one cycle
type Outcome struct {
	Answer       string
	Reason       Reason
	Hint         model.Hint
	Conversation model.Conversation
}

// Fallback reports whether the answer is the fixed fallback message
func (o *Outcome) Fallback() bool {
	return o.Reason != ReasonAnswered
}

// RunOption adjusts a single cycle
type RunOption func(*runConfig)

type runConfig struct {
	maxIterations int
	deadline      time.Duration
	history       []*genai.Content
}

// WithHistory carries turns from earlier cycles into this one
func WithHistory(history []*genai.Content) RunOption {
	return func(c *runConfig) { c.history = history }
}

// HistoryOf returns the turns WithHistory placed in opts
func HistoryOf(opts ...RunOption) []*genai.Content {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.history
}

// WithIterationBudget overrides the step budget for one cycle
func WithIterationBudget(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithTimeout overrides the deadline for one cycle
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// Answer runs one cycle and returns only the answer text
func (a *Agent) Answer(ctx context.Context, question string, opts ...RunOption) (string, error) {
	outcome, err := a.Run(ctx, question, opts...)
	if err != nil {
		return "", err
	}
	return outcome.Answer, nil
}

// Run answers question. Tool failures, the step budget and the deadline never
// produce an error; the only error is a generator that fails its very first
// call for a reason other than the deadline.
func (a *Agent) Run(ctx context.Context, question string, opts ...RunOption) (*Outcome, error) {
	cfg := &runConfig{maxIterations: a.maxIterations, deadline: a.deadline}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.deadline)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.answer")
	defer span.End()

	logger := logging.From(ctx)
	hint := Classify(question)
	logger.Debug("classified question", "hint", hint)

	var decision policy.Decision
	if a.router != nil {
		d, err := a.router.Route(ctx, question, hint)
		if err != nil {
			logger.Warn("routing policy failed, continuing without directives", "error", err)
		} else {
			decision = *d
		}
	}

	var required []string
	for _, name := range decision.Required {
		if a.registry.Has(name) {
			required = append(required, name)
		}
	}
	directed := make(map[string]bool)

	conv := model.NewConversation(question, cfg.history)
	outcome := func(answer string, reason Reason) *Outcome {
		span.SetAttributes(
			attribute.String("agent.reason", string(reason)),
			attribute.Int("agent.iterations", conv.Iteration()),
			attribute.Int("agent.steps", len(conv.Steps())),
		)
		if reason != ReasonAnswered {
			logger.Warn("returning fallback answer", "reason", reason, "iterations", conv.Iteration())
		}
		return &Outcome{Answer: answer, Reason: reason, Hint: hint, Conversation: conv}
	}

	temperature := a.temperature
	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		Tools:       a.registry.Specs(),
		Temperature: &temperature,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}
	descriptors := a.registry.Describe()
	toolPrompts := a.registry.Prompts()

	for conv.Iteration() < cfg.maxIterations {
		if ctx.Err() != nil {
			return outcome(FallbackMessage, ReasonDeadline), nil
		}
		conv = conv.Next()
		iterLogger := logger.With("iteration", conv.Iteration())

		prompt, err := buildSystemPrompt(promptInput{
			Tools:         descriptors,
			Prompts:       toolPrompts,
			Guidance:      decision.Guidance,
			Iteration:     conv.Iteration(),
			MaxIterations: cfg.maxIterations,
		})
		if err != nil {
			return nil, err
		}
		config.SystemInstruction = genai.NewContentFromText(prompt, "")

		resp, err := a.think(ctx, conv, config)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return outcome(FallbackMessage, ReasonDeadline), nil
			}
			if conv.Iteration() == 1 {
				return nil, goerr.Wrap(err, "answer generator is unavailable")
			}
			iterLogger.Warn("generator failed mid-cycle", "error", err)
			return outcome(FallbackMessage, ReasonGeneratorFailed), nil
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			iterLogger.Debug("generator returned no candidate")
			continue
		}
		candidate := resp.Candidates[0]
		conv = conv.WithTurn(candidate.Content)

		var calls []model.ToolCall
		var texts []string
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				calls = append(calls, model.ToolCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: args,
				})
			}
			if part.Text != "" && !part.Thought {
				texts = append(texts, part.Text)
			}
		}

		if len(calls) == 0 {
			draft := strings.TrimSpace(strings.Join(texts, ""))
			if missing := a.nextRequired(required, directed, conv); missing != "" && conv.Iteration() < cfg.maxIterations {
				iterLogger.Debug("answer attempted before required tool", "tool", missing)
				directed[missing] = true
				conv = conv.WithTurn(genai.NewContentFromText(directivePrompt(missing), genai.RoleUser))
				continue
			}
			if draft == "" {
				iterLogger.Debug("generator returned empty answer")
				continue
			}
			iterLogger.Debug("answer finalized")
			return outcome(Synthesize(draft, conv.Results()), ReasonAnswered), nil
		}

		iterLogger.Debug("dispatching tool calls", "count", len(calls))
		steps := a.dispatch(ctx, conv.Iteration(), calls)
		conv = conv.WithSteps(steps...)
		conv = conv.WithTurn(functionResponses(ctx, steps))
	}

	if ctx.Err() != nil {
		return outcome(FallbackMessage, ReasonDeadline), nil
	}
	return outcome(FallbackMessage, ReasonBudgetExhausted), nil
}

func (a *Agent) think(ctx context.Context, conv model.Conversation, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.think")
	defer span.End()
	span.SetAttributes(attribute.Int("agent.iteration", conv.Iteration()))

	return a.gemini.GenerateContent(ctx, conv.Turns(), config)
}

// nextRequired returns the first required tool that has neither been called
// nor been asked for yet
func (a *Agent) nextRequired(required []string, directed map[string]bool, conv model.Conversation) string {
	for _, name := range required {
		if !directed[name] && !conv.Called(name) {
			return name
		}
	}
	return ""
}

func functionResponses(ctx context.Context, steps []model.Step) *genai.Content {
	parts := make([]*genai.Part, 0, len(steps))
	for _, step := range steps {
		resp, err := step.Result.Response()
		if err != nil {
			logging.From(ctx).Warn("failed to encode tool result", "tool", step.Call.Name, "error", err)
			resp = map[string]any{
				"success": false,
				"error":   map[string]any{"kind": "encoding", "message": err.Error()},
			}
		}
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       step.Call.ID,
				Name:     step.Call.Name,
				Response: resp,
			},
		})
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}
