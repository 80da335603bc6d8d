package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// EmbeddingTask selects the embedding space optimization
type EmbeddingTask string

const (
	EmbeddingTaskQuery    EmbeddingTask = "RETRIEVAL_QUERY"
	EmbeddingTaskDocument EmbeddingTask = "RETRIEVAL_DOCUMENT"
)

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Embedding(ctx context.Context, text string, task EmbeddingTask) ([]float32, error)
}

type GeminiClient struct {
	client             *genai.Client
	generativeModel    string
	embeddingModel     string
	embeddingDimension int32
	limiter            *rate.Limiter
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets the output dimensionality. Index and query
// vectors must share it.
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingDimension = int32(dim)
	}
}

// WithRateLimit bounds requests per second across generation and embedding.
// Zero or negative disables limiting.
func WithRateLimit(rps float64, burst int) GeminiOption {
	return func(g *GeminiClient) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:             client,
		generativeModel:    "gemini-2.5-flash",
		embeddingModel:     "gemini-embedding-001",
		embeddingDimension: 768,
		limiter:            rate.NewLimiter(rate.Limit(5), 5),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "rate limiter wait aborted")
		}
		// Wait fails early when the reservation would outlive the deadline
		if _, ok := ctx.Deadline(); ok {
			return goerr.Wrap(context.DeadlineExceeded, "rate limiter wait would exceed deadline", goerr.V("cause", err.Error()))
		}
		return goerr.Wrap(err, "rate limiter wait aborted")
	}
	return nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gemini.GenerateContent")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.generativeModel),
		attribute.Int("gemini.contents", len(contents)),
	)

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		span.RecordError(err)
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

func (g *GeminiClient) Embedding(ctx context.Context, text string, task EmbeddingTask) ([]float32, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gemini.Embedding")
	defer span.End()

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	dim := g.embeddingDimension
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             string(task),
		OutputDimensionality: &dim,
	})
	if err != nil {
		span.RecordError(err)
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}
