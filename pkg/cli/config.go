package cli

import (
	"context"
	"io"
	"time"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/cache"
	"github.com/m-mizutani/dossier/pkg/policy"
	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/tool"
	"github.com/m-mizutani/dossier/pkg/tool/retrieval"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/dossier/pkg/usecase/index"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	backendMemory    = "memory"
	backendFirestore = "firestore"
	backendBigQuery  = "bigquery"
)

// config holds configuration values
type config struct {
	// Store
	backend           string
	recordsFile       string
	project           string
	database          string
	recordsCollection string
	vectorsCollection string
	bqDataset         string
	bqTable           string

	// LLM
	geminiProject  string
	geminiLocation string
	geminiModel    string
	embeddingModel string
	embeddingDim   int64
	rateLimit      float64
	rateBurst      int64

	// Agent
	maxIterations int64
	deadline      time.Duration
	callTimeout   time.Duration
	retries       int64
	backoff       time.Duration
	parallelism   int64
	cacheTTL      time.Duration
	policyFile    string

	// Storage
	bucket string
}

// storeFlags returns flags selecting the record store and semantic index
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Record store backend (memory, firestore, bigquery)",
			Value:       backendMemory,
			Sources:     cli.EnvVars("DOSSIER_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "records",
			Aliases:     []string{"r"},
			Usage:       "YAML records file loaded by the memory backend",
			Sources:     cli.EnvVars("DOSSIER_RECORDS"),
			Destination: &cfg.recordsFile,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "records-collection",
			Usage:       "Firestore collection holding records",
			Value:       "records",
			Sources:     cli.EnvVars("DOSSIER_RECORDS_COLLECTION"),
			Destination: &cfg.recordsCollection,
		},
		&cli.StringFlag{
			Name:        "vectors-collection",
			Usage:       "Firestore collection holding semantic index entries",
			Value:       "record_vectors",
			Sources:     cli.EnvVars("DOSSIER_VECTORS_COLLECTION"),
			Destination: &cfg.vectorsCollection,
		},
		&cli.StringFlag{
			Name:        "bq-dataset",
			Usage:       "BigQuery dataset of the records table",
			Sources:     cli.EnvVars("DOSSIER_BQ_DATASET"),
			Destination: &cfg.bqDataset,
		},
		&cli.StringFlag{
			Name:        "bq-table",
			Usage:       "BigQuery records table",
			Value:       "records",
			Sources:     cli.EnvVars("DOSSIER_BQ_TABLE"),
			Destination: &cfg.bqTable,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model answering questions",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("DOSSIER_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model for the semantic index",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("DOSSIER_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding output dimension. Index and queries must agree.",
			Value:       768,
			Sources:     cli.EnvVars("DOSSIER_EMBEDDING_DIMENSION"),
			Destination: &cfg.embeddingDim,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Gemini requests per second (0 disables limiting)",
			Value:       5,
			Sources:     cli.EnvVars("DOSSIER_RATE_LIMIT"),
			Destination: &cfg.rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Gemini request burst size",
			Value:       5,
			Sources:     cli.EnvVars("DOSSIER_RATE_BURST"),
			Destination: &cfg.rateBurst,
		},
	}
}

// agentFlags returns flags bounding the agent loop
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum generator turns per question",
			Value:       agent.DefaultMaxIterations,
			Sources:     cli.EnvVars("DOSSIER_MAX_ITERATIONS"),
			Destination: &cfg.maxIterations,
		},
		&cli.DurationFlag{
			Name:        "deadline",
			Usage:       "Wall-clock budget per question",
			Value:       agent.DefaultDeadline,
			Sources:     cli.EnvVars("DOSSIER_DEADLINE"),
			Destination: &cfg.deadline,
		},
		&cli.DurationFlag{
			Name:        "call-timeout",
			Usage:       "Timeout of a single tool call",
			Value:       agent.DefaultCallTimeout,
			Sources:     cli.EnvVars("DOSSIER_CALL_TIMEOUT"),
			Destination: &cfg.callTimeout,
		},
		&cli.IntFlag{
			Name:        "retries",
			Usage:       "Retries of a tool call failing with a transient error",
			Value:       agent.DefaultRetries,
			Sources:     cli.EnvVars("DOSSIER_RETRIES"),
			Destination: &cfg.retries,
		},
		&cli.DurationFlag{
			Name:        "retry-backoff",
			Usage:       "Base delay between retries, multiplied by the attempt number",
			Value:       agent.DefaultBackoff,
			Sources:     cli.EnvVars("DOSSIER_RETRY_BACKOFF"),
			Destination: &cfg.backoff,
		},
		&cli.IntFlag{
			Name:        "parallelism",
			Usage:       "Tool calls executed concurrently within one turn",
			Value:       agent.DefaultParallelism,
			Sources:     cli.EnvVars("DOSSIER_PARALLELISM"),
			Destination: &cfg.parallelism,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "Lifetime of cached tool results (0 disables the cache)",
			Value:       cache.DefaultTTL,
			Sources:     cli.EnvVars("DOSSIER_CACHE_TTL"),
			Destination: &cfg.cacheTTL,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Rego routing policy replacing the embedded one",
			Sources:     cli.EnvVars("DOSSIER_POLICY"),
			Destination: &cfg.policyFile,
		},
	}
}

// storageFlags returns flags for transcript persistence
func storageFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for chat transcripts",
			Sources:     cli.EnvVars("DOSSIER_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithEmbeddingDimension(int(cfg.embeddingDim)),
		adapter.WithRateLimit(cfg.rateLimit, int(cfg.rateBurst)),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// stores bundles the read side used by tools and the write side used by
// indexing. Writers are nil for read-only backends.
type stores struct {
	records  repository.RecordStore
	index    repository.SemanticIndex
	recordsW repository.RecordWriter
	indexW   repository.IndexWriter
	closers  []io.Closer
}

func (s *stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newStores opens the configured backend
func (cfg *config) newStores(ctx context.Context, embedder repository.Embedder) (*stores, error) {
	switch cfg.backend {
	case backendMemory:
		mem := repository.NewMemory(embedder)
		return &stores{records: mem, index: mem, recordsW: mem, indexW: mem}, nil

	case backendFirestore:
		fs, err := cfg.newFirestore(ctx, embedder)
		if err != nil {
			return nil, err
		}
		return &stores{records: fs, index: fs, recordsW: fs, indexW: fs, closers: []io.Closer{fs}}, nil

	case backendBigQuery:
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.bqDataset == "" {
			return nil, goerr.New("bq-dataset is required")
		}
		bq, err := repository.NewBigQuery(ctx, cfg.project, cfg.bqDataset, cfg.bqTable)
		if err != nil {
			return nil, err
		}
		fs, err := cfg.newFirestore(ctx, embedder)
		if err != nil {
			_ = bq.Close()
			return nil, err
		}
		// BigQuery records are maintained outside dossier; only the vector
		// index is writable.
		return &stores{records: bq, index: fs, indexW: fs, closers: []io.Closer{bq, fs}}, nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

func (cfg *config) newFirestore(ctx context.Context, embedder repository.Embedder) (*repository.Firestore, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	fs, err := repository.NewFirestore(ctx, cfg.project, cfg.database,
		repository.WithCollections(cfg.recordsCollection, cfg.vectorsCollection),
		repository.WithEmbedder(embedder),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore repository")
	}
	return fs, nil
}

// preload fills the memory backend from the records file. Persistent
// backends are filled by the index command instead.
func (cfg *config) preload(ctx context.Context, s *stores, embedder repository.Embedder) error {
	if cfg.backend != backendMemory || cfg.recordsFile == "" {
		return nil
	}

	loaded, err := repository.LoadRecordsFile(cfg.recordsFile)
	if err != nil {
		return err
	}
	report, err := index.New(s.recordsW, s.indexW, embedder).Index(ctx, loaded)
	if err != nil {
		return goerr.Wrap(err, "failed to index records file", goerr.V("path", cfg.recordsFile))
	}
	logging.From(ctx).Info("records loaded", "path", cfg.recordsFile, "count", len(report.Indexed))
	return nil
}

// newRegistry registers the retrieval tools over s
func newRegistry(s *stores) (*tool.Registry, error) {
	var (
		records repository.RecordStore
		idx     repository.SemanticIndex
	)
	if s != nil {
		records, idx = s.records, s.index
	}
	registry, err := tool.New(retrieval.Tools(records, idx)...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build tool registry")
	}
	return registry, nil
}

// newAgent wires the agent loop. The returned cleanup stops the cache janitor.
func (cfg *config) newAgent(ctx context.Context, gemini adapter.Gemini, s *stores) (*agent.Agent, func(), error) {
	registry, err := newRegistry(s)
	if err != nil {
		return nil, nil, err
	}

	var policyOpts []policy.Option
	if cfg.policyFile != "" {
		policyOpts = append(policyOpts, policy.WithPolicyFile(cfg.policyFile))
	}
	router, err := policy.New(ctx, policyOpts...)
	if err != nil {
		return nil, nil, err
	}

	opts := []agent.Option{
		agent.WithRouter(router),
		agent.WithMaxIterations(int(cfg.maxIterations)),
		agent.WithDeadline(cfg.deadline),
		agent.WithCallTimeout(cfg.callTimeout),
		agent.WithRetry(int(cfg.retries), cfg.backoff),
		agent.WithParallelism(int(cfg.parallelism)),
	}

	cleanup := func() {}
	if cfg.cacheTTL > 0 {
		c := cache.New(cfg.cacheTTL)
		opts = append(opts, agent.WithCache(c))
		cleanup = c.Close
	}

	a, err := agent.New(gemini, registry, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// runtime is the wiring shared by ask, chat and serve
type runtime struct {
	agent   *agent.Agent
	cleanup func()
}

func (cfg *config) newRuntime(ctx context.Context) (*runtime, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}
	s, err := cfg.newStores(ctx, gemini)
	if err != nil {
		return nil, err
	}
	if err := cfg.preload(ctx, s, gemini); err != nil {
		_ = s.Close()
		return nil, err
	}
	a, stopCache, err := cfg.newAgent(ctx, gemini, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &runtime{
		agent: a,
		cleanup: func() {
			stopCache()
			if err := s.Close(); err != nil {
				logging.From(ctx).Warn("failed to close stores", "error", err)
			}
		},
	}, nil
}

func (cfg *config) flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, storeFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, agentFlags(cfg)...)
	return flags
}
