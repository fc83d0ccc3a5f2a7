package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/adapters/mcp"
	"github.com/vergabe-labs/tenderbot/internal/config"
	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
	"github.com/vergabe-labs/tenderbot/internal/core/usecase"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/llm/ollama"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/pdftext"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/queue/nats"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/repository/postgres"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/rerank"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/resilience"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/sparse"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/vector/qdrant"
	"github.com/vergabe-labs/tenderbot/internal/observability/metrics"

	httpadapter "github.com/vergabe-labs/tenderbot/internal/adapters/http"
)

// App is the wired query-serving stack. Both the HTTP API and the MCP stdio
// server run off the same retrieval use case.
type App struct {
	Config config.Config

	Chunks    *postgres.ChunkRepository
	Queue     ports.MessageQueue
	Provider  *sparse.Provider
	Retrieval ports.RetrievalService
	Metrics   *metrics.HTTPServerMetrics
	Handler   http.Handler
	MCP       *mcp.Server

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	if err := chunks.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedDim)
	translator := ollama.NewTranslator(ollamaClient)

	// A corpus embedded with a different model still answers queries, just
	// with garbage similarities. Refuse to serve it.
	storedModel, storedDim, err := chunks.EmbeddingConfig(ctx)
	if err != nil {
		slog.Warn("embedding_config_unavailable", "error", err)
	} else if err := checkEmbeddingConfig(storedModel, storedDim, embedder.ModelID(), cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, err
	}

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantMinScore)
	if err := vectorDB.VerifyCollection(ctx, cfg.EmbedDim); err != nil {
		// A dimension mismatch means queries would embed against the wrong
		// corpus, so refuse to start. An unreachable store at boot only
		// degrades the dense path and recovers on its own.
		if domain.IsKind(err, domain.ErrConfigMismatch) {
			_ = db.Close()
			return nil, fmt.Errorf("verify qdrant collection: %w", err)
		}
		slog.Warn("qdrant_unavailable_at_boot", "error", err)
	}

	var reranker ports.RerankScorer
	if cfg.RerankURL != "" {
		reranker = rerank.New(cfg.RerankURL, cfg.RerankModel, executor)
	} else {
		slog.Info("reranker_disabled", "reason", "no RERANK_URL configured")
	}

	var stopwordOverrides map[string][]string
	if cfg.StopwordsPath != "" {
		stopwordOverrides, err = sparse.LoadStopwordOverrides(cfg.StopwordsPath)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load stopword overrides: %w", err)
		}
	}
	tokenizer := sparse.NewTokenizer(cfg.SearchLanguageHint, "en", stopwordOverrides)
	provider := sparse.NewProvider()

	m := metrics.NewHTTPServerMetrics("api")

	rebuild := func(ctx context.Context, corpusVersion string) error {
		start := time.Now()
		corpus, err := chunks.AllChunks(ctx)
		if err != nil {
			return fmt.Errorf("load corpus for sparse index: %w", err)
		}
		snap := sparse.Build(corpus, tokenizer, sparse.Params{K1: cfg.BM25K1, B: cfg.BM25B}, corpusVersion)
		provider.Swap(snap)
		m.RecordSnapshotSwap(snap.Len(), time.Since(start))
		slog.Info("sparse_snapshot_published",
			"corpus_version", corpusVersion,
			"chunks", snap.Len(),
			"build_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
	if err := rebuild(ctx, "boot"); err != nil {
		// The instance still serves dense-only queries; the first corpus
		// event triggers another build.
		slog.Warn("initial_sparse_build_failed", "error", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if err := queue.SubscribeCorpusUpdated(ctx, rebuild); err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("subscribe corpus events: %w", err)
	}

	regions, err := chunks.Regions(ctx)
	if err != nil {
		slog.Warn("region_vocabulary_unavailable", "error", err)
	}

	router := usecase.NewRouter(tokenizer, cfg.SearchLanguageHint, regions,
		func() bool { return provider.Current() != nil },
		usecase.RouterConfig{},
	)

	retrieval := usecase.NewRetrieveUseCase(
		router,
		tokenizer,
		provider,
		embedder,
		vectorDB,
		chunks,
		reranker,
		translator,
		pdftext.New(),
		usecase.RetrieveConfig{
			CandidateDepth:   cfg.SearchCandidateDepth,
			FinalK:           cfg.SearchFinalK,
			RerankKeep:       cfg.SearchRerankKeep,
			RerankWeight:     cfg.SearchRerankWeight,
			RRFK:             cfg.SearchRRFK,
			DualQuery:        cfg.SearchDualQuery,
			TranslateTarget:  cfg.SearchTranslateTo,
			LanguageHint:     cfg.SearchLanguageHint,
			DenseTimeout:     cfg.SearchDenseTimeout,
			RerankTimeout:    cfg.SearchRerankTimeout,
			TranslateTimeout: cfg.SearchTranslateTimeout,
			Thresholds: usecase.GroundingThresholds{
				Reranked:  cfg.GroundingRerankedMin,
				FusedOnly: cfg.GroundingFusedOnlyMin,
			},
		},
	)

	handler := httpadapter.NewRouter(retrieval, m, httpadapter.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		ReadinessCheck: func() bool { return provider.Current() != nil },
	}).Handler()

	return &App{
		Config:    cfg,
		Chunks:    chunks,
		Queue:     queue,
		Provider:  provider,
		Retrieval: retrieval,
		Metrics:   m,
		Handler:   handler,
		MCP:       mcp.NewServer(retrieval),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// checkEmbeddingConfig compares the model tag recorded at ingest time against
// the embedder this process would query with. An empty stored model means no
// corpus has been ingested yet, which is fine at boot.
func checkEmbeddingConfig(storedModel string, storedDim int, model string, dim int) error {
	if storedModel == "" {
		return nil
	}
	if storedModel != model || storedDim != dim {
		return domain.WrapError(domain.ErrConfigMismatch, "verify embedding config",
			fmt.Errorf("corpus embedded with %s:%d, configured %s:%d", storedModel, storedDim, model, dim))
	}
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
