// The worker imports the curated tender corpus: it reads the metadata
// workbook, extracts PDF page text, chunks it, persists chunks to Postgres,
// indexes embeddings into the vector store, and announces the new corpus
// version so API instances rebuild their sparse snapshots.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vergabe-labs/tenderbot/internal/config"
	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/chunking"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/llm/ollama"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/metadata/excel"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/pdftext"
	natsqueue "github.com/vergabe-labs/tenderbot/internal/infrastructure/queue/nats"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/repository/postgres"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/resilience"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/vector/qdrant"
	"github.com/vergabe-labs/tenderbot/internal/observability/logging"
	"github.com/vergabe-labs/tenderbot/internal/observability/metrics"
)

const embedBatchSize = 32

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("import_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	chunks := postgres.NewChunkRepository(db)
	if err := chunks.EnsureSchema(ctx); err != nil {
		return err
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor), cfg.EmbedDim)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantMinScore)
	if err := vectorDB.VerifyCollection(ctx, cfg.EmbedDim); err != nil {
		if domain.IsKind(err, domain.ErrConfigMismatch) {
			return err
		}
		slog.Warn("qdrant_unavailable_at_boot", "error", err)
	}

	// Mixing vectors from two embedding models in one collection corrupts
	// every similarity search, so the recorded tag must match before any
	// document is embedded.
	storedModel, storedDim, err := chunks.EmbeddingConfig(ctx)
	if err != nil {
		return err
	}
	if storedModel != "" && (storedModel != embedder.ModelID() || storedDim != cfg.EmbedDim) {
		return domain.WrapError(domain.ErrConfigMismatch, "verify embedding config",
			fmt.Errorf("corpus embedded with %s:%d, configured %s:%d", storedModel, storedDim, embedder.ModelID(), cfg.EmbedDim))
	}
	if err := chunks.SetEmbeddingConfig(ctx, embedder.ModelID(), cfg.EmbedDim); err != nil {
		return err
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	rows, err := excel.NewImporter("").Load(cfg.MetadataWorkbook)
	if err != nil {
		return err
	}
	slog.Info("corpus_import_started", "workbook", cfg.MetadataWorkbook, "documents", len(rows))

	loader := pdftext.New()
	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	imported, failed := 0, 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		m.StartDocument()
		count, err := importDocument(ctx, row, loader, splitter, chunks, embedder, vectorDB)
		m.FinishDocument("worker", count, time.Since(start), err)
		if err != nil {
			// One unreadable document must not abort the corpus import.
			failed++
			slog.Error("document_import_failed", "document_id", row.ID, "path", row.SourcePath, "error", err)
			continue
		}
		imported++
		slog.Info("document_imported", "document_id", row.ID, "chunks", count, "duration_ms", time.Since(start).Milliseconds())
	}

	if imported == 0 && failed > 0 {
		slog.Warn("corpus_import_empty", "failed", failed)
		return nil
	}

	corpusVersion := uuid.NewString()
	if err := queue.PublishCorpusUpdated(ctx, corpusVersion); err != nil {
		return err
	}
	slog.Info("corpus_import_finished",
		"imported", imported,
		"failed", failed,
		"corpus_version", corpusVersion,
	)
	return nil
}

func importDocument(
	ctx context.Context,
	row excel.DocumentRow,
	loader *pdftext.Loader,
	splitter *chunking.Splitter,
	repo *postgres.ChunkRepository,
	embedder *ollama.Embedder,
	vectorDB *qdrant.Client,
) (int, error) {
	pages, err := loader.ExtractPages(ctx, row.SourcePath)
	if err != nil {
		return 0, err
	}

	metadata := map[string]string{"region": row.Region}
	if row.Title != "" {
		metadata["title"] = row.Title
	}
	docChunks := splitter.SplitDocument(row.ID, row.SourcePath, pages, row.Date, metadata)
	if len(docChunks) == 0 {
		return 0, nil
	}

	if err := repo.UpsertChunks(ctx, docChunks); err != nil {
		return 0, err
	}

	for offset := 0; offset < len(docChunks); offset += embedBatchSize {
		end := min(offset+embedBatchSize, len(docChunks))
		batch := docChunks[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		if err := vectorDB.IndexChunks(ctx, batch, vectors); err != nil {
			return 0, err
		}
	}
	return len(docChunks), nil
}
