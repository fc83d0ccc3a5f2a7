package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// ChunkRepository stores the structured side of the corpus: one row per
// chunk, carrying the tender metadata the router filters on. The sparse index
// is rebuilt from AllChunks, so row ordering here decides build determinism.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	source_path TEXT,
	page_start INTEGER NOT NULL DEFAULT 0,
	page_end INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	document_date TIMESTAMPTZ,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_document_date ON chunks(document_date DESC);
CREATE INDEX IF NOT EXISTS idx_chunks_region ON chunks((lower(metadata->>'region')));

CREATE TABLE IF NOT EXISTS corpus_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
INSERT INTO chunks (id, doc_id, source_path, page_start, page_end, text, document_date, metadata, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	doc_id = EXCLUDED.doc_id,
	source_path = EXCLUDED.source_path,
	page_start = EXCLUDED.page_start,
	page_end = EXCLUDED.page_end,
	text = EXCLUDED.text,
	document_date = EXCLUDED.document_date,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
`
	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		var docDate any
		if !chunk.DocumentDate.IsZero() {
			docDate = chunk.DocumentDate.UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID, chunk.SourceDocumentID, chunk.SourcePath,
			chunk.Pages.Start, chunk.Pages.End, chunk.Text,
			docDate, metadataJSON, now,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

const chunkColumns = `id, doc_id, source_path, page_start, page_end, text, document_date, metadata`

// LookupByIdentifier resolves a zero-padded tender identifier to the
// document's first chunk.
func (r *ChunkRepository) LookupByIdentifier(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE doc_id = $1
ORDER BY page_start ASC, id ASC
LIMIT 1
`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "lookup chunk", fmt.Errorf("identifier %s", id))
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return chunk, nil
}

// Filter answers metadata-only queries. Ordering is part of the contract:
// newest documents first, chunk id as the stable tie-break.
func (r *ChunkRepository) Filter(ctx context.Context, dates domain.DateRange, regionSubstring string) ([]domain.Chunk, error) {
	var (
		conditions []string
		args       []any
	)
	if regionSubstring != "" {
		args = append(args, "%"+strings.ToLower(regionSubstring)+"%")
		conditions = append(conditions, fmt.Sprintf("lower(metadata->>'region') LIKE $%d", len(args)))
	}
	if !dates.From.IsZero() {
		args = append(args, dates.From.UTC())
		conditions = append(conditions, fmt.Sprintf("document_date >= $%d", len(args)))
	}
	if !dates.To.IsZero() {
		args = append(args, dates.To.UTC())
		conditions = append(conditions, fmt.Sprintf("document_date <= $%d", len(args)))
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY document_date DESC NULLS LAST, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// Regions returns the controlled region vocabulary as stored in the corpus.
func (r *ChunkRepository) Regions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT lower(metadata->>'region') AS region
FROM chunks
WHERE metadata->>'region' IS NOT NULL AND metadata->>'region' <> ''
ORDER BY region
`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return regions, nil
}

// AllChunks streams the full corpus for sparse index builds, ordered by
// chunk id so every rebuild sees the same sequence.
func (r *ChunkRepository) AllChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

const embeddingConfigKey = "embedding_config"

// SetEmbeddingConfig records which embedding model and dimension produced the
// stored vectors. Retrieval against a corpus embedded with a different model
// returns plausible-looking noise, so both binaries check this tag at startup.
func (r *ChunkRepository) SetEmbeddingConfig(ctx context.Context, model string, dim int) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO corpus_meta (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, embeddingConfigKey, fmt.Sprintf("%s:%d", model, dim), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store embedding config: %w", err)
	}
	return nil
}

// EmbeddingConfig returns the recorded model tag and dimension, or ("", 0)
// when no corpus has been ingested yet.
func (r *ChunkRepository) EmbeddingConfig(ctx context.Context) (string, int, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM corpus_meta WHERE key = $1`, embeddingConfigKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("load embedding config: %w", err)
	}

	sep := strings.LastIndex(value, ":")
	if sep < 0 {
		return "", 0, fmt.Errorf("malformed embedding config %q", value)
	}
	dim, err := strconv.Atoi(value[sep+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed embedding config %q: %w", value, err)
	}
	return value[:sep], dim, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		chunk       domain.Chunk
		sourcePath  sql.NullString
		docDate     sql.NullTime
		metadataRaw []byte
	)
	err := row.Scan(
		&chunk.ID, &chunk.SourceDocumentID, &sourcePath,
		&chunk.Pages.Start, &chunk.Pages.End, &chunk.Text,
		&docDate, &metadataRaw,
	)
	if err != nil {
		return nil, err
	}
	chunk.SourcePath = sourcePath.String
	if docDate.Valid {
		chunk.DocumentDate = docDate.Time
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
	}
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}
