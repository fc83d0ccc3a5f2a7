package ports

import (
	"context"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// Embedder turns query text into the fixed-length vector expected by the
// vector store. ModelID reports the pinned model identity so bootstrap can
// verify it against the corpus configuration.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// Tokenizer normalizes text into the token stream the sparse index expects.
// Implementations are pure; no I/O at call time.
type Tokenizer interface {
	Tokenize(text, languageHint string) []string
}

// ScoredChunk is one (chunk, score) pair from a single retrieval source.
type ScoredChunk struct {
	ChunkID string
	Chunk   domain.Chunk
	Score   float64
}

// SparseSearcher scores query tokens against the published index snapshot.
// Search fails with domain.ErrIndexUnavailable when no snapshot exists.
type SparseSearcher interface {
	Search(tokens []string, topN int) ([]ScoredChunk, error)
}

// DenseSearcher is the pass-through to the external vector store. Returned
// similarities are normalized onto [0,1]; filters are applied server-side.
type DenseSearcher interface {
	Search(ctx context.Context, queryVector []float32, topN int, filters domain.StructuredFilters) ([]ScoredChunk, error)
}

// RerankScorer scores (query, passage) pairs independently; one scalar per
// passage, same order as the input. No ordering is implied across batches.
type RerankScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Translator builds the cross-lingual query variant. Optional collaborator;
// failure degrades to single-query retrieval.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// MetadataStore answers structured lookups directly, bypassing scoring.
type MetadataStore interface {
	LookupByIdentifier(ctx context.Context, id string) (*domain.Chunk, error)
	Filter(ctx context.Context, dates domain.DateRange, regionSubstring string) ([]domain.Chunk, error)
	Regions(ctx context.Context) ([]string, error)
	AllChunks(ctx context.Context) ([]domain.Chunk, error)
}

// PageTextLoader backfills chunk text from the source document when the
// stored payload is empty.
type PageTextLoader interface {
	LoadPages(ctx context.Context, sourcePath string, pages domain.PageRange) (string, error)
}

// MessageQueue publishes/consumes corpus version events.
type MessageQueue interface {
	PublishCorpusUpdated(ctx context.Context, corpusVersion string) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context, string) error) error
}
