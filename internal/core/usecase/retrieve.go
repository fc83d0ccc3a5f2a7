package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

const backfillMaxChars = 1800

// RetrieveConfig tunes the orchestrated pipeline. The fusion and blending
// constants have no universally correct value; they are validated per
// deployment against a labeled query set.
type RetrieveConfig struct {
	CandidateDepth   int
	FinalK           int
	RerankKeep       int
	RerankWeight     float64
	RRFK             int
	DualQuery        bool
	TranslateTarget  string
	LanguageHint     string
	Thresholds       GroundingThresholds
	DenseTimeout     time.Duration
	RerankTimeout    time.Duration
	TranslateTimeout time.Duration
}

func (c RetrieveConfig) normalize() RetrieveConfig {
	if c.CandidateDepth <= 0 {
		c.CandidateDepth = 100
	}
	if c.FinalK <= 0 {
		c.FinalK = 16
	}
	if c.RerankKeep <= 0 {
		c.RerankKeep = 24
	}
	if c.RerankWeight <= 0 || c.RerankWeight > 1 {
		c.RerankWeight = 0.8
	}
	if c.RRFK <= 0 {
		c.RRFK = defaultRRFK
	}
	if c.TranslateTarget == "" {
		c.TranslateTarget = "de"
	}
	if c.LanguageHint == "" {
		c.LanguageHint = "de"
	}
	if c.Thresholds.Reranked <= 0 && c.Thresholds.FusedOnly <= 0 {
		c.Thresholds = DefaultGroundingThresholds()
	}
	if c.DenseTimeout <= 0 {
		c.DenseTimeout = 5 * time.Second
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = 10 * time.Second
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = 3 * time.Second
	}
	return c
}

// RetrieveUseCase sequences routing, concurrent retrieval, fusion, reranking
// and the grounding gate for one query. Reranker, translator and page loader
// are optional collaborators; a nil value disables the corresponding stage.
type RetrieveUseCase struct {
	router     *Router
	tokenizer  ports.Tokenizer
	sparse     ports.SparseSearcher
	embedder   ports.Embedder
	dense      ports.DenseSearcher
	metadata   ports.MetadataStore
	reranker   ports.RerankScorer
	translator ports.Translator
	pages      ports.PageTextLoader
	cfg        RetrieveConfig
}

func NewRetrieveUseCase(
	router *Router,
	tokenizer ports.Tokenizer,
	sparse ports.SparseSearcher,
	embedder ports.Embedder,
	dense ports.DenseSearcher,
	metadata ports.MetadataStore,
	reranker ports.RerankScorer,
	translator ports.Translator,
	pages ports.PageTextLoader,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		router:     router,
		tokenizer:  tokenizer,
		sparse:     sparse,
		embedder:   embedder,
		dense:      dense,
		metadata:   metadata,
		reranker:   reranker,
		translator: translator,
		pages:      pages,
		cfg:        cfg.normalize(),
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string) (*domain.RetrievalResult, error) {
	plan := uc.router.Classify(query)

	switch plan.Mode {
	case domain.ModeExactLookup:
		return uc.exactLookup(ctx, plan), nil
	case domain.ModeMetadataFilter:
		return uc.metadataFilter(ctx, plan), nil
	default:
		return uc.scoredRetrieval(ctx, query, plan)
	}
}

// exactLookup resolves an identifier query directly from metadata. An
// unmatched identifier stays empty: falling through to semantic search would
// surface plausible-looking hits for a typo'd id.
func (uc *RetrieveUseCase) exactLookup(ctx context.Context, plan domain.QueryPlan) *domain.RetrievalResult {
	chunk, err := uc.metadata.LookupByIdentifier(ctx, plan.Filters.Identifier)
	if err != nil {
		if !domain.IsKind(err, domain.ErrChunkNotFound) {
			slog.Warn("exact_lookup_degraded", "identifier", plan.Filters.Identifier, "error", err)
		}
		return emptyResult(plan.Mode, domain.SignalMetadata)
	}
	if chunk == nil {
		return emptyResult(plan.Mode, domain.SignalMetadata)
	}

	return &domain.RetrievalResult{
		Mode: plan.Mode,
		Candidates: assignRanks([]domain.Candidate{{
			ChunkID: chunk.ID,
			Chunk:   *chunk,
		}}),
		Grounded: true,
		Signals:  []domain.Signal{domain.SignalMetadata},
	}
}

func (uc *RetrieveUseCase) metadataFilter(ctx context.Context, plan domain.QueryPlan) *domain.RetrievalResult {
	chunks, err := uc.metadata.Filter(ctx, plan.Filters.Dates, plan.Filters.Region)
	if err != nil {
		slog.Warn("metadata_filter_degraded", "region", plan.Filters.Region, "error", err)
		return emptyResult(plan.Mode, domain.SignalMetadata)
	}

	candidates := make([]domain.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		candidates = append(candidates, domain.Candidate{ChunkID: chunk.ID, Chunk: chunk})
	}
	return &domain.RetrievalResult{
		Mode:       plan.Mode,
		Candidates: assignRanks(candidates),
		Grounded:   len(candidates) > 0,
		Signals:    []domain.Signal{domain.SignalMetadata},
	}
}

func (uc *RetrieveUseCase) scoredRetrieval(ctx context.Context, originalQuery string, plan domain.QueryPlan) (*domain.RetrievalResult, error) {
	scoringText := originalQuery
	if len(plan.ExpandedQueries) > 0 {
		scoringText = plan.ExpandedQueries[0]
	}

	tokens := uc.tokenizer.Tokenize(scoringText, uc.cfg.LanguageHint)
	if len(tokens) == 0 {
		return emptyResult(plan.Mode), nil
	}

	// Sparse, dense and the translated branch have no data dependency and
	// are issued concurrently; each may fail on its own without aborting the
	// others. Translation runs inside the fan-out so the original-query
	// searches never wait on the translator.
	var (
		sparseList      []ports.ScoredChunk
		sparseErr       error
		denseList       []ports.ScoredChunk
		denseErr        error
		transList       []ports.ScoredChunk
		transErr        error
		translatedQuery string
	)

	g, gctx := errgroup.WithContext(ctx)
	if plan.Mode == domain.ModeHybridFusion {
		g.Go(func() error {
			res, err := uc.sparse.Search(tokens, uc.cfg.CandidateDepth)
			if err != nil {
				sparseErr = err
				return nil
			}
			sparseList = applyPostFilters(res, plan.Filters)
			return nil
		})
	} else {
		sparseErr = domain.ErrIndexUnavailable
	}
	g.Go(func() error {
		denseList, denseErr = uc.denseSearch(gctx, scoringText, plan.Filters)
		return nil
	})
	if uc.cfg.DualQuery && uc.translator != nil {
		g.Go(func() error {
			translatedQuery = uc.translateQuery(gctx, scoringText)
			if translatedQuery == "" {
				return nil
			}
			transList, transErr = uc.denseSearch(gctx, translatedQuery, plan.Filters)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range []error{denseErr, transErr} {
		if err != nil && domain.IsKind(err, domain.ErrConfigMismatch) {
			return nil, err
		}
	}

	lists := make([]rankedList, 0, 3)
	signals := make([]domain.Signal, 0, 4)
	if sparseErr == nil {
		lists = append(lists, rankedList{signal: domain.SignalSparse, items: sparseList})
		signals = append(signals, domain.SignalSparse)
	} else if plan.Mode == domain.ModeHybridFusion {
		slog.Warn("sparse_search_degraded", "error", sparseErr)
	}
	if denseErr == nil {
		lists = append(lists, rankedList{signal: domain.SignalDense, items: denseList})
		signals = append(signals, domain.SignalDense)
	} else {
		slog.Warn("dense_search_degraded", "error", denseErr)
	}
	if translatedQuery != "" {
		if transErr == nil {
			lists = append(lists, rankedList{signal: domain.SignalDenseTranslated, items: transList})
			signals = append(signals, domain.SignalDenseTranslated)
		} else {
			slog.Warn("translated_dense_search_degraded", "error", transErr)
		}
	}

	if len(lists) == 0 {
		return nil, domain.WrapError(domain.ErrNoSignal, "retrieve", errors.Join(sparseErr, denseErr, transErr))
	}

	fused := fuseRRF(uc.cfg.RRFK, lists...)

	reranked := false
	final := fused
	if uc.reranker != nil && len(fused) > 0 && ctx.Err() == nil {
		head := fused
		if len(head) > uc.cfg.RerankKeep {
			head = head[:uc.cfg.RerankKeep]
		}
		head = uc.backfillText(ctx, head)

		passages := make([]string, len(head))
		for i, c := range head {
			passages[i] = c.Chunk.Text
		}

		rctx, cancel := context.WithTimeout(ctx, uc.cfg.RerankTimeout)
		scores, err := uc.reranker.Score(rctx, originalQuery, passages)
		cancel()

		switch {
		case err != nil:
			// The overall deadline and a dead reranker degrade the same
			// way: best ordering computed so far.
			slog.Warn("rerank_degraded", "error", err)
		case len(scores) != len(head):
			slog.Warn("rerank_degraded", "error", "score count mismatch", "want", len(head), "got", len(scores))
		default:
			final = blendReranked(head, scores, uc.cfg.RerankWeight)
			reranked = true
			signals = append(signals, domain.SignalRerank)
		}
	}

	final = assignRanks(trimCandidates(final, uc.cfg.FinalK))

	topScore := 0.0
	if len(final) > 0 {
		topScore = final[0].FinalScore
	}

	return &domain.RetrievalResult{
		Mode:       plan.Mode,
		Candidates: final,
		Grounded:   decideGrounded(topScore, len(final) > 0, reranked, uc.cfg.Thresholds),
		Reranked:   reranked,
		Signals:    signals,
	}, nil
}

func (uc *RetrieveUseCase) denseSearch(ctx context.Context, query string, filters domain.StructuredFilters) ([]ports.ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.DenseTimeout)
	defer cancel()

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if domain.IsKind(err, domain.ErrConfigMismatch) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, "embed query", err)
	}
	return uc.dense.Search(ctx, vector, uc.cfg.CandidateDepth, filters)
}

// translateQuery builds the cross-lingual query variant. Any failure keeps
// retrieval single-query.
func (uc *RetrieveUseCase) translateQuery(ctx context.Context, query string) string {
	if !uc.cfg.DualQuery || uc.translator == nil {
		return ""
	}
	tctx, cancel := context.WithTimeout(ctx, uc.cfg.TranslateTimeout)
	defer cancel()

	translated, err := uc.translator.Translate(tctx, query, uc.cfg.TranslateTarget)
	if err != nil {
		slog.Warn("translate_degraded", "error", err)
		return ""
	}
	translated = strings.TrimSpace(translated)
	if translated == "" || strings.EqualFold(translated, query) {
		return ""
	}
	return translated
}

// backfillText loads page text for candidates whose stored payload is empty,
// so the reranker always sees a passage. OCR gaps in the corpus leave some
// chunks without inline text.
func (uc *RetrieveUseCase) backfillText(ctx context.Context, head []domain.Candidate) []domain.Candidate {
	if uc.pages == nil {
		return head
	}
	for i := range head {
		if head[i].Chunk.Text != "" || head[i].Chunk.SourcePath == "" {
			continue
		}
		text, err := uc.pages.LoadPages(ctx, head[i].Chunk.SourcePath, head[i].Chunk.Pages)
		if err != nil {
			slog.Warn("page_text_backfill_failed", "chunk_id", head[i].ChunkID, "error", err)
			continue
		}
		if len(text) > backfillMaxChars {
			text = text[:backfillMaxChars]
		}
		head[i].Chunk.Text = text
	}
	return head
}

func applyPostFilters(items []ports.ScoredChunk, filters domain.StructuredFilters) []ports.ScoredChunk {
	if filters.IsZero() {
		return items
	}
	out := make([]ports.ScoredChunk, 0, len(items))
	for _, item := range items {
		if matchesFilters(item.Chunk, filters) {
			out = append(out, item)
		}
	}
	return out
}

func matchesFilters(chunk domain.Chunk, filters domain.StructuredFilters) bool {
	if filters.Region != "" {
		region := strings.ToLower(chunk.MetadataValue("region"))
		if !strings.Contains(region, filters.Region) {
			return false
		}
	}
	if !filters.Dates.IsZero() {
		if chunk.DocumentDate.IsZero() {
			return false
		}
		if !filters.Dates.From.IsZero() && chunk.DocumentDate.Before(filters.Dates.From) {
			return false
		}
		if !filters.Dates.To.IsZero() && chunk.DocumentDate.After(filters.Dates.To) {
			return false
		}
	}
	return true
}

func emptyResult(mode domain.RoutingMode, signals ...domain.Signal) *domain.RetrievalResult {
	return &domain.RetrievalResult{
		Mode:       mode,
		Candidates: []domain.Candidate{},
		Grounded:   false,
		Signals:    signals,
	}
}
