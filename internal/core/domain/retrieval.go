package domain

import "time"

// RoutingMode is the query classification decided by the metadata router.
type RoutingMode string

const (
	ModeExactLookup    RoutingMode = "exact_lookup"
	ModeMetadataFilter RoutingMode = "metadata_filter"
	ModeSemanticOnly   RoutingMode = "semantic_only"
	ModeHybridFusion   RoutingMode = "hybrid_fusion"
)

// Signal names the retrieval sources that contributed to a result.
type Signal string

const (
	SignalMetadata        Signal = "metadata"
	SignalSparse          Signal = "sparse"
	SignalDense           Signal = "dense"
	SignalDenseTranslated Signal = "dense_translated"
	SignalRerank          Signal = "rerank"
)

// DateRange bounds metadata filtering. Zero boundaries are open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// StructuredFilters carries the constraints parsed out of a query. They act
// as pre-filters on dense search and post-filters on sparse results.
type StructuredFilters struct {
	Identifier string    `json:"identifier,omitempty"`
	Dates      DateRange `json:"dates,omitempty"`
	Region     string    `json:"region,omitempty"`
}

func (f StructuredFilters) IsZero() bool {
	return f.Identifier == "" && f.Region == "" && f.Dates.IsZero()
}

// QueryPlan is the immutable routing decision for one query. ExpandedQueries
// is populated only in hybrid/semantic modes and always starts with the
// original query text.
type QueryPlan struct {
	Mode            RoutingMode       `json:"mode"`
	Filters         StructuredFilters `json:"filters"`
	ExpandedQueries []string          `json:"expanded_queries,omitempty"`
}

// Candidate is the per-query scoring record. Optional scores stay nil when
// the corresponding signal did not contribute.
type Candidate struct {
	ChunkID     string   `json:"chunk_id"`
	Chunk       Chunk    `json:"chunk"`
	SparseScore *float64 `json:"sparse_score,omitempty"`
	DenseScore  *float64 `json:"dense_score,omitempty"`
	FusedScore  float64  `json:"fused_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	FinalScore  float64  `json:"final_score"`
	Rank        int      `json:"rank"`
}

// RetrievalResult is the orchestrator's terminal output. Candidates keep the
// engine's ordering; downstream consumers must not re-rank them.
type RetrievalResult struct {
	Mode       RoutingMode `json:"mode"`
	Candidates []Candidate `json:"candidates"`
	Grounded   bool        `json:"grounded"`
	Reranked   bool        `json:"reranked"`
	Signals    []Signal    `json:"signals"`
}
