package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
	"github.com/vergabe-labs/tenderbot/internal/observability/metrics"
)

const serviceName = "api"

// Router exposes the retrieval pipeline over HTTP. All responses are JSON;
// candidates keep the engine's ordering.
type Router struct {
	retrieval ports.RetrievalService
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	ReadinessCheck   func() bool
}

func NewRouter(retrieval ports.RetrievalService, m *metrics.HTTPServerMetrics, opts Options) *Router {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 64
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 100 * time.Millisecond
	}
	return &Router{
		retrieval: retrieval,
		metrics:   m,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/readyz", rt.readyz)
	mux.HandleFunc("/v1/search", rt.search)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports whether the instance can serve scored queries. Before the
// first sparse snapshot is published it serves traffic in degraded mode, so
// readiness stays best-effort rather than gating.
func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.opts.ReadinessCheck != nil && !rt.opts.ReadinessCheck() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "sparse index not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Query      string              `json:"query"`
	Mode       domain.RoutingMode  `json:"mode"`
	Grounded   bool                `json:"grounded"`
	Reranked   bool                `json:"reranked"`
	Signals    []domain.Signal     `json:"signals"`
	Candidates []candidateResponse `json:"candidates"`
}

type candidateResponse struct {
	ChunkID          string           `json:"chunk_id"`
	Rank             int              `json:"rank"`
	Text             string           `json:"text,omitempty"`
	SourceDocumentID string           `json:"source_document_id"`
	SourcePath       string           `json:"source_path,omitempty"`
	Pages            domain.PageRange `json:"pages"`
	DocumentDate     string           `json:"document_date,omitempty"`
	FusedScore       float64          `json:"fused_score"`
	RerankScore      *float64         `json:"rerank_score,omitempty"`
	FinalScore       float64          `json:"final_score"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	result, err := rt.retrieval.Retrieve(r.Context(), req.Query)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		slog.Error("search_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": publicErrorMessage(err)})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, string(result.Mode), result.Grounded, len(result.Candidates), time.Since(start))
	}

	writeJSON(w, http.StatusOK, buildSearchResponse(req.Query, result))
}

func buildSearchResponse(query string, result *domain.RetrievalResult) searchResponse {
	candidates := make([]candidateResponse, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		resp := candidateResponse{
			ChunkID:          c.ChunkID,
			Rank:             c.Rank,
			Text:             c.Chunk.Text,
			SourceDocumentID: c.Chunk.SourceDocumentID,
			SourcePath:       c.Chunk.SourcePath,
			Pages:            c.Chunk.Pages,
			FusedScore:       c.FusedScore,
			RerankScore:      c.RerankScore,
			FinalScore:       c.FinalScore,
		}
		if !c.Chunk.DocumentDate.IsZero() {
			resp.DocumentDate = c.Chunk.DocumentDate.UTC().Format("2006-01-02")
		}
		candidates = append(candidates, resp)
	}
	return searchResponse{
		Query:      query,
		Mode:       result.Mode,
		Grounded:   result.Grounded,
		Reranked:   result.Reranked,
		Signals:    result.Signals,
		Candidates: candidates,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
