package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

type stubRetrieval struct {
	result *domain.RetrievalResult
	err    error
}

func (s *stubRetrieval) Retrieve(_ context.Context, _ string) (*domain.RetrievalResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestHandler(svc *stubRetrieval, opts Options) http.Handler {
	return NewRouter(svc, nil, opts).Handler()
}

func doSearch(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchReturnsCandidatesInEngineOrder(t *testing.T) {
	rerankScore := 0.91
	svc := &stubRetrieval{result: &domain.RetrievalResult{
		Mode:     domain.ModeHybridFusion,
		Grounded: true,
		Reranked: true,
		Signals:  []domain.Signal{domain.SignalSparse, domain.SignalDense, domain.SignalRerank},
		Candidates: []domain.Candidate{
			{
				ChunkID: "00123456-p3-0",
				Chunk: domain.Chunk{
					ID:               "00123456-p3-0",
					Text:             "Mindestlohn im Strassenbau",
					SourceDocumentID: "00123456",
					Pages:            domain.PageRange{Start: 3, End: 3},
					DocumentDate:     time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
				},
				FusedScore:  0.032,
				RerankScore: &rerankScore,
				FinalScore:  0.87,
				Rank:        0,
			},
			{
				ChunkID:    "00123457-p1-0",
				Chunk:      domain.Chunk{ID: "00123457-p1-0", SourceDocumentID: "00123457"},
				FusedScore: 0.016,
				FinalScore: 0.21,
				Rank:       1,
			},
		},
	}}

	res := doSearch(t, newTestHandler(svc, Options{}), `{"query":"Mindestlohn Strassenbau"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Mode != domain.ModeHybridFusion || !resp.Grounded || !resp.Reranked {
		t.Fatalf("unexpected result flags: %+v", resp)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[0].ChunkID != "00123456-p3-0" {
		t.Fatalf("expected engine ordering preserved, got %v", resp.Candidates)
	}
	if resp.Candidates[0].DocumentDate != "2023-06-15" {
		t.Fatalf("expected formatted document date, got %q", resp.Candidates[0].DocumentDate)
	}
	if resp.Candidates[0].RerankScore == nil || *resp.Candidates[0].RerankScore != 0.91 {
		t.Fatalf("expected rerank score passed through, got %v", resp.Candidates[0].RerankScore)
	}
	if resp.Candidates[1].RerankScore != nil {
		t.Fatal("expected nil rerank score omitted for unreranked candidate")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	handler := newTestHandler(&stubRetrieval{}, Options{})

	for _, body := range []string{`{}`, `{"query":"   "}`, `not json`} {
		res := doSearch(t, handler, body)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, res.Code)
		}
	}
}

func TestSearchMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no signal", domain.WrapError(domain.ErrNoSignal, "retrieve", errors.New("all down")), http.StatusServiceUnavailable},
		{"invalid query", domain.WrapError(domain.ErrInvalidQuery, "retrieve", errors.New("bad")), http.StatusBadRequest},
		{"config mismatch", domain.WrapError(domain.ErrConfigMismatch, "embed", errors.New("dims")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&stubRetrieval{err: tc.err}, Options{})
			res := doSearch(t, handler, `{"query":"irgendwas"}`)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if strings.Contains(resp["error"], "all down") || strings.Contains(resp["error"], "dims") {
				t.Fatalf("dependency detail leaked to client: %q", resp["error"])
			}
		})
	}
}

func TestSearchRejectsNonPOST(t *testing.T) {
	handler := newTestHandler(&stubRetrieval{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestRequestIDIsEchoedAndGenerated(t *testing.T) {
	handler := newTestHandler(&stubRetrieval{result: &domain.RetrievalResult{Candidates: []domain.Candidate{}}}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

func TestReadyzReflectsSnapshotState(t *testing.T) {
	ready := false
	handler := newTestHandler(&stubRetrieval{}, Options{ReadinessCheck: func() bool { return ready }})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before snapshot publish, got %d", res.Code)
	}

	ready = true
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 after snapshot publish, got %d", res.Code)
	}
}
