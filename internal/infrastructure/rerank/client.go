package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/resilience"
)

// Client scores (query, passage) pairs against a text-embeddings-inference
// compatible /rerank endpoint serving a cross-encoder model.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, model string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var scores []float64
	fn := func(ctx context.Context) error {
		var err error
		scores, err = c.score(ctx, query, passages)
		return err
	}

	var err error
	if c.exec != nil {
		err = c.exec.Execute(ctx, "rerank.score", fn, classifyRerankError)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankerUnavailable, "rerank.score", err)
	}
	return scores, nil
}

func (c *Client) score(ctx context.Context, query string, passages []string) ([]float64, error) {
	reqBody := map[string]any{
		"query": query,
		"texts": passages,
	}
	if c.model != "" {
		reqBody["model"] = c.model
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{status: resp.Status, statusCode: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	// The endpoint returns results sorted by relevance; the caller needs
	// them index-aligned with the input passages.
	var results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	scores := make([]float64, 0, len(passages))
	for i, r := range results {
		if r.Index != i {
			return nil, fmt.Errorf("rerank response missing index %d", i)
		}
		scores = append(scores, r.Score)
	}
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages", len(scores), len(passages))
	}
	return scores, nil
}

type statusError struct {
	status     string
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("rerank status: %s", e.status)
	}
	return fmt.Sprintf("rerank status: %s: %s", e.status, e.body)
}

func classifyRerankError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
