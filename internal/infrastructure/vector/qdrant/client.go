package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

// Client talks to a qdrant collection holding the dense chunk embeddings.
// Search normalizes cosine similarity from [-1,1] onto [0,1] so all scores
// handed to fusion share one orientation. minScore is a floor on the raw
// cosine score: near-orthogonal matches add rank noise to fusion, so they
// are discarded at the source.
type Client struct {
	baseURL    string
	collection string
	minScore   float64
	httpClient *http.Client
}

func New(baseURL, collection string, minScore float64) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		minScore:   minScore,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// VerifyCollection checks the stored vector dimensionality against the
// embedder the service was configured with. A mismatch means the corpus was
// embedded with a different model and every similarity would be garbage, so
// the caller must treat this as fatal.
func (c *Client) VerifyCollection(ctx context.Context, expectedDim int) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrRetrieverUnavailable, "qdrant collection info", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.WrapError(domain.ErrRetrieverUnavailable, "qdrant collection info",
			fmt.Errorf("status %s", resp.Status))
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("decode collection info: %w", err)
	}

	if got := info.Result.Config.Params.Vectors.Size; got != expectedDim {
		return domain.WrapError(domain.ErrConfigMismatch, "qdrant collection info",
			fmt.Errorf("collection %s has vector size %d, embedder produces %d", c.collection, got, expectedDim))
	}
	return nil
}

// IndexChunks upserts chunk embeddings with the payload fields Search needs
// to rebuild a domain.Chunk and to filter server-side.
func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d vs %d", len(chunks), len(vectors))
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"chunk_id":    chunk.ID,
			"doc_id":      chunk.SourceDocumentID,
			"source_path": chunk.SourcePath,
			"page_start":  chunk.Pages.Start,
			"page_end":    chunk.Pages.End,
			"text":        chunk.Text,
		}
		if !chunk.DocumentDate.IsZero() {
			payload["document_date"] = chunk.DocumentDate.UTC().Format(time.RFC3339)
		}
		if region := chunk.MetadataValue("region"); region != "" {
			payload["region"] = strings.ToLower(region)
		}
		points = append(points, point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payload,
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	topN int,
	filters domain.StructuredFilters,
) ([]ports.ScoredChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        topN,
		"with_payload": true,
	}
	if conditions := buildFilter(filters); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}
	if c.minScore > 0 {
		reqBody["score_threshold"] = c.minScore
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, "qdrant search",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]ports.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		// Enforced again here in case the server-side threshold is ignored
		// by an older qdrant deployment.
		if c.minScore > 0 && r.Score < c.minScore {
			continue
		}
		chunk := chunkFromPayload(r.Payload)
		if chunk.ID == "" {
			continue
		}
		out = append(out, ports.ScoredChunk{
			ChunkID: chunk.ID,
			Chunk:   chunk,
			Score:   normalizeCosine(r.Score),
		})
	}
	return out, nil
}

func buildFilter(filters domain.StructuredFilters) []map[string]any {
	var conditions []map[string]any
	if filters.Region != "" {
		conditions = append(conditions, map[string]any{
			"key":   "region",
			"match": map[string]any{"value": strings.ToLower(filters.Region)},
		})
	}
	if !filters.Dates.IsZero() {
		dateRange := map[string]any{}
		if !filters.Dates.From.IsZero() {
			dateRange["gte"] = filters.Dates.From.UTC().Format(time.RFC3339)
		}
		if !filters.Dates.To.IsZero() {
			dateRange["lte"] = filters.Dates.To.UTC().Format(time.RFC3339)
		}
		conditions = append(conditions, map[string]any{
			"key":   "document_date",
			"range": dateRange,
		})
	}
	return conditions
}

// normalizeCosine maps cosine similarity onto [0,1], clamping values that
// float error pushes outside [-1,1].
func normalizeCosine(score float64) float64 {
	normalized := (score + 1) / 2
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	chunk := domain.Chunk{
		ID:               payloadString(payload, "chunk_id"),
		Text:             payloadString(payload, "text"),
		SourceDocumentID: payloadString(payload, "doc_id"),
		SourcePath:       payloadString(payload, "source_path"),
		Pages: domain.PageRange{
			Start: payloadInt(payload, "page_start"),
			End:   payloadInt(payload, "page_end"),
		},
	}
	if raw := payloadString(payload, "document_date"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			chunk.DocumentDate = parsed
		}
	}
	if region := payloadString(payload, "region"); region != "" {
		chunk.Metadata = map[string]string{"region": region}
	}
	return chunk
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
