package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/infrastructure/resilience"
)

// Client is the shared HTTP transport for the ollama embedding and
// translation models. Both adapters route their calls through one resilience
// executor with separate breaker names per operation.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}
}

// Embedder produces query vectors pinned to one embedding model. The corpus
// vectors were produced by the same model at ingestion time; expectedDim
// guards against a silently swapped model whose vectors happen to decode.
type Embedder struct {
	client      *Client
	expectedDim int
}

func NewEmbedder(client *Client, expectedDim int) *Embedder {
	return &Embedder{client: client, expectedDim: expectedDim}
}

func (e *Embedder) ModelID() string { return e.client.embedModel }

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, "ollama.embed",
			fmt.Errorf("empty embedding result"))
	}
	if e.expectedDim > 0 && len(vectors[0]) != e.expectedDim {
		return nil, domain.WrapError(domain.ErrConfigMismatch, "ollama.embed",
			fmt.Errorf("model %s produced %d dimensions, corpus expects %d",
				e.client.embedModel, len(vectors[0]), e.expectedDim))
	}
	return vectors[0], nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

// Translator builds the cross-lingual query variant through the generation
// model. Output is a single line; the model sometimes wraps it in quotes.
type Translator struct {
	client *Client
}

func NewTranslator(client *Client) *Translator {
	return &Translator{client: client}
}

func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var translated string
	err := t.client.execute(ctx, "ollama.translate", func(ctx context.Context) error {
		var err error
		translated, err = t.client.generateText(ctx, buildTranslationPrompt(text, targetLanguage))
		return err
	})
	if err != nil {
		return "", err
	}
	return cleanTranslation(translated), nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.exec == nil {
		return fn(ctx)
	}
	return c.exec.Execute(ctx, operation, fn, classifyOllamaError)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func cleanTranslation(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.Trim(strings.TrimSpace(raw), `"'`)
}
