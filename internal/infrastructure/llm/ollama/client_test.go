package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

func TestEmbedQueryReturnsPinnedModelVector(t *testing.T) {
	var capturedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedModel, _ = payload["model"].(string)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "bge-m3", nil)
	embedder := NewEmbedder(client, 3)
	vec, err := embedder.EmbedQuery(context.Background(), "Mindestlohn Strassenbau")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
	if capturedModel != "bge-m3" {
		t.Fatalf("expected pinned embed model in request, got %q", capturedModel)
	}
	if embedder.ModelID() != "bge-m3" {
		t.Fatalf("unexpected ModelID %q", embedder.ModelID())
	}
}

func TestEmbedQueryDimensionMismatchIsConfigError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "bge-m3", nil)
	embedder := NewEmbedder(client, 1024)
	_, err := embedder.EmbedQuery(context.Background(), "query")
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !domain.IsKind(err, domain.ErrConfigMismatch) {
		t.Fatalf("expected ErrConfigMismatch, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "bge-m3", nil)
	embedder := NewEmbedder(client, 0)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestTranslateBuildsPromptAndCleansOutput(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"\"Mindestlohn im Strassenbau\"\nExtra commentary"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	translator := NewTranslator(client)
	got, err := translator.Translate(context.Background(), "minimum wage road construction", "de")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "Mindestlohn im Strassenbau" {
		t.Fatalf("expected cleaned single-line translation, got %q", got)
	}
	if !strings.Contains(capturedPrompt, "German") {
		t.Fatalf("expected target language name in prompt, got %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "minimum wage road construction") {
		t.Fatalf("expected source query in prompt, got %s", capturedPrompt)
	}
}

func TestClassifyOllamaErrorRetriesServerFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"bad gateway", &HTTPStatusError{StatusCode: http.StatusBadGateway}, true, true},
		{"client error", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false},
		{"context canceled", context.Canceled, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyOllamaError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("classify(%v) = %+v", tc.err, class)
			}
		})
	}
}
