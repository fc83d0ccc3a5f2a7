package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

func TestSearchNormalizesCosineSimilarity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/tenders/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":1.0,"payload":{"chunk_id":"c1","doc_id":"00123456","text":"a"}},
			{"score":0.0,"payload":{"chunk_id":"c2","doc_id":"00123457","text":"b"}},
			{"score":-1.0000002,"payload":{"chunk_id":"c3","doc_id":"00123458","text":"c"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	got, err := client.Search(context.Background(), []float32{0.1, 0.2}, 10, domain.StructuredFilters{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Score != 1.0 {
		t.Fatalf("cosine 1.0 must map to 1.0, got %f", got[0].Score)
	}
	if got[1].Score != 0.5 {
		t.Fatalf("cosine 0.0 must map to 0.5, got %f", got[1].Score)
	}
	if got[2].Score != 0.0 {
		t.Fatalf("cosine below -1 must clamp to 0.0, got %f", got[2].Score)
	}
}

func TestSearchSendsServerSideFilters(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	filters := domain.StructuredFilters{
		Region: "Bayern",
		Dates: domain.DateRange{
			From: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
	}
	if _, err := client.Search(context.Background(), []float32{0.1}, 5, filters); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, ok := gotBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in request body, got %v", gotBody)
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 2 {
		t.Fatalf("expected two must conditions, got %v", filter)
	}
	region := must[0].(map[string]any)
	if region["key"] != "region" {
		t.Fatalf("expected region condition first, got %v", region)
	}
	match := region["match"].(map[string]any)
	if match["value"] != "bayern" {
		t.Fatalf("expected lowercased region value, got %v", match)
	}
	dates := must[1].(map[string]any)
	if dates["key"] != "document_date" {
		t.Fatalf("expected document_date condition, got %v", dates)
	}
}

func TestSearchRebuildsChunkFromPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"score":0.8,"payload":{
			"chunk_id":"00123456-p3-0",
			"doc_id":"00123456",
			"source_path":"/corpus/00123456.pdf",
			"page_start":3,
			"page_end":4,
			"document_date":"2023-06-15T00:00:00Z",
			"region":"bayern",
			"text":"Mindestlohn im Strassenbau"
		}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	got, err := client.Search(context.Background(), []float32{0.1}, 5, domain.StructuredFilters{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	chunk := got[0].Chunk
	if chunk.ID != "00123456-p3-0" || chunk.SourceDocumentID != "00123456" {
		t.Fatalf("unexpected identity fields: %+v", chunk)
	}
	if chunk.Pages.Start != 3 || chunk.Pages.End != 4 {
		t.Fatalf("unexpected page range: %+v", chunk.Pages)
	}
	if chunk.DocumentDate.IsZero() {
		t.Fatal("expected parsed document date")
	}
	if chunk.MetadataValue("region") != "bayern" {
		t.Fatalf("expected region metadata, got %v", chunk.Metadata)
	}
}

func TestSearchEnforcesMinimumScore(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.5,"payload":{"chunk_id":"c1","text":"relevant"}},
			{"score":0.05,"payload":{"chunk_id":"c2","text":"noise"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0.1)
	got, err := client.Search(context.Background(), []float32{0.1}, 5, domain.StructuredFilters{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotBody["score_threshold"] != 0.1 {
		t.Fatalf("expected score_threshold 0.1 in request body, got %v", gotBody["score_threshold"])
	}
	if len(got) != 1 || got[0].ChunkID != "c1" {
		t.Fatalf("expected only the above-floor point, got %v", got)
	}
}

func TestSearchDropsPayloadsWithoutChunkID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.9,"payload":{"text":"orphan point"}},
			{"score":0.5,"payload":{"chunk_id":"c1","text":"kept"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	got, err := client.Search(context.Background(), []float32{0.1}, 5, domain.StructuredFilters{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "c1" {
		t.Fatalf("expected only the identified point, got %v", got)
	}
}

func TestSearchErrorIsRetrieverUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	_, err := client.Search(context.Background(), []float32{0.1}, 5, domain.StructuredFilters{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsKind(err, domain.ErrRetrieverUnavailable) {
		t.Fatalf("expected ErrRetrieverUnavailable, got %v", err)
	}
}

func TestVerifyCollectionDetectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/collections/tenders" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":768}}}}}`))
	}))
	defer server.Close()

	client := New(server.URL, "tenders", 0)
	if err := client.VerifyCollection(context.Background(), 768); err != nil {
		t.Fatalf("matching dimension must pass, got %v", err)
	}

	err := client.VerifyCollection(context.Background(), 1024)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !domain.IsKind(err, domain.ErrConfigMismatch) {
		t.Fatalf("expected ErrConfigMismatch, got %v", err)
	}
}

func TestIndexChunksRejectsLengthMismatch(t *testing.T) {
	client := New("http://localhost:1", "tenders", 0)
	chunks := []domain.Chunk{{ID: "c1"}, {ID: "c2"}}
	vectors := [][]float32{{0.1}}
	if err := client.IndexChunks(context.Background(), chunks, vectors); err == nil {
		t.Fatal("expected mismatch error")
	}
}
