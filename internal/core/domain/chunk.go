package domain

import (
	"strings"
	"time"
)

// PageRange is the inclusive page span of a chunk within its source document.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is the retrievable unit of tender-document text. IDs are assigned by
// the ingestion pipeline as a deterministic function of (source document, page
// range, chunk index) and are immutable once stored.
type Chunk struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	SourceDocumentID string            `json:"source_document_id"`
	SourcePath       string            `json:"source_path,omitempty"`
	Pages            PageRange         `json:"pages"`
	DocumentDate     time.Time         `json:"document_date,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// MetadataValue reads a producer-normalized metadata field. Keys are
// case-insensitive.
func (c Chunk) MetadataValue(key string) string {
	if len(c.Metadata) == 0 {
		return ""
	}
	key = strings.ToLower(strings.TrimSpace(key))
	for k, v := range c.Metadata {
		if strings.ToLower(k) == key {
			return v
		}
	}
	return ""
}
