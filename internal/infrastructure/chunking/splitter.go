package chunking

import (
	"fmt"
	"strings"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// Splitter cuts page text into overlapping fixed-size chunks. Pages are split
// independently so every chunk keeps an exact page attribution; chunk IDs are
// a deterministic function of (document, page, index) and stay stable across
// re-imports of the same corpus.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// SplitDocument chunks one document's pages. pages[0] is page 1.
func (s *Splitter) SplitDocument(docID, sourcePath string, pages []string, docDate time.Time, metadata map[string]string) []domain.Chunk {
	var chunks []domain.Chunk
	for pageIdx, pageText := range pages {
		pageNum := pageIdx + 1
		for chunkIdx, text := range s.split(pageText) {
			chunks = append(chunks, domain.Chunk{
				ID:               fmt.Sprintf("%s-p%d-%d", docID, pageNum, chunkIdx),
				Text:             text,
				SourceDocumentID: docID,
				SourcePath:       sourcePath,
				Pages:            domain.PageRange{Start: pageNum, End: pageNum},
				DocumentDate:     docDate,
				Metadata:         metadata,
			})
		}
	}
	return chunks
}

func (s *Splitter) split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
