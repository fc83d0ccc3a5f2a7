package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// Loader reads page text straight from the source PDFs. It serves two
// callers: the import worker extracting full documents, and the retrieval
// pipeline backfilling empty chunk payloads before reranking.
type Loader struct{}

func New() *Loader {
	return &Loader{}
}

// LoadPages returns the concatenated text of an inclusive page range.
func (l *Loader) LoadPages(ctx context.Context, sourcePath string, pages domain.PageRange) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pages.Start <= 0 {
		pages.Start = 1
	}
	if pages.End < pages.Start {
		pages.End = pages.Start
	}

	file, reader, err := pdf.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", sourcePath, err)
	}
	defer file.Close()

	total := reader.NumPage()
	if pages.Start > total {
		return "", fmt.Errorf("page %d out of range, %s has %d pages", pages.Start, sourcePath, total)
	}
	if pages.End > total {
		pages.End = total
	}

	var b strings.Builder
	for num := pages.Start; num <= pages.End; num++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := pageText(reader, num)
		if err != nil {
			return "", fmt.Errorf("read page %d of %s: %w", num, sourcePath, err)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// ExtractPages returns every page's text, index 0 holding page 1. Pages the
// library cannot decode come back empty instead of failing the document;
// scanned corpora routinely contain a few such pages.
func (l *Loader) ExtractPages(ctx context.Context, sourcePath string) ([]string, error) {
	file, reader, err := pdf.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", sourcePath, err)
	}
	defer file.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(reader, num)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func pageText(reader *pdf.Reader, num int) (string, error) {
	page := reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
