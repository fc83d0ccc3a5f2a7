package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DocumentRow is one corpus document as curated in the metadata workbook.
type DocumentRow struct {
	ID         string
	Title      string
	Region     string
	Date       time.Time
	SourcePath string
}

// Importer reads the curated metadata workbook the corpus team maintains.
// Column order in the sheet is not fixed; the header row decides the mapping.
type Importer struct {
	Sheet string
}

func NewImporter(sheet string) *Importer {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Importer{Sheet: sheet}
}

var headerAliases = map[string]string{
	"dtad_id":       "id",
	"id":            "id",
	"title":         "title",
	"titel":         "title",
	"region":        "region",
	"date":          "date",
	"datum":         "date",
	"document_date": "date",
	"path":          "path",
	"source_path":   "path",
	"pdf_path":      "path",
}

func (i *Importer) Load(path string) ([]DocumentRow, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer workbook.Close()

	rows, err := workbook.GetRows(i.Sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", i.Sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	columns := map[string]int{}
	for idx, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		if canonical, ok := headerAliases[key]; ok {
			columns[canonical] = idx
		}
	}
	if _, ok := columns["id"]; !ok {
		return nil, fmt.Errorf("sheet %s has no identifier column", i.Sheet)
	}

	out := make([]DocumentRow, 0, len(rows)-1)
	for rowNum, row := range rows[1:] {
		id := padIdentifier(cell(row, columns, "id"))
		if id == "" {
			continue
		}
		doc := DocumentRow{
			ID:         id,
			Title:      cell(row, columns, "title"),
			Region:     strings.ToLower(cell(row, columns, "region")),
			SourcePath: cell(row, columns, "path"),
		}
		if raw := cell(row, columns, "date"); raw != "" {
			parsed, err := parseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
			}
			doc.Date = parsed
		}
		out = append(out, doc)
	}
	return out, nil
}

func cell(row []string, columns map[string]int, key string) string {
	idx, ok := columns[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// padIdentifier left-pads numeric identifiers to the 8-digit canonical form.
// Non-numeric cells are dropped rather than guessed at.
func padIdentifier(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 8 {
		return ""
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return ""
		}
	}
	for len(raw) < 8 {
		raw = "0" + raw
	}
	return raw
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"01-02-06",
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
