package usecase

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

// Tender identifiers are 7-8 digit numeric codes, zero-padded to 8 in the
// metadata store.
var identifierPattern = regexp.MustCompile(`\b(\d{7,8})\b`)

var yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)

// RouterConfig bounds the year tokens the router treats as temporal
// qualifiers rather than arbitrary numbers.
type RouterConfig struct {
	YearMin int
	YearMax int
}

func (c RouterConfig) normalize() RouterConfig {
	if c.YearMin <= 0 {
		c.YearMin = 2000
	}
	if c.YearMax <= 0 {
		c.YearMax = 2035
	}
	return c
}

// Router is the ordered, total routing decision function: every query gets
// exactly one mode, evaluated identifier > metadata-only > mixed > default.
type Router struct {
	tokenizer ports.Tokenizer
	lang      string
	regions   []string
	sparseUp  func() bool
	cfg       RouterConfig
}

// NewRouter builds a router over a controlled region vocabulary. Regions are
// matched case-insensitively as substrings, longest name first. sparseUp
// reports whether a sparse snapshot is published, deciding between
// HybridFusion and SemanticOnly in the default branch.
func NewRouter(tokenizer ports.Tokenizer, languageHint string, regions []string, sparseUp func() bool, cfg RouterConfig) *Router {
	normalized := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			normalized = append(normalized, r)
		}
	}
	sort.Slice(normalized, func(i, j int) bool {
		if len(normalized[i]) != len(normalized[j]) {
			return len(normalized[i]) > len(normalized[j])
		}
		return normalized[i] < normalized[j]
	})

	if sparseUp == nil {
		sparseUp = func() bool { return true }
	}
	return &Router{
		tokenizer: tokenizer,
		lang:      languageHint,
		regions:   normalized,
		sparseUp:  sparseUp,
		cfg:       cfg.normalize(),
	}
}

// Classify builds the immutable QueryPlan for one query. ExpandedQueries[0]
// always carries the text to score: the full query, or the residual free
// text once structured qualifiers are stripped in mixed mode.
func (r *Router) Classify(query string) domain.QueryPlan {
	query = strings.TrimSpace(query)

	// 1. Exact identifier wins over everything, including surrounding free
	// text. An unmatched identifier must return empty rather than fall
	// through to scoring, so the id is the whole plan.
	if m := identifierPattern.FindStringSubmatch(query); m != nil {
		return domain.QueryPlan{
			Mode:    domain.ModeExactLookup,
			Filters: domain.StructuredFilters{Identifier: padIdentifier(m[1])},
		}
	}

	filters, residual := r.extractQualifiers(query)

	// 2. Structured qualifiers with no substantive residual terms resolve
	// from metadata directly.
	if !filters.IsZero() && len(residual) == 0 {
		return domain.QueryPlan{Mode: domain.ModeMetadataFilter, Filters: filters}
	}

	scoringText := query
	if !filters.IsZero() {
		// 3. Mixed: score the residual free text, keep the qualifiers as
		// pre/post filters.
		scoringText = strings.Join(residual, " ")
	}

	mode := domain.ModeHybridFusion
	if !r.sparseUp() {
		mode = domain.ModeSemanticOnly
	}
	return domain.QueryPlan{
		Mode:            mode,
		Filters:         filters,
		ExpandedQueries: []string{scoringText},
	}
}

// extractQualifiers pulls year and region constraints out of the query and
// returns the remaining substantive tokens.
func (r *Router) extractQualifiers(query string) (domain.StructuredFilters, []string) {
	var filters domain.StructuredFilters
	lower := strings.ToLower(query)

	yearToken := ""
	if m := yearPattern.FindStringSubmatch(query); m != nil {
		year := parseYear(m[1])
		if year >= r.cfg.YearMin && year <= r.cfg.YearMax {
			yearToken = m[1]
			filters.Dates = domain.DateRange{
				From: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC),
			}
		}
	}

	matchedRegion := ""
	for _, region := range r.regions {
		if containsWholeWord(lower, region) {
			matchedRegion = region
			filters.Region = region
			break
		}
	}

	qualifiers := make(map[string]struct{})
	if yearToken != "" {
		qualifiers[yearToken] = struct{}{}
	}
	if matchedRegion != "" {
		for _, t := range r.tokenizer.Tokenize(matchedRegion, r.lang) {
			qualifiers[t] = struct{}{}
		}
	}

	residual := make([]string, 0)
	for _, token := range r.tokenizer.Tokenize(query, r.lang) {
		if _, ok := qualifiers[token]; ok {
			continue
		}
		residual = append(residual, token)
	}
	return filters, residual
}

// containsWholeWord reports whether needle occurs in haystack bounded by
// non-word runes, so "berlin" does not match inside "berlinale".
func containsWholeWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(haystack[offset:], needle)
		if i < 0 {
			return false
		}
		i += offset
		end := i + len(needle)

		startOK := i == 0
		if !startOK {
			r, _ := utf8.DecodeLastRuneInString(haystack[:i])
			startOK = !isWordRune(r)
		}
		endOK := end == len(haystack)
		if !endOK {
			r, _ := utf8.DecodeRuneInString(haystack[end:])
			endOK = !isWordRune(r)
		}
		if startOK && endOK {
			return true
		}
		offset = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func padIdentifier(id string) string {
	for len(id) < 8 {
		id = "0" + id
	}
	return id
}

func parseYear(s string) int {
	year := 0
	for _, r := range s {
		year = year*10 + int(r-'0')
	}
	return year
}
