package sparse

import (
	"strings"
	"unicode"
)

const minTokenLen = 2

// Tokenizer performs language-aware normalization for both index build and
// query time. It is pure: stop-word sets are fixed at construction, no I/O
// happens per call.
type Tokenizer struct {
	primaryLang  string
	fallbackLang string
	stopwords    map[string]map[string]struct{}
}

func NewTokenizer(primaryLang, fallbackLang string, overrides map[string][]string) *Tokenizer {
	stop := map[string]map[string]struct{}{
		"de": toSet(germanStopwords),
		"en": toSet(englishStopwords),
	}
	for lang, words := range overrides {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" || len(words) == 0 {
			continue
		}
		stop[lang] = toSet(words)
	}
	return &Tokenizer{
		primaryLang:  normalizeLang(primaryLang, "de"),
		fallbackLang: normalizeLang(fallbackLang, "en"),
		stopwords:    stop,
	}
}

// Tokenize lowercases, folds diacritics, splits on non-alphanumeric runes and
// drops stop words of the hinted language plus the configured fallback.
// Empty input yields an empty slice.
func (t *Tokenizer) Tokenize(text, languageHint string) []string {
	raw := splitFoldedAlphaNum(text)
	if len(raw) == 0 {
		return []string{}
	}

	lang := normalizeLang(languageHint, t.primaryLang)
	primary := t.stopwords[lang]
	fallback := t.stopwords[t.fallbackLang]

	out := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) < minTokenLen {
			continue
		}
		if _, ok := primary[token]; ok {
			continue
		}
		if _, ok := fallback[token]; ok {
			continue
		}
		out = append(out, token)
	}
	return out
}

func normalizeLang(lang, fallback string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return fallback
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// toSet normalizes stop words through the same fold/split as tokens, so
// entries like "für" match the folded token "fur".
func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, token := range splitFoldedAlphaNum(w) {
			set[token] = struct{}{}
		}
	}
	return set
}

// splitFoldedAlphaNum lowercases, folds accented characters to their base
// form and emits maximal alphanumeric runs.
func splitFoldedAlphaNum(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range s {
		r = unicode.ToLower(r)
		if folded, ok := diacriticFold[r]; ok {
			b.WriteString(folded)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// diacriticFold maps accented lowercase runes onto unaccented base forms.
// Covers the German corpus plus the Latin-1 accents seen in tender titles.
var diacriticFold = map[rune]string{
	'ä': "a", 'ö': "o", 'ü': "u", 'ß': "ss",
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'å': "a",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o",
	'ù': "u", 'ú': "u", 'û': "u",
	'ç': "c", 'ñ': "n", 'ý': "y",
}
