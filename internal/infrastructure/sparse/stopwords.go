package sparse

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// germanStopwords is the corpus's primary-language stop-word set.
var germanStopwords = []string{
	"der", "die", "das", "den", "dem", "des", "ein", "eine", "einer", "eines",
	"und", "oder", "aber", "ist", "sind", "wird", "werden", "hat", "haben",
	"für", "von", "mit", "auf", "in", "zu", "an", "bei", "durch", "über",
	"um", "nach", "aus", "vor", "zwischen", "unter", "auch", "noch", "nur",
	"sich", "nicht", "mehr", "als", "wie", "da", "so", "wenn", "dann",
}

var englishStopwords = []string{
	"the", "a", "an", "and", "or", "but", "is", "are", "was", "were", "be",
	"been", "has", "have", "had", "for", "of", "with", "on", "in", "to", "at",
	"by", "from", "about", "into", "over", "under", "also", "only", "not",
	"no", "more", "as", "so", "if", "then", "than", "that", "this", "these",
	"those", "it", "its", "their", "there", "what", "which", "who", "when",
	"where", "how", "all", "any", "each", "do", "does", "did", "will", "would",
}

type stopwordFile struct {
	Languages map[string][]string `yaml:"languages"`
}

// LoadStopwordOverrides reads an optional per-language stop-word file. A
// missing path returns nil overrides so package defaults apply.
func LoadStopwordOverrides(path string) (map[string][]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stopword file: %w", err)
	}

	var parsed stopwordFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse stopword file: %w", err)
	}
	return parsed.Languages, nil
}
