package ollama

import "fmt"

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
}

func buildTranslationPrompt(text, targetLanguage string) string {
	name, ok := languageNames[targetLanguage]
	if !ok {
		name = targetLanguage
	}

	const maxQuery = 1000
	if len(text) > maxQuery {
		text = text[:maxQuery]
	}

	return fmt.Sprintf(`Translate the following search query to %s.
Reply with only the translated query, nothing else.

Query:
%s`, name, text)
}
