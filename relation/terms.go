package relation

import (
	"strings"
	"unicode"
)

// stopWords are filtered out before co-occurrence scoring. Shared stop
// words say nothing about topical overlap.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true, "it": true,
	"we": true, "they": true, "what": true, "where": true, "when": true, "why": true,
	"how": true, "who": true, "which": true, "whose": true, "whom": true,
	"not": true, "from": true, "its": true, "their": true, "than": true,
	"then": true, "also": true, "such": true, "into": true, "over": true,
	"more": true, "most": true, "some": true, "any": true, "all": true,
	"each": true, "other": true, "about": true, "between": true, "as": true,
}

// salientTerms returns the set of lowercased alphanumeric words in text
// that are long enough and not stop words. The same text always yields the
// same set.
func salientTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, word := range extractWords(text) {
		word = strings.ToLower(word)
		if len(word) < 3 || stopWords[word] {
			continue
		}
		terms[word] = true
	}
	return terms
}

// extractWords splits text into maximal alphanumeric runs.
func extractWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
