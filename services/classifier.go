package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"gear-aggregator/taxonomy"
)

// KeywordMatch is the outcome of a keyword lookup. Keyword is empty when
// nothing matched and Category is taxonomy.Other.
type KeywordMatch struct {
	Category taxonomy.Category
	Keyword  string
}

// KeywordClassifier maps free text onto the taxonomy using an ordered
// keyword table. The first category in table order with a matching keyword
// wins. It holds no mutable state and is safe for concurrent use.
type KeywordClassifier struct {
	rules []taxonomy.Rule
}

// NewKeywordClassifier creates a classifier over table. A nil table selects
// taxonomy.DefaultTable.
func NewKeywordClassifier(table *taxonomy.Table) *KeywordClassifier {
	if table == nil {
		table = taxonomy.DefaultTable()
	}
	return &KeywordClassifier{rules: table.Rules()}
}

// Classify returns the category of text, or taxonomy.Other.
func (k *KeywordClassifier) Classify(text string) taxonomy.Category {
	return k.Match(text).Category
}

// Match is Classify plus the keyword that decided it.
func (k *KeywordClassifier) Match(text string) KeywordMatch {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return KeywordMatch{Category: taxonomy.Other}
	}
	for _, rule := range k.rules {
		for _, kw := range rule.Keywords {
			if matches(text, kw) {
				return KeywordMatch{Category: rule.Category, Keyword: kw.Term}
			}
		}
	}
	return KeywordMatch{Category: taxonomy.Other}
}

func matches(text string, kw taxonomy.Keyword) bool {
	if !kw.WholeWord {
		return strings.Contains(text, kw.Term)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], kw.Term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw.Term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
