package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

var (
	// ErrNoJSON means the response contains no JSON object.
	ErrNoJSON = errors.New("ai: no json object in response")
	// ErrMalformedJSON means an object was found but does not decode.
	ErrMalformedJSON = errors.New("ai: malformed json object")
	// ErrUnknownCategory means the category is not in the taxonomy.
	ErrUnknownCategory = errors.New("ai: unknown category")
)

type verdict struct {
	Category   string `json:"category"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// ParseResponse extracts the classification verdict from free-form model
// output. Markdown code fences and surrounding prose are tolerated. On
// ErrUnknownCategory the returned result is still the other/low fallback.
func ParseResponse(text string) (models.ClassificationResult, error) {
	body := stripFences(text)
	obj, ok := firstObject(body)
	if !ok {
		if strings.Contains(body, "{") {
			return models.Unclassified(models.OriginAI, ""), fmt.Errorf("%w: unbalanced braces", ErrMalformedJSON)
		}
		return models.Unclassified(models.OriginAI, ""), ErrNoJSON
	}

	var v verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return models.Unclassified(models.OriginAI, ""), fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	cat, ok := taxonomy.Parse(v.Category)
	if !ok {
		return models.Unclassified(models.OriginAI, v.Reasoning),
			fmt.Errorf("%w: %q", ErrUnknownCategory, v.Category)
	}

	return models.ClassificationResult{
		Category:   cat,
		Confidence: models.ParseConfidence(v.Confidence),
		Reasoning:  strings.TrimSpace(v.Reasoning),
		Origin:     models.OriginAI,
	}, nil
}

// stripFences removes ``` and ```json fence lines.
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// firstObject returns the first balanced {...} span, skipping braces
// inside JSON strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
