package services

import (
	"context"
	"strings"

	"gear-aggregator/ai"
	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

// AIClassifier is the fallback used when keywords give no answer.
// *ai.Classifier satisfies it.
type AIClassifier interface {
	Classify(ctx context.Context, req ai.Request) models.ClassificationResult
}

// ClassifyInput is what the normalizer needs to know about a listing.
type ClassifyInput struct {
	Source           string `json:"source"`
	Title            string `json:"title"`
	ExternalCategory string `json:"external_category"`
	Description      string `json:"description"`
	ImageURL         string `json:"image_url"`
}

// Normalizer chains the override table, the keyword classifier and the
// optional AI fallback.
type Normalizer struct {
	mappings *MappingResolver
	keywords *KeywordClassifier
	ai       AIClassifier
	logger   *utils.Logger
}

// NewNormalizer creates a Normalizer. mappings and fallback may be nil.
func NewNormalizer(mappings *MappingResolver, keywords *KeywordClassifier, fallback AIClassifier, logger *utils.Logger) *Normalizer {
	if keywords == nil {
		keywords = NewKeywordClassifier(nil)
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Normalizer{mappings: mappings, keywords: keywords, ai: fallback, logger: logger}
}

// Keywords exposes the keyword stage.
func (n *Normalizer) Keywords() *KeywordClassifier { return n.keywords }

// Classify resolves in.
//
//  1. A source override wins with high confidence.
//  2. A keyword hit on title plus external category gives medium.
//  3. Otherwise the AI fallback is asked. A low or "other" verdict becomes
//     other/low.
func (n *Normalizer) Classify(ctx context.Context, in ClassifyInput) models.ClassificationResult {
	if n.mappings != nil {
		if c, ok := n.mappings.Resolve(in.Source, in.ExternalCategory); ok {
			return models.ClassificationResult{
				Category:   c,
				Confidence: models.ConfidenceHigh,
				Reasoning:  "override for " + strings.TrimSpace(in.ExternalCategory),
				Origin:     models.OriginOverride,
			}
		}
	}

	m := n.keywords.Match(in.Title + " " + in.ExternalCategory)
	if m.Category != taxonomy.Other {
		return models.ClassificationResult{
			Category:   m.Category,
			Confidence: models.ConfidenceMedium,
			Reasoning:  "keyword " + m.Keyword,
			Origin:     models.OriginKeyword,
		}
	}

	if n.ai == nil {
		return models.Unclassified(models.OriginDefault, "no keyword matched")
	}

	res := n.ai.Classify(ctx, ai.Request{
		Title:            in.Title,
		Description:      in.Description,
		ExternalCategory: in.ExternalCategory,
		ImageURL:         in.ImageURL,
	})
	if res.Confidence == models.ConfidenceLow || res.Category == taxonomy.Other {
		return models.Unclassified(models.OriginAI, res.Reasoning)
	}
	return res
}

// NormalizeListing sets l.Category from Classify and returns the verdict.
func (n *Normalizer) NormalizeListing(ctx context.Context, l *models.Listing) models.ClassificationResult {
	res := n.Classify(ctx, ClassifyInput{
		Source:           l.Source,
		Title:            l.Title,
		ExternalCategory: l.ExternalCategory,
		Description:      l.Description,
		ImageURL:         l.ImageURL,
	})
	l.Category = taxonomy.OrDefault(res.Category)
	return res
}
