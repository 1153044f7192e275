package ai

import (
	"context"

	"gear-aggregator/models"
	"gear-aggregator/utils"
)

// Classifier is the AI fallback. It degrades to other/low on any failure
// and never returns an error.
type Classifier struct {
	completer Completer
	logger    *utils.Logger
	useImages bool
}

// NewClassifier wraps completer. With useImages the listing image URL is
// forwarded to the model.
func NewClassifier(completer Completer, logger *utils.Logger, useImages bool) *Classifier {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Classifier{completer: completer, logger: logger, useImages: useImages}
}

// Classify asks the model for a verdict on req.
func (c *Classifier) Classify(ctx context.Context, req Request) models.ClassificationResult {
	if c.completer == nil {
		return models.Unclassified(models.OriginAI, "ai disabled")
	}

	text, err := c.completer.Complete(ctx, Messages(req, c.useImages))
	if err != nil {
		c.logger.Warn("[ai] Classification call failed for %q: %v", req.Title, err)
		return models.Unclassified(models.OriginAI, "call failed")
	}

	res, err := ParseResponse(text)
	if err != nil {
		c.logger.Warn("[ai] Unusable response for %q: %v", req.Title, err)
		return models.Unclassified(models.OriginAI, res.Reasoning)
	}

	c.logger.Debug("[ai] %q -> %s (%s): %s", req.Title, res.Category, res.Confidence, res.Reasoning)
	return res
}
