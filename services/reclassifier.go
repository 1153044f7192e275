package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gear-aggregator/ai"
	"gear-aggregator/models"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

// DefaultCursorName is the cursor key used when none is given.
const DefaultCursorName = "reclassify"

// ReclassifyOptions controls one reclassification run.
type ReclassifyOptions struct {
	// Cursor is the ID after which to start. Ignored when Resume is set.
	Cursor int64
	// Resume loads the start cursor from the cursor store.
	Resume     bool
	CursorName string

	BatchSize int
	// Category selects which listings to revisit. Empty means "other".
	Category taxonomy.Category
	Source   string

	// TimeBudget bounds the wall-clock time of the run. Zero is unlimited.
	TimeBudget time.Duration
	// CallDelay is the minimum gap between two AI calls.
	CallDelay time.Duration
	// DryRun applies the policy without writing categories or the cursor.
	DryRun bool
}

func (o *ReclassifyOptions) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Category == "" {
		o.Category = taxonomy.Other
	}
	if o.CursorName == "" {
		o.CursorName = DefaultCursorName
	}
	o.Source = normaliseSource(o.Source)
}

// Reclassifier walks stored listings in ID order and re-asks the AI
// fallback for their category, writing back only confident changes.
// It is sequential by design: one AI call at a time, spaced by CallDelay.
type Reclassifier struct {
	store    storage.ListingStore
	cursors  storage.CursorStore
	keywords *KeywordClassifier
	mappings *MappingResolver
	ai       AIClassifier
	logger   *utils.Logger
	now      func() time.Time
}

// NewReclassifier creates a Reclassifier. cursors may be nil, in which case
// runs are resumable only through the returned NextCursor.
func NewReclassifier(store storage.ListingStore, cursors storage.CursorStore, keywords *KeywordClassifier, fallback AIClassifier, logger *utils.Logger) *Reclassifier {
	if keywords == nil {
		keywords = NewKeywordClassifier(nil)
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Reclassifier{
		store:    store,
		cursors:  cursors,
		keywords: keywords,
		ai:       fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// WithMappings makes overrides win over the AI fallback: a listing whose
// source and external category have an override gets the override category
// without an AI call.
func (r *Reclassifier) WithMappings(m *MappingResolver) *Reclassifier {
	r.mappings = m
	return r
}

// Run processes listings after the start cursor until the set is exhausted
// (completed), the time budget or ctx runs out (paused), or a page cannot be
// listed (failed). The summary is always returned; the error is non-nil only
// in the failed state.
func (r *Reclassifier) Run(ctx context.Context, opts ReclassifyOptions) (*models.BatchSummary, error) {
	opts.defaults()

	started := r.now()
	sum := &models.BatchSummary{
		RunID:     uuid.NewString(),
		State:     models.RunStateIdle,
		StartedAt: started,
	}

	cursor := opts.Cursor
	if opts.Resume && r.cursors != nil {
		c, err := r.cursors.LoadCursor(ctx, opts.CursorName)
		if err != nil {
			return r.fail(sum, fmt.Errorf("reclassify: load cursor: %w", err))
		}
		cursor = c
	}
	sum.NextCursor = cursor

	pending := 0
	if counts, err := r.store.CountByCategory(ctx, opts.Source); err != nil {
		r.logger.Warn("[reclassify] Could not count %q listings: %v", opts.Category, err)
	} else {
		pending = counts[opts.Category]
	}

	var deadline time.Time
	if opts.TimeBudget > 0 {
		deadline = started.Add(opts.TimeBudget)
	}
	limiter := utils.NewRateLimiter(opts.CallDelay)

	sum.State = models.RunStateRunning
	r.logger.Info("[reclassify] Run %s starting after id %d (category=%s source=%q batch=%d dry=%v)",
		sum.RunID, cursor, opts.Category, opts.Source, opts.BatchSize, opts.DryRun)

	var runErr error
pages:
	for {
		page, err := r.store.List(ctx, models.ListingQuery{
			AfterID:  sum.NextCursor,
			Category: opts.Category,
			Source:   opts.Source,
			Limit:    opts.BatchSize,
		})
		if err != nil {
			sum.State = models.RunStateFailed
			runErr = fmt.Errorf("reclassify: list after %d: %w", sum.NextCursor, err)
			r.logger.Error("[reclassify] %v", runErr)
			break
		}
		if len(page) == 0 {
			sum.State = models.RunStateCompleted
			break
		}

		for _, l := range page {
			if !deadline.IsZero() && !r.now().Before(deadline) {
				r.logger.Info("[reclassify] Time budget of %v used, pausing at id %d", opts.TimeBudget, sum.NextCursor)
				sum.State = models.RunStatePaused
				break pages
			}

			if c, ok := r.override(l); ok {
				r.applyOverride(ctx, sum, l, c, opts.DryRun)
				sum.Processed++
				sum.NextCursor = l.ID
				continue
			}

			if err := limiter.Wait(ctx); err != nil {
				sum.State = models.RunStatePaused
				break pages
			}

			res := r.classify(ctx, l)
			if ctx.Err() != nil {
				// The verdict may be a cancellation artefact; leave the
				// record for the next run.
				sum.State = models.RunStatePaused
				break pages
			}

			r.apply(ctx, sum, l, res, opts.DryRun)
			sum.Processed++
			sum.NextCursor = l.ID
		}

		if len(page) < opts.BatchSize {
			sum.State = models.RunStateCompleted
			break
		}
	}

	sum.Completed = sum.State == models.RunStateCompleted
	sum.Remaining = pending - sum.Updated
	if sum.Remaining < 0 {
		sum.Remaining = 0
	}
	sum.FinishedAt = r.now()

	if !opts.DryRun {
		r.saveCursor(opts.CursorName, sum)
	}

	r.logger.Info("[reclassify] Run %s %s: processed=%d updated=%d unchanged=%d failed=%d low=%d still_other=%d next_cursor=%d remaining~%d",
		sum.RunID, sum.State, sum.Processed, sum.Updated, sum.Unchanged, sum.Failed,
		sum.SkippedLowConfidence, sum.SkippedStillOther, sum.NextCursor, sum.Remaining)

	return sum, runErr
}

func (r *Reclassifier) classify(ctx context.Context, l *models.Listing) models.ClassificationResult {
	hint := r.keywords.Match(l.Title + " " + l.ExternalCategory)
	if hint.Category != taxonomy.Other {
		r.logger.Debug("[reclassify] id=%d keyword hint %s (%q)", l.ID, hint.Category, hint.Keyword)
	}

	if r.ai == nil {
		return models.Unclassified(models.OriginAI, "ai disabled")
	}
	return r.ai.Classify(ctx, ai.Request{
		Title:            l.Title,
		Description:      l.Description,
		ExternalCategory: l.ExternalCategory,
		ImageURL:         l.ImageURL,
	})
}

// apply is the write-back policy for one verdict.
func (r *Reclassifier) apply(ctx context.Context, sum *models.BatchSummary, l *models.Listing, res models.ClassificationResult, dryRun bool) {
	switch {
	case res.Confidence == models.ConfidenceLow:
		sum.SkippedLowConfidence++
	case res.Category == taxonomy.Other:
		sum.SkippedStillOther++
	case res.Category != l.Category:
		if dryRun {
			r.logger.Info("[reclassify] (dry run) id=%d %s -> %s: %s", l.ID, l.Category, res.Category, res.Reasoning)
			sum.Updated++
			return
		}
		if err := r.store.UpdateCategory(ctx, l.URL, res.Category); err != nil {
			r.logger.Error("[reclassify] id=%d update to %s failed: %v", l.ID, res.Category, err)
			sum.Failed++
			return
		}
		r.logger.Info("[reclassify] id=%d %s -> %s (%s)", l.ID, l.Category, res.Category, res.Confidence)
		sum.Updated++
	default:
		sum.Unchanged++
	}
}

func (r *Reclassifier) override(l *models.Listing) (taxonomy.Category, bool) {
	if r.mappings == nil {
		return taxonomy.Other, false
	}
	return r.mappings.Resolve(l.Source, l.ExternalCategory)
}

// applyOverride writes an override category, including "other", which the
// AI policy would never write.
func (r *Reclassifier) applyOverride(ctx context.Context, sum *models.BatchSummary, l *models.Listing, c taxonomy.Category, dryRun bool) {
	if c == l.Category {
		sum.Unchanged++
		return
	}
	if dryRun {
		r.logger.Info("[reclassify] (dry run) id=%d %s -> %s: override", l.ID, l.Category, c)
		sum.Updated++
		return
	}
	if err := r.store.UpdateCategory(ctx, l.URL, c); err != nil {
		r.logger.Error("[reclassify] id=%d override to %s failed: %v", l.ID, c, err)
		sum.Failed++
		return
	}
	r.logger.Info("[reclassify] id=%d %s -> %s (override)", l.ID, l.Category, c)
	sum.Updated++
}

// saveCursor persists the resume point. A completed sweep resets it so the
// next run starts over.
func (r *Reclassifier) saveCursor(name string, sum *models.BatchSummary) {
	if r.cursors == nil {
		return
	}
	next := sum.NextCursor
	if sum.Completed {
		next = 0
	}
	// The run context may already be cancelled; the cursor must still land.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cursors.SaveCursor(ctx, name, next); err != nil {
		r.logger.Error("[reclassify] Could not save cursor %q=%d: %v", name, next, err)
	}
}

func (r *Reclassifier) fail(sum *models.BatchSummary, err error) (*models.BatchSummary, error) {
	sum.State = models.RunStateFailed
	sum.FinishedAt = r.now()
	r.logger.Error("[reclassify] Run %s failed: %v", sum.RunID, err)
	return sum, err
}
