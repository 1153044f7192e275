package services

import (
	"context"
	"fmt"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

// IngestResult summarises one ingestion of a scrape.
type IngestResult struct {
	Raw         int
	Stored      int
	Deactivated int64
	ByOrigin    map[models.Origin]int
	ByCategory  map[taxonomy.Category]int
}

// Ingestor turns raw scrape output into stored, categorized listings.
type Ingestor struct {
	cleaner    *Cleaner
	normalizer *Normalizer
	store      storage.ListingStore
	logger     *utils.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(cleaner *Cleaner, normalizer *Normalizer, store storage.ListingStore, logger *utils.Logger) *Ingestor {
	return &Ingestor{cleaner: cleaner, normalizer: normalizer, store: store, logger: logger}
}

// Ingest cleans and categorizes raw, upserts the result and then marks
// listings of each scraped source that were not seen since runStart as
// inactive. Sources are only deactivated when they produced listings, so a
// failed scrape does not empty the catalogue.
func (i *Ingestor) Ingest(ctx context.Context, raw []*models.RawListing, runStart time.Time) (*IngestResult, error) {
	res := &IngestResult{
		Raw:        len(raw),
		ByOrigin:   make(map[models.Origin]int),
		ByCategory: make(map[taxonomy.Category]int),
	}

	listings := i.cleaner.Clean(raw)
	sources := make(map[string]struct{})
	var demoted []*models.Listing
	for _, l := range listings {
		verdict := i.normalizer.NormalizeListing(ctx, l)
		if verdict.Origin == models.OriginOverride && l.Category == taxonomy.Other {
			demoted = append(demoted, l)
		}
		res.ByOrigin[verdict.Origin]++
		res.ByCategory[l.Category]++
		sources[l.Source] = struct{}{}
	}

	if len(listings) == 0 {
		return res, nil
	}
	if err := i.store.Upsert(ctx, listings); err != nil {
		return res, fmt.Errorf("ingest: upsert: %w", err)
	}
	res.Stored = len(listings)

	// Upsert keeps a known category over an incoming "other"; an explicit
	// override to "other" must still land.
	for _, l := range demoted {
		if err := i.store.UpdateCategory(ctx, l.URL, taxonomy.Other); err != nil {
			return res, fmt.Errorf("ingest: apply override for %q: %w", l.URL, err)
		}
	}

	for src := range sources {
		n, err := i.store.MarkInactive(ctx, src, runStart)
		if err != nil {
			return res, fmt.Errorf("ingest: mark inactive %q: %w", src, err)
		}
		res.Deactivated += n
	}

	i.logger.Info("[ingest] Stored %d listings (override=%d keyword=%d ai=%d default=%d), %d marked inactive",
		res.Stored, res.ByOrigin[models.OriginOverride], res.ByOrigin[models.OriginKeyword],
		res.ByOrigin[models.OriginAI], res.ByOrigin[models.OriginDefault], res.Deactivated)
	return res, nil
}
