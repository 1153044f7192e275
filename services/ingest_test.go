package services

import (
	"context"
	"testing"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
)

func TestIngestorStoresAndCategorizes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mappings := NewMappingResolver(store, newTestLogger())
	_ = store.PutMapping(ctx, models.CategoryMapping{Source: "musikborsen", ExternalCategory: "Klaviatur", Category: taxonomy.KeysPianos})
	if err := mappings.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	ing := NewIngestor(NewCleaner(newTestLogger()), NewNormalizer(mappings, nil, nil, newTestLogger()), store, newTestLogger())

	runStart := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	scraped := runStart.Add(time.Minute)
	raw := []*models.RawListing{
		{Source: "musikborsen", Title: "Yamaha P-45", ExternalCategory: "Klaviatur", URL: "https://musikborsen.se/a/1", RawPrice: "3 200 kr", ScrapedAt: scraped},
		{Source: "musikborsen", Title: "Fender Stratocaster 2019, Sunburst", URL: "https://musikborsen.se/a/2", RawPrice: "9 500 kr", ScrapedAt: scraped},
		{Source: "musikborsen", Title: "Soffa", URL: "https://musikborsen.se/a/3", ScrapedAt: scraped},
	}

	res, err := ing.Ingest(ctx, raw, runStart)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Stored != 3 {
		t.Errorf("Stored: got %d, want 3", res.Stored)
	}
	if res.ByOrigin[models.OriginOverride] != 1 || res.ByOrigin[models.OriginKeyword] != 1 || res.ByOrigin[models.OriginDefault] != 1 {
		t.Errorf("ByOrigin: %v", res.ByOrigin)
	}

	l, err := store.Get(ctx, "https://musikborsen.se/a/1")
	if err != nil {
		t.Fatal(err)
	}
	if l.Category != taxonomy.KeysPianos || l.Price != 3200 {
		t.Errorf("stored listing: %+v", l)
	}
}

func TestIngestorMarksMissingListingsInactive(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ing := NewIngestor(NewCleaner(newTestLogger()), NewNormalizer(nil, nil, nil, newTestLogger()), store, newTestLogger())

	day1 := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	first := []*models.RawListing{
		{Source: "gearloop", Title: "Boss RC-30 looper", URL: "https://gearloop.se/a/1", ScrapedAt: day1},
		{Source: "gearloop", Title: "Ludwig virvel", URL: "https://gearloop.se/a/2", ScrapedAt: day1},
	}
	if _, err := ing.Ingest(ctx, first, day1); err != nil {
		t.Fatal(err)
	}

	day2 := day1.Add(24 * time.Hour)
	second := []*models.RawListing{
		{Source: "gearloop", Title: "Boss RC-30 looper", URL: "https://gearloop.se/a/1", ScrapedAt: day2},
	}
	res, err := ing.Ingest(ctx, second, day2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deactivated != 1 {
		t.Errorf("Deactivated: got %d, want 1", res.Deactivated)
	}
	gone, _ := store.Get(ctx, "https://gearloop.se/a/2")
	if gone.Active {
		t.Error("listing missing from the second scrape should be inactive")
	}
	kept, _ := store.Get(ctx, "https://gearloop.se/a/1")
	if !kept.Active || kept.Category != taxonomy.PedalsEffects {
		t.Errorf("re-seen listing: %+v", kept)
	}
}

func TestIngestorNeverDowngradesCategory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Upsert(ctx, []*models.Listing{{Source: "gearloop", URL: "https://gearloop.se/a/9", Title: "Okänd", Category: taxonomy.KeysPianos}})

	ing := NewIngestor(NewCleaner(newTestLogger()), NewNormalizer(nil, nil, nil, newTestLogger()), store, newTestLogger())
	raw := []*models.RawListing{{Source: "gearloop", Title: "Okänd", URL: "https://gearloop.se/a/9", ScrapedAt: time.Now()}}
	if _, err := ing.Ingest(ctx, raw, time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	l, _ := store.Get(ctx, "https://gearloop.se/a/9")
	if l.Category != taxonomy.KeysPianos {
		t.Errorf("category downgraded to %q", l.Category)
	}
}

func TestIngestorAppliesOverrideToOther(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Upsert(ctx, []*models.Listing{{Source: "blocket", URL: "https://blocket.se/a/4", Title: "Affisch", Category: taxonomy.Accessories}})
	_ = store.PutMapping(ctx, models.CategoryMapping{Source: "blocket", ExternalCategory: "Övrigt, ej musik", Category: taxonomy.Other})

	mappings := NewMappingResolver(store, newTestLogger())
	if err := mappings.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	ing := NewIngestor(NewCleaner(newTestLogger()), NewNormalizer(mappings, nil, nil, newTestLogger()), store, newTestLogger())

	raw := []*models.RawListing{{Source: "blocket", Title: "Affisch", ExternalCategory: "Övrigt, ej musik", URL: "https://blocket.se/a/4", ScrapedAt: time.Now()}}
	if _, err := ing.Ingest(ctx, raw, time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	l, _ := store.Get(ctx, "https://blocket.se/a/4")
	if l.Category != taxonomy.Other {
		t.Errorf("category: got %q, want other", l.Category)
	}
}
