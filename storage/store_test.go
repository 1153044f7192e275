package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gear.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func listing(url string, cat taxonomy.Category) *models.Listing {
	return &models.Listing{
		Source:   "gearloop",
		URL:      url,
		Title:    "title " + url,
		Category: cat,
	}
}

func TestUpsertKeepsKnownCategory(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Upsert(ctx, []*models.Listing{listing("u1", taxonomy.GuitarsBass)}); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			again := listing("u1", taxonomy.Other)
			again.Title = "renamed"
			if err := s.Upsert(ctx, []*models.Listing{again}); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			got, err := s.Get(ctx, "u1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Category != taxonomy.GuitarsBass {
				t.Errorf("category: got %q, want %q", got.Category, taxonomy.GuitarsBass)
			}
			if got.Title != "renamed" {
				t.Errorf("title: got %q, want renamed", got.Title)
			}

			if err := s.Upsert(ctx, []*models.Listing{listing("u1", taxonomy.Amplifiers)}); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			got, _ = s.Get(ctx, "u1")
			if got.Category != taxonomy.Amplifiers {
				t.Errorf("known incoming category should win: got %q", got.Category)
			}
		})
	}
}

func TestUpsertRejectsInvalidCategory(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Upsert(ctx, []*models.Listing{listing("u1", "synths")})
			if !errors.Is(err, ErrInvalidCategory) {
				t.Errorf("got %v, want ErrInvalidCategory", err)
			}
		})
	}
}

func TestListCursorAndFilters(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			batch := []*models.Listing{
				listing("a", taxonomy.Other),
				listing("b", taxonomy.KeysPianos),
				listing("c", taxonomy.Other),
				listing("d", taxonomy.Other),
			}
			batch[3].Source = "musikborsen"
			if err := s.Upsert(ctx, batch); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			others, err := s.List(ctx, models.ListingQuery{Category: taxonomy.Other})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(others) != 3 {
				t.Fatalf("others: got %d, want 3", len(others))
			}
			for i := 1; i < len(others); i++ {
				if others[i-1].ID >= others[i].ID {
					t.Fatalf("ids not ascending: %d, %d", others[i-1].ID, others[i].ID)
				}
			}

			page, err := s.List(ctx, models.ListingQuery{AfterID: others[0].ID, Category: taxonomy.Other, Limit: 1})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(page) != 1 || page[0].URL != "c" {
				t.Errorf("page after cursor: got %+v", page)
			}

			bySource, _ := s.List(ctx, models.ListingQuery{Source: "musikborsen"})
			if len(bySource) != 1 || bySource[0].URL != "d" {
				t.Errorf("source filter: got %+v", bySource)
			}
		})
	}
}

func TestUpdateCategory(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Upsert(ctx, []*models.Listing{listing("u1", taxonomy.Other)}); err != nil {
				t.Fatal(err)
			}
			if err := s.UpdateCategory(ctx, "u1", taxonomy.KeysPianos); err != nil {
				t.Fatalf("UpdateCategory: %v", err)
			}
			got, _ := s.Get(ctx, "u1")
			if got.Category != taxonomy.KeysPianos {
				t.Errorf("category: got %q", got.Category)
			}
			if err := s.UpdateCategory(ctx, "missing", taxonomy.KeysPianos); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing url: got %v, want ErrNotFound", err)
			}
			if err := s.UpdateCategory(ctx, "u1", "synths"); !errors.Is(err, ErrInvalidCategory) {
				t.Errorf("bad category: got %v, want ErrInvalidCategory", err)
			}

			counts, err := s.CountByCategory(ctx, "")
			if err != nil {
				t.Fatalf("CountByCategory: %v", err)
			}
			if counts[taxonomy.KeysPianos] != 1 || counts[taxonomy.Other] != 0 {
				t.Errorf("counts: got %v", counts)
			}
		})
	}
}

func TestMarkInactive(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(48 * time.Hour)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			stale := listing("stale", taxonomy.Other)
			stale.LastSeen = old
			seen := listing("seen", taxonomy.Other)
			seen.LastSeen = fresh
			other := listing("other-source", taxonomy.Other)
			other.Source = "musikborsen"
			other.LastSeen = old
			if err := s.Upsert(ctx, []*models.Listing{stale, seen, other}); err != nil {
				t.Fatal(err)
			}

			n, err := s.MarkInactive(ctx, "gearloop", old.Add(time.Hour))
			if err != nil {
				t.Fatalf("MarkInactive: %v", err)
			}
			if n != 1 {
				t.Errorf("marked: got %d, want 1", n)
			}
			got, _ := s.Get(ctx, "stale")
			if got.Active {
				t.Error("stale listing should be inactive")
			}
			got, _ = s.Get(ctx, "other-source")
			if !got.Active {
				t.Error("listing of another source must stay active")
			}
		})
	}
}

func TestMappings(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			m := models.CategoryMapping{Source: "gearloop", ExternalCategory: "Klaviatur", Category: taxonomy.KeysPianos}
			if err := s.PutMapping(ctx, m); err != nil {
				t.Fatalf("PutMapping: %v", err)
			}
			m.ExternalCategory = " klaviatur "
			m.Category = taxonomy.StudioRecording
			if err := s.PutMapping(ctx, m); err != nil {
				t.Fatalf("PutMapping: %v", err)
			}

			all, err := s.ListMappings(ctx, "")
			if err != nil {
				t.Fatalf("ListMappings: %v", err)
			}
			if len(all) != 1 || all[0].Category != taxonomy.StudioRecording {
				t.Fatalf("mappings after overwrite: got %+v", all)
			}

			if err := s.PutMapping(ctx, models.CategoryMapping{Source: "x", ExternalCategory: "y", Category: "bad"}); !errors.Is(err, ErrInvalidCategory) {
				t.Errorf("bad category: got %v", err)
			}

			if err := s.DeleteMapping(ctx, "gearloop", "KLAVIATUR"); err != nil {
				t.Fatalf("DeleteMapping: %v", err)
			}
			if err := s.DeleteMapping(ctx, "gearloop", "klaviatur"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second delete: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCursors(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.LoadCursor(ctx, "reclassify")
			if err != nil || got != 0 {
				t.Fatalf("unset cursor: got (%d, %v), want (0, nil)", got, err)
			}
			if err := s.SaveCursor(ctx, "reclassify", 42); err != nil {
				t.Fatalf("SaveCursor: %v", err)
			}
			if err := s.SaveCursor(ctx, "reclassify", 57); err != nil {
				t.Fatalf("SaveCursor: %v", err)
			}
			got, _ = s.LoadCursor(ctx, "reclassify")
			if got != 57 {
				t.Errorf("cursor: got %d, want 57", got)
			}
		})
	}
}

func TestDedupeByURLKeepsLast(t *testing.T) {
	in := []*models.Listing{
		{URL: "a", Title: "first"},
		{URL: "b"},
		{URL: "a", Title: "second"},
	}
	out := dedupeByURL(in)
	if len(out) != 2 {
		t.Fatalf("len: got %d, want 2", len(out))
	}
	if out[0].URL != "a" || out[0].Title != "second" {
		t.Errorf("got %+v, want last a in first position", out[0])
	}
}
