package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

var (
	// ErrNotFound is returned when a listing or mapping does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidCategory is returned when a write carries a category outside
	// the taxonomy.
	ErrInvalidCategory = errors.New("storage: invalid category")
)

// ListingStore persists listings keyed by URL.
type ListingStore interface {
	// Upsert inserts new listings and refreshes existing ones. An incoming
	// "other" never overwrites a known category.
	Upsert(ctx context.Context, listings []*models.Listing) error
	// MarkInactive flags listings of source not seen since seenBefore.
	MarkInactive(ctx context.Context, source string, seenBefore time.Time) (int64, error)
	Get(ctx context.Context, url string) (*models.Listing, error)
	// List returns listings with ID > q.AfterID in ascending ID order.
	List(ctx context.Context, q models.ListingQuery) ([]*models.Listing, error)
	UpdateCategory(ctx context.Context, url string, category taxonomy.Category) error
	// CountByCategory counts listings per category; empty source means all.
	CountByCategory(ctx context.Context, source string) (map[taxonomy.Category]int, error)
	FetchAll(ctx context.Context) ([]*models.Listing, error)
}

// MappingStore persists per-source category overrides.
type MappingStore interface {
	// ListMappings returns the overrides of source, or all when source is empty.
	ListMappings(ctx context.Context, source string) ([]models.CategoryMapping, error)
	PutMapping(ctx context.Context, m models.CategoryMapping) error
	DeleteMapping(ctx context.Context, source, externalCategory string) error
}

// CursorStore persists named batch cursors.
type CursorStore interface {
	// LoadCursor returns 0 for an unknown name.
	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, cursor int64) error
}

// Store is the full storage backend.
type Store interface {
	ListingStore
	MappingStore
	CursorStore
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// MappingKey is the case-insensitive lookup key of an external category.
func MappingKey(external string) string {
	return strings.ToLower(strings.TrimSpace(external))
}

// mergeCategory applies the upsert rule for an existing listing.
func mergeCategory(existing, incoming taxonomy.Category) taxonomy.Category {
	if incoming != taxonomy.Other {
		return incoming
	}
	return existing
}

// dedupeByURL keeps the last listing per URL, preserving first-seen order.
func dedupeByURL(listings []*models.Listing) []*models.Listing {
	idx := make(map[string]int, len(listings))
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if i, ok := idx[l.URL]; ok {
			out[i] = l
			continue
		}
		idx[l.URL] = len(out)
		out = append(out, l)
	}
	return out
}

func validateListings(listings []*models.Listing) error {
	for _, l := range listings {
		if !l.Category.Valid() {
			return ErrInvalidCategory
		}
		if l.URL == "" {
			return errors.New("storage: listing without url")
		}
	}
	return nil
}
