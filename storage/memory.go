package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and is
// used for local dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	byURL    map[string]*models.Listing
	mappings map[string]map[string]models.CategoryMapping
	cursors  map[string]int64
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byURL:    make(map[string]*models.Listing),
		mappings: make(map[string]map[string]models.CategoryMapping),
		cursors:  make(map[string]int64),
		now:      time.Now,
	}
}

func (m *MemoryStore) Upsert(_ context.Context, listings []*models.Listing) error {
	if err := validateListings(listings); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, l := range dedupeByURL(listings) {
		seen := l.LastSeen
		if seen.IsZero() {
			seen = now
		}
		if cur, ok := m.byURL[l.URL]; ok {
			cur.Source = l.Source
			cur.Title = l.Title
			cur.ExternalCategory = l.ExternalCategory
			cur.Category = mergeCategory(cur.Category, l.Category)
			cur.PriceText = l.PriceText
			cur.Price = l.Price
			cur.Location = l.Location
			cur.ImageURL = l.ImageURL
			cur.Description = l.Description
			cur.LastSeen = seen
			cur.Active = true
			continue
		}

		m.nextID++
		stored := *l
		stored.ID = m.nextID
		stored.FirstSeen = seen
		stored.LastSeen = seen
		stored.Active = true
		m.byURL[l.URL] = &stored
	}
	return nil
}

func (m *MemoryStore) MarkInactive(_ context.Context, source string, seenBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, l := range m.byURL {
		if l.Source == source && l.Active && l.LastSeen.Before(seenBefore) {
			l.Active = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Get(_ context.Context, url string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, q models.ListingQuery) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Listing
	for _, l := range m.byURL {
		if l.ID <= q.AfterID {
			continue
		}
		if q.Category != "" && l.Category != q.Category {
			continue
		}
		if q.Source != "" && l.Source != q.Source {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateCategory(_ context.Context, url string, category taxonomy.Category) error {
	if !category.Valid() {
		return ErrInvalidCategory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.byURL[url]
	if !ok {
		return ErrNotFound
	}
	l.Category = category
	return nil
}

func (m *MemoryStore) CountByCategory(_ context.Context, source string) (map[taxonomy.Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[taxonomy.Category]int)
	for _, l := range m.byURL {
		if source != "" && l.Source != source {
			continue
		}
		counts[l.Category]++
	}
	return counts, nil
}

func (m *MemoryStore) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	return m.List(ctx, models.ListingQuery{})
}

func (m *MemoryStore) ListMappings(_ context.Context, source string) ([]models.CategoryMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CategoryMapping
	for src, bySrc := range m.mappings {
		if source != "" && src != source {
			continue
		}
		for _, mp := range bySrc {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source == out[j].Source {
			return MappingKey(out[i].ExternalCategory) < MappingKey(out[j].ExternalCategory)
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func (m *MemoryStore) PutMapping(_ context.Context, mp models.CategoryMapping) error {
	if !mp.Category.Valid() {
		return ErrInvalidCategory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mp.CreatedAt.IsZero() {
		mp.CreatedAt = m.now()
	}
	bySrc, ok := m.mappings[mp.Source]
	if !ok {
		bySrc = make(map[string]models.CategoryMapping)
		m.mappings[mp.Source] = bySrc
	}
	bySrc[MappingKey(mp.ExternalCategory)] = mp
	return nil
}

func (m *MemoryStore) DeleteMapping(_ context.Context, source, externalCategory string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := MappingKey(externalCategory)
	if _, ok := m.mappings[source][key]; !ok {
		return ErrNotFound
	}
	delete(m.mappings[source], key)
	return nil
}

func (m *MemoryStore) LoadCursor(_ context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[name], nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, name string, cursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = cursor
	return nil
}

func (m *MemoryStore) Close() error { return nil }
