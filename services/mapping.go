package services

import (
	"context"
	"fmt"
	"sync"

	"gear-aggregator/models"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

// MappingResolver answers per-source override lookups from an in-memory
// snapshot of the mapping table.
type MappingResolver struct {
	store  storage.MappingStore
	logger *utils.Logger

	mu       sync.RWMutex
	bySource map[string]map[string]taxonomy.Category
}

// NewMappingResolver creates an empty resolver. Call Refresh to load it.
// A nil store yields a resolver that never matches.
func NewMappingResolver(store storage.MappingStore, logger *utils.Logger) *MappingResolver {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &MappingResolver{
		store:    store,
		logger:   logger,
		bySource: make(map[string]map[string]taxonomy.Category),
	}
}

// Refresh reloads every mapping from the store. On error the previous
// snapshot is kept.
func (r *MappingResolver) Refresh(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	mappings, err := r.store.ListMappings(ctx, "")
	if err != nil {
		return fmt.Errorf("mapping: refresh: %w", err)
	}
	r.Load(mappings)
	r.logger.Debug("[mapping] Loaded %d overrides", len(mappings))
	return nil
}

// Load replaces the snapshot with mappings. Invalid categories are skipped.
func (r *MappingResolver) Load(mappings []models.CategoryMapping) {
	next := make(map[string]map[string]taxonomy.Category)
	for _, m := range mappings {
		if !m.Category.Valid() {
			r.logger.Warn("[mapping] Ignoring %s/%q: invalid category %q", m.Source, m.ExternalCategory, m.Category)
			continue
		}
		src := normaliseSource(m.Source)
		bySrc, ok := next[src]
		if !ok {
			bySrc = make(map[string]taxonomy.Category)
			next[src] = bySrc
		}
		bySrc[storage.MappingKey(m.ExternalCategory)] = m.Category
	}

	r.mu.Lock()
	r.bySource = next
	r.mu.Unlock()
}

// Resolve looks up the override of external within source. The match is
// exact after trimming and case folding of both source and external.
func (r *MappingResolver) Resolve(source, external string) (taxonomy.Category, bool) {
	key := storage.MappingKey(external)
	if key == "" {
		return taxonomy.Other, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySource[normaliseSource(source)][key]
	if !ok {
		return taxonomy.Other, false
	}
	return c, true
}
