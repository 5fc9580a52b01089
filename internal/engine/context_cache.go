package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// AvailableEntityPool is a read-only snapshot of the catalogue for one kind.
// Pools are never mutated after they are built; invalidation replaces them.
type AvailableEntityPool struct {
	Kind       types.EntityKind
	Entities   []*types.CatalogueEntity
	Categories []*types.Category
	LoadedAt   time.Time

	entityByID   map[string]*types.CatalogueEntity
	categoryByID map[string]*types.Category
}

// NewAvailableEntityPool indexes entities and categories into a pool.
func NewAvailableEntityPool(kind types.EntityKind, entities []*types.CatalogueEntity, categories []*types.Category, loadedAt time.Time) *AvailableEntityPool {
	p := &AvailableEntityPool{
		Kind:         kind,
		Entities:     entities,
		Categories:   categories,
		LoadedAt:     loadedAt,
		entityByID:   make(map[string]*types.CatalogueEntity, len(entities)),
		categoryByID: make(map[string]*types.Category, len(categories)),
	}
	for _, e := range entities {
		p.entityByID[e.ID] = e
	}
	for _, c := range categories {
		p.categoryByID[c.ID] = c
	}
	return p
}

// Entity looks up a pool entity by id.
func (p *AvailableEntityPool) Entity(id string) (*types.CatalogueEntity, bool) {
	e, ok := p.entityByID[id]
	return e, ok
}

// Category looks up a pool category by id.
func (p *AvailableEntityPool) Category(id string) (*types.Category, bool) {
	c, ok := p.categoryByID[id]
	return c, ok
}

// ContextCacheConfig configures a ContextCache. Zero fields take defaults.
type ContextCacheConfig struct {
	TTL    time.Duration
	RowCap int
	Now    func() time.Time
}

// CacheStats counts cache loads and hits since construction.
type CacheStats struct {
	Loads uint64 `json:"loads"`
	Hits  uint64 `json:"hits"`
}

// ContextCache is a read-through cache of entity pools keyed by kind.
//
// The mutex guards the map and counters only. Two callers that both see an
// expired entry will both rebuild it; the rebuild is idempotent and the
// last writer wins.
type ContextCache struct {
	store  storage.CatalogueStore
	ttl    time.Duration
	rowCap int
	now    func() time.Time
	log    *logger.Logger

	mu    sync.Mutex
	pools map[types.EntityKind]*AvailableEntityPool
	stats CacheStats
}

// NewContextCache creates a cache over store.
func NewContextCache(store storage.CatalogueStore, cfg ContextCacheConfig, log *logger.Logger) *ContextCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.RowCap < 1 {
		cfg.RowCap = storage.DefaultBulkLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ContextCache{
		store:  store,
		ttl:    cfg.TTL,
		rowCap: cfg.RowCap,
		now:    cfg.Now,
		log:    log,
		pools:  make(map[types.EntityKind]*AvailableEntityPool),
	}
}

// Get returns the pool for kind, rebuilding it from the store when it is
// missing or older than the TTL.
func (c *ContextCache) Get(ctx context.Context, kind types.EntityKind) (*AvailableEntityPool, error) {
	c.mu.Lock()
	pool, ok := c.pools[kind]
	if ok && c.now().Sub(pool.LoadedAt) < c.ttl {
		c.stats.Hits++
		c.mu.Unlock()
		return pool, nil
	}
	c.mu.Unlock()

	entities, err := c.store.BulkList(ctx, storage.EntityFilter{Kind: kind}, c.rowCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s entities: %w", kind, err)
	}
	categories, err := c.store.ListCategories(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s categories: %w", kind, err)
	}
	pool = NewAvailableEntityPool(kind, entities, categories, c.now())

	c.mu.Lock()
	c.pools[kind] = pool
	c.stats.Loads++
	c.mu.Unlock()

	c.log.Debug("context cache loaded", "kind", kind, "entities", len(entities), "categories", len(categories))
	return pool, nil
}

// Invalidate drops the cached pool for kind. Pools already handed out stay valid.
func (c *ContextCache) Invalidate(kind types.EntityKind) {
	c.mu.Lock()
	delete(c.pools, kind)
	c.mu.Unlock()
	c.log.Debug("context cache invalidated", "kind", kind)
}

// InvalidateAll drops every cached pool.
func (c *ContextCache) InvalidateAll() {
	c.mu.Lock()
	c.pools = make(map[types.EntityKind]*AvailableEntityPool)
	c.mu.Unlock()
	c.log.Debug("context cache invalidated", "kind", "all")
}

// Stats returns a snapshot of the load and hit counters.
func (c *ContextCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
