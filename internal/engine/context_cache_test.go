package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/pkg/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestContextCache_ReusesPoolWithinTTL(t *testing.T) {
	store := newFakeStore()
	store.addEntity(types.KindMaterial, "Oak", "אלון", "wood")
	store.addCategory(types.KindMaterial, "wood", "Wood")
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	cache := NewContextCache(store, ContextCacheConfig{TTL: 5 * time.Minute, RowCap: 50, Now: clock.Now}, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	assert.Len(t, first.Entities, 1)
	assert.Len(t, first.Categories, 1)
	assert.Equal(t, 50, store.lastBulkLimit)

	clock.Advance(4*time.Minute + 59*time.Second)
	second, err := cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, store.bulkListCalls)

	clock.Advance(time.Second)
	third, err := cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, store.bulkListCalls)
	assert.Equal(t, CacheStats{Loads: 2, Hits: 1}, cache.Stats())
}

func TestContextCache_KindsAreIndependent(t *testing.T) {
	store := newFakeStore()
	store.addEntity(types.KindMaterial, "Oak", "אלון", "wood")
	store.addEntity(types.KindTexture, "Ribbed", "מצולע", "relief")
	cache := NewContextCache(store, ContextCacheConfig{}, nil)

	materials, err := cache.Get(context.Background(), types.KindMaterial)
	require.NoError(t, err)
	textures, err := cache.Get(context.Background(), types.KindTexture)
	require.NoError(t, err)

	require.Len(t, materials.Entities, 1)
	require.Len(t, textures.Entities, 1)
	assert.Equal(t, "Oak", materials.Entities[0].Name.En)
	assert.Equal(t, "Ribbed", textures.Entities[0].Name.En)

	cache.Invalidate(types.KindMaterial)
	_, _ = cache.Get(context.Background(), types.KindMaterial)
	_, _ = cache.Get(context.Background(), types.KindTexture)
	assert.Equal(t, 3, store.bulkListCalls, "only the invalidated kind reloads")

	cache.InvalidateAll()
	_, _ = cache.Get(context.Background(), types.KindTexture)
	assert.Equal(t, 4, store.bulkListCalls)
}

func TestContextCache_InvalidateKeepsHandedOutPools(t *testing.T) {
	store := newFakeStore()
	e := store.addEntity(types.KindMaterial, "Oak", "אלון", "wood")
	cache := NewContextCache(store, ContextCacheConfig{}, nil)

	pool, err := cache.Get(context.Background(), types.KindMaterial)
	require.NoError(t, err)
	cache.Invalidate(types.KindMaterial)

	got, ok := pool.Entity(e.ID)
	assert.True(t, ok)
	assert.Equal(t, e, got)
}

func TestContextCache_LoadError(t *testing.T) {
	store := newFakeStore()
	store.bulkListErr = errors.New("connection refused")
	cache := NewContextCache(store, ContextCacheConfig{}, nil)

	_, err := cache.Get(context.Background(), types.KindMaterial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, CacheStats{}, cache.Stats())
}
