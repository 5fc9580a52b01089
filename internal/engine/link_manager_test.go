package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

func TestLinkManager_Idempotent(t *testing.T) {
	store := newFakeStore()
	e := store.addEntity(types.KindMaterial, "Oak", "אלון", "wood")
	lm := NewLinkManager(store, nil)
	ctx := context.Background()

	created, err := lm.Link(ctx, e.ID, "style-1", types.KindMaterial)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = lm.Link(ctx, e.ID, "style-1", types.KindMaterial)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, store.linkCount())
	assert.Equal(t, 2, store.entity(e.ID).UsageCount, "usage grows on every link call")
}

func TestLinkManager_RacingCreateIsSuccess(t *testing.T) {
	store := newFakeStore()
	e := store.addEntity(types.KindMaterial, "Oak", "אלון", "wood")
	require.NoError(t, store.CreateLink(context.Background(), "style-1", e.ID, types.KindMaterial))
	store.linkRace = true

	created, err := NewLinkManager(store, nil).Link(context.Background(), e.ID, "style-1", types.KindMaterial)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, store.entity(e.ID).UsageCount)
}

func TestLinkManager_UnknownEntity(t *testing.T) {
	store := newFakeStore()
	_, err := NewLinkManager(store, nil).Link(context.Background(), "ghost", "style-1", types.KindMaterial)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
