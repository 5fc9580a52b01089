package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *CatalogueStore {
	t.Helper()
	store, err := NewCatalogueStore(":memory:", nil)
	require.NoError(t, err, "failed to create test store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createEntity(t *testing.T, s *CatalogueStore, kind types.EntityKind, en, he string) *types.CatalogueEntity {
	t.Helper()
	e, err := s.Create(context.Background(), &storage.EntitySpec{
		Kind:             kind,
		Name:             types.LocalizedName{En: en, He: he},
		CategoryID:       "cat-1",
		Finish:           []string{"polished"},
		GenerationStatus: types.GenerationCompleted,
	})
	require.NoError(t, err)
	return e
}

func TestCreateAndFindExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := createEntity(t, s, types.KindMaterial, "Oak Wood", "עץ אלון")
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.FindExact(ctx, types.KindMaterial, "Oak Wood", types.LocaleEnglish)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"polished"}, got.Finish)
	assert.Equal(t, types.GenerationCompleted, got.GenerationStatus)

	got, err = s.FindExact(ctx, types.KindMaterial, "עץ אלון", types.LocaleHebrew)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestFindExact_CaseSensitiveAndKindScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createEntity(t, s, types.KindMaterial, "Oak Wood", "")

	got, err := s.FindExact(ctx, types.KindMaterial, "oak wood", types.LocaleEnglish)
	require.NoError(t, err)
	assert.Nil(t, got, "exact lookup must be case-sensitive")

	got, err = s.FindExact(ctx, types.KindTexture, "Oak Wood", types.LocaleEnglish)
	require.NoError(t, err)
	assert.Nil(t, got, "exact lookup must not cross kinds")
}

func TestCreate_RejectsInvalidSpec(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), &storage.EntitySpec{Kind: types.KindMaterial})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestBulkList_LimitAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"Oak", "Walnut", "Travertine"} {
		createEntity(t, s, types.KindMaterial, n, "")
	}
	_, err := s.Create(ctx, &storage.EntitySpec{
		Kind: types.KindMaterial, Name: types.LocalizedName{En: "Pending"}, CategoryID: "cat-1",
	})
	require.NoError(t, err)
	createEntity(t, s, types.KindTexture, "Herringbone", "")

	all, err := s.BulkList(ctx, storage.EntityFilter{Kind: types.KindMaterial}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	completed, err := s.BulkList(ctx, storage.EntityFilter{Kind: types.KindMaterial, CompletedOnly: true}, 10)
	require.NoError(t, err)
	assert.Len(t, completed, 3)

	capped, err := s.BulkList(ctx, storage.EntityFilter{Kind: types.KindMaterial}, 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)

	_, err = s.BulkList(ctx, storage.EntityFilter{}, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestIncrementUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := createEntity(t, s, types.KindMaterial, "Brass", "")

	require.NoError(t, s.IncrementUsage(ctx, e.ID))
	require.NoError(t, s.IncrementUsage(ctx, e.ID))

	got, err := s.FindExact(ctx, types.KindMaterial, "Brass", types.LocaleEnglish)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)

	assert.ErrorIs(t, s.IncrementUsage(ctx, "missing"), storage.ErrNotFound)
}

func TestLinks_UniquePerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := createEntity(t, s, types.KindMaterial, "Velvet", "")

	link, err := s.FindLink(ctx, "style-1", e.ID)
	require.NoError(t, err)
	assert.Nil(t, link)

	require.NoError(t, s.CreateLink(ctx, "style-1", e.ID, types.KindMaterial))
	assert.ErrorIs(t, s.CreateLink(ctx, "style-1", e.ID, types.KindMaterial), storage.ErrLinkExists)

	link, err = s.FindLink(ctx, "style-1", e.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, types.KindMaterial, link.Kind)

	n, err := s.CountLinks(ctx, "style-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCategory(ctx, &types.Category{
		ID: "stone-finishes", Kind: types.KindMaterial, Name: types.LocalizedName{En: "Stone", He: "אבן"},
	}))
	require.NoError(t, s.UpsertCategory(ctx, &types.Category{
		ID: "stone-finishes", Kind: types.KindMaterial, Name: types.LocalizedName{En: "Stone Finishes", He: "אבן"},
	}))
	require.NoError(t, s.UpsertCategory(ctx, &types.Category{
		ID: "woven", Kind: types.KindTexture, Name: types.LocalizedName{En: "Woven"},
	}))

	cats, err := s.ListCategories(ctx, types.KindMaterial)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Stone Finishes", cats[0].Name.En)

	assert.ErrorIs(t, s.UpsertCategory(ctx, &types.Category{Kind: types.KindMaterial}), storage.ErrInvalidInput)
}

func TestFileBackedStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atelier.db")

	s, err := NewCatalogueStore(path, nil)
	require.NoError(t, err)
	createEntity(t, s, types.KindTexture, "Bouclé", "")
	require.NoError(t, s.Close())

	s, err = NewCatalogueStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindExact(context.Background(), types.KindTexture, "Bouclé", types.LocaleEnglish)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDBPathFromDSN(t *testing.T) {
	assert.Equal(t, "", dbPathFromDSN(":memory:"))
	assert.Equal(t, "/tmp/a.db", dbPathFromDSN("/tmp/a.db"))
	assert.Equal(t, "/tmp/a.db", dbPathFromDSN("file:/tmp/a.db?_pragma=busy_timeout(5000)"))
	assert.Equal(t, "", dbPathFromDSN("file::memory:"))
}
