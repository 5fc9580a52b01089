package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/internal/storage/postgres"
	"github.com/scrypster/atelier/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.CatalogueStore {
	t.Helper()
	store, err := postgres.NewCatalogueStore(postgresTestDSN(t), nil)
	require.NoError(t, err, "NewCatalogueStore should succeed")

	_, err = store.GetDB().Exec(`TRUNCATE style_element_links, catalogue_entities, catalogue_categories`)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_CreateFindAndLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.Create(ctx, &storage.EntitySpec{
		Kind:             types.KindMaterial,
		Name:             types.LocalizedName{En: "Carrara Marble", He: "שיש קררה"},
		CategoryID:       "stone-finishes",
		Finish:           []string{"honed"},
		IsAbstract:       true,
		GenerationStatus: types.GenerationCompleted,
	})
	require.NoError(t, err)

	got, err := store.FindExact(ctx, types.KindMaterial, "שיש קררה", types.LocaleHebrew)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.ID, got.ID)
	assert.True(t, got.IsAbstract)
	assert.Equal(t, []string{"honed"}, got.Finish)

	require.NoError(t, store.CreateLink(ctx, "style-1", e.ID, types.KindMaterial))
	assert.ErrorIs(t, store.CreateLink(ctx, "style-1", e.ID, types.KindMaterial), storage.ErrLinkExists)

	require.NoError(t, store.IncrementUsage(ctx, e.ID))
	list, err := store.BulkList(ctx, storage.EntityFilter{Kind: types.KindMaterial, CompletedOnly: true}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UsageCount)
}

func TestPostgres_Categories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCategory(ctx, &types.Category{
		ID: "metals", Kind: types.KindMaterial, Name: types.LocalizedName{En: "Metals"},
	}))
	cats, err := store.ListCategories(ctx, types.KindMaterial)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "", cats[0].ParentID)
}
