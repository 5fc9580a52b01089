package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/internal/storage/sqlite"
	"github.com/scrypster/atelier/pkg/types"
)

// seedCatalogue creates a catalogue file with n materials and closes it.
func seedCatalogue(t *testing.T, path string, names ...string) {
	t.Helper()
	store, err := sqlite.NewCatalogueStore(path, logger.Nop())
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	ctx := context.Background()
	require.NoError(t, store.UpsertCategory(ctx, &types.Category{
		ID: "wood", Kind: types.KindMaterial, Name: types.LocalizedName{En: "Wood", He: "עץ"},
	}))
	for _, name := range names {
		_, err := store.Create(ctx, &storage.EntitySpec{
			Kind:       types.KindMaterial,
			Name:       types.LocalizedName{En: name, He: name},
			CategoryID: "wood",
		})
		require.NoError(t, err)
	}
}

func countMaterials(t *testing.T, path string) int {
	t.Helper()
	store, err := sqlite.NewCatalogueStore(path, logger.Nop())
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	all, err := store.BulkList(context.Background(), storage.EntityFilter{Kind: types.KindMaterial}, 0)
	require.NoError(t, err)
	return len(all)
}

func newService(t *testing.T, keep int) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "atelier.db")
	svc, err := New(Config{DBPath: dbPath, Dir: filepath.Join(dir, "backups"), Keep: keep, Verify: true}, logger.Nop())
	require.NoError(t, err)
	return svc, dbPath
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()}, nil)
	assert.Error(t, err)
	_, err = New(Config{DBPath: "x.db"}, nil)
	assert.Error(t, err)

	svc, err := New(Config{DBPath: "x.db", Dir: filepath.Join(t.TempDir(), "nested", "backups")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, svc.cfg.Keep)
	assert.DirExists(t, svc.cfg.Dir)
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	svc, _ := newService(t, 3)
	_, err := svc.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestSnapshot_WritesVerifiedCopy(t *testing.T) {
	svc, dbPath := newService(t, 3)
	seedCatalogue(t, dbPath, "Oak", "Walnut")

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Verified)
	assert.Positive(t, snap.Size)
	assert.FileExists(t, snap.Path)
	assert.Equal(t, 2, countMaterials(t, snap.Path))
	assert.False(t, svc.LastSnapshot().IsZero())
}

func TestSnapshot_PrunesBeyondKeep(t *testing.T) {
	svc, dbPath := newService(t, 2)
	seedCatalogue(t, dbPath, "Oak")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.Snapshot(context.Background())
		require.NoError(t, err)
	}

	snaps, err := svc.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, base.Add(3*time.Hour), snaps[0].CreatedAt, "newest first")
	assert.Equal(t, base.Add(2*time.Hour), snaps[1].CreatedAt)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	svc, _ := newService(t, 3)
	require.NoError(t, os.WriteFile(filepath.Join(svc.cfg.Dir, "notes.db"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(svc.cfg.Dir, snapshotPrefix+"garbage.db"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(svc.cfg.Dir, snapshotPrefix+"20260101-000000.000000.db"), 0o750))

	snaps, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRestore_RollsCatalogueBack(t *testing.T) {
	svc, dbPath := newService(t, 3)
	seedCatalogue(t, dbPath, "Oak")

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	seedCatalogue(t, dbPath, "Rattan", "Teak")
	require.Equal(t, 3, countMaterials(t, dbPath))

	require.NoError(t, svc.Restore(context.Background(), snap.Path))
	assert.Equal(t, 1, countMaterials(t, dbPath))
	assert.NoFileExists(t, dbPath+".pre-restore")
}

func TestRestore_RejectsCorruptSnapshot(t *testing.T) {
	svc, dbPath := newService(t, 3)
	seedCatalogue(t, dbPath, "Oak")

	bad := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not sqlite"), 0o600))

	assert.Error(t, svc.Restore(context.Background(), bad))
	assert.Equal(t, 1, countMaterials(t, dbPath), "live database untouched")

	assert.Error(t, svc.Restore(context.Background(), filepath.Join(t.TempDir(), "missing.db")))
}

func TestRun_DisabledWithoutInterval(t *testing.T) {
	svc, _ := newService(t, 3)
	assert.NoError(t, svc.Run(context.Background()))
}

func TestRun_SnapshotsUntilCancelled(t *testing.T) {
	svc, dbPath := newService(t, 100)
	seedCatalogue(t, dbPath, "Oak")
	svc.cfg.Interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		snaps, _ := svc.List()
		return len(snaps) > 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
}
