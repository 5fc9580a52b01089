package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/atelier/internal/backup"
	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/internal/engine"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/notify"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/internal/storage/sqlite"
	"github.com/scrypster/atelier/pkg/types"
)

const seedYAML = `categories:
  - id: wood
    kind: material
    name: {en: Wood, he: עץ}
  - id: stone
    kind: material
    name: {en: Stone}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Storage.StorageEngine = "sqlite"
	cfg.Storage.DataPath = t.TempDir()
	cfg.LLM.LLMProvider = "ollama"
	cfg.LLM.OllamaURL = "http://127.0.0.1:1"
	cfg.ImageGen.Enabled = false
	cfg.Resolution.CategoryRulesFile = ""
	return cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(cfg, logger.Nop(), &out)
	err := app.RunContext(context.Background(), append([]string{"atelier"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeedCategories(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCLI(t, cfg, "seed-categories", "--file", writeFile(t, "categories.yaml", seedYAML))
	require.NoError(t, err)
	assert.JSONEq(t, `{"seeded":2}`, out)

	store, err := sqlite.NewCatalogueStore(cfg.Storage.SQLitePath(), logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	cats, err := store.ListCategories(context.Background(), types.KindMaterial)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Stone", cats[0].Name.He, "Hebrew name defaults to English")

	events, err := os.ReadDir(filepath.Join(cfg.Storage.DataPath, "events"))
	require.NoError(t, err)
	assert.Len(t, events, 1, "seeding announces a catalogue change")
}

func TestReadCategories_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        "categories: []\n",
		"missing id":   "categories:\n  - kind: material\n    name: {en: Wood}\n",
		"bad kind":     "categories:\n  - id: x\n    kind: fabric\n    name: {en: X}\n",
		"not yaml map": "categories: [[",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readCategories(writeFile(t, "c.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestResolve_ExactMatch(t *testing.T) {
	cfg := testConfig(t)
	_, err := runCLI(t, cfg, "seed-categories", "--file", writeFile(t, "categories.yaml", seedYAML))
	require.NoError(t, err)

	store, err := sqlite.NewCatalogueStore(cfg.Storage.SQLitePath(), logger.Nop())
	require.NoError(t, err)
	oak, err := store.Create(context.Background(), &storage.EntitySpec{
		Kind:       types.KindMaterial,
		Name:       types.LocalizedName{En: "Oak", He: "אלון"},
		CategoryID: "wood",
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := runCLI(t, cfg, "resolve", "--style", "style-1", "--kind", "materials", "--ref", "Oak")
	require.NoError(t, err)

	var result engine.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, []string{oak.ID}, result.EntityIDs)
	assert.Equal(t, 1, result.ByTier[engine.TierExact])
}

func TestResolve_InvalidFlags(t *testing.T) {
	cfg := testConfig(t)

	_, err := runCLI(t, cfg, "resolve", "--style", "s", "--kind", "fabric", "--ref", "Oak")
	assert.Error(t, err)

	_, err = runCLI(t, cfg, "resolve", "--style", "s", "--tier", "gold", "--ref", "Oak")
	assert.Error(t, err)

	_, err = runCLI(t, cfg, "resolve", "--ref", "Oak")
	assert.Error(t, err, "style is required")
}

func TestOpenStore_UnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.StorageEngine = "mongo"
	_, err := openStore(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestBackupCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Dir = filepath.Join(cfg.Storage.DataPath, "backups")
	cfg.Backup.Keep = 5
	cfg.Backup.Verify = true
	_, err := runCLI(t, cfg, "seed-categories", "--file", writeFile(t, "categories.yaml", seedYAML))
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "backup", "create")
	require.NoError(t, err)
	var snap backup.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.True(t, snap.Verified)

	out, err = runCLI(t, cfg, "backup", "list")
	require.NoError(t, err)
	var snaps []backup.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.Path, snaps[0].Path)

	_, err = runCLI(t, cfg, "backup", "restore", "--file", snap.Path)
	require.NoError(t, err)

	cfg.Storage.StorageEngine = "postgres"
	_, err = runCLI(t, cfg, "backup", "list")
	assert.Error(t, err)
}

func TestInvalidateOnChange(t *testing.T) {
	store, err := sqlite.NewCatalogueStore(":memory:", logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	cache := engine.NewContextCache(store, engine.ContextCacheConfig{TTL: time.Hour}, logger.Nop())
	_, err = cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	_, err = cache.Get(ctx, types.KindTexture)
	require.NoError(t, err)

	handle := invalidateOnChange(cache, logger.Nop())
	handle(notify.Event{Type: "something_else"})
	handle(notify.Event{Type: notify.EventCatalogueChanged, Kind: types.KindTexture})

	_, err = cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	_, err = cache.Get(ctx, types.KindTexture)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cache.Stats().Loads, "only the texture pool is reloaded")

	handle(notify.Event{Type: notify.EventCatalogueChanged})
	_, err = cache.Get(ctx, types.KindMaterial)
	require.NoError(t, err)
	assert.EqualValues(t, 4, cache.Stats().Loads)
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ATELIER_DATA_PATH", dir)
	t.Setenv("ATELIER_STORAGE_ENGINE", "sqlite")
	t.Setenv("ATELIER_LOG_MODE", "production")

	assert.Equal(t, 1, run([]string{"atelier", "resolve"}), "missing required flags")
	assert.Equal(t, 0, run([]string{"atelier", "backup", "list"}))

	t.Setenv("ATELIER_CONCURRENCY", "0")
	assert.Equal(t, 1, run([]string{"atelier", "backup", "list"}), "invalid config")
}
