// Package sqlite provides a SQLite implementation of the catalogue store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// CatalogueStore implements storage.Store using SQLite.
type CatalogueStore struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// NewCatalogueStore opens (or creates) a SQLite catalogue at dsn.
// If the first open fails because of stale WAL files left by a crashed
// process, the files are removed and the open is retried once.
func NewCatalogueStore(dsn string, log *logger.Logger) (*CatalogueStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	store, err := openCatalogueStore(dsn, log)
	if err == nil {
		return store, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(dbPath, log)

	store, retryErr := openCatalogueStore(dsn, log)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

func openCatalogueStore(dsn string, log *logger.Logger) (*CatalogueStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection serialises writes and
	// avoids SQLITE_BUSY under the orchestrator's concurrent items.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &CatalogueStore{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// GetDB exposes the underlying connection (used by tests and diagnostics).
func (s *CatalogueStore) GetDB() *sql.DB {
	return s.db
}

const entityColumns = `id, kind, name_en, name_he, category_id, finish, colors,
	generation_status, is_abstract, thumbnail_url, image_urls, usage_count, created_at, updated_at`

// FindExact returns the entity whose locale name equals name exactly.
func (s *CatalogueStore) FindExact(ctx context.Context, kind types.EntityKind, name string, locale types.Locale) (*types.CatalogueEntity, error) {
	if name == "" {
		return nil, nil
	}
	column := "name_en"
	if locale == types.LocaleHebrew {
		column = "name_he"
	}

	// = is case-sensitive in SQLite unless a NOCASE collation is declared.
	query := `SELECT ` + entityColumns + ` FROM catalogue_entities
		WHERE kind = ? AND ` + column + ` = ?
		ORDER BY usage_count DESC, created_at ASC
		LIMIT 1`

	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, string(kind), name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: FindExact: %w", err)
	}
	return entity, nil
}

// BulkList returns up to limit entities of filter.Kind, most used first.
func (s *CatalogueStore) BulkList(ctx context.Context, filter storage.EntityFilter, limit int) ([]*types.CatalogueEntity, error) {
	if !types.IsValidEntityKind(filter.Kind) {
		return nil, fmt.Errorf("%w: invalid kind %q", storage.ErrInvalidInput, filter.Kind)
	}

	query := `SELECT ` + entityColumns + ` FROM catalogue_entities WHERE kind = ?`
	args := []interface{}{string(filter.Kind)}
	if filter.CompletedOnly {
		query += ` AND generation_status = ?`
		args = append(args, string(types.GenerationCompleted))
	}
	query += ` ORDER BY usage_count DESC, created_at ASC LIMIT ?`
	args = append(args, storage.NormalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: BulkList: %w", err)
	}
	defer rows.Close()

	var entities []*types.CatalogueEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: BulkList scan: %w", err)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// ListCategories returns every category of the kind.
func (s *CatalogueStore) ListCategories(ctx context.Context, kind types.EntityKind) ([]*types.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name_en, name_he, COALESCE(parent_id, '')
		FROM catalogue_categories
		WHERE kind = ?
		ORDER BY name_en ASC, id ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListCategories: %w", err)
	}
	defer rows.Close()

	var categories []*types.Category
	for rows.Next() {
		var c types.Category
		var k string
		if err := rows.Scan(&c.ID, &k, &c.Name.En, &c.Name.He, &c.ParentID); err != nil {
			return nil, fmt.Errorf("sqlite: ListCategories scan: %w", err)
		}
		c.Kind = types.EntityKind(k)
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

// UpsertCategory creates or renames a category.
func (s *CatalogueStore) UpsertCategory(ctx context.Context, c *types.Category) error {
	if c == nil || c.ID == "" || !types.IsValidEntityKind(c.Kind) {
		return fmt.Errorf("%w: category id and kind are required", storage.ErrInvalidInput)
	}
	var parent interface{}
	if c.ParentID != "" {
		parent = c.ParentID
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalogue_categories (id, kind, name_en, name_he, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			name_en = excluded.name_en,
			name_he = excluded.name_he,
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at
	`, c.ID, string(c.Kind), c.Name.En, c.Name.He, parent, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: UpsertCategory: %w", err)
	}
	return nil
}

// Create persists a new entity.
func (s *CatalogueStore) Create(ctx context.Context, spec *storage.EntitySpec) (*types.CatalogueEntity, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	finishJSON, colorsJSON, imagesJSON, err := marshalLists(spec.Finish, spec.Colors, spec.ImageURLs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entity := &types.CatalogueEntity{
		ID:               uuid.New().String(),
		Kind:             spec.Kind,
		Name:             spec.Name,
		CategoryID:       spec.CategoryID,
		Finish:           spec.Finish,
		Colors:           spec.Colors,
		GenerationStatus: spec.GenerationStatus,
		IsAbstract:       spec.IsAbstract,
		ThumbnailURL:     spec.ThumbnailURL,
		ImageURLs:        spec.ImageURLs,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalogue_entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		entity.ID, string(entity.Kind), entity.Name.En, entity.Name.He, entity.CategoryID,
		finishJSON, colorsJSON, string(entity.GenerationStatus), boolToInt(entity.IsAbstract),
		entity.ThumbnailURL, imagesJSON, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: Create: %w", err)
	}
	return entity, nil
}

// IncrementUsage bumps usage_count by one.
func (s *CatalogueStore) IncrementUsage(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE catalogue_entities
		SET usage_count = usage_count + 1, updated_at = ?
		WHERE id = ?
	`, s.now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindLink returns the link for the pair, or (nil, nil).
func (s *CatalogueStore) FindLink(ctx context.Context, styleID, entityID string) (*types.StyleElementLink, error) {
	var link types.StyleElementLink
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT style_id, entity_id, kind, created_at
		FROM style_element_links
		WHERE style_id = ? AND entity_id = ?
	`, styleID, entityID).Scan(&link.StyleID, &link.EntityID, &kind, &link.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: FindLink: %w", err)
	}
	link.Kind = types.EntityKind(kind)
	return &link, nil
}

// CreateLink inserts the link; a duplicate pair yields storage.ErrLinkExists.
func (s *CatalogueStore) CreateLink(ctx context.Context, styleID, entityID string, kind types.EntityKind) error {
	if styleID == "" || entityID == "" {
		return fmt.Errorf("%w: style and entity IDs are required", storage.ErrInvalidInput)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO style_element_links (style_id, entity_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(style_id, entity_id) DO NOTHING
	`, styleID, entityID, string(kind), s.now())
	if err != nil {
		return fmt.Errorf("sqlite: CreateLink: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrLinkExists
	}
	return nil
}

// CountLinks returns the number of links for a style (diagnostics and tests).
func (s *CatalogueStore) CountLinks(ctx context.Context, styleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM style_element_links WHERE style_id = ?`, styleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: CountLinks: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (s *CatalogueStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("sqlite: WAL checkpoint on close failed", "error", err)
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*types.CatalogueEntity, error) {
	var (
		e                               types.CatalogueEntity
		kind, status                    string
		finishJSON, colorsJSON, imgJSON string
		abstract                        int
	)
	err := row.Scan(
		&e.ID, &kind, &e.Name.En, &e.Name.He, &e.CategoryID, &finishJSON, &colorsJSON,
		&status, &abstract, &e.ThumbnailURL, &imgJSON, &e.UsageCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = types.EntityKind(kind)
	e.GenerationStatus = types.GenerationStatus(status)
	e.IsAbstract = abstract != 0
	if err := unmarshalList(finishJSON, &e.Finish); err != nil {
		return nil, err
	}
	if err := unmarshalList(colorsJSON, &e.Colors); err != nil {
		return nil, err
	}
	if err := unmarshalList(imgJSON, &e.ImageURLs); err != nil {
		return nil, err
	}
	return &e, nil
}

func marshalLists(lists ...[]string) (string, string, string, error) {
	out := make([]string, 3)
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal list: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

func unmarshalList(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

// isRecoverableWALError matches errors caused by WAL files left behind after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist and no process holds them.
// Without lsof it conservatively reports false.
func isWALStale(dbPath string) bool {
	shmPath, walPath := dbPath+"-shm", dbPath+"-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}
	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string, log *logger.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("sqlite: failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ storage.Store = (*CatalogueStore)(nil)
