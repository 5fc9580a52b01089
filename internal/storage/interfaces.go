// Package storage provides the catalogue storage interfaces consumed by the
// resolution engine.
//
// The interfaces are kept small so each backend (SQLite, PostgreSQL) and each
// test double can implement exactly the operations the engine needs.
package storage

import (
	"context"

	"github.com/scrypster/atelier/pkg/types"
)

// CatalogueStore is the persistent catalogue of materials and textures and
// their links to styles.
type CatalogueStore interface {
	// FindExact returns the entity whose name in the given locale equals name
	// (case-sensitive). Returns (nil, nil) when there is no such entity.
	FindExact(ctx context.Context, kind types.EntityKind, name string, locale types.Locale) (*types.CatalogueEntity, error)

	// BulkList returns up to limit entities matching filter, most used first.
	BulkList(ctx context.Context, filter EntityFilter, limit int) ([]*types.CatalogueEntity, error)

	// ListCategories returns all categories of a kind ordered by English name.
	ListCategories(ctx context.Context, kind types.EntityKind) ([]*types.Category, error)

	// Create persists a new entity and returns it with ID and timestamps set.
	Create(ctx context.Context, spec *EntitySpec) (*types.CatalogueEntity, error)

	// IncrementUsage atomically increments the usage counter.
	// Returns ErrNotFound if the entity does not exist.
	IncrementUsage(ctx context.Context, id string) error

	// FindLink returns the style link for (styleID, entityID), or (nil, nil).
	FindLink(ctx context.Context, styleID, entityID string) (*types.StyleElementLink, error)

	// CreateLink inserts a style link. Returns ErrLinkExists if the pair is
	// already linked.
	CreateLink(ctx context.Context, styleID, entityID string, kind types.EntityKind) error

	// Close releases any resources held by the store.
	Close() error
}

// CategoryStore manages catalogue categories.
type CategoryStore interface {
	// UpsertCategory creates or renames a category.
	UpsertCategory(ctx context.Context, category *types.Category) error
}

// Store is the full backend surface implemented by sqlite and postgres.
type Store interface {
	CatalogueStore
	CategoryStore
}
