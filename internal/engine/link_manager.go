package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// LinkManager associates resolved entities with styles.
type LinkManager struct {
	store storage.CatalogueStore
	log   *logger.Logger
}

// NewLinkManager creates a LinkManager.
func NewLinkManager(store storage.CatalogueStore, log *logger.Logger) *LinkManager {
	if log == nil {
		log = logger.Nop()
	}
	return &LinkManager{store: store, log: log}
}

// Link creates the (style, entity) link if it does not exist and always
// increments the entity's usage counter, so usage grows with every batch
// that references the entity. created reports whether a new row was written.
func (l *LinkManager) Link(ctx context.Context, entityID, styleID string, kind types.EntityKind) (bool, error) {
	existing, err := l.store.FindLink(ctx, styleID, entityID)
	if err != nil {
		return false, fmt.Errorf("failed to look up link: %w", err)
	}

	created := false
	if existing == nil {
		err := l.store.CreateLink(ctx, styleID, entityID, kind)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, storage.ErrLinkExists):
			// Another batch linked the pair between FindLink and CreateLink.
		default:
			return false, fmt.Errorf("failed to create link: %w", err)
		}
	}

	if err := l.store.IncrementUsage(ctx, entityID); err != nil {
		return created, fmt.Errorf("failed to increment usage: %w", err)
	}

	l.log.Debug("linked entity to style", "style_id", styleID, "entity_id", entityID, "created", created)
	return created, nil
}
