package types

import (
	"errors"
	"fmt"
	"time"
)

// CatalogueEntity is a canonical material or texture record.
// Entities synthesized by the resolution pipeline carry IsAbstract=true.
type CatalogueEntity struct {
	ID         string        `json:"id"`
	Kind       EntityKind    `json:"kind"`
	Name       LocalizedName `json:"name"`
	CategoryID string        `json:"category_id"`

	// Finish and appearance attributes (e.g. "matte", "brushed", "warm grey").
	Finish []string `json:"finish,omitempty"`
	Colors []string `json:"colors,omitempty"`

	GenerationStatus GenerationStatus `json:"generation_status"`
	IsAbstract       bool             `json:"is_abstract"`

	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`

	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the fields every persisted entity must carry.
func (e *CatalogueEntity) Validate() error {
	if e == nil {
		return errors.New("entity is nil")
	}
	if !IsValidEntityKind(e.Kind) {
		return fmt.Errorf("invalid entity kind: %q", e.Kind)
	}
	if e.Name.IsZero() {
		return errors.New("entity name is required")
	}
	if e.CategoryID == "" {
		return errors.New("entity category is required")
	}
	switch e.GenerationStatus {
	case GenerationPending, GenerationCompleted:
	default:
		return fmt.Errorf("invalid generation status: %q", e.GenerationStatus)
	}
	return nil
}

// Category groups catalogue entities. For textures the category doubles as
// the texture "type".
type Category struct {
	ID       string        `json:"id" yaml:"id"`
	Kind     EntityKind    `json:"kind" yaml:"kind"`
	Name     LocalizedName `json:"name" yaml:"name"`
	ParentID string        `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// StyleElementLink joins a style aggregate to a catalogue entity.
// At most one link exists per (StyleID, EntityID).
type StyleElementLink struct {
	StyleID   string     `json:"style_id"`
	EntityID  string     `json:"entity_id"`
	Kind      EntityKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
}
