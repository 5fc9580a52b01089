// Package types defines the core data structures for the Atelier catalogue:
// materials and textures, their categories, and the links that attach them to
// design styles.
package types

import (
	"fmt"
	"strings"
)

// EntityKind discriminates the two catalogue entity families.
type EntityKind string

// GenerationStatus represents the content generation state of a catalogue entity.
type GenerationStatus string

// QualityTier selects the price/quality register used when generating content.
type QualityTier string

// Locale identifies one of the two display-name languages.
type Locale string

const (
	// KindMaterial identifies material entities (wood, stone, metal, fabric...).
	KindMaterial EntityKind = "material"

	// KindTexture identifies texture entities (surface patterns and finishes).
	KindTexture EntityKind = "texture"
)

const (
	// GenerationPending indicates the entity is waiting for generated assets.
	GenerationPending GenerationStatus = "PENDING"

	// GenerationCompleted indicates generation finished (with or without an image).
	GenerationCompleted GenerationStatus = "COMPLETED"
)

const (
	TierRegular QualityTier = "REGULAR"
	TierLuxury  QualityTier = "LUXURY"
)

const (
	LocaleEnglish Locale = "en"
	LocaleHebrew  Locale = "he"
)

// Locales lists the supported locales in lookup order.
var Locales = []Locale{LocaleEnglish, LocaleHebrew}

// IsValidEntityKind reports whether k is a known entity kind.
func IsValidEntityKind(k EntityKind) bool {
	return k == KindMaterial || k == KindTexture
}

// ParseEntityKind parses a kind name, accepting singular and plural forms.
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "material", "materials":
		return KindMaterial, nil
	case "texture", "textures":
		return KindTexture, nil
	default:
		return "", fmt.Errorf("unknown entity kind: %q", s)
	}
}

// ParseQualityTier parses a tier name case-insensitively. An empty string
// yields TierRegular.
func ParseQualityTier(s string) (QualityTier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(TierRegular):
		return TierRegular, nil
	case string(TierLuxury):
		return TierLuxury, nil
	default:
		return "", fmt.Errorf("unknown quality tier: %q", s)
	}
}

// LocalizedName is a bilingual display name.
type LocalizedName struct {
	En string `json:"en" yaml:"en"`
	He string `json:"he" yaml:"he"`
}

// Get returns the name for the given locale.
func (n LocalizedName) Get(locale Locale) string {
	if locale == LocaleHebrew {
		return n.He
	}
	return n.En
}

// IsZero reports whether both locales are empty.
func (n LocalizedName) IsZero() bool {
	return strings.TrimSpace(n.En) == "" && strings.TrimSpace(n.He) == ""
}

// String returns the English name, falling back to Hebrew.
func (n LocalizedName) String() string {
	if n.En != "" {
		return n.En
	}
	return n.He
}
