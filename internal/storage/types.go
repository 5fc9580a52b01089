package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/atelier/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLinkExists indicates the (style, entity) pair is already linked.
	ErrLinkExists = errors.New("style link already exists")
)

// DefaultBulkLimit caps BulkList when the caller passes a non-positive limit.
const DefaultBulkLimit = 200

// EntityFilter narrows BulkList results.
type EntityFilter struct {
	// Kind is required.
	Kind types.EntityKind

	// CompletedOnly restricts results to entities whose generation finished.
	CompletedOnly bool
}

// EntitySpec describes an entity to be created.
type EntitySpec struct {
	Kind             types.EntityKind
	Name             types.LocalizedName
	CategoryID       string
	Finish           []string
	Colors           []string
	IsAbstract       bool
	GenerationStatus types.GenerationStatus
	ThumbnailURL     string
	ImageURLs        []string
}

// Validate applies defaults and checks required fields.
func (s *EntitySpec) Validate() error {
	if s == nil {
		return ErrInvalidInput
	}
	if !types.IsValidEntityKind(s.Kind) {
		return fmt.Errorf("%w: invalid kind %q", ErrInvalidInput, s.Kind)
	}
	s.Name.En = strings.TrimSpace(s.Name.En)
	s.Name.He = strings.TrimSpace(s.Name.He)
	if s.Name.IsZero() {
		return fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}
	if s.CategoryID == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if s.GenerationStatus == "" {
		s.GenerationStatus = types.GenerationPending
	}
	return nil
}

// NormalizeLimit returns limit, or DefaultBulkLimit when limit is not positive.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultBulkLimit
	}
	return limit
}
