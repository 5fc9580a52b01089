// Package imagegen produces preview images for catalogue entities created
// during resolution.
package imagegen

import (
	"context"
	"errors"

	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/pkg/types"
)

// ErrImageGenerationFailed is returned when the provider produced no usable image.
var ErrImageGenerationFailed = errors.New("image generation failed")

// GenerateRequest describes the entity to illustrate.
type GenerateRequest struct {
	Name       string
	Kind       types.EntityKind
	Tier       types.QualityTier
	Attributes []string
}

// Generator returns image URLs for an entity.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// NoopGenerator is used when image generation is disabled. It returns no
// images and no error.
type NoopGenerator struct{}

// Generate returns nil.
func (NoopGenerator) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	return nil, nil
}

// NewGenerator returns the configured generator, or a NoopGenerator when
// generation is disabled or no key is available.
func NewGenerator(cfg config.ImageGenConfig) Generator {
	if !cfg.Enabled || cfg.APIKey == "" {
		return NoopGenerator{}
	}
	return NewOpenAIImageClient(OpenAIImageConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Size:    cfg.Size,
	})
}

var _ Generator = NoopGenerator{}
