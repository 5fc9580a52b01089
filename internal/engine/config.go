package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/pkg/types"
)

// Config holds configuration for the resolution pipeline.
type Config struct {
	// CacheTTL is how long a loaded entity pool is reused (default: 5m).
	CacheTTL time.Duration

	// CacheRowCap bounds the bulk entity read (default: 200).
	CacheRowCap int

	// HeuristicThreshold is the minimum heuristic confidence treated as a
	// match (default: 0.85).
	HeuristicThreshold float64

	// Concurrency is the number of references resolved simultaneously (default: 5).
	Concurrency int

	// MaxMaterials and MaxTextures cap the references accepted per batch
	// (defaults: 10 and 5).
	MaxMaterials int
	MaxTextures  int

	// SemanticTimeout bounds a single semantic match call (default: 45s).
	SemanticTimeout time.Duration

	// ImageTimeout bounds a single image generation call (default: 90s).
	ImageTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           5 * time.Minute,
		CacheRowCap:        200,
		HeuristicThreshold: 0.85,
		Concurrency:        5,
		MaxMaterials:       10,
		MaxTextures:        5,
		SemanticTimeout:    45 * time.Second,
		ImageTimeout:       90 * time.Second,
	}
}

// ConfigFromResolution maps the service configuration onto the pipeline.
func ConfigFromResolution(r config.ResolutionConfig) Config {
	return Config{
		CacheTTL:           r.CacheTTL,
		CacheRowCap:        r.CacheRowCap,
		HeuristicThreshold: r.HeuristicThreshold,
		Concurrency:        r.Concurrency,
		MaxMaterials:       r.MaxMaterials,
		MaxTextures:        r.MaxTextures,
		SemanticTimeout:    r.SemanticTimeout,
		ImageTimeout:       r.ImageTimeout,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CacheTTL must be > 0, got %v", c.CacheTTL)
	}
	if c.CacheRowCap < 1 {
		return fmt.Errorf("CacheRowCap must be >= 1, got %d", c.CacheRowCap)
	}
	if c.HeuristicThreshold < 0 || c.HeuristicThreshold > 1 {
		return fmt.Errorf("HeuristicThreshold must be within [0,1], got %v", c.HeuristicThreshold)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("Concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.MaxMaterials < 1 || c.MaxTextures < 1 {
		return fmt.Errorf("per-kind item caps must be >= 1, got materials=%d textures=%d", c.MaxMaterials, c.MaxTextures)
	}
	if c.SemanticTimeout <= 0 || c.ImageTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0, got semantic=%v image=%v", c.SemanticTimeout, c.ImageTimeout)
	}
	return nil
}

// MaxItemsFor returns the per-batch reference cap for a kind.
func (c *Config) MaxItemsFor(kind types.EntityKind) int {
	if kind == types.KindTexture {
		return c.MaxTextures
	}
	return c.MaxMaterials
}
