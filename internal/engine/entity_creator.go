package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/atelier/internal/imagegen"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// CategorySource records which tier chose a created entity's category.
type CategorySource string

const (
	CategorySourceHint     CategorySource = "hint"
	CategorySourceRule     CategorySource = "rule"
	CategorySourceFallback CategorySource = "fallback"
)

// CreateRequest describes an entity to synthesize.
type CreateRequest struct {
	Reference string
	Kind      types.EntityKind
	// Proposal may be nil; the reference then becomes the name in both locales.
	Proposal       *ProposedEntity
	Pool           *AvailableEntityPool
	Tier           types.QualityTier
	GenerateImages bool
}

// CreateResult is the outcome of a successful creation.
type CreateResult struct {
	EntityID       string
	Entity         *types.CatalogueEntity
	ImageGenerated bool
	CategorySource CategorySource
}

// EntityCreator persists AI-synthesized catalogue entities.
type EntityCreator struct {
	store        storage.CatalogueStore
	images       imagegen.Generator
	rules        CategoryRules
	imageTimeout time.Duration
	log          *logger.Logger
}

// NewEntityCreator creates an EntityCreator. A nil images generator disables
// image generation; nil rules use DefaultCategoryRules.
func NewEntityCreator(store storage.CatalogueStore, images imagegen.Generator, rules CategoryRules, imageTimeout time.Duration, log *logger.Logger) *EntityCreator {
	if images == nil {
		images = imagegen.NoopGenerator{}
	}
	if rules == nil {
		rules = DefaultCategoryRules()
	}
	if imageTimeout <= 0 {
		imageTimeout = 90 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EntityCreator{store: store, images: images, rules: rules, imageTimeout: imageTimeout, log: log}
}

// Create generates images (best effort), picks a category and persists the
// entity as abstract and completed.
func (c *EntityCreator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	proposal := req.Proposal
	if proposal == nil {
		ref := strings.TrimSpace(req.Reference)
		proposal = &ProposedEntity{Name: types.LocalizedName{En: ref, He: ref}}
	}

	var images []string
	if req.GenerateImages {
		images = c.generateImages(ctx, req, proposal)
	}

	category, source, err := c.resolveCategory(req, proposal)
	if err != nil {
		return nil, err
	}

	spec := &storage.EntitySpec{
		Kind:             req.Kind,
		Name:             proposal.Name,
		CategoryID:       category.ID,
		Finish:           proposal.Finish,
		Colors:           proposal.Colors,
		IsAbstract:       true,
		GenerationStatus: types.GenerationCompleted,
		ImageURLs:        images,
	}
	if len(images) > 0 {
		spec.ThumbnailURL = images[0]
	}

	entity, err := c.store.Create(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %q: %w", req.Kind, proposal.Name.En, err)
	}

	c.log.Info("created catalogue entity",
		"kind", req.Kind, "entity_id", entity.ID, "name", entity.Name.En,
		"category_id", category.ID, "category_source", source, "images", len(images))

	return &CreateResult{
		EntityID:       entity.ID,
		Entity:         entity,
		ImageGenerated: len(images) > 0,
		CategorySource: source,
	}, nil
}

// generateImages never fails the creation; errors and empty results are logged.
func (c *EntityCreator) generateImages(ctx context.Context, req CreateRequest, p *ProposedEntity) []string {
	imgCtx, cancel := context.WithTimeout(ctx, c.imageTimeout)
	defer cancel()

	attrs := append(append([]string{}, p.Finish...), p.Colors...)
	urls, err := c.images.Generate(imgCtx, imagegen.GenerateRequest{
		Name:       p.Name.En,
		Kind:       req.Kind,
		Tier:       req.Tier,
		Attributes: attrs,
	})
	if err != nil {
		c.log.Warn("image generation failed, creating entity without image",
			"reference", req.Reference, "error", err)
		return nil
	}
	if len(urls) == 0 {
		c.log.Warn("image generation returned no images", "reference", req.Reference)
	}
	return urls
}

func (c *EntityCreator) resolveCategory(req CreateRequest, p *ProposedEntity) (*types.Category, CategorySource, error) {
	var categories []*types.Category
	if req.Pool != nil {
		categories = req.Pool.Categories
	}
	if len(categories) == 0 {
		return nil, "", fmt.Errorf("%w: %s", ErrNoCategoriesAvailable, req.Kind)
	}

	if p.CategoryID != "" {
		if cat, ok := req.Pool.Category(p.CategoryID); ok {
			return cat, CategorySourceHint, nil
		}
	}

	if cat, rule, ok := c.rules.Resolve(req.Kind, categories, req.Reference, p.Name.En); ok {
		c.log.Debug("category inferred from keyword", "reference", req.Reference, "keyword", rule.Keyword, "category_id", cat.ID)
		return cat, CategorySourceRule, nil
	}

	fallback := categories[0]
	c.log.Warn("no category rule matched, using first available category",
		"reference", req.Reference, "kind", req.Kind, "category_id", fallback.ID)
	return fallback, CategorySourceFallback, nil
}
