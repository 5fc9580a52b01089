// Package engine resolves free-text material and texture references to
// canonical catalogue entities and links them to styles.
//
// Each reference runs a cascade: exact store lookup, heuristic string match
// against a cached entity pool, model-assisted semantic match, and finally
// synthesis of a new entity. References in a batch are resolved concurrently
// and fail independently.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/atelier/internal/imagegen"
	"github.com/scrypster/atelier/internal/llm"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// ReferenceScorer scores a reference against a pool without I/O.
type ReferenceScorer interface {
	Match(reference string, pool *AvailableEntityPool) HeuristicResult
}

// VerdictMatcher produces a semantic verdict for a reference.
type VerdictMatcher interface {
	Match(ctx context.Context, req MatchRequest) (*MatchVerdict, error)
}

// EntityFactory creates new catalogue entities.
type EntityFactory interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
}

// StyleLinker links entities to styles.
type StyleLinker interface {
	Link(ctx context.Context, entityID, styleID string, kind types.EntityKind) (bool, error)
}

// ProgressEvent reports one completed reference. Events arrive in completion
// order, not submission order; Current counts completed items.
type ProgressEvent struct {
	Message   string `json:"message"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Reference string `json:"reference"`
	Failed    bool   `json:"failed"`
}

// BatchRequest is one resolution call for a style.
type BatchRequest struct {
	StyleID        string
	StyleName      string
	StyleContext   string
	Kind           types.EntityKind
	References     []string
	QualityTier    types.QualityTier
	GenerateImages bool

	// MaxItems lowers the kind cap (Config.MaxMaterials, Config.MaxTextures);
	// 0 uses the cap. A value above the cap is rejected with ErrInvalidRequest.
	MaxItems int

	// OnProgress, if set, is called after every completed item. Calls are
	// serialized.
	OnProgress func(ProgressEvent)
}

// Components are the collaborators of a BatchOrchestrator.
type Components struct {
	Store     storage.CatalogueStore
	Cache     *ContextCache
	Heuristic ReferenceScorer
	Semantic  VerdictMatcher
	Creator   EntityFactory
	Linker    StyleLinker
}

// BatchOrchestrator resolves batches of references under a concurrency limit.
type BatchOrchestrator struct {
	cfg       Config
	store     storage.CatalogueStore
	cache     *ContextCache
	heuristic ReferenceScorer
	semantic  VerdictMatcher
	creator   EntityFactory
	linker    StyleLinker
	log       *logger.Logger
}

// NewBatchOrchestrator wires an orchestrator from explicit components.
func NewBatchOrchestrator(c Components, cfg Config, log *logger.Logger) (*BatchOrchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if c.Store == nil || c.Cache == nil || c.Heuristic == nil || c.Semantic == nil || c.Creator == nil || c.Linker == nil {
		return nil, fmt.Errorf("all orchestrator components are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchOrchestrator{
		cfg:       cfg,
		store:     c.Store,
		cache:     c.Cache,
		heuristic: c.Heuristic,
		semantic:  c.Semantic,
		creator:   c.Creator,
		linker:    c.Linker,
		log:       log,
	}, nil
}

// New wires the standard pipeline over a store, a text model and an image
// generator. A nil images generator disables image generation.
func New(store storage.CatalogueStore, gen llm.TextGenerator, images imagegen.Generator, rules CategoryRules, cfg Config, log *logger.Logger) (*BatchOrchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("catalogue store is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	cache := NewContextCache(store, ContextCacheConfig{TTL: cfg.CacheTTL, RowCap: cfg.CacheRowCap}, log)
	return NewBatchOrchestrator(Components{
		Store:     store,
		Cache:     cache,
		Heuristic: NewHeuristicMatcher(),
		Semantic:  NewSemanticMatcher(gen, cfg.SemanticTimeout, log),
		Creator:   NewEntityCreator(store, images, rules, cfg.ImageTimeout, log),
		Linker:    NewLinkManager(store, log),
	}, cfg, log)
}

// Cache returns the orchestrator's context cache.
func (o *BatchOrchestrator) Cache() *ContextCache {
	return o.cache
}

// Resolve resolves every reference in req and links the results to the
// style. Item failures are reported in the result; an error is returned only
// for invalid requests or when the entity pool cannot be loaded.
func (o *BatchOrchestrator) Resolve(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if strings.TrimSpace(req.StyleID) == "" {
		return nil, fmt.Errorf("%w: style id is required", ErrInvalidRequest)
	}
	if !types.IsValidEntityKind(req.Kind) {
		return nil, fmt.Errorf("%w: invalid kind %q", ErrInvalidRequest, req.Kind)
	}
	if req.QualityTier == "" {
		req.QualityTier = types.TierRegular
	}
	limit, err := o.maxItems(req)
	if err != nil {
		return nil, err
	}

	refs, dropped := prepareReferences(req.References, limit)
	if len(refs) == 0 {
		res := Aggregate(nil)
		res.MaxItems = limit
		return res, nil
	}

	pool, err := o.cache.Get(ctx, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalogue context: %w", err)
	}

	log := o.log.With("style_id", req.StyleID, "kind", req.Kind)
	log.Info("resolving references", "count", len(refs), "dropped", dropped, "pool_entities", len(pool.Entities))

	var (
		mu       sync.Mutex
		outcomes = make([]ItemOutcome, 0, len(refs))
	)
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			out := o.resolveItem(ctx, req, pool, ref)
			if out.Err != nil {
				log.Warn("reference failed", "reference", ref, "error", out.Err)
			}

			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, out)
			if req.OnProgress != nil {
				req.OnProgress(progressEvent(req.Kind, out, len(outcomes), len(refs)))
			}
			return nil
		})
	}
	_ = g.Wait()

	result := Aggregate(outcomes)
	result.MaxItems = limit
	result.Truncated = dropped
	if result.Stats.Created > 0 {
		o.cache.Invalidate(req.Kind)
	}

	log.Info("resolution complete",
		"matched", result.Stats.Matched, "created", result.Stats.Created,
		"images", result.Stats.Images, "errors", result.Stats.Errors)
	return result, nil
}

// resolveItem runs the cascade for one reference. It never panics.
func (o *BatchOrchestrator) resolveItem(ctx context.Context, req BatchRequest, pool *AvailableEntityPool, ref string) (out ItemOutcome) {
	out.Reference = ref
	defer func() {
		if r := recover(); r != nil {
			out = ItemOutcome{Reference: ref, Err: fmt.Errorf("panic while resolving %q: %v", ref, r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	if err := o.match(ctx, req, pool, &out); err != nil {
		out.Err = err
		return out
	}

	created, err := o.linker.Link(ctx, out.EntityID, req.StyleID, req.Kind)
	if err != nil {
		out.Err = err
		return out
	}
	out.LinkCreated = created
	return out
}

// match fills out.EntityID and out.Tier from the first tier that resolves ref.
func (o *BatchOrchestrator) match(ctx context.Context, req BatchRequest, pool *AvailableEntityPool, out *ItemOutcome) error {
	for _, loc := range types.Locales {
		e, err := o.store.FindExact(ctx, req.Kind, out.Reference, loc)
		if err != nil {
			return fmt.Errorf("exact lookup failed: %w", err)
		}
		if e != nil {
			out.EntityID, out.Tier = e.ID, TierExact
			return nil
		}
	}

	h := o.heuristic.Match(out.Reference, pool)
	if h.Matched && h.Confidence >= o.cfg.HeuristicThreshold {
		out.EntityID, out.Tier = h.EntityID, TierHeuristic
		return nil
	}

	verdict, err := o.semantic.Match(ctx, MatchRequest{
		Reference:    out.Reference,
		Kind:         req.Kind,
		Pool:         pool,
		StyleName:    req.StyleName,
		StyleContext: req.StyleContext,
		Tier:         req.QualityTier,
	})
	if err != nil {
		return err
	}
	if verdict.Action == VerdictLink {
		out.EntityID, out.Tier = verdict.EntityID, TierSemantic
		return nil
	}

	res, err := o.creator.Create(ctx, CreateRequest{
		Reference:      out.Reference,
		Kind:           req.Kind,
		Proposal:       verdict.Proposal,
		Pool:           pool,
		Tier:           req.QualityTier,
		GenerateImages: req.GenerateImages,
	})
	if err != nil {
		return err
	}
	out.EntityID, out.Tier = res.EntityID, TierCreated
	out.ImageGenerated = res.ImageGenerated
	out.CategorySource = res.CategorySource
	return nil
}

// maxItems returns the effective reference cap for req.
func (o *BatchOrchestrator) maxItems(req BatchRequest) (int, error) {
	limit := o.cfg.MaxItemsFor(req.Kind)
	switch {
	case req.MaxItems < 0:
		return 0, fmt.Errorf("%w: maxItems must not be negative, got %d", ErrInvalidRequest, req.MaxItems)
	case req.MaxItems > limit:
		return 0, fmt.Errorf("%w: maxItems %d exceeds the %s cap of %d", ErrInvalidRequest, req.MaxItems, req.Kind, limit)
	case req.MaxItems > 0:
		return req.MaxItems, nil
	}
	return limit, nil
}

// prepareReferences trims and drops empties, keeping at most max references.
// dropped counts the non-empty references beyond max.
func prepareReferences(in []string, max int) (refs []string, dropped int) {
	refs = make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if len(refs) == max {
			dropped++
			continue
		}
		refs = append(refs, r)
	}
	return refs, dropped
}

func progressEvent(kind types.EntityKind, out ItemOutcome, current, total int) ProgressEvent {
	ev := ProgressEvent{Current: current, Total: total, Reference: out.Reference}
	switch {
	case out.Err != nil:
		ev.Failed = true
		ev.Message = fmt.Sprintf("Failed to resolve %s %q (%d/%d)", kind, out.Reference, current, total)
	case out.Tier == TierCreated:
		ev.Message = fmt.Sprintf("Created %s %q (%d/%d)", kind, out.Reference, current, total)
	default:
		ev.Message = fmt.Sprintf("Matched %s %q (%d/%d)", kind, out.Reference, current, total)
	}
	return ev
}
