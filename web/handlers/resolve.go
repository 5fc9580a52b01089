package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scrypster/atelier/internal/engine"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/pkg/types"
)

const maxResolveBodyBytes = 1 << 20

// Resolver runs a resolution batch.
type Resolver interface {
	Resolve(ctx context.Context, req engine.BatchRequest) (*engine.BatchResult, error)
}

// CacheInvalidator drops cached catalogue pools.
type CacheInvalidator interface {
	InvalidateAll()
}

// Broadcaster fans a message out to connected clients.
type Broadcaster interface {
	Broadcast(message interface{})
}

// ResolveHandlers serves the resolution API.
type ResolveHandlers struct {
	resolver Resolver
	cache    CacheInvalidator
	hub      Broadcaster
	log      *logger.Logger
}

// NewResolveHandlers creates resolution handlers. hub may be nil, in which
// case progress is not broadcast.
func NewResolveHandlers(resolver Resolver, cache CacheInvalidator, hub Broadcaster, log *logger.Logger) *ResolveHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &ResolveHandlers{resolver: resolver, cache: cache, hub: hub, log: log}
}

// Resolve handles POST /api/styles/{styleID}/resolve/{kind}.
func (h *ResolveHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	styleID := r.PathValue("styleID")
	kind, err := types.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid kind", err)
		return
	}

	var body ResolveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxResolveBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(body.References) == 0 {
		respondError(w, http.StatusBadRequest, "references are required", nil)
		return
	}
	tier, err := types.ParseQualityTier(body.QualityTier)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quality tier", err)
		return
	}
	if body.MaxItems < 0 {
		respondError(w, http.StatusBadRequest, "maxItems must not be negative", nil)
		return
	}

	req := engine.BatchRequest{
		StyleID:        styleID,
		StyleName:      body.StyleName,
		StyleContext:   body.StyleContext,
		Kind:           kind,
		References:     body.References,
		QualityTier:    tier,
		GenerateImages: body.GenerateImages,
		MaxItems:       body.MaxItems,
	}
	if h.hub != nil {
		req.OnProgress = func(ev engine.ProgressEvent) {
			h.hub.Broadcast(ProgressMessage{
				Type:      "resolve_progress",
				StyleID:   styleID,
				Kind:      string(kind),
				Message:   ev.Message,
				Current:   ev.Current,
				Total:     ev.Total,
				Reference: ev.Reference,
				Failed:    ev.Failed,
			})
		}
	}

	result, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, "invalid resolve request", err)
			return
		}
		h.log.Error("resolve failed", "style_id", styleID, "kind", kind, "error", err)
		respondError(w, http.StatusServiceUnavailable, "catalogue unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// InvalidateCache handles POST /api/cache/invalidate.
func (h *ResolveHandlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	h.cache.InvalidateAll()
	h.log.Info("context cache invalidated via API")
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
