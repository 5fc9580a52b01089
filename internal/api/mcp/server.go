package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/atelier/internal/engine"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/pkg/types"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// errInvalidParams marks argument errors so they map to ErrCodeInvalidParams.
var errInvalidParams = errors.New("invalid params")

// Resolver runs a resolution batch.
type Resolver interface {
	Resolve(ctx context.Context, req engine.BatchRequest) (*engine.BatchResult, error)
}

// Cache is the subset of engine.ContextCache the tools use.
type Cache interface {
	InvalidateAll()
	Stats() engine.CacheStats
}

// Server implements the Model Context Protocol for the resolution pipeline.
type Server struct {
	resolver Resolver
	cache    Cache
	version  string
	onChange func(types.EntityKind)
	log      *logger.Logger
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithVersion sets the version reported by initialize.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the server logger. It must not write to stdout.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithChangeHook registers a callback run after a batch created entities.
func WithChangeHook(fn func(types.EntityKind)) ServerOption {
	return func(s *Server) {
		s.onChange = fn
	}
}

// NewServer creates an MCP server over resolver and cache.
func NewServer(resolver Resolver, cache Cache, opts ...ServerOption) *Server {
	s := &Server{
		resolver: resolver,
		cache:    cache,
		version:  "dev",
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. Notifications (requests without an id) return nil.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result = s.handleInitialize()
	case "notifications/initialized", "initialized":
		if req.ID == nil {
			return nil, nil
		}
		result = map[string]interface{}{}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: buildToolsList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods for direct callers
	case "resolve_references":
		result, err = s.handleResolveReferences(ctx, req.Params)
	case "invalidate_cache":
		result, err = s.handleInvalidateCache()
	case "cache_stats":
		result, err = s.handleCacheStats()
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		if errors.Is(err, errInvalidParams) {
			return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
		}
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

// ResolveReferences validates args and runs one batch.
func (s *Server) ResolveReferences(ctx context.Context, args ResolveReferencesArgs) (*ResolveReferencesResult, error) {
	if args.StyleID == "" {
		return nil, fmt.Errorf("%w: style_id is required", errInvalidParams)
	}
	kind, err := types.ParseEntityKind(args.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	tier, err := types.ParseQualityTier(args.QualityTier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if len(args.References) == 0 {
		return nil, fmt.Errorf("%w: references are required", errInvalidParams)
	}

	result, err := s.resolver.Resolve(ctx, engine.BatchRequest{
		StyleID:        args.StyleID,
		StyleName:      args.StyleName,
		StyleContext:   args.StyleContext,
		Kind:           kind,
		References:     args.References,
		QualityTier:    tier,
		GenerateImages: args.GenerateImages,
		MaxItems:       args.MaxItems,
		OnProgress: func(ev engine.ProgressEvent) {
			s.log.Debug(ev.Message, "current", ev.Current, "total", ev.Total)
		},
	})
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		return nil, err
	}
	if result.Stats.Created > 0 && s.onChange != nil {
		s.onChange(kind)
	}

	return &ResolveReferencesResult{
		BatchResult: result,
		Message: fmt.Sprintf("Resolved %d of %d references (%d matched, %d created, %d failed)",
			len(result.EntityIDs), len(result.EntityIDs)+result.Stats.Errors,
			result.Stats.Matched, result.Stats.Created, result.Stats.Errors),
	}, nil
}

func (s *Server) handleInitialize() MCPInitializeResult {
	return MCPInitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "atelier",
			Version: s.version,
		},
	}
}

func (s *Server) handleResolveReferences(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var args ResolveReferencesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ResolveReferences(ctx, args)
}

func (s *Server) handleInvalidateCache() (interface{}, error) {
	s.cache.InvalidateAll()
	return &InvalidateCacheResult{Message: "context cache invalidated for all kinds"}, nil
}

func (s *Server) handleCacheStats() (interface{}, error) {
	return &CacheStatsResult{CacheStats: s.cache.Stats()}, nil
}

// handleToolsCall dispatches a tools/call request and wraps the result in the
// MCP content envelope. Tool failures are reported in-band with isError.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "resolve_references":
		result, handlerErr = s.handleResolveReferences(ctx, p.Arguments)
	case "invalidate_cache":
		result, handlerErr = s.handleInvalidateCache()
	case "cache_stats":
		result, handlerErr = s.handleCacheStats()
	default:
		return toolError(fmt.Sprintf("unknown tool: %s", p.Name)), nil
	}

	if handlerErr != nil {
		return toolError(handlerErr.Error()), nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

func toolError(msg string) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// buildToolsList returns the MCP tool definitions.
func buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name: "resolve_references",
			Description: "Resolve free-text material or texture references for a style against the catalogue. " +
				"Each reference is linked to an existing entity (exact, heuristic or model match) or a new entity is created. " +
				"Materials accept up to 10 references per call, textures up to 5.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"style_id", "kind", "references"},
				"properties": map[string]interface{}{
					"style_id":        map[string]interface{}{"type": "string", "description": "Style to link resolved entities to"},
					"kind":            map[string]interface{}{"type": "string", "enum": []string{"material", "texture"}},
					"references":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Free-text references, e.g. \"white Carrara marble\""},
					"style_name":      map[string]interface{}{"type": "string", "description": "Style display name"},
					"style_context":   map[string]interface{}{"type": "string", "description": "Free-text description of the style"},
					"quality_tier":    map[string]interface{}{"type": "string", "enum": []string{"REGULAR", "LUXURY"}},
					"generate_images": map[string]interface{}{"type": "boolean", "description": "Generate preview images for created entities"},
					"max_items":       map[string]interface{}{"type": "integer", "description": "Lower the per-kind reference cap"},
				},
			},
		},
		{
			Name:        "invalidate_cache",
			Description: "Drop the cached catalogue pools so the next resolution reloads them from storage.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "cache_stats",
			Description: "Report how many times the catalogue pools were loaded and served from cache.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

// unmarshalParams decodes raw params into dest. Missing params decode as {}.
func (s *Server) unmarshalParams(params json.RawMessage, dest interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	})
}
