// Package mcp exposes the resolution pipeline as Model Context Protocol tools
// over line-delimited JSON-RPC 2.0.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/atelier/internal/engine"
)

// ResolveReferencesArgs contains arguments for the resolve_references tool.
type ResolveReferencesArgs struct {
	StyleID        string   `json:"style_id"`                  // Style to link results to (required)
	Kind           string   `json:"kind"`                      // material or texture (required)
	References     []string `json:"references"`                // Free-text references (required)
	StyleName      string   `json:"style_name,omitempty"`      // Style display name
	StyleContext   string   `json:"style_context,omitempty"`   // Free-text style description
	QualityTier    string   `json:"quality_tier,omitempty"`    // REGULAR or LUXURY
	GenerateImages bool     `json:"generate_images,omitempty"` // Generate images for created entities
	MaxItems       int      `json:"max_items,omitempty"`       // Lower the per-kind cap
}

// UnmarshalJSON accepts references either as a JSON array or, as some MCP
// clients send them, as a JSON-encoded string or comma-separated string.
func (a *ResolveReferencesArgs) UnmarshalJSON(data []byte) error {
	type Alias ResolveReferencesArgs
	aux := &struct {
		References json.RawMessage `json:"references,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.References == nil {
		return nil
	}
	var refs []string
	if err := json.Unmarshal(aux.References, &refs); err == nil {
		a.References = refs
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.References, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &refs)
		a.References = refs
		return nil
	}
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			a.References = append(a.References, r)
		}
	}
	return nil
}

// ResolveReferencesResult is the batch result plus a one-line summary.
type ResolveReferencesResult struct {
	*engine.BatchResult
	Message string `json:"message"`
}

// InvalidateCacheResult contains the result of invalidate_cache.
type InvalidateCacheResult struct {
	Message string `json:"message"`
}

// CacheStatsResult contains the result of cache_stats.
type CacheStatsResult struct {
	engine.CacheStats
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"` // Must be "2.0"
	Method  string          `json:"method"`  // Method name
	Params  json.RawMessage `json:"params"`  // Method parameters
	ID      interface{}     `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
