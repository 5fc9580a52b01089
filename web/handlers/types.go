package handlers

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ResolveRequest is the body of POST /api/styles/{styleID}/resolve/{kind}.
type ResolveRequest struct {
	StyleName      string   `json:"styleName"`
	StyleContext   string   `json:"styleContext"`
	References     []string `json:"references"`
	QualityTier    string   `json:"qualityTier"`
	GenerateImages bool     `json:"generateImages"`
	MaxItems       int      `json:"maxItems"`
}

// ProgressMessage is broadcast on /ws after every resolved reference.
type ProgressMessage struct {
	Type      string `json:"type"`
	StyleID   string `json:"styleId"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Reference string `json:"reference"`
	Failed    bool   `json:"failed"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
