package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/scrypster/atelier/internal/llm"
	"github.com/scrypster/atelier/pkg/types"
)

// OpenAIImageConfig holds configuration for the OpenAI images client.
type OpenAIImageConfig struct {
	APIKey  string
	Model   string        // default: gpt-image-1
	BaseURL string        // default: https://api.openai.com
	Size    string        // default: 1024x1024
	Timeout time.Duration // default: 90s
}

// OpenAIImageClient implements Generator using the OpenAI images API.
type OpenAIImageClient struct {
	cfg            OpenAIImageConfig
	client         *http.Client
	circuitBreaker *llm.CircuitBreaker
}

// NewOpenAIImageClient creates a client, applying defaults for empty fields.
func NewOpenAIImageClient(cfg OpenAIImageConfig) *OpenAIImageClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &OpenAIImageClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: llm.NewCircuitBreaker("openai-images"),
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate requests one image and returns its URL. Base64 payloads are
// returned as data URLs.
func (c *OpenAIImageClient) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, llm.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: openai images circuit breaker open: %v", ErrImageGenerationFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	return result.([]string), nil
}

func (c *OpenAIImageClient) generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	var resp imageResponse
	err := llm.PostJSON(ctx, c.client, "openai-images", c.cfg.BaseURL+"/v1/images/generations",
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
		imageRequest{Model: c.cfg.Model, Prompt: Prompt(req), N: 1, Size: c.cfg.Size}, &resp)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, d := range resp.Data {
		switch {
		case d.URL != "":
			urls = append(urls, d.URL)
		case d.B64JSON != "":
			urls = append(urls, "data:image/png;base64,"+d.B64JSON)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("provider returned no images")
	}
	return urls, nil
}

// Prompt builds the image prompt. Luxury and regular tiers ask for different
// photographic treatment.
func Prompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Close-up swatch photograph of %s, an interior-design %s", req.Name, req.Kind)
	if len(req.Attributes) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(req.Attributes, ", "))
	}
	b.WriteString(". ")
	if req.Tier == types.TierLuxury {
		b.WriteString("High-end showroom lighting, rich detail, premium craftsmanship.")
	} else {
		b.WriteString("Soft natural daylight, honest everyday finish.")
	}
	b.WriteString(" Square frame, no text, no people.")
	return b.String()
}

var _ Generator = (*OpenAIImageClient)(nil)
