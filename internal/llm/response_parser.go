package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/atelier/pkg/types"
)

// ErrUnparsableResponse is returned when the model output is not a usable match verdict.
var ErrUnparsableResponse = errors.New("unparsable model response")

// Match actions.
const (
	ActionLink   = "link"
	ActionCreate = "create"
)

// NewEntitySpecResponse is the proposed entity in a "create" verdict.
type NewEntitySpecResponse struct {
	Name       types.LocalizedName `json:"name"`
	CategoryID string              `json:"categoryId"`
	Finish     []string            `json:"finish"`
	Colors     []string            `json:"colors"`
}

// MatchResponse is the JSON object the match prompt asks for.
type MatchResponse struct {
	Action          string                 `json:"action"`
	MatchedEntityID string                 `json:"matchedEntityId"`
	NewEntitySpec   *NewEntitySpecResponse `json:"newEntitySpec"`
	Confidence      float64                `json:"confidence"`
	Reasoning       string                 `json:"reasoning"`
}

// extractJSON extracts the first complete JSON object from text that may
// carry markdown fences or commentary around it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		if ch == '\\' {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseMatchResponse parses and structurally validates a match verdict.
// It does not check that ids exist; the caller owns the pool.
func ParseMatchResponse(text string) (*MatchResponse, error) {
	var resp MatchResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}

	resp.Action = strings.ToLower(strings.TrimSpace(resp.Action))
	resp.MatchedEntityID = strings.TrimSpace(resp.MatchedEntityID)
	resp.Reasoning = strings.TrimSpace(resp.Reasoning)
	if resp.Confidence < 0 || resp.Confidence > 1 {
		resp.Confidence = clamp01(resp.Confidence)
	}

	switch resp.Action {
	case ActionLink:
		if resp.MatchedEntityID == "" {
			return nil, fmt.Errorf("%w: link verdict without matchedEntityId", ErrUnparsableResponse)
		}
	case ActionCreate:
		spec := resp.NewEntitySpec
		if spec == nil {
			return nil, fmt.Errorf("%w: create verdict without newEntitySpec", ErrUnparsableResponse)
		}
		spec.Name.En = strings.TrimSpace(spec.Name.En)
		spec.Name.He = strings.TrimSpace(spec.Name.He)
		if spec.Name.En == "" {
			return nil, fmt.Errorf("%w: create verdict without English name", ErrUnparsableResponse)
		}
		if spec.Name.He == "" {
			spec.Name.He = spec.Name.En
		}
		spec.CategoryID = strings.TrimSpace(spec.CategoryID)
		spec.Finish = cleanAttributes(spec.Finish)
		spec.Colors = cleanAttributes(spec.Colors)
		if resp.Reasoning == "" {
			resp.Reasoning = "no reasoning provided"
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrUnparsableResponse, resp.Action)
	}
	return &resp, nil
}

// cleanAttributes lowercases, trims and dedupes attributes, keeping at most four.
func cleanAttributes(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
		if len(out) == 4 {
			break
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
