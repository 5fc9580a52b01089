package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/atelier/internal/llm"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/pkg/types"
)

// Verdict actions.
const (
	VerdictLink   = llm.ActionLink
	VerdictCreate = llm.ActionCreate
)

// MatchRequest is everything the semantic matcher considers for one reference.
type MatchRequest struct {
	Reference    string
	Kind         types.EntityKind
	Pool         *AvailableEntityPool
	StyleName    string
	StyleContext string
	Tier         types.QualityTier
}

// ProposedEntity is the model's proposal for a new catalogue entity.
type ProposedEntity struct {
	Name       types.LocalizedName
	CategoryID string // empty when the model gave no usable hint
	Finish     []string
	Colors     []string
}

// MatchVerdict is a validated semantic decision. For VerdictLink, EntityID
// names an entity present in the request pool. For VerdictCreate, Proposal
// is non-nil.
type MatchVerdict struct {
	Action     string
	EntityID   string
	Proposal   *ProposedEntity
	Confidence float64
	Reasoning  string
}

// SemanticMatcher asks a text model whether a reference names an existing
// entity or needs a new one.
type SemanticMatcher struct {
	gen     llm.TextGenerator
	timeout time.Duration
	log     *logger.Logger
}

// NewSemanticMatcher creates a matcher. A non-positive timeout defaults to 45s.
func NewSemanticMatcher(gen llm.TextGenerator, timeout time.Duration, log *logger.Logger) *SemanticMatcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SemanticMatcher{gen: gen, timeout: timeout, log: log}
}

// Match returns a verdict or an error wrapping ErrMatchingUnavailable.
func (m *SemanticMatcher) Match(ctx context.Context, req MatchRequest) (*MatchVerdict, error) {
	if m.gen == nil {
		return nil, fmt.Errorf("%w: no text model configured", ErrMatchingUnavailable)
	}
	pool := req.Pool
	if pool == nil {
		pool = NewAvailableEntityPool(req.Kind, nil, nil, time.Time{})
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := llm.MatchPrompt(llm.MatchPromptInput{
		Reference:    req.Reference,
		Kind:         req.Kind,
		Tier:         req.Tier,
		StyleName:    req.StyleName,
		StyleContext: req.StyleContext,
		Categories:   pool.Categories,
		Entities:     pool.Entities,
	})

	text, err := m.gen.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: timed out after %s", ErrMatchingUnavailable, m.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrMatchingUnavailable, err)
	}

	resp, err := llm.ParseMatchResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatchingUnavailable, err)
	}

	verdict := &MatchVerdict{
		Action:     resp.Action,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	}
	switch resp.Action {
	case llm.ActionLink:
		if _, ok := pool.Entity(resp.MatchedEntityID); !ok {
			return nil, fmt.Errorf("%w: model linked unknown entity %q", ErrMatchingUnavailable, resp.MatchedEntityID)
		}
		verdict.EntityID = resp.MatchedEntityID
	case llm.ActionCreate:
		spec := resp.NewEntitySpec
		categoryID := spec.CategoryID
		if categoryID != "" {
			if _, ok := pool.Category(categoryID); !ok {
				m.log.Debug("dropping unknown category hint", "reference", req.Reference, "category_id", categoryID)
				categoryID = ""
			}
		}
		verdict.Proposal = &ProposedEntity{
			Name:       spec.Name,
			CategoryID: categoryID,
			Finish:     spec.Finish,
			Colors:     spec.Colors,
		}
	}
	return verdict, nil
}
