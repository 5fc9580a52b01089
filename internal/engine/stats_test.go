package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	outcomes := []ItemOutcome{
		{Reference: "Oak", EntityID: "m1", Tier: TierExact},
		{Reference: "Walnut", EntityID: "m2", Tier: TierHeuristic},
		{Reference: "Ash", EntityID: "m3", Tier: TierSemantic},
		{Reference: "Onyx", EntityID: "m4", Tier: TierCreated, ImageGenerated: true},
		{Reference: "Cork", EntityID: "m5", Tier: TierCreated},
		{Reference: "Basalt", Err: errors.New("semantic matching unavailable")},
		{Reference: "Jade", EntityID: "m6", Tier: TierCreated, ImageGenerated: true, Err: errors.New("failed to create link")},
	}

	res := Aggregate(outcomes)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, res.EntityIDs)
	assert.Equal(t, BatchStats{Matched: 3, Created: 3, Images: 2, Errors: 2}, res.Stats)
	assert.Equal(t, []ItemError{
		{Reference: "Basalt", Error: "semantic matching unavailable"},
		{Reference: "Jade", Error: "failed to create link"},
	}, res.Errors)
	assert.Equal(t, map[ResolutionTier]int{TierExact: 1, TierHeuristic: 1, TierSemantic: 1, TierCreated: 2}, res.ByTier)
	assert.True(t, res.Success)
	assert.False(t, res.AllFailed)
}

func TestAggregate_SuccessPolicy(t *testing.T) {
	ok := ItemOutcome{Reference: "ok", EntityID: "e", Tier: TierExact}
	bad := ItemOutcome{Reference: "bad", Err: errors.New("boom")}

	tests := []struct {
		name          string
		outcomes      []ItemOutcome
		wantSuccess   bool
		wantAllFailed bool
	}{
		{"one success among many failures is still success", []ItemOutcome{ok, bad, bad, bad}, true, false},
		{"all failed", []ItemOutcome{bad, bad}, false, true},
		{"all succeeded", []ItemOutcome{ok, ok}, true, false},
		{"empty batch", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate(tt.outcomes)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantAllFailed, res.AllFailed)
			assert.NotNil(t, res.EntityIDs)
			assert.NotNil(t, res.Errors)
		})
	}
}
