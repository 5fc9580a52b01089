package engine

// ResolutionTier names the cascade tier that resolved a reference.
type ResolutionTier string

const (
	TierExact     ResolutionTier = "exact"
	TierHeuristic ResolutionTier = "heuristic"
	TierSemantic  ResolutionTier = "semantic"
	TierCreated   ResolutionTier = "created"
)

// ItemOutcome is the result of resolving one reference. Err is set when the
// item failed; Tier and EntityID may still be set if the failure happened
// after an entity was created (for example while linking).
type ItemOutcome struct {
	Reference      string
	EntityID       string
	Tier           ResolutionTier
	ImageGenerated bool
	LinkCreated    bool
	CategorySource CategorySource
	Err            error
}

// BatchStats holds the summary counters of a batch.
type BatchStats struct {
	Matched int `json:"matched"`
	Created int `json:"created"`
	Images  int `json:"images"`
	Errors  int `json:"errors"`
}

// ItemError names a failed reference.
type ItemError struct {
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

// BatchResult is returned by Resolve.
//
// Success is lenient: it is true when failures are fewer than resolved ids
// or when anything resolved at all. AllFailed is the strict counterpart and
// is true only when every item failed. MaxItems is the cap applied to the
// request and Truncated counts the references left out by it.
type BatchResult struct {
	Success   bool                   `json:"success"`
	AllFailed bool                   `json:"allFailed"`
	EntityIDs []string               `json:"entityIds"`
	Stats     BatchStats             `json:"stats"`
	Errors    []ItemError            `json:"errors"`
	ByTier    map[ResolutionTier]int `json:"byTier"`
	MaxItems  int                    `json:"maxItems"`
	Truncated int                    `json:"truncated"`
}

// Aggregate folds outcomes, in completion order, into a BatchResult.
// Entities created by an item that later failed still count as created.
func Aggregate(outcomes []ItemOutcome) *BatchResult {
	res := &BatchResult{
		EntityIDs: []string{},
		Errors:    []ItemError{},
		ByTier:    make(map[ResolutionTier]int),
	}
	for _, o := range outcomes {
		if o.Tier == TierCreated {
			res.Stats.Created++
			if o.ImageGenerated {
				res.Stats.Images++
			}
		}
		if o.Err != nil {
			res.Stats.Errors++
			res.Errors = append(res.Errors, ItemError{Reference: o.Reference, Error: o.Err.Error()})
			continue
		}
		res.EntityIDs = append(res.EntityIDs, o.EntityID)
		res.ByTier[o.Tier]++
		if o.Tier != TierCreated {
			res.Stats.Matched++
		}
	}

	resolved := len(res.EntityIDs)
	failed := res.Stats.Errors
	res.Success = failed < resolved || resolved > 0
	res.AllFailed = resolved == 0 && len(outcomes) > 0
	return res
}
