package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/scrypster/atelier/internal/imagegen"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/pkg/types"
)

// fakeStore is an in-memory CatalogueStore that counts calls.
type fakeStore struct {
	mu         sync.Mutex
	entities   []*types.CatalogueEntity
	categories []*types.Category
	links      map[string]*types.StyleElementLink
	nextID     int

	bulkListCalls  int
	findExactCalls int
	createCalls    int
	lastBulkLimit  int

	bulkListErr error
	// linkRace makes FindLink miss while CreateLink reports the pair as linked.
	linkRace bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]*types.StyleElementLink)}
}

func (s *fakeStore) addEntity(kind types.EntityKind, en, he, categoryID string) *types.CatalogueEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := &types.CatalogueEntity{
		ID:               fmt.Sprintf("%s-%d", kind, s.nextID),
		Kind:             kind,
		Name:             types.LocalizedName{En: en, He: he},
		CategoryID:       categoryID,
		GenerationStatus: types.GenerationCompleted,
	}
	s.entities = append(s.entities, e)
	return e
}

func (s *fakeStore) addCategory(kind types.EntityKind, id, en string) *types.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &types.Category{ID: id, Kind: kind, Name: types.LocalizedName{En: en, He: en}}
	s.categories = append(s.categories, c)
	return c
}

func (s *fakeStore) entity(id string) *types.CatalogueEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *fakeStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *fakeStore) FindExact(ctx context.Context, kind types.EntityKind, name string, locale types.Locale) (*types.CatalogueEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findExactCalls++
	for _, e := range s.entities {
		if e.Kind == kind && e.Name.Get(locale) == name {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) BulkList(ctx context.Context, filter storage.EntityFilter, limit int) ([]*types.CatalogueEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkListCalls++
	s.lastBulkLimit = limit
	if s.bulkListErr != nil {
		return nil, s.bulkListErr
	}
	var out []*types.CatalogueEntity
	for _, e := range s.entities {
		if e.Kind == filter.Kind {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListCategories(ctx context.Context, kind types.EntityKind) ([]*types.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Category
	for _, c := range s.categories {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) Create(ctx context.Context, spec *storage.EntitySpec) (*types.CatalogueEntity, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.nextID++
	e := &types.CatalogueEntity{
		ID:               fmt.Sprintf("%s-%d", spec.Kind, s.nextID),
		Kind:             spec.Kind,
		Name:             spec.Name,
		CategoryID:       spec.CategoryID,
		Finish:           spec.Finish,
		Colors:           spec.Colors,
		GenerationStatus: spec.GenerationStatus,
		IsAbstract:       spec.IsAbstract,
		ThumbnailURL:     spec.ThumbnailURL,
		ImageURLs:        spec.ImageURLs,
	}
	s.entities = append(s.entities, e)
	return e, nil
}

func (s *fakeStore) IncrementUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.ID == id {
			e.UsageCount++
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) FindLink(ctx context.Context, styleID, entityID string) (*types.StyleElementLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkRace {
		return nil, nil
	}
	return s.links[styleID+"|"+entityID], nil
}

func (s *fakeStore) CreateLink(ctx context.Context, styleID, entityID string, kind types.EntityKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := styleID + "|" + entityID
	if _, ok := s.links[key]; ok {
		return storage.ErrLinkExists
	}
	s.links[key] = &types.StyleElementLink{StyleID: styleID, EntityID: entityID, Kind: kind}
	return nil
}

func (s *fakeStore) Close() error { return nil }

var _ storage.CatalogueStore = (*fakeStore)(nil)

var referenceLine = regexp.MustCompile(`REFERENCE: (".*")`)

// referenceFromPrompt recovers the reference a match prompt was built for.
func referenceFromPrompt(prompt string) string {
	m := referenceLine.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	ref, err := strconv.Unquote(m[1])
	if err != nil {
		return ""
	}
	return ref
}

// scriptedGenerator answers match prompts through respond.
type scriptedGenerator struct {
	calls   int32
	respond func(ctx context.Context, reference string) (string, error)
}

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	return g.respond(ctx, referenceFromPrompt(prompt))
}

func (g *scriptedGenerator) GetModel() string { return "scripted" }

func (g *scriptedGenerator) callCount() int { return int(atomic.LoadInt32(&g.calls)) }

// createVerdict builds a create response naming the reference itself.
func createVerdict(en, he, categoryID string) string {
	return fmt.Sprintf(`{"action":"create","newEntitySpec":{"name":{"en":%q,"he":%q},"categoryId":%q},"confidence":0.8,"reasoning":"not in catalogue"}`, en, he, categoryID)
}

func linkVerdict(id string) string {
	return fmt.Sprintf(`{"action":"link","matchedEntityId":%q,"confidence":0.9,"reasoning":"same element"}`, id)
}

// countingScorer wraps a ReferenceScorer.
type countingScorer struct {
	calls int32
	next  ReferenceScorer
}

func (c *countingScorer) Match(reference string, pool *AvailableEntityPool) HeuristicResult {
	atomic.AddInt32(&c.calls, 1)
	return c.next.Match(reference, pool)
}

// fixedScorer always returns the same result.
type fixedScorer struct {
	result HeuristicResult
}

func (f fixedScorer) Match(string, *AvailableEntityPool) HeuristicResult { return f.result }

// countingFactory wraps an EntityFactory.
type countingFactory struct {
	calls int32
	next  EntityFactory
}

func (c *countingFactory) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.next.Create(ctx, req)
}

// stubImages returns fixed urls or an error and counts calls.
type stubImages struct {
	calls int32
	urls  []string
	err   error
}

func (s *stubImages) Generate(ctx context.Context, req imagegen.GenerateRequest) ([]string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.urls, s.err
}
