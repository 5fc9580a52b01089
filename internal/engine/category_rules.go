package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/atelier/pkg/types"
)

// CategoryRule maps a keyword to a coarse category bucket. Bucket is matched
// against category ids and English category names.
type CategoryRule struct {
	Keyword string           `yaml:"keyword"`
	Bucket  string           `yaml:"bucket"`
	Kind    types.EntityKind `yaml:"kind,omitempty"` // empty applies to every kind
}

// CategoryRules is an ordered rule list evaluated first match wins.
type CategoryRules []CategoryRule

type categoryRulesFile struct {
	Rules CategoryRules `yaml:"rules"`
}

// DefaultCategoryRules returns the built-in keyword table.
func DefaultCategoryRules() CategoryRules {
	m, t := types.KindMaterial, types.KindTexture
	return CategoryRules{
		// materials
		{"marble", "stone", m}, {"granite", "stone", m}, {"travertine", "stone", m},
		{"limestone", "stone", m}, {"terrazzo", "stone", m}, {"quartz", "stone", m},
		{"slate", "stone", m}, {"onyx", "stone", m}, {"stone", "stone", m},
		{"concrete", "concrete", m}, {"microcement", "concrete", m},
		{"oak", "wood", m}, {"walnut", "wood", m}, {"teak", "wood", m},
		{"ash", "wood", m}, {"bamboo", "wood", m}, {"veneer", "wood", m}, {"wood", "wood", m},
		{"rattan", "natural fiber", m}, {"wicker", "natural fiber", m}, {"jute", "natural fiber", m},
		{"brass", "metal", m}, {"bronze", "metal", m}, {"copper", "metal", m},
		{"steel", "metal", m}, {"iron", "metal", m}, {"aluminum", "metal", m},
		{"chrome", "metal", m}, {"metal", "metal", m},
		{"glass", "glass", m}, {"mirror", "glass", m},
		{"velvet", "textile", m}, {"linen", "textile", m}, {"wool", "textile", m},
		{"cotton", "textile", m}, {"silk", "textile", m}, {"boucle", "textile", m},
		{"leather", "leather", m},
		{"ceramic", "ceramic", m}, {"porcelain", "ceramic", m}, {"terracotta", "ceramic", m},
		{"tile", "ceramic", m},
		{"plaster", "plaster", m}, {"lime wash", "plaster", m}, {"limewash", "plaster", m},

		// textures
		{"velvet", "plush", t}, {"suede", "plush", t}, {"boucle", "plush", t}, {"plush", "plush", t},
		{"linen", "woven", t}, {"weave", "woven", t}, {"woven", "woven", t},
		{"rattan", "woven", t}, {"wicker", "woven", t},
		{"marble", "veined", t}, {"veined", "veined", t},
		{"grain", "grain", t}, {"wood", "grain", t},
		{"fluted", "relief", t}, {"ribbed", "relief", t}, {"hammered", "relief", t},
		{"brushed", "relief", t}, {"textured", "relief", t},
		{"gloss", "glossy", t}, {"lacquer", "glossy", t}, {"polished", "glossy", t},
		{"matte", "matte", t}, {"honed", "matte", t},
		{"rough", "rough", t}, {"raw", "rough", t}, {"plaster", "rough", t},
		{"smooth", "smooth", t},
	}
}

// LoadCategoryRules reads a YAML rules file of the form:
//
//	rules:
//	  - keyword: marble
//	    bucket: stone
//	    kind: material
func LoadCategoryRules(path string) (CategoryRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category rules: %w", err)
	}
	var f categoryRulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category rules %s: %w", path, err)
	}
	for i, r := range f.Rules {
		if normalizeName(r.Keyword) == "" || normalizeName(r.Bucket) == "" {
			return nil, fmt.Errorf("category rule %d: keyword and bucket are required", i)
		}
		if r.Kind != "" && !types.IsValidEntityKind(r.Kind) {
			return nil, fmt.Errorf("category rule %d: invalid kind %q", i, r.Kind)
		}
	}
	return f.Rules, nil
}

// Resolve returns the category chosen by the first rule whose keyword appears
// in any of texts and whose bucket names an available category. Rules whose
// bucket has no category in the catalogue are skipped.
func (r CategoryRules) Resolve(kind types.EntityKind, categories []*types.Category, texts ...string) (*types.Category, *CategoryRule, bool) {
	if len(categories) == 0 {
		return nil, nil, false
	}
	normalized := make([]string, 0, len(texts))
	for _, t := range texts {
		if n := normalizeName(t); n != "" {
			normalized = append(normalized, n)
		}
	}

	for i := range r {
		rule := &r[i]
		if rule.Kind != "" && rule.Kind != kind {
			continue
		}
		keyword := normalizeName(rule.Keyword)
		hit := false
		for _, n := range normalized {
			if containsPhrase(n, keyword) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		if c := findBucket(categories, normalizeName(rule.Bucket)); c != nil {
			return c, rule, true
		}
	}
	return nil, nil, false
}

// findBucket finds the first category whose id or English name mentions bucket.
func findBucket(categories []*types.Category, bucket string) *types.Category {
	for _, c := range categories {
		if containsPhrase(normalizeName(c.ID), bucket) || containsPhrase(normalizeName(c.Name.En), bucket) {
			return c
		}
	}
	return nil
}
