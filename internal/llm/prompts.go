// Package llm provides text-model integration for catalogue entity matching:
// provider clients (OpenAI, Anthropic, Ollama) behind circuit breakers, a
// strict JSON-only match prompt, and its response parser.
package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/atelier/pkg/types"
)

// maxPromptEntities bounds how many pool entities are listed in a prompt.
const maxPromptEntities = 200

// MatchPromptInput carries everything the match prompt shows the model.
type MatchPromptInput struct {
	Reference    string
	Kind         types.EntityKind
	Tier         types.QualityTier
	StyleName    string
	StyleContext string
	Categories   []*types.Category
	Entities     []*types.CatalogueEntity
}

// MatchPrompt builds a strict JSON-only prompt asking the model whether the
// reference names an existing catalogue entity or needs a new one.
func MatchPrompt(in MatchPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TASK: Resolve an interior-design %s reference against a catalogue.\n\n", in.Kind)
	fmt.Fprintf(&b, "REFERENCE: %q\n", in.Reference)
	fmt.Fprintf(&b, "QUALITY TIER: %s\n", in.Tier)
	if in.StyleName != "" {
		fmt.Fprintf(&b, "STYLE: %s\n", in.StyleName)
	}
	if ctx := strings.TrimSpace(in.StyleContext); ctx != "" {
		fmt.Fprintf(&b, "STYLE CONTEXT: %s\n", ctx)
	}

	b.WriteString("\nCATEGORIES (id | english | hebrew):\n")
	if len(in.Categories) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range in.Categories {
		fmt.Fprintf(&b, "- %s | %s | %s\n", c.ID, c.Name.En, c.Name.He)
	}

	b.WriteString("\nEXISTING ENTITIES (id | english | hebrew | category):\n")
	if len(in.Entities) == 0 {
		b.WriteString("(none)\n")
	}
	for i, e := range in.Entities {
		if i == maxPromptEntities {
			break
		}
		fmt.Fprintf(&b, "- %s | %s | %s | %s\n", e.ID, e.Name.En, e.Name.He, e.CategoryID)
	}

	b.WriteString(`
RULES:
1. If an existing entity is the same design element (synonym, translation, minor wording difference), choose "link" and copy its id exactly.
2. Otherwise choose "create" and propose a canonical entity.
3. A new entity needs an English name and a Hebrew name. Pick categoryId only from CATEGORIES, or leave it empty.
4. finish and colors are short lowercase attributes, at most 4 each.
5. For LUXURY prefer premium finishes; for REGULAR prefer practical ones.

OUTPUT: Return ONLY one JSON object, no markdown, no commentary.

FORMAT:
{"action":"link","matchedEntityId":"<id>","confidence":0.9,"reasoning":"<why>"}
or
{"action":"create","newEntitySpec":{"name":{"en":"<english>","he":"<hebrew>"},"categoryId":"<id or empty>","finish":["<attr>"],"colors":["<color>"]},"confidence":0.8,"reasoning":"<why>"}
`)
	return b.String()
}
