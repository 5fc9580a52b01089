package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Match prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
