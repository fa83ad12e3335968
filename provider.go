package deskmirror

import "context"

// Provider abstracts the language-model host: a pure function
// (messages, system, tools, max_tokens) → (text, tool_calls, stop_reason,
// usage) per spec.md §6. The concrete host is an out-of-scope external
// collaborator; callers supply any Provider implementation (a fake is
// sufficient for tests, since this repo treats the LM endpoint as fixed).
type Provider interface {
	// Complete sends req.Messages/System/Tools/MaxTokens and returns the
	// model's reply. When req.Tools is non-empty the response may carry
	// tool calls (StopReason == StopToolUse).
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// EmbeddingProvider abstracts the embedding host: a pure function
// text → vector[d], called off the main scheduling path and memoized
// through the Store (see Store.SetEmbedding).
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
