package llm

import "context"

// LLMClient is a chat-completions backend. The ReAct loop in Agent and the
// app wiring accept either a single Client or a FallbackClient; a nil
// LLMClient means chat runs offline.
type LLMClient interface {
	// Complete sends one request. tools may be nil.
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResponse, error)

	// CompleteWithRetry retries retryable API errors up to maxRetries times.
	CompleteWithRetry(ctx context.Context, messages []ChatMessage, tools []ToolSpec, maxRetries int) (*ChatResponse, error)

	// CompleteWithSystem returns the text answer to one system+user exchange.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*FallbackClient)(nil)
)
