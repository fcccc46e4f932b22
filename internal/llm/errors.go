package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoChoices is returned when a completion carries no message.
var ErrNoChoices = errors.New("no choices in LLM response")

// LLMError is a non-200 response from the completion endpoint.
type LLMError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *LLMError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("LLM API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated:
// rate limits and server-side failures.
func (e *LLMError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err wraps a retryable *LLMError. Transport
// errors (no status) are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return true
}
