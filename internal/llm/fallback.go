package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/JAMBAMSF/jagent/internal/resilience"
)

// ErrAllModelsFailed is wrapped by FallbackClient when no model answered.
var ErrAllModelsFailed = errors.New("all models failed")

// FallbackClient provides automatic failover between multiple LLM models.
// Each model sits behind its own circuit breaker.
type FallbackClient struct {
	clients    []*Client
	modelNames []string
	breakers   []*gobreaker.CircuitBreaker
}

// FallbackConfig configures the fallback client
type FallbackConfig struct {
	// Primary model configuration
	PrimaryConfig ClientConfig
	PrimaryName   string

	// Fallback model configurations (in order of preference)
	FallbackConfigs []ClientConfig
	FallbackNames   []string

	// Breaker thresholds; zero value uses resilience.LLMSettings
	Breaker resilience.Settings
}

// NewFallbackClient creates a client with automatic model fallback
func NewFallbackClient(config FallbackConfig) *FallbackClient {
	settings := config.Breaker
	if settings.MinRequests == 0 {
		settings = resilience.LLMSettings
	}

	primaryName := config.PrimaryName
	if primaryName == "" {
		primaryName = "primary"
	}
	fc := &FallbackClient{}
	fc.add(NewClient(config.PrimaryConfig), primaryName, settings)

	for i, fbConfig := range config.FallbackConfigs {
		name := fmt.Sprintf("fallback-%d", i+1)
		if i < len(config.FallbackNames) {
			name = config.FallbackNames[i]
		}
		fc.add(NewClient(fbConfig), name, settings)
	}
	return fc
}

func (fc *FallbackClient) add(c *Client, name string, s resilience.Settings) {
	fc.clients = append(fc.clients, c)
	fc.modelNames = append(fc.modelNames, name)
	fc.breakers = append(fc.breakers, resilience.NewBreaker("llm_"+name, s))
}

// Complete attempts to get a completion, falling back to other models on failure
func (fc *FallbackClient) Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResponse, error) {
	return fc.each(ctx, func(c *Client) (*ChatResponse, error) {
		return c.Complete(ctx, messages, tools)
	})
}

// CompleteWithRetry attempts completion with retries on each model before fallback
func (fc *FallbackClient) CompleteWithRetry(ctx context.Context, messages []ChatMessage, tools []ToolSpec, maxRetries int) (*ChatResponse, error) {
	return fc.each(ctx, func(c *Client) (*ChatResponse, error) {
		return c.CompleteWithRetry(ctx, messages, tools, maxRetries)
	})
}

// CompleteWithSystem is a convenience method for system + user prompts with fallback
func (fc *FallbackClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return completeWithSystem(ctx, fc, systemPrompt, userPrompt)
}

func (fc *FallbackClient) each(ctx context.Context, call func(*Client) (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error

	for i, client := range fc.clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		modelName := fc.modelNames[i]

		log.Debug().
			Str("model", modelName).
			Int("attempt", i+1).
			Int("total_models", len(fc.clients)).
			Msg("Attempting LLM completion")

		start := time.Now()
		out, err := fc.breakers[i].Execute(func() (interface{}, error) {
			return call(client)
		})
		duration := time.Since(start)

		if err == nil {
			log.Debug().
				Str("model", modelName).
				Int("attempt", i+1).
				Dur("duration", duration).
				Msg("LLM completion succeeded")
			return out.(*ChatResponse), nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("model", modelName).
				Msg("Circuit breaker open, skipping model")
			continue
		}

		log.Warn().
			Err(err).
			Str("model", modelName).
			Int("attempt", i+1).
			Dur("duration", duration).
			Msg("LLM completion failed, trying fallback")
	}

	return nil, fmt.Errorf("%w, last error: %w", ErrAllModelsFailed, lastErr)
}

// CircuitBreakerStatus represents the state of a single model's breaker
type CircuitBreakerStatus struct {
	Model                string
	State                string
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

// GetCircuitBreakerStatus returns the status of all model circuit breakers
func (fc *FallbackClient) GetCircuitBreakerStatus() []CircuitBreakerStatus {
	statuses := make([]CircuitBreakerStatus, len(fc.breakers))
	for i, cb := range fc.breakers {
		counts := cb.Counts()
		statuses[i] = CircuitBreakerStatus{
			Model:                fc.modelNames[i],
			State:                cb.State().String(),
			ConsecutiveFailures:  counts.ConsecutiveFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		}
	}
	return statuses
}
