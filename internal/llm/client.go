// Package llm talks to OpenAI-compatible chat-completion endpoints and runs
// the tool-calling loop behind the assistant's chat capability.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// DefaultEndpoint is the OpenAI chat-completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Client represents an LLM client for one model on one endpoint
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
}

// ClientConfig contains configuration for the LLM client
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewClient creates a new LLM client
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.1
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		timeout:     config.Timeout,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete sends a chat completion request to the LLM
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResponse, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       tools,
	}
	if len(tools) > 0 {
		request.ToolChoice = "auto"
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Str("model", c.model).
		Int("message_count", len(messages)).
		Int("tool_count", len(tools)).
		Msg("Sending LLM request")

	start := time.Now()
	chatResp, err := c.do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.RecordLLMRequest(c.model, err, float64(duration.Milliseconds()), 0, 0)
		return nil, err
	}

	metrics.RecordLLMRequest(c.model, nil, float64(duration.Milliseconds()),
		chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)

	log.Debug().
		Str("model", chatResp.Model).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", duration).
		Msg("LLM request completed")

	return chatResp, nil
}

func (c *Client) do(req *http.Request) (*ChatResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		llmErr := &LLMError{StatusCode: resp.StatusCode, Message: string(body)}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			llmErr.Message = errResp.Error.Message
			llmErr.Type = errResp.Error.Type
		}
		return nil, llmErr
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}

// CompleteWithSystem sends a request with a system message and user message
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return completeWithSystem(ctx, c, systemPrompt, userPrompt)
}

func completeWithSystem(ctx context.Context, client LLMClient, systemPrompt, userPrompt string) (string, error) {
	messages := []ChatMessage{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userPrompt},
	}

	resp, err := client.Complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}

	msg, ok := resp.FirstMessage()
	if !ok {
		return "", ErrNoChoices
	}
	return msg.Content, nil
}

// CompleteWithRetry sends a request with retry logic. Non-retryable API
// errors are returned immediately.
func (c *Client) CompleteWithRetry(ctx context.Context, messages []ChatMessage, tools []ToolSpec, maxRetries int) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(attempt*attempt) * time.Second
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying LLM request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.Complete(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		var llmErr *LLMError
		if errors.As(err, &llmErr) && !llmErr.IsRetryable() {
			break
		}
	}

	return nil, fmt.Errorf("LLM request failed after %d retries: %w", maxRetries, lastErr)
}
