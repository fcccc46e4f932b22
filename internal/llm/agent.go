package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// CatchAll is the answer of a chat turn that failed.
const CatchAll = "Sorry — something went wrong while processing that. Try rephrasing or a simpler request."

// DefaultMaxSteps bounds tool-calling rounds per turn.
const DefaultMaxSteps = 4

const finalAnswerNudge = "Tool budget exhausted. Answer now with what you have, without calling tools."

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// InputGuard screens a message before the model sees it.
type InputGuard interface {
	CheckInput(text string) (bool, string)
}

// AgentConfig configures a tool-calling agent.
type AgentConfig struct {
	MaxSteps     int
	MaxRetries   int
	SystemPrompt string
	Guard        InputGuard
	Memory       ConversationConfig
}

// Agent answers one question at a time with a bounded tool-calling loop and
// keeps the session's conversation history.
type Agent struct {
	client     LLMClient
	tools      map[string]Tool
	specs      []ToolSpec
	system     string
	maxSteps   int
	maxRetries int
	guard      InputGuard
	memory     *ConversationMemory
	logger     zerolog.Logger
}

// NewAgent creates an agent over client with the given tools.
func NewAgent(client LLMClient, tools []Tool, cfg AgentConfig) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}

	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	return &Agent{
		client:     client,
		tools:      byName,
		specs:      Specs(tools),
		system:     BuildSystemPrompt(cfg.SystemPrompt, tools),
		maxSteps:   cfg.MaxSteps,
		maxRetries: cfg.MaxRetries,
		guard:      cfg.Guard,
		memory:     NewConversation(cfg.Memory),
		logger:     log.With().Str("component", "llm_agent").Logger(),
	}
}

// Memory returns the session conversation.
func (a *Agent) Memory() *ConversationMemory {
	return a.memory
}

// Chat answers question. Model and transport failures are logged and
// answered with CatchAll; the turn is remembered either way.
func (a *Agent) Chat(ctx context.Context, question string) (string, error) {
	if a.guard != nil {
		if ok, refusal := a.guard.CheckInput(question); !ok {
			return refusal, nil
		}
	}

	answer, err := a.run(ctx, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		a.logger.Error().Err(err).Msg("Agent invocation failed")
		answer = CatchAll
	}

	a.memory.AddTurn(question, answer)
	return answer, nil
}

func (a *Agent) run(ctx context.Context, question string) (string, error) {
	messages := make([]ChatMessage, 0, 2+a.memory.Len())
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: a.system})
	messages = append(messages, a.memory.History()...)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: question})

	for step := 0; step < a.maxSteps; step++ {
		msg, err := a.complete(ctx, messages, a.specs)
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 {
			return finalAnswer(msg)
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			messages = append(messages, ChatMessage{
				Role:       RoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Content:    a.callTool(ctx, tc),
			})
		}
	}

	a.logger.Debug().Int("max_steps", a.maxSteps).Msg("Step budget exhausted, forcing final answer")
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: finalAnswerNudge})
	msg, err := a.complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return finalAnswer(msg)
}

func (a *Agent) complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (ChatMessage, error) {
	resp, err := a.client.CompleteWithRetry(ctx, messages, tools, a.maxRetries)
	if err != nil {
		return ChatMessage{}, err
	}
	msg, ok := resp.FirstMessage()
	if !ok {
		return ChatMessage{}, ErrNoChoices
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	return msg, nil
}

func finalAnswer(msg ChatMessage) (string, error) {
	text := strings.TrimSpace(msg.Content)
	text = strings.TrimSpace(strings.TrimPrefix(text, "Final Answer:"))
	if text == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}

// callTool runs one tool call. Failures become the observation text so the
// model can recover.
func (a *Agent) callTool(ctx context.Context, tc ToolCall) (out string) {
	name := tc.Function.Name
	tool, ok := a.tools[name]
	if !ok {
		metrics.RecordToolCall("unknown", false)
		return fmt.Sprintf("Unknown tool %q. Available: %s", name, a.toolNames())
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("tool", name).Msg("Tool panicked")
			metrics.RecordToolCall(name, false)
			out = fmt.Sprintf("Tool error: %v", r)
		}
	}()

	args := json.RawMessage(tc.Function.Arguments)
	result, err := tool.Call(ctx, args)
	if err != nil {
		a.logger.Debug().Err(err).Str("tool", name).Msg("Tool call failed")
		metrics.RecordToolCall(name, false)
		return "Tool error: " + err.Error()
	}

	a.logger.Debug().Str("tool", name).Int("output_len", len(result)).Msg("Tool call completed")
	metrics.RecordToolCall(name, true)
	return result
}

func (a *Agent) toolNames() string {
	names := make([]string, 0, len(a.specs))
	for _, s := range a.specs {
		names = append(names, s.Function.Name)
	}
	return strings.Join(names, ", ")
}
