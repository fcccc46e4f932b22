package llm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConversationMemory keeps the user/assistant turns of one chat session.
// Tool traffic of a turn is not stored; only what the user said and the
// final answer are.
type ConversationMemory struct {
	id          uuid.UUID
	owner       string
	messages    []ChatMessage
	maxTokens   int
	maxMessages int
	mu          sync.RWMutex
}

// ConversationConfig configures a conversation
type ConversationConfig struct {
	Owner       string
	MaxTokens   int // Maximum total tokens in conversation (default: 4000)
	MaxMessages int // Maximum number of messages to retain (default: 20)
}

// NewConversation creates a new conversation with the given configuration
func NewConversation(config ConversationConfig) *ConversationMemory {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4000
	}
	if config.MaxMessages == 0 {
		config.MaxMessages = 20
	}

	return &ConversationMemory{
		id:          uuid.New(),
		owner:       config.Owner,
		messages:    make([]ChatMessage, 0),
		maxTokens:   config.MaxTokens,
		maxMessages: config.MaxMessages,
	}
}

// AddTurn appends one exchange.
func (cm *ConversationMemory) AddTurn(user, assistant string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.messages = append(cm.messages,
		ChatMessage{Role: RoleUser, Content: user},
		ChatMessage{Role: RoleAssistant, Content: assistant},
	)
	if len(cm.messages) > cm.maxMessages {
		// Drop whole turns from the front
		drop := len(cm.messages) - cm.maxMessages
		drop += drop % 2
		cm.messages = append([]ChatMessage(nil), cm.messages[drop:]...)
	}

	log.Debug().
		Str("conversation_id", cm.id.String()).
		Str("owner", cm.owner).
		Int("total_messages", len(cm.messages)).
		Msg("Added turn to conversation")
}

// History returns the most recent messages that fit the token budget, in
// chronological order.
func (cm *ConversationMemory) History() []ChatMessage {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalTokens := 0
	start := len(cm.messages)
	for i := len(cm.messages) - 1; i >= 0; i-- {
		tokens := estimateTokens(cm.messages[i].Content)
		if totalTokens+tokens > cm.maxTokens {
			log.Debug().
				Str("conversation_id", cm.id.String()).
				Int("total_tokens", totalTokens).
				Int("max_tokens", cm.maxTokens).
				Msg("Reached token limit, truncating conversation history")
			break
		}
		totalTokens += tokens
		start = i
	}

	out := make([]ChatMessage, len(cm.messages)-start)
	copy(out, cm.messages[start:])
	return out
}

// Clear clears all messages
func (cm *ConversationMemory) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.messages = make([]ChatMessage, 0)

	log.Info().
		Str("conversation_id", cm.id.String()).
		Str("owner", cm.owner).
		Msg("Cleared conversation history")
}

// ID returns the conversation ID
func (cm *ConversationMemory) ID() uuid.UUID {
	return cm.id
}

// Len returns the number of messages
func (cm *ConversationMemory) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.messages)
}

// estimateTokens provides rough token estimation (4 chars per token)
func estimateTokens(text string) int {
	return len(text) / 4
}
