// Package telegram is the Telegram front-end. Every text message is one
// chat turn for the user "tg:<telegram id>".
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
)

const (
	// UserPrefix namespaces Telegram users among assistant users.
	UserPrefix = "tg:"

	// ChatIDMemoryKey is the memory under which a user's chat id is stored.
	ChatIDMemoryKey = "telegram_chat_id"

	// maxMessageLength is Telegram's limit for one text message.
	maxMessageLength = 4096

	turnTimeout = 2 * time.Minute
)

// Sender sends one message; *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatRegistry links Telegram users to assistant users.
type ChatRegistry interface {
	EnsureUser(ctx context.Context, name, defaultTolerance string) (int64, string, error)
	SetMemory(ctx context.Context, userID int64, key string, value interface{}) error
}

// Config holds the bot configuration
type Config struct {
	BotToken       string
	PollingTimeout int
	Debug          bool
	// SessionIdle closes conversations idle for this long.
	SessionIdle time.Duration
}

// Bot represents the Telegram bot
type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	db       DBPool
	registry ChatRegistry
	sessions *agent.SessionPool
	config   *Config

	mu         sync.Mutex
	registered map[int64]bool
	chats      map[int64]int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot creates a new Telegram bot instance. db and registry may be nil
// when the assistant runs without a database.
func NewBot(config *Config, a *agent.Agent, db DBPool, registry ChatRegistry) (*Bot, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	api.Debug = config.Debug

	log.Info().
		Str("username", api.Self.UserName).
		Msg("Telegram bot authorized")

	b := newBot(config, api, a, db, registry)
	b.api = api
	return b, nil
}

func newBot(config *Config, sender Sender, a *agent.Agent, db DBPool, registry ChatRegistry) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		sender:     sender,
		db:         db,
		registry:   registry,
		sessions:   agent.NewSessionPool(a, "telegram", config.SessionIdle),
		config:     config,
		registered: make(map[int64]bool),
		chats:      make(map[int64]int64),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() error {
	if b.api == nil {
		return fmt.Errorf("bot has no Telegram connection")
	}
	log.Info().Msg("Starting Telegram bot in polling mode")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollingTimeout

	updates := b.api.GetUpdatesChan(u)
	go b.sessions.Janitor(b.ctx, time.Minute)

	for {
		select {
		case <-b.ctx.Done():
			log.Info().Msg("Telegram bot shutting down")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			go b.handleUpdate(update)
		}
	}
}

// Stop stops the bot gracefully
func (b *Bot) Stop() {
	log.Info().Msg("Stopping Telegram bot")
	b.cancel()
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.sessions.CloseAll()
}

// handleUpdate runs one chat turn for a message.
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	text := messageText(message)
	if text == "" {
		return
	}

	telegramID := message.From.ID
	chatID := message.Chat.ID
	user := UserPrefix + strconv.FormatInt(telegramID, 10)

	if err := b.updateLastInteraction(telegramID, chatID, message.From.UserName, user); err != nil {
		log.Error().
			Err(err).
			Int64("telegram_id", telegramID).
			Msg("Failed to update last interaction")
	}

	b.mu.Lock()
	b.chats[telegramID] = chatID
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, turnTimeout)
	defer cancel()

	b.register(ctx, telegramID, chatID, user)

	reply, err := b.sessions.Handle(ctx, user, text)
	if err != nil {
		log.Error().Err(err).Int64("telegram_id", telegramID).Msg("Failed to open session")
		b.logMessage(telegramID, chatID, message.MessageID, "error", err)
		return
	}

	sendErr := b.SendMessage(chatID, reply.Text)
	if sendErr != nil {
		log.Error().Err(sendErr).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
	b.logMessage(telegramID, chatID, message.MessageID, string(reply.Route), sendErr)
}

// register stores the chat id as a memory of the user once per process.
func (b *Bot) register(ctx context.Context, telegramID, chatID int64, user string) {
	if b.registry == nil {
		return
	}
	b.mu.Lock()
	done := b.registered[telegramID]
	b.mu.Unlock()
	if done {
		return
	}

	userID, _, err := b.registry.EnsureUser(ctx, user, portfolio.DefaultTolerance)
	if err == nil {
		err = b.registry.SetMemory(ctx, userID, ChatIDMemoryKey, chatID)
	}
	if err != nil {
		log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("Failed to register Telegram chat")
		return
	}

	b.mu.Lock()
	b.registered[telegramID] = true
	b.mu.Unlock()
}

// ChatID returns the chat last used by a Telegram user of this bot.
func (b *Bot) ChatID(user string) (int64, bool) {
	rest, ok := strings.CutPrefix(user, UserPrefix)
	if !ok {
		return 0, false
	}
	telegramID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	chatID, ok := b.chats[telegramID]
	return chatID, ok
}

// SendMessage sends plain text, split to fit Telegram's size limit.
func (b *Bot) SendMessage(chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := b.sender.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// messageText turns a message into assistant input. /start and /help ask
// for help; any other /command is passed on without its slash.
func messageText(message *tgbotapi.Message) string {
	if !message.IsCommand() {
		return strings.TrimSpace(message.Text)
	}
	switch cmd := message.Command(); cmd {
	case "start", "help":
		if args := strings.TrimSpace(message.CommandArguments()); args != "" {
			return "help " + args
		}
		return "help"
	default:
		return strings.TrimSpace(cmd + " " + message.CommandArguments())
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
