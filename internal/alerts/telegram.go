package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Messenger delivers plain text to a Telegram chat.
type Messenger interface {
	SendMessage(chatID int64, text string) error
}

// ChatResolver finds the Telegram chat of an assistant user.
type ChatResolver interface {
	ChatID(user string) (int64, bool)
}

// TelegramAlerter sends alerts to the Telegram chat of the affected user.
// Users without a known chat are skipped.
type TelegramAlerter struct {
	messenger Messenger
	chats     ChatResolver
}

// NewTelegramAlerter creates a new Telegram-based alerter
func NewTelegramAlerter(messenger Messenger, chats ChatResolver) *TelegramAlerter {
	return &TelegramAlerter{messenger: messenger, chats: chats}
}

// Send sends an alert via Telegram
func (t *TelegramAlerter) Send(_ context.Context, alert Alert) error {
	chatID, ok := t.chats.ChatID(alert.User)
	if !ok {
		log.Debug().Str("user", alert.User).Msg("No Telegram chat for alert")
		return nil
	}

	if err := t.messenger.SendMessage(chatID, formatAlert(alert)); err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}

	log.Debug().
		Int64("chat_id", chatID).
		Str("alert_title", alert.Title).
		Msg("Telegram alert sent")
	return nil
}

// formatAlert renders plain text; replies are never sent with a parse mode.
func formatAlert(alert Alert) string {
	var prefix string
	switch alert.Severity {
	case SeverityCritical:
		prefix = "🚨"
	case SeverityWarning:
		prefix = "⚠️"
	default:
		prefix = "ℹ️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n%s", prefix, alert.Title, alert.Message)

	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n\nDetails:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n• %s: %v", k, alert.Metadata[k])
		}
	}

	fmt.Fprintf(&b, "\n\nTime: %s", alert.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}
