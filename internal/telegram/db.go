package telegram

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// DBPool is an interface for database operations
// This allows us to use both real pgxpool.Pool and mocks in tests
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

const (
	upsertChatSQL = `
		INSERT INTO telegram_chats (telegram_id, chat_id, username, user_name, last_interaction_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (telegram_id)
		DO UPDATE SET
			last_interaction_at = CURRENT_TIMESTAMP,
			chat_id = EXCLUDED.chat_id,
			username = EXCLUDED.username`

	insertMessageSQL = `
		INSERT INTO telegram_messages (telegram_id, chat_id, message_id, route, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// updateLastInteraction records the chat and refreshes its interaction time.
func (b *Bot) updateLastInteraction(telegramID, chatID int64, username, userName string) error {
	if b.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := b.db.Exec(ctx, upsertChatSQL, telegramID, chatID, username, userName)
	return err
}

// logMessage records how a message was handled. Message text is not stored.
func (b *Bot) logMessage(telegramID, chatID int64, messageID int, route string, sendErr error) {
	if b.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errMsg *string
	if sendErr != nil {
		s := sendErr.Error()
		errMsg = &s
	}

	if _, err := b.db.Exec(ctx, insertMessageSQL,
		telegramID, chatID, messageID, route, sendErr == nil, errMsg); err != nil {
		log.Warn().
			Err(err).
			Int64("telegram_id", telegramID).
			Msg("Failed to log message")
	}
}
