package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	chatIDs []int64
	texts   []string
	err     error
}

func (f *fakeMessenger) SendMessage(chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.chatIDs = append(f.chatIDs, chatID)
	f.texts = append(f.texts, text)
	return nil
}

type chatMap map[string]int64

func (c chatMap) ChatID(user string) (int64, bool) {
	id, ok := c[user]
	return id, ok
}

func TestTelegramAlerter_Send(t *testing.T) {
	messenger := &fakeMessenger{}
	alerter := NewTelegramAlerter(messenger, chatMap{"tg:42": 99})

	alert := Alert{
		User:      "tg:42",
		Title:     "Suspicious transaction",
		Message:   "flagged",
		Severity:  SeverityWarning,
		Timestamp: time.Date(2025, 3, 14, 2, 30, 0, 0, time.UTC),
		Metadata:  map[string]interface{}{"hour": 2, "channel": "api"},
	}
	require.NoError(t, alerter.Send(context.Background(), alert))
	require.Equal(t, []int64{99}, messenger.chatIDs)
	assert.Equal(t,
		"⚠️ Suspicious transaction\n\nflagged\n\nDetails:\n• channel: api\n• hour: 2\n\nTime: 2025-03-14 02:30:00",
		messenger.texts[0])

	// Users without a chat are skipped.
	require.NoError(t, alerter.Send(context.Background(), Alert{User: "ann"}))
	assert.Len(t, messenger.texts, 1)
}

func TestTelegramAlerter_SendError(t *testing.T) {
	alerter := NewTelegramAlerter(&fakeMessenger{err: errors.New("blocked")}, chatMap{"tg:1": 1})
	assert.Error(t, alerter.Send(context.Background(), Alert{User: "tg:1"}))
}
