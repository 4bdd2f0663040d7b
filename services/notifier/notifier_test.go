package notifier

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/runewatcher/logger"
	watcherrors "sjsage522/runewatcher/pkg/errors"
)

type recordingSender struct {
	name     string
	err      error
	messages []string
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotificationMessage(t *testing.T) {
	n := Notification{Code: "31#", DisplayName: "Jah", Profit: 25.456}
	assert.Equal(t, "31# (Jah) 利润: ¥25.46", n.Message())
}

func TestNotifierFansOut(t *testing.T) {
	failing := &recordingSender{name: "broken", err: errors.New("boom")}
	ok := &recordingSender{name: "ok"}
	n := New(failing, ok)

	err := n.Notify(context.Background(), Notification{Code: "30#", DisplayName: "Ber", Profit: 30})
	require.Error(t, err)
	assert.True(t, watcherrors.Is(err, watcherrors.ErrorTypeNotification))
	assert.Contains(t, err.Error(), "broken")

	assert.Len(t, failing.messages, 1)
	assert.Equal(t, []string{"30# (Ber) 利润: ¥30.00"}, ok.messages)
	assert.Equal(t, []string{"broken", "ok"}, n.Senders())
}

func TestNotifierWithoutSenders(t *testing.T) {
	assert.NoError(t, New().Notify(context.Background(), Notification{Code: "30#"}))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logger.New(&buf))

	require.NoError(t, s.Send(context.Background(), Title, "30# (Ber) 利润: ¥30.00"))
	assert.Contains(t, buf.String(), "30# (Ber)")
	assert.Equal(t, "log", s.Name())
}

type fakeBot struct {
	failures int
	calls    int
	text     string
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.text = msg.Text
	}
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramSenderRetries(t *testing.T) {
	b := &fakeBot{failures: 2}
	s := newTelegramSender(b, 42, 3, time.Millisecond)

	require.NoError(t, s.Send(context.Background(), Title, "31# (Jah) 利润: ¥25.00"))
	assert.Equal(t, 3, b.calls)
	assert.Contains(t, b.text, "31# (Jah)")
	assert.Equal(t, "telegram", s.Name())
}

func TestTelegramSenderGivesUp(t *testing.T) {
	b := &fakeBot{failures: 10}
	s := newTelegramSender(b, 42, 2, time.Millisecond)

	err := s.Send(context.Background(), Title, "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 2, b.calls)
}

func TestTelegramSenderStopsOnCancel(t *testing.T) {
	b := &fakeBot{failures: 10}
	s := newTelegramSender(b, 42, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, Title, "msg")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.calls)
}
