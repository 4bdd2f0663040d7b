package notifier

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// bot is the part of the Telegram API the sender uses
type bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts alerts to a Telegram chat
type TelegramSender struct {
	bot            bot
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegramSender creates a sender for the bot token and chat
func NewTelegramSender(botToken string, chatID int64, maxRetries int, retryDelayBase time.Duration) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newTelegramSender(api, chatID, maxRetries, retryDelayBase), nil
}

func newTelegramSender(b bot, chatID int64, maxRetries int, retryDelayBase time.Duration) *TelegramSender {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &TelegramSender{
		bot:            b,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// Send posts the alert, retrying with a linear backoff
func (s *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(s.chatID, title+"\n\n"+message)

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		_, err := s.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == s.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", s.maxRetries, lastErr)
}

func (s *TelegramSender) Name() string { return "telegram" }
