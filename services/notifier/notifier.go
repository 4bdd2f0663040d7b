// Package notifier delivers high-profit alerts to one or more channels.
// Every registered sender receives each notification; one failing sender
// does not stop delivery to the rest.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"
)

// Title heads every alert
const Title = "💰 发现高利润套利机会！"

// Notification describes the best opportunity when it crossed the threshold
type Notification struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"displayName"`
	Profit      float64   `json:"profit"`
	At          time.Time `json:"at"`
}

// Message renders the alert body
func (n Notification) Message() string {
	return fmt.Sprintf("%s (%s) 利润: ¥%.2f", n.Code, n.DisplayName, n.Profit)
}

// Sender is one notification channel
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to its senders
type Notifier struct {
	senders []Sender
	logger  *logger.Logger
}

// New creates a Notifier for the given senders
func New(senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.ForNotifier(),
	}
}

// Senders returns the names of the registered senders
func (n *Notifier) Senders() []string {
	names := make([]string, 0, len(n.senders))
	for _, s := range n.senders {
		names = append(names, s.Name())
	}
	return names
}

// Notify sends the notification to every sender. Failures are logged and
// returned together.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if len(n.senders) == 0 {
		return nil
	}

	message := note.Message()
	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, Title, message); err != nil {
			n.logger.Error().
				Err(err).
				Str("sender", s.Name()).
				Str("rune", note.Code).
				Msg("Notification failed")
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug().
			Str("sender", s.Name()).
			Str("rune", note.Code).
			Float64("profit", note.Profit).
			Msg("Notification sent")
	}

	if len(failed) > 0 {
		return errors.NewNotification("notifier",
			fmt.Sprintf("%d sender(s) failed: %s", len(failed), strings.Join(failed, "; ")), nil)
	}
	return nil
}

// LogSender writes alerts to the log
type LogSender struct {
	logger *logger.Logger
}

// NewLogSender creates a sender backed by the given logger, or the
// notifier logger when nil
func NewLogSender(l *logger.Logger) *LogSender {
	if l == nil {
		l = logger.ForNotifier()
	}
	return &LogSender{logger: l}
}

func (s *LogSender) Send(ctx context.Context, title, message string) error {
	s.logger.Info().Str("title", title).Msg(message)
	return nil
}

func (s *LogSender) Name() string { return "log" }
