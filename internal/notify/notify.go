// Package notify describes how messages leave the system.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRecipientUnreachable marks a delivery that can never succeed, for
// example because the user blocked the bot. Transports wrap it.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// IsUnreachable reports whether err is a permanent delivery failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrRecipientUnreachable)
}

// Message is an HTML-formatted message with an optional link button.
type Message struct {
	Text       string
	ButtonText string
	ButtonURL  string
}

// Notifier delivers one message to one destination. A destination is either
// a numeric chat id or a channel username such as "@notice_channel".
type Notifier interface {
	Send(ctx context.Context, to string, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them.
// It is used for dry runs without a bot token.
type LogNotifier struct {
	Log *slog.Logger
}

// Send implements Notifier.
func (n LogNotifier) Send(_ context.Context, to string, msg Message) error {
	n.Log.Info("dry run message", "to", to, "text", msg.Text, "link", msg.ButtonURL)
	return nil
}
