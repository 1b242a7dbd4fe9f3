// Package messaging delivers replies over WhatsApp (UltraMsg) and the web chat
// channel, and parses the inbound gateway webhook.
package messaging

import (
	"context"
	"errors"
	"unicode/utf8"
)

// MaxMessageLength is the longest body the WhatsApp gateway accepts.
const MaxMessageLength = 4096

// ErrEmptyMessage is returned when there is nothing to send.
var ErrEmptyMessage = errors.New("messaging: message body required")

// Sender delivers one outbound text to a conversation. A non-nil error means
// the message was not delivered.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, conversationID, text string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, conversationID, text string) error {
	return f(ctx, conversationID, text)
}

// Truncate cuts text to MaxMessageLength runes.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxMessageLength])
}
