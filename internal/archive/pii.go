package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	// WhatsApp chat ids look like addresses; catch them before the email pattern does.
	jidRe   = regexp.MustCompile(`\b\d{6,15}@[cg]\.us\b`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// International and Brazilian layouts: +55 11 91234-5678, (11) 91234 5678, 5511912345678.
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{2,3}\)?[-.\s]?\d{3,5}[-.\s]?\d{4}`)
)

// HashID returns the hex-encoded SHA-256 of a conversation id so archived
// transcripts never carry the raw phone number.
func HashID(id string) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers or WhatsApp chat ids
// with [PHONE].
func ScrubPII(text string) string {
	text = jidRe.ReplaceAllString(text, "[PHONE]")
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// ScrubMessages applies PII scrubbing to all messages in place.
func ScrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Content = ScrubPII(msgs[i].Content)
	}
}
