package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UltraMsgMessage is the part of an UltraMsg webhook the bot acts on.
type UltraMsgMessage struct {
	EventType string
	ID        string
	From      string
	To        string
	Type      string
	Body      string
	FromMe    bool
	Time      time.Time
}

type ultraMsgEnvelope struct {
	EventType string           `json:"event_type"`
	Data      *ultraMsgPayload `json:"data"`
	ultraMsgPayload
}

type ultraMsgPayload struct {
	ID     string          `json:"id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Type   string          `json:"type"`
	Body   string          `json:"body"`
	FromMe bool            `json:"fromMe"`
	Time   json.RawMessage `json:"time"`
}

// ParseUltraMsgWebhook decodes a webhook body. The message may sit at the top
// level or be wrapped under "data".
func ParseUltraMsgWebhook(raw []byte) (UltraMsgMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return UltraMsgMessage{}, nil
	}
	var env ultraMsgEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return UltraMsgMessage{}, fmt.Errorf("messaging: decode ultramsg webhook: %w", err)
	}
	payload := env.ultraMsgPayload
	if env.Data != nil {
		payload = *env.Data
	}
	return UltraMsgMessage{
		EventType: env.EventType,
		ID:        payload.ID,
		From:      NormalizeWhatsApp(payload.From),
		To:        NormalizeWhatsApp(payload.To),
		Type:      strings.ToLower(strings.TrimSpace(payload.Type)),
		Body:      strings.TrimSpace(payload.Body),
		FromMe:    payload.FromMe,
		Time:      parseUnixTime(payload.Time),
	}, nil
}

// Actionable reports whether the message is an inbound text chat the bot
// should answer. Media, reactions and echoes of our own messages are not.
func (m UltraMsgMessage) Actionable() bool {
	return m.Type == "chat" && m.Body != "" && m.From != "" && !m.FromMe
}

func parseUnixTime(raw json.RawMessage) time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
