package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashID(t *testing.T) {
	h1 := HashID("5511912345678")
	h2 := HashID("5511912345678")
	h3 := HashID("webchat:abc")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "write to me at ana@example.com please", "write to me at [EMAIL] please"},
		{"international", "call me at +55 11 91234-5678", "call me at [PHONE]"},
		{"area code in parens", "ligue (11) 91234 5678 ok", "ligue [PHONE] ok"},
		{"bare digits", "5511912345678", "[PHONE]"},
		{"us layout", "email: a@b.com phone: 330-333-2654", "email: [EMAIL] phone: [PHONE]"},
		{"whatsapp chat id", "sent from 5511912345678@c.us", "sent from [PHONE]"},
		{"times kept", "tomorrow 06:00, pix", "tomorrow 06:00, pix"},
		{"no pii", "motel, 8pm, pix", "motel, 8pm, pix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "my email is test@test.com", Timestamp: time.Now()},
		{Role: "assistant", Content: "Got it!", Timestamp: time.Now()},
	}
	ScrubMessages(msgs)
	assert.Equal(t, "my email is [EMAIL]", msgs[0].Content)
	assert.Equal(t, "Got it!", msgs[1].Content)
}
