package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUltraMsgWebhook(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		from       string
		text       string
		actionable bool
	}{
		{
			name:       "top level chat",
			body:       `{"type":"chat","from":"+55 62 99999-0000","body":" motel at 8pm "}`,
			from:       "5562999990000",
			text:       "motel at 8pm",
			actionable: true,
		},
		{
			name:       "wrapped under data",
			body:       `{"event_type":"message_received","instanceId":"1","data":{"id":"m1","from":"5562999990000@c.us","type":"chat","body":"pix","time":1773511200}}`,
			from:       "5562999990000",
			text:       "pix",
			actionable: true,
		},
		{
			name: "media ignored",
			body: `{"data":{"from":"5511@c.us","type":"image","body":""}}`,
			from: "5511",
		},
		{
			name: "own echo ignored",
			body: `{"data":{"from":"5511@c.us","type":"chat","body":"Ok","fromMe":true}}`,
			from: "5511",
			text: "Ok",
		},
		{
			name: "empty body",
			body: ``,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseUltraMsgWebhook([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.from, msg.From)
			assert.Equal(t, tt.text, msg.Body)
			assert.Equal(t, tt.actionable, msg.Actionable())
		})
	}
}

func TestParseUltraMsgWebhook_Time(t *testing.T) {
	msg, err := ParseUltraMsgWebhook([]byte(`{"data":{"type":"chat","from":"1","body":"x","time":"1773511200"}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1773511200, 0).UTC(), msg.Time)

	msg, err = ParseUltraMsgWebhook([]byte(`{"type":"chat","from":"1","body":"x"}`))
	require.NoError(t, err)
	assert.True(t, msg.Time.IsZero())
}

func TestParseUltraMsgWebhook_Invalid(t *testing.T) {
	_, err := ParseUltraMsgWebhook([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestNormalizeWhatsApp(t *testing.T) {
	assert.Equal(t, "5562999990000", NormalizeWhatsApp("+55 (62) 99999-0000"))
	assert.Equal(t, "5562999990000", NormalizeWhatsApp("5562999990000@c.us"))
	assert.Equal(t, "", NormalizeWhatsApp("webchat:abc"))
	assert.Equal(t, "", NormalizeWhatsApp(""))
}
