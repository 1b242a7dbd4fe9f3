package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

type stubPublisher struct {
	got []orchestrator.Inbound
	err error
}

func (s *stubPublisher) EnqueueInbound(_ context.Context, in orchestrator.Inbound) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.got = append(s.got, in)
	return "job-1", nil
}

func postWebhook(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ultramsg", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUltraMsgWebhook_QueuesChat(t *testing.T) {
	pub := &stubPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewMessagingMetrics(reg)
	h := NewUltraMsgWebhookHandler(pub, m, logging.New("error"))

	rec := postWebhook(t, h, `{"type": "chat", "from": "+55 (11) 98888-7777@c.us", "body": " motel, 8pm, pix ", "id": "wamid-1", "time": 1773518400}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "queued"}`, rec.Body.String())
	require.Len(t, pub.got, 1)
	in := pub.got[0]
	assert.Equal(t, "5511988887777", in.ConversationID)
	assert.Equal(t, messaging.ChannelWhatsApp, in.Channel)
	assert.Equal(t, "motel, 8pm, pix", in.Text)
	assert.Equal(t, "wamid-1", in.MessageID)
	assert.Equal(t, time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC), in.ReceivedAt)

	if got := counterValue(t, reg, "wa_messaging_inbound_webhook_total", "queued"); got != 1 {
		t.Fatalf("expected one queued inbound, got %v", got)
	}
}

func TestUltraMsgWebhook_WrappedPayload(t *testing.T) {
	pub := &stubPublisher{}
	h := NewUltraMsgWebhookHandler(pub, nil, logging.New("error"))

	rec := postWebhook(t, h, `{"event_type": "message_received", "data": {"type": "chat", "from": "5511900000000@c.us", "body": "tomorrow at 6"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "5511900000000", pub.got[0].ConversationID)
	assert.False(t, pub.got[0].ReceivedAt.IsZero(), "missing gateway time falls back to now")
}

func TestUltraMsgWebhook_Ignores(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"media", `{"type": "image", "from": "5511@c.us", "body": ""}`},
		{"empty body", `{"type": "chat", "from": "5511@c.us", "body": "   "}`},
		{"no sender", `{"type": "chat", "body": "hi"}`},
		{"own echo", `{"type": "chat", "from": "5511@c.us", "body": "hi", "fromMe": true}`},
		{"malformed", `{"type": `},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &stubPublisher{}
			rec := postWebhook(t, NewUltraMsgWebhookHandler(pub, nil, logging.New("error")), tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			assert.JSONEq(t, `{"status": "ignored"}`, rec.Body.String())
			assert.Empty(t, pub.got)
		})
	}
}

func TestUltraMsgWebhook_EnqueueFailure(t *testing.T) {
	h := NewUltraMsgWebhookHandler(&stubPublisher{err: errors.New("sqs down")}, nil, logging.New("error"))
	rec := postWebhook(t, h, `{"type": "chat", "from": "5511@c.us", "body": "hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewUltraMsgWebhookHandler_PanicsWithoutPublisher(t *testing.T) {
	assert.Panics(t, func() { NewUltraMsgWebhookHandler(nil, nil, nil) })
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabel(metric, "status", status) {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
