package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

const maxWebhookBody = 1 << 20

// InboundPublisher enqueues inbound messages for the conversation workers.
type InboundPublisher interface {
	EnqueueInbound(ctx context.Context, in orchestrator.Inbound) (string, error)
}

// UltraMsgWebhookHandler accepts WhatsApp gateway callbacks and queues the
// text chats for processing. It always answers quickly so the gateway does not
// retry while the reply is being generated.
type UltraMsgWebhookHandler struct {
	publisher InboundPublisher
	metrics   *metrics.MessagingMetrics
	now       func() time.Time
	logger    *logging.Logger
}

// NewUltraMsgWebhookHandler wires the webhook to a publisher.
func NewUltraMsgWebhookHandler(publisher InboundPublisher, m *metrics.MessagingMetrics, logger *logging.Logger) *UltraMsgWebhookHandler {
	if publisher == nil {
		panic("handlers: webhook publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &UltraMsgWebhookHandler{publisher: publisher, metrics: m, now: time.Now, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *UltraMsgWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("ultramsg webhook: read body failed", "error", err)
		h.ignore(w, "unreadable", start)
		return
	}

	msg, err := messaging.ParseUltraMsgWebhook(raw)
	if err != nil {
		h.logger.Warn("ultramsg webhook: malformed payload", "error", err)
		h.ignore(w, "malformed", start)
		return
	}
	if !msg.Actionable() {
		h.logger.Debug("ultramsg webhook: ignored", "type", msg.Type, "from_me", msg.FromMe)
		h.ignore(w, "ignored", start)
		return
	}

	received := msg.Time
	if received.IsZero() {
		received = start.UTC()
	}
	jobID, err := h.publisher.EnqueueInbound(r.Context(), orchestrator.Inbound{
		MessageID:      msg.ID,
		ConversationID: msg.From,
		Channel:        messaging.ChannelWhatsApp,
		Text:           msg.Body,
		ReceivedAt:     received,
	})
	if err != nil {
		h.logger.Error("ultramsg webhook: enqueue failed", "error", err, "conversation_id", msg.From)
		h.metrics.ObserveInbound("chat", "error")
		jsonError(w, "failed to queue message", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("ultramsg webhook: queued", "job_id", jobID, "conversation_id", msg.From)
	h.metrics.ObserveInbound("chat", "queued")
	h.metrics.ObserveWebhookLatency("chat", h.now().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *UltraMsgWebhookHandler) ignore(w http.ResponseWriter, status string, start time.Time) {
	h.metrics.ObserveInbound("other", status)
	h.metrics.ObserveWebhookLatency("other", h.now().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}
