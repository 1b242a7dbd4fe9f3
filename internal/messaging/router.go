package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Channel names used for routing and metrics.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelWebChat  = "webchat"
)

// WebChatPrefix marks conversation ids that belong to the web chat channel.
const WebChatPrefix = "webchat:"

type route struct {
	channel string
	prefix  string
	sender  Sender
}

// Router picks a Sender by conversation id prefix, falling back to a default
// channel for everything else.
type Router struct {
	routes          []route
	fallback        Sender
	fallbackChannel string
	metrics         *metrics.MessagingMetrics
	logger          *logging.Logger
}

var _ Sender = (*Router)(nil)

// NewRouter builds a router whose default channel is fallback.
func NewRouter(channel string, fallback Sender, m *metrics.MessagingMetrics, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{fallback: fallback, fallbackChannel: channel, metrics: m, logger: logger}
}

// Handle routes conversation ids starting with prefix to sender. Longer
// prefixes win.
func (r *Router) Handle(channel, prefix string, sender Sender) *Router {
	if sender == nil {
		panic("messaging: router sender cannot be nil")
	}
	r.routes = append(r.routes, route{channel: channel, prefix: prefix, sender: sender})
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
	return r
}

// ChannelFor reports which channel a conversation id is routed to.
func (r *Router) ChannelFor(conversationID string) string {
	channel, _ := r.resolve(conversationID)
	return channel
}

func (r *Router) resolve(conversationID string) (string, Sender) {
	for _, rt := range r.routes {
		if strings.HasPrefix(conversationID, rt.prefix) {
			return rt.channel, rt.sender
		}
	}
	return r.fallbackChannel, r.fallback
}

// Send implements Sender.
func (r *Router) Send(ctx context.Context, conversationID, text string) error {
	channel, sender := r.resolve(conversationID)
	if sender == nil {
		r.metrics.ObserveOutbound(channel, "unconfigured")
		return errors.New("messaging: no sender configured for " + channel)
	}
	if err := sender.Send(ctx, conversationID, text); err != nil {
		r.metrics.ObserveOutbound(channel, "error")
		r.logger.Warn("outbound send failed", "channel", channel, "conversation_id", conversationID, "error", err)
		return err
	}
	r.metrics.ObserveOutbound(channel, "ok")
	return nil
}
