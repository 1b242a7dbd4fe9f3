// Package webchat serves a browser chat channel over WebSocket that shares the
// booking pipeline with WhatsApp.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// ErrNoSession is returned by Send when the visitor has no open socket.
var ErrNoSession = errors.New("webchat: no active session")

// Publisher enqueues inbound messages.
type Publisher interface {
	EnqueueInbound(ctx context.Context, in orchestrator.Inbound) (string, error)
}

// HistoryReader loads a conversation's stored state.
type HistoryReader interface {
	Conversation(ctx context.Context, id string) (negotiation.State, bool, error)
}

// Handler manages web chat connections and messages.
type Handler struct {
	publisher Publisher
	history   HistoryReader
	now       func() time.Time
	logger    *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what the widget receives.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is one turn in a history response.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewHandler creates a web chat handler. history may be nil.
func NewHandler(publisher Publisher, history HistoryReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher: publisher,
		history:   history,
		now:       time.Now,
		logger:    logger,
		sessions:  make(map[string]*wsConn),
	}
}

// ConversationID builds the conversation id for a webchat session.
func ConversationID(sessionID string) string {
	return messaging.WebChatPrefix + sessionID
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	convID := ConversationID(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	if history := h.loadHistory(r.Context(), convID); len(history) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.sessions[convID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[convID] == wsc {
			delete(h.sessions, convID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}
		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		h.processMessage(r.Context(), sessionID, msg.Text)
	}
}

func (h *Handler) processMessage(ctx context.Context, sessionID, text string) error {
	convID := ConversationID(sessionID)
	h.push(convID, OutboundMessage{Type: "typing"})

	in := orchestrator.Inbound{
		MessageID:      uuid.NewString(),
		ConversationID: convID,
		Channel:        messaging.ChannelWebChat,
		Text:           text,
		ReceivedAt:     h.now().UTC(),
	}
	if _, err := h.publisher.EnqueueInbound(ctx, in); err != nil {
		h.logger.Error("webchat: failed to enqueue message", "error", err, "session_id", sessionID)
		h.push(convID, OutboundMessage{Type: "error", Text: "Sorry, something went wrong. Please try again."})
		return err
	}
	return nil
}

// Send implements messaging.Sender by pushing the reply to the visitor's socket.
func (h *Handler) Send(_ context.Context, conversationID, text string) error {
	if !h.push(conversationID, OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		Text:      text,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}) {
		return ErrNoSession
	}
	h.logger.Info("webchat: reply sent", "conversation_id", conversationID, "length", len(text))
	return nil
}

func (h *Handler) push(convID string, msg OutboundMessage) bool {
	h.mu.RLock()
	wsc, ok := h.sessions[convID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := websocket.JSON.Send(wsc.conn, msg); err != nil {
		h.logger.Debug("webchat: push failed", "conversation_id", convID, "error", err)
		return false
	}
	return true
}

// Sessions reports how many sockets are open.
func (h *Handler) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	if err := h.processMessage(r.Context(), req.SessionID, req.Text); err != nil {
		http.Error(w, "failed to queue message", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "queued",
		"session_id": req.SessionID,
	})
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	history := h.loadHistory(r.Context(), ConversationID(sessionID))
	if history == nil {
		history = []HistoryMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

func (h *Handler) loadHistory(ctx context.Context, convID string) []HistoryMessage {
	if h.history == nil {
		return nil
	}
	st, ok, err := h.history.Conversation(ctx, convID)
	if err != nil {
		h.logger.Warn("webchat: failed to load history", "error", err, "conversation_id", convID)
		return nil
	}
	if !ok {
		return nil
	}
	out := make([]HistoryMessage, 0, len(st.History))
	for _, turn := range st.History {
		msg := HistoryMessage{Role: string(turn.Role), Text: turn.Content}
		if !turn.At.IsZero() {
			msg.Timestamp = turn.At.UTC().Format(time.RFC3339)
		}
		out = append(out, msg)
	}
	return out
}
