package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/wa-autoresponder/internal/bookings"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// ConversationAdmin is the subset of the orchestrator the admin API drives.
type ConversationAdmin interface {
	Conversation(ctx context.Context, id string) (negotiation.State, bool, error)
	Reset(ctx context.Context, id string) error
	Unmute(ctx context.Context, id string) (negotiation.State, bool, error)
}

// BackendPool reports the configured model backends and their health.
type BackendPool interface {
	Backends() []llm.Backend
	Health() *llm.HealthRegistry
}

// BookingLedger lists closed bookings.
type BookingLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	List(ctx context.Context, conversationID string, limit int) ([]bookings.Booking, error)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	conversations ConversationAdmin
	backends      BackendPool
	ledger        BookingLedger
	now           func() time.Time
	logger        *logging.Logger
}

// NewAdminHandler builds the admin API. backends and ledger may be nil.
func NewAdminHandler(conversations ConversationAdmin, backends BackendPool, ledger BookingLedger, logger *logging.Logger) *AdminHandler {
	if conversations == nil {
		panic("handlers: conversation admin cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		conversations: conversations,
		backends:      backends,
		ledger:        ledger,
		now:           time.Now,
		logger:        logger,
	}
}

// ConversationResponse is the admin view of a negotiation state.
type ConversationResponse struct {
	ConversationID string             `json:"conversation_id"`
	Closed         bool               `json:"closed"`
	Muted          bool               `json:"muted"`
	MuteUntil      *time.Time         `json:"mute_until,omitempty"`
	LastSeen       *time.Time         `json:"last_seen,omitempty"`
	Slots          map[string]string  `json:"slots"`
	Missing        []string           `json:"missing"`
	History        []negotiation.Turn `json:"history"`
}

func (h *AdminHandler) conversationResponse(st negotiation.State) ConversationResponse {
	now := h.now()
	resp := ConversationResponse{
		ConversationID: st.ConversationID,
		Closed:         st.Closed,
		Muted:          st.Muted(now),
		Slots:          map[string]string{},
		Missing:        []string{},
		History:        st.History,
	}
	if !st.MuteUntil.IsZero() {
		mu := st.MuteUntil
		resp.MuteUntil = &mu
	}
	if !st.LastSeen.IsZero() {
		ls := st.LastSeen
		resp.LastSeen = &ls
	}
	for _, slot := range negotiation.AllSlots {
		if v := st.Slot(slot); v.Filled() {
			resp.Slots[string(slot)] = v.Value
		} else {
			resp.Missing = append(resp.Missing, string(slot))
		}
	}
	if resp.History == nil {
		resp.History = []negotiation.Turn{}
	}
	return resp
}

// GetConversation handles GET /admin/conversations/{id}.
func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok, err := h.conversations.Conversation(r.Context(), id)
	if err != nil {
		h.logger.Error("admin: load conversation failed", "error", err, "conversation_id", id)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.conversationResponse(st))
}

// DeleteConversation handles DELETE /admin/conversations/{id}.
func (h *AdminHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.conversations.Reset(r.Context(), id); err != nil {
		h.logger.Error("admin: reset conversation failed", "error", err, "conversation_id", id)
		jsonError(w, "failed to reset conversation", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin: conversation reset", "conversation_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// UnmuteConversation handles POST /admin/conversations/{id}/unmute.
func (h *AdminHandler) UnmuteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok, err := h.conversations.Unmute(r.Context(), id)
	if err != nil {
		h.logger.Error("admin: unmute failed", "error", err, "conversation_id", id)
		jsonError(w, "failed to unmute conversation", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	h.logger.Info("admin: conversation unmuted", "conversation_id", id)
	writeJSON(w, http.StatusOK, h.conversationResponse(st))
}

// BackendStatus is one row of GET /admin/backends.
type BackendStatus struct {
	ID       string            `json:"id"`
	Priority int               `json:"priority"`
	Model    string            `json:"model"`
	Eligible bool              `json:"eligible"`
	Health   llm.BackendHealth `json:"health"`
}

// ListBackends handles GET /admin/backends.
func (h *AdminHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	if h.backends == nil {
		writeJSON(w, http.StatusOK, map[string]any{"backends": []BackendStatus{}})
		return
	}
	now := h.now()
	registry := h.backends.Health()
	out := make([]BackendStatus, 0, len(h.backends.Backends()))
	for _, b := range h.backends.Backends() {
		health := registry.Get(b.ID)
		out = append(out, BackendStatus{
			ID:       b.ID,
			Priority: b.Priority,
			Model:    b.Model,
			Eligible: !health.CoolingDown(now),
			Health:   health,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": out})
}

// ListBookings handles GET /admin/bookings?conversation_id=&limit=.
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		jsonError(w, "booking ledger not configured", http.StatusNotImplemented)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.ledger.List(r.Context(), r.URL.Query().Get("conversation_id"), limit)
	if err != nil {
		h.logger.Error("admin: list bookings failed", "error", err)
		jsonError(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []bookings.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// GetBooking handles GET /admin/bookings/{bookingID}.
func (h *AdminHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		jsonError(w, "booking ledger not configured", http.StatusNotImplemented)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		jsonError(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	booking, err := h.ledger.Get(r.Context(), id)
	if errors.Is(err, bookings.ErrNotFound) {
		jsonError(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("admin: get booking failed", "error", err, "booking_id", id)
		jsonError(w, "failed to load booking", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
