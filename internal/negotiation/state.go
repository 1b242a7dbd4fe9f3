// Package negotiation tracks the booking negotiation of each conversation and
// decides what to ask next, when the booking is closed, and when to stay silent.
package negotiation

import (
	"time"
)

// Slot is one of the facts a booking needs.
type Slot string

const (
	SlotPlace   Slot = "place"
	SlotTime    Slot = "time"
	SlotPayment Slot = "payment"
)

// AllSlots lists the slots in the order they are reported missing.
var AllSlots = []Slot{SlotPlace, SlotTime, SlotPayment}

// SlotValue is the captured value of one slot. An empty Value means unresolved.
type SlotValue struct {
	Value          string    `json:"value,omitempty" dynamodbav:"value,omitempty"`
	LearnedAt      time.Time `json:"learnedAt,omitempty" dynamodbav:"learnedAt,omitempty"`
	ReaskLockUntil time.Time `json:"reaskLockUntil,omitempty" dynamodbav:"reaskLockUntil,omitempty"`
}

// Filled reports whether the slot holds a value.
func (v SlotValue) Filled() bool {
	return v.Value != ""
}

// Locked reports whether the slot must not be asked about at now.
func (v SlotValue) Locked(now time.Time) bool {
	return !v.ReaskLockUntil.IsZero() && now.Before(v.ReaskLockUntil)
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the bounded history.
type Turn struct {
	Role    Role      `json:"role" dynamodbav:"role"`
	Content string    `json:"content" dynamodbav:"content"`
	At      time.Time `json:"at,omitempty" dynamodbav:"at,omitempty"`
}

// BookingFacts is the snapshot handed to notifiers once a booking closes.
type BookingFacts struct {
	Place   string `json:"place"`
	Time    string `json:"time"`
	Payment string `json:"payment"`
}

// State is the negotiation state of one conversation.
type State struct {
	ConversationID string             `json:"conversationId" dynamodbav:"conversationId"`
	LastSeen       time.Time          `json:"lastSeen,omitempty" dynamodbav:"lastSeen,omitempty"`
	MuteUntil      time.Time          `json:"muteUntil,omitempty" dynamodbav:"muteUntil,omitempty"`
	Closed         bool               `json:"closed" dynamodbav:"closed"`
	Slots          map[Slot]SlotValue `json:"slots" dynamodbav:"slots"`
	History        []Turn             `json:"history" dynamodbav:"history"`
}

// NewState returns an empty state for conversationID.
func NewState(conversationID string) State {
	return State{
		ConversationID: conversationID,
		Slots:          make(map[Slot]SlotValue, len(AllSlots)),
	}
}

// Muted reports whether replies are suppressed at now.
func (s State) Muted(now time.Time) bool {
	return !s.MuteUntil.IsZero() && now.Before(s.MuteUntil)
}

// Slot returns the value of slot, zero if unset.
func (s State) Slot(slot Slot) SlotValue {
	if s.Slots == nil {
		return SlotValue{}
	}
	return s.Slots[slot]
}

// Complete reports whether every slot is filled.
func (s State) Complete() bool {
	for _, slot := range AllSlots {
		if !s.Slot(slot).Filled() {
			return false
		}
	}
	return true
}

// Facts snapshots the current slot values.
func (s State) Facts() BookingFacts {
	return BookingFacts{
		Place:   s.Slot(SlotPlace).Value,
		Time:    s.Slot(SlotTime).Value,
		Payment: s.Slot(SlotPayment).Value,
	}
}

// AppendAssistant records a reply in the history, keeping at most limit turns.
func (s *State) AppendAssistant(text string, at time.Time, limit int) {
	s.appendTurn(Turn{Role: RoleAssistant, Content: text, At: at}, limit)
}

func (s *State) appendTurn(turn Turn, limit int) {
	s.History = append(s.History, turn)
	if limit > 0 && len(s.History) > limit {
		s.History = append([]Turn(nil), s.History[len(s.History)-limit:]...)
	}
}

// Clone returns a deep copy so callers can mutate it without aliasing the original.
func (s State) Clone() State {
	out := s
	out.Slots = make(map[Slot]SlotValue, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}
	out.History = append([]Turn(nil), s.History...)
	return out
}

// Reopen clears the slots, the closed flag and the mute window. History is kept.
func (s *State) Reopen() {
	s.resetNegotiation()
}

func (s *State) resetNegotiation() {
	s.Slots = make(map[Slot]SlotValue, len(AllSlots))
	s.Closed = false
	s.MuteUntil = time.Time{}
}
