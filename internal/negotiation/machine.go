package negotiation

import (
	"fmt"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/extract"
)

// Outcome is the result class of one Advance call.
type Outcome int

const (
	OutcomeNeedsSlot Outcome = iota
	OutcomeReadyToClose
	OutcomeAlreadyClosed
	OutcomeMuted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNeedsSlot:
		return "needs_slot"
	case OutcomeReadyToClose:
		return "ready_to_close"
	case OutcomeAlreadyClosed:
		return "already_closed"
	case OutcomeMuted:
		return "muted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes what the caller should do after Advance.
type Result struct {
	Outcome Outcome
	// Missing lists unresolved, unlocked slots for OutcomeNeedsSlot.
	Missing []Slot
	// Facts is set only for OutcomeReadyToClose.
	Facts *BookingFacts
	// Learned lists the slots captured by this message.
	Learned []Slot
}

// Policy holds the timing rules of the negotiation.
type Policy struct {
	StaleAfter   time.Duration
	ReaskLock    time.Duration
	MuteFor      time.Duration
	HistoryLimit int
}

// DefaultPolicy returns the production timings.
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter:   12 * time.Hour,
		ReaskLock:    30 * time.Minute,
		MuteFor:      12 * time.Hour,
		HistoryLimit: 16,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.StaleAfter <= 0 {
		p.StaleAfter = def.StaleAfter
	}
	if p.ReaskLock <= 0 {
		p.ReaskLock = def.ReaskLock
	}
	if p.MuteFor <= 0 {
		p.MuteFor = def.MuteFor
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	return p
}

// EntityExtractor finds booking facts in a message.
type EntityExtractor interface {
	Extract(text string) extract.Entities
}

// Machine applies inbound messages to conversation state. It holds no
// per-conversation data and is safe for concurrent use.
type Machine struct {
	policy    Policy
	extractor EntityExtractor
}

// NewMachine builds a Machine. Zero policy fields fall back to DefaultPolicy and a
// nil extractor uses the default lexicon.
func NewMachine(policy Policy, extractor EntityExtractor) *Machine {
	if extractor == nil {
		extractor = extract.Default()
	}
	return &Machine{policy: policy.withDefaults(), extractor: extractor}
}

// Policy returns the effective policy.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Advance applies one inbound message to st at now and returns the new state.
// The input state is never mutated.
func (m *Machine) Advance(st State, text string, now time.Time) (State, Result) {
	if st.Muted(now) {
		return st, Result{Outcome: OutcomeMuted}
	}

	next := st.Clone()
	if now.Sub(next.LastSeen) > m.policy.StaleAfter {
		next.resetNegotiation()
	}

	if next.Closed {
		return st, Result{Outcome: OutcomeAlreadyClosed}
	}

	next.LastSeen = now
	next.appendTurn(Turn{Role: RoleUser, Content: text, At: now}, m.policy.HistoryLimit)

	learned := m.capture(&next, m.extractor.Extract(text), now)

	if next.Complete() {
		next.Closed = true
		next.MuteUntil = now.Add(m.policy.MuteFor)
		facts := next.Facts()
		return next, Result{Outcome: OutcomeReadyToClose, Facts: &facts, Learned: learned}
	}

	return next, Result{Outcome: OutcomeNeedsSlot, Missing: missingSlots(next, now), Learned: learned}
}

// MarkAsked locks the given unresolved slots against re-asking until
// now+ReaskLock. Filled slots keep their existing lock.
func (m *Machine) MarkAsked(st State, slots []Slot, now time.Time) State {
	if len(slots) == 0 {
		return st
	}
	next := st.Clone()
	for _, slot := range slots {
		v := next.Slot(slot)
		if v.Filled() {
			continue
		}
		v.ReaskLockUntil = now.Add(m.policy.ReaskLock)
		next.Slots[slot] = v
	}
	return next
}

func (m *Machine) capture(st *State, found extract.Entities, now time.Time) []Slot {
	var learned []Slot
	values := map[Slot]string{
		SlotPlace:   matchValue(found.Place),
		SlotTime:    timeValue(found),
		SlotPayment: matchValue(found.Payment),
	}
	for _, slot := range AllSlots {
		value := values[slot]
		if value == "" || st.Slot(slot).Filled() {
			continue
		}
		st.Slots[slot] = SlotValue{
			Value:          value,
			LearnedAt:      now,
			ReaskLockUntil: now.Add(m.policy.ReaskLock),
		}
		learned = append(learned, slot)
	}
	return learned
}

func matchValue(m extract.Match) string {
	if !m.Found() {
		return ""
	}
	return m.Value
}

// timeValue joins a relative day with a clock time ("tomorrow 06:00").
func timeValue(found extract.Entities) string {
	if !found.Time.Found() {
		return ""
	}
	if found.Time.Kind == extract.KindClock && found.Day.Found() {
		return found.Day.Value + " " + found.Time.Value
	}
	return found.Time.Value
}

func missingSlots(st State, now time.Time) []Slot {
	missing := make([]Slot, 0, len(AllSlots))
	for _, slot := range AllSlots {
		v := st.Slot(slot)
		if v.Filled() || v.Locked(now) {
			continue
		}
		missing = append(missing, slot)
	}
	return missing
}
