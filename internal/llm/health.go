package llm

import (
	"sort"
	"sync"
	"time"
)

// BackendHealth is the circuit-breaker record of one backend.
type BackendHealth struct {
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveTransient int       `json:"consecutiveTransient"`
	CooldownUntil        time.Time `json:"cooldownUntil,omitempty"`
	LastError            string    `json:"lastError,omitempty"`
	LastFailureAt        time.Time `json:"lastFailureAt,omitempty"`
	LastSuccessAt        time.Time `json:"lastSuccessAt,omitempty"`
}

// CoolingDown reports whether the backend is excluded at now.
func (h BackendHealth) CoolingDown(now time.Time) bool {
	return !h.CooldownUntil.IsZero() && now.Before(h.CooldownUntil)
}

// BreakerPolicy decides when a backend is taken out of rotation.
type BreakerPolicy struct {
	// FailureThreshold consecutive failures of any kind trip the breaker.
	FailureThreshold int
	// TransientStreak consecutive transient failures trip the breaker.
	TransientStreak int
	Cooldown        time.Duration
}

// DefaultBreakerPolicy trips after 3 failures or 2 transient failures in a row, for 5 minutes.
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{FailureThreshold: 3, TransientStreak: 2, Cooldown: 5 * time.Minute}
}

type healthEntry struct {
	mu     sync.Mutex
	health BackendHealth
}

// HealthRegistry holds one health record per backend id. Each record has its own
// lock so updates for one backend never contend with another.
type HealthRegistry struct {
	mu      sync.RWMutex
	entries map[string]*healthEntry
	policy  BreakerPolicy
}

// NewHealthRegistry builds a registry; zero policy fields take the defaults.
func NewHealthRegistry(policy BreakerPolicy) *HealthRegistry {
	def := DefaultBreakerPolicy()
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = def.FailureThreshold
	}
	if policy.TransientStreak <= 0 {
		policy.TransientStreak = def.TransientStreak
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = def.Cooldown
	}
	return &HealthRegistry{
		entries: make(map[string]*healthEntry),
		policy:  policy,
	}
}

func (r *HealthRegistry) entry(id string) *healthEntry {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[id]; !ok {
		e = &healthEntry{}
		r.entries[id] = e
	}
	return e
}

// Get returns a copy of the backend's record.
func (r *HealthRegistry) Get(id string) BackendHealth {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

// Available reports whether the backend may be called at now.
func (r *HealthRegistry) Available(id string, now time.Time) bool {
	return !r.Get(id).CoolingDown(now)
}

// RecordSuccess clears the failure counters and any cooldown.
func (r *HealthRegistry) RecordSuccess(id string, now time.Time) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health.ConsecutiveFailures = 0
	e.health.ConsecutiveTransient = 0
	e.health.CooldownUntil = time.Time{}
	e.health.LastSuccessAt = now
}

// RecordFailure counts a failure and reports whether it put the backend into
// cooldown. Counters survive cooldown expiry, so the first failure after a
// cooldown trips the breaker again.
func (r *HealthRegistry) RecordFailure(id string, transient bool, now time.Time, cause error) bool {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	h := &e.health
	h.ConsecutiveFailures++
	if transient {
		h.ConsecutiveTransient++
	} else {
		h.ConsecutiveTransient = 0
	}
	h.LastFailureAt = now
	if cause != nil {
		h.LastError = cause.Error()
	}

	if h.CoolingDown(now) {
		return false
	}
	if h.ConsecutiveFailures >= r.policy.FailureThreshold || h.ConsecutiveTransient >= r.policy.TransientStreak {
		h.CooldownUntil = now.Add(r.policy.Cooldown)
		return true
	}
	return false
}

// Reset forgets everything about a backend.
func (r *HealthRegistry) Reset(id string) {
	e := r.entry(id)
	e.mu.Lock()
	e.health = BackendHealth{}
	e.mu.Unlock()
}

// EarliestCooldownEnd returns the soonest cooldown expiry among ids, or false when
// none of them is cooling down at now.
func (r *HealthRegistry) EarliestCooldownEnd(ids []string, now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, id := range ids {
		h := r.Get(id)
		if !h.CoolingDown(now) {
			continue
		}
		if !found || h.CooldownUntil.Before(earliest) {
			earliest = h.CooldownUntil
			found = true
		}
	}
	return earliest, found
}

// HealthSnapshot pairs a backend id with its record.
type HealthSnapshot struct {
	ID string `json:"id"`
	BackendHealth
}

// Snapshot returns every known record sorted by id.
func (r *HealthRegistry) Snapshot() []HealthSnapshot {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	out := make([]HealthSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, HealthSnapshot{ID: id, BackendHealth: r.Get(id)})
	}
	return out
}
