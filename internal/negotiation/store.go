package negotiation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// ErrEmptyConversationID is returned when a store is called without a key.
var ErrEmptyConversationID = errors.New("negotiation: conversation id required")

// Store persists negotiation state keyed by conversation id.
type Store interface {
	// Load returns the stored state and whether it existed.
	Load(ctx context.Context, conversationID string) (State, bool, error)
	Save(ctx context.Context, st State) error
	Delete(ctx context.Context, conversationID string) error
}

// MemoryStore keeps state in process memory. States are removed only by Prune.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
	logger *logging.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		states: make(map[string]State),
		logger: logger,
	}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, conversationID string) (State, bool, error) {
	if conversationID == "" {
		return State{}, false, ErrEmptyConversationID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[conversationID]
	if !ok {
		return State{}, false, nil
	}
	return st.Clone(), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, st State) error {
	if st.ConversationID == "" {
		return ErrEmptyConversationID
	}
	s.mu.Lock()
	s.states[st.ConversationID] = st.Clone()
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.states, conversationID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Prune drops conversations idle longer than olderThan whose mute window has passed.
func (s *MemoryStore) Prune(now time.Time, olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, st := range s.states {
		if now.Sub(st.LastSeen) > olderThan && !st.Muted(now) {
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes stale conversations every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Prune(now, olderThan); removed > 0 {
				s.logger.Debug("pruned stale conversations", "removed", removed)
			}
		}
	}
}
