package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultStateTTL = 48 * time.Hour

// RedisStore keeps state as JSON values with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a RedisStore. ttl <= 0 uses 48h, which outlives the
// staleness and mute windows.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("negotiation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("wa.internal.negotiation.redis")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, conversationID string) (State, bool, error) {
	if conversationID == "" {
		return State{}, false, ErrEmptyConversationID
	}
	ctx, span := s.tracer.Start(ctx, "negotiation.load_state")
	defer span.End()
	span.SetAttributes(attribute.String("wa.conversation_id", conversationID))

	data, err := s.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		span.RecordError(err)
		return State{}, false, fmt.Errorf("negotiation: failed to load state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		span.RecordError(err)
		return State{}, false, fmt.Errorf("negotiation: failed to decode state: %w", err)
	}
	if st.Slots == nil {
		st.Slots = make(map[Slot]SlotValue, len(AllSlots))
	}
	return st, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, st State) error {
	if st.ConversationID == "" {
		return ErrEmptyConversationID
	}
	ctx, span := s.tracer.Start(ctx, "negotiation.save_state")
	defer span.End()
	span.SetAttributes(attribute.String("wa.conversation_id", st.ConversationID))

	data, err := json.Marshal(st)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("negotiation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(st.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("negotiation: failed to persist state: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "negotiation.delete_state")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("negotiation: failed to delete state: %w", err)
	}
	return nil
}

func stateKey(conversationID string) string {
	return fmt.Sprintf("negotiation:%s", conversationID)
}
