package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() State {
	st := NewState("5511988887777")
	st.LastSeen = t0
	st.Slots[SlotPlace] = SlotValue{Value: "motel", LearnedAt: t0, ReaskLockUntil: t0.Add(30 * time.Minute)}
	st.History = []Turn{{Role: RoleUser, Content: "motel", At: t0}}
	return st
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	_, ok, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	st := sampleState()
	require.NoError(t, store.Save(ctx, st))

	got, ok, err := store.Load(ctx, st.ConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st, got)

	// Loaded copies do not alias stored data.
	got.Slots[SlotPayment] = SlotValue{Value: "pix"}
	again, _, _ := store.Load(ctx, st.ConversationID)
	assert.False(t, again.Slot(SlotPayment).Filled())

	require.NoError(t, store.Delete(ctx, st.ConversationID))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_RejectsEmptyID(t *testing.T) {
	store := NewMemoryStore(nil)
	assert.ErrorIs(t, store.Save(context.Background(), State{}), ErrEmptyConversationID)
	_, _, err := store.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyConversationID)
}

func TestMemoryStore_PruneOnlyStaleAndUnmuted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	fresh := NewState("fresh")
	fresh.LastSeen = t0
	stale := NewState("stale")
	stale.LastSeen = t0.Add(-13 * time.Hour)
	staleMuted := NewState("muted")
	staleMuted.LastSeen = t0.Add(-13 * time.Hour)
	staleMuted.MuteUntil = t0.Add(time.Hour)

	for _, st := range []State{fresh, stale, staleMuted} {
		require.NoError(t, store.Save(ctx, st))
	}

	removed := store.Prune(t0, 12*time.Hour)
	assert.Equal(t, 1, removed)
	_, ok, _ := store.Load(ctx, "stale")
	assert.False(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_JanitorStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, nil), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, ok, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	st := sampleState()
	require.NoError(t, store.Save(ctx, st))
	assert.Equal(t, time.Hour, mr.TTL("negotiation:"+st.ConversationID))

	got, ok, err := store.Load(ctx, st.ConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.Slot(SlotPlace).Value, got.Slot(SlotPlace).Value)
	assert.True(t, st.LastSeen.Equal(got.LastSeen))
	assert.Len(t, got.History, 1)

	require.NoError(t, store.Delete(ctx, st.ConversationID))
	_, ok, err = store.Load(ctx, st.ConversationID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("negotiation:bad", "{not json"))

	_, _, err := store.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	err := store.Save(context.Background(), sampleState())
	assert.Error(t, err)
}

type mockDynamo struct {
	items     map[string]map[string]types.AttributeValue
	putInput  *dynamodb.PutItemInput
	failWith  error
	deletions int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(key map[string]types.AttributeValue) string {
	if v, ok := key["conversationId"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.putInput = in
	m.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return &dynamodb.GetItemOutput{Item: m.items[keyOf(in.Key)]}, nil
}

func (m *mockDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.deletions++
	delete(m.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockDynamo()
	store := NewDynamoStore(mock, "negotiation_state", time.Hour, nil)
	store.now = func() time.Time { return t0 }

	st := sampleState()
	require.NoError(t, store.Save(ctx, st))

	var rec stateRecord
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInput.Item, &rec))
	assert.Equal(t, t0.Add(time.Hour).Unix(), rec.ExpiresAt)
	assert.Equal(t, st.ConversationID, rec.ConversationID)

	got, ok, err := store.Load(ctx, st.ConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "motel", got.Slot(SlotPlace).Value)
	assert.True(t, got.Slot(SlotPlace).LearnedAt.Equal(t0))

	require.NoError(t, store.Delete(ctx, st.ConversationID))
	_, ok, err = store.Load(ctx, st.ConversationID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoStore_PropagatesErrors(t *testing.T) {
	mock := newMockDynamo()
	mock.failWith = errors.New("throttled")
	store := NewDynamoStore(mock, "negotiation_state", 0, nil)

	err := store.Save(context.Background(), sampleState())
	assert.ErrorContains(t, err, "throttled")

	_, _, err = store.Load(context.Background(), "x")
	assert.ErrorContains(t, err, "throttled")
}

func TestDynamoStore_PanicsWithoutTable(t *testing.T) {
	assert.Panics(t, func() { NewDynamoStore(newMockDynamo(), "", 0, nil) })
}
