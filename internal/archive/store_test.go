package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
)

type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

var archivedAt = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func closedState() negotiation.State {
	st := negotiation.NewState("5511912345678")
	st.History = []negotiation.Turn{
		{Role: negotiation.RoleUser, Content: "hi, my number is +55 11 91234-5678", At: archivedAt.Add(-10 * time.Minute)},
		{Role: negotiation.RoleAssistant, Content: "Hi! Where would you like to meet?", At: archivedAt.Add(-9 * time.Minute)},
		{Role: negotiation.RoleUser, Content: "motel, 8pm, pix", At: archivedAt.Add(-time.Minute)},
		{Role: negotiation.RoleAssistant, Content: "Perfect, it's booked.", At: archivedAt},
	}
	return st
}

func TestStore_ArchiveConversation(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	store.now = func() time.Time { return archivedAt }

	facts := negotiation.BookingFacts{Place: "short-stay venue", Time: "20:00", Payment: "pix"}
	require.NoError(t, store.ArchiveConversation(context.Background(), closedState(), facts))

	require.Len(t, mock.putCalls, 2, "record plus manifest")
	key := HashID("5511912345678")
	assert.Equal(t, "conversations/v1/by-date/2026/03/14/"+key+"-1773518400.json", mock.putCalls[0].key)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)

	var decoded Record
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, key, decoded.ConversationKey)
	assert.Equal(t, "whatsapp", decoded.Channel)
	assert.Equal(t, 4, decoded.MessageCount)
	assert.Equal(t, 600, decoded.DurationSeconds)
	assert.Equal(t, "pix", decoded.Booking.Payment)
	assert.Equal(t, "hi, my number is [PHONE]", decoded.Messages[0].Content)
	assert.NotContains(t, string(mock.putCalls[0].body), "5511912345678")

	assert.Equal(t, "conversations/v1/manifests/2026-03.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, key, entry.ConversationKey)
	assert.Equal(t, "booking_closed", entry.Outcome)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.ArchiveConversation(context.Background(), closedState(), negotiation.BookingFacts{}))
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{ConversationKey: "a"}))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{ConversationKey: "b"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestStore_ManifestReadFailure(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "test-bucket", nil)

	err := store.AppendManifest(context.Background(), ManifestEntry{ConversationKey: "a"})
	require.Error(t, err)
	assert.Empty(t, mock.putCalls, "an unreadable manifest is never overwritten")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&s3types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("NoSuchKey")))
}

func TestBuildRecordWebChat(t *testing.T) {
	st := negotiation.NewState("webchat:abc")
	rec := BuildRecord(st, negotiation.BookingFacts{}, archivedAt)
	assert.Equal(t, "webchat", rec.Channel)
	assert.Equal(t, 0, rec.DurationSeconds)
}
