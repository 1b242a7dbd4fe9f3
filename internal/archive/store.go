// Package archive writes the transcripts of closed conversations to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

const recordVersion = "1.0"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives closed conversations to S3.
type Store struct {
	bucket   string
	s3Client S3API
	now      func() time.Time
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Enabled reports whether archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveConversation writes the scrubbed transcript of a closed conversation
// and appends it to the monthly manifest.
func (s *Store) ArchiveConversation(ctx context.Context, st negotiation.State, facts negotiation.BookingFacts) error {
	if !s.Enabled() {
		return nil
	}
	return s.Put(ctx, BuildRecord(st, facts, s.now()))
}

// BuildRecord converts a conversation state into an archive record with PII removed.
func BuildRecord(st negotiation.State, facts negotiation.BookingFacts, at time.Time) *Record {
	msgs := make([]Message, 0, len(st.History))
	for _, turn := range st.History {
		msgs = append(msgs, Message{Role: string(turn.Role), Content: turn.Content, Timestamp: turn.At})
	}
	ScrubMessages(msgs)

	var duration int
	if len(msgs) >= 2 {
		duration = int(msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Seconds())
	}

	channel := messaging.ChannelWhatsApp
	if strings.HasPrefix(st.ConversationID, messaging.WebChatPrefix) {
		channel = messaging.ChannelWebChat
	}

	return &Record{
		Version:         recordVersion,
		ConversationKey: HashID(st.ConversationID),
		Channel:         channel,
		ArchivedAt:      at,
		DurationSeconds: duration,
		MessageCount:    len(msgs),
		Outcome:         "booking_closed",
		Booking:         Booking{Place: facts.Place, Time: facts.Time, Payment: facts.Payment},
		Messages:        msgs,
	}
}

// Put writes record as JSON and appends a manifest line.
func (s *Store) Put(ctx context.Context, record *Record) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	at := record.ArchivedAt
	if at.IsZero() {
		at = s.now()
	}
	key := fmt.Sprintf("conversations/v1/by-date/%d/%02d/%02d/%s-%d.json",
		at.Year(), at.Month(), at.Day(), record.ConversationKey, at.Unix())

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived conversation to S3",
		"conversation_key", record.ConversationKey,
		"s3_key", key,
		"message_count", record.MessageCount,
	)

	entry := ManifestEntry{
		ConversationKey: record.ConversationKey,
		S3Key:           key,
		Channel:         record.Channel,
		ArchivedAt:      at.Format(time.RFC3339),
		MessageCount:    record.MessageCount,
		Outcome:         record.Outcome,
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		s.logger.Warn("failed to append manifest", "error", err, "conversation_key", record.ConversationKey)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest. S3 has no
// append, so the object is read, extended and written back.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now()
	manifestKey := fmt.Sprintf("conversations/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
