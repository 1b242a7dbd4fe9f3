package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

type stubQueue struct {
	sent    []outgoing
	deleted []string
	sendErr error
}

func (s *stubQueue) Send(_ context.Context, msg outgoing) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubQueue) Receive(_ context.Context, _ int, _ int) ([]queueMessage, error) {
	return nil, context.Canceled
}

func (s *stubQueue) Delete(_ context.Context, receiptHandle string) error {
	s.deleted = append(s.deleted, receiptHandle)
	return nil
}

func TestPublisher_EnqueueInbound(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())
	publisher.now = func() time.Time { return time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC) }

	in := orchestrator.Inbound{MessageID: "wamid-1", ConversationID: "5511", Channel: "whatsapp", Text: "motel, 8pm, pix"}
	jobID, err := publisher.EnqueueInbound(context.Background(), in)
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if jobID != "wamid-1" {
		t.Fatalf("expected message id to become job id, got %s", jobID)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}
	msg := queue.sent[0]
	if msg.GroupID != "5511" || msg.DedupID != "wamid-1" {
		t.Fatalf("unexpected routing: %+v", msg)
	}

	job, err := decodeJob(msg.Body)
	if err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	if job.Inbound.Text != "motel, 8pm, pix" {
		t.Fatalf("expected text to survive the queue, got %q", job.Inbound.Text)
	}
	if !job.EnqueuedAt.Equal(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected enqueue time %s", job.EnqueuedAt)
	}
}

func TestPublisher_GeneratesJobID(t *testing.T) {
	queue := &stubQueue{}
	jobID, err := NewPublisher(queue, nil).EnqueueInbound(context.Background(), orchestrator.Inbound{ConversationID: "c"})
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if jobID == "" || queue.sent[0].DedupID != jobID {
		t.Fatalf("expected generated job id to be used for dedup, got %q", jobID)
	}
}

func TestPublisher_Errors(t *testing.T) {
	publisher := NewPublisher(&stubQueue{}, nil)
	if _, err := publisher.EnqueueInbound(context.Background(), orchestrator.Inbound{}); !errors.Is(err, orchestrator.ErrEmptyConversationID) {
		t.Fatalf("expected ErrEmptyConversationID, got %v", err)
	}

	publisher = NewPublisher(&stubQueue{sendErr: errors.New("queue full")}, nil)
	if _, err := publisher.EnqueueInbound(context.Background(), orchestrator.Inbound{ConversationID: "c"}); err == nil {
		t.Fatalf("expected send error")
	}
}
