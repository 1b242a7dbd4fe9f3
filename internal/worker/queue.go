// Package worker moves inbound chat messages from the webhook to the
// orchestrator through a queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
)

// Queue carries jobs from publishers to workers. MemoryQueue and SQSQueue
// implement it.
type Queue interface {
	Send(ctx context.Context, msg outgoing) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// outgoing is one message to enqueue. GroupID keeps messages of a conversation
// in order on FIFO queues; DedupID lets FIFO queues drop redelivered webhooks.
type outgoing struct {
	Body    string
	GroupID string
	DedupID string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job is the queued form of one inbound message.
type Job struct {
	ID         string               `json:"id"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	Inbound    orchestrator.Inbound `json:"inbound"`
}

func encodeJob(in orchestrator.Inbound, now time.Time) (Job, outgoing, error) {
	job := Job{ID: in.MessageID, EnqueuedAt: now.UTC(), Inbound: in}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, outgoing{}, fmt.Errorf("worker: failed to encode job: %w", err)
	}
	return job, outgoing{Body: string(body), GroupID: in.ConversationID, DedupID: job.ID}, nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("worker: failed to decode job: %w", err)
	}
	return job, nil
}
