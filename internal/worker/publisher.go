package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  Queue
	now    func() time.Time
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, now: time.Now, logger: logger}
}

// EnqueueInbound publishes one inbound message and returns its job id.
func (p *Publisher) EnqueueInbound(ctx context.Context, in orchestrator.Inbound) (string, error) {
	if in.ConversationID == "" {
		return "", orchestrator.ErrEmptyConversationID
	}
	job, msg, err := encodeJob(in, p.now())
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("worker: failed to enqueue job: %w", err)
	}
	p.logger.Debug("inbound job enqueued", "job_id", job.ID, "conversation_id", in.ConversationID, "channel", in.Channel)
	return job.ID, nil
}
