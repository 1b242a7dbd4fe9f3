package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Handler processes one inbound message. *orchestrator.Orchestrator satisfies it.
type Handler interface {
	HandleInbound(ctx context.Context, in orchestrator.Inbound) (orchestrator.Turn, error)
}

// Worker consumes inbound jobs from the queue and hands them to the handler.
type Worker struct {
	handler Handler
	queue   Queue
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultJobTimeout    = 2 * time.Minute
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds the time spent on one job, reply delay included.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// JobTimeout reports the deadline applied to each handled job.
func (w *Worker) JobTimeout() time.Duration {
	return w.cfg.jobTimeout
}

// NewWorker wires a queue consumer.
func NewWorker(handler Handler, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("worker: handler cannot be nil")
	}
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{handler: handler, queue: queue, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()

	turn, err := w.handler.HandleInbound(jobCtx, job.Inbound)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the message for redelivery.
			w.logger.Warn("job interrupted by shutdown", "job_id", job.ID, "conversation_id", job.Inbound.ConversationID)
			return
		}
		w.logger.Error("inbound job failed", "error", err, "job_id", job.ID, "conversation_id", job.Inbound.ConversationID)
	} else {
		w.logger.Debug("inbound job processed", "job_id", job.ID, "outcome", turn.Outcome.String(), "sent", turn.Sent)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}
