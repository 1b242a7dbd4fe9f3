package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/wa-autoresponder/internal/archive"
	"github.com/wolfman30/wa-autoresponder/internal/bookings"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/notify"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/internal/worker"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// ErrQueueNotConfigured is returned when neither SQS nor the memory queue is selected.
var ErrQueueNotConfigured = errors.New("bootstrap: CONVERSATION_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")

// BuildQueue returns the in-process queue when USE_MEMORY_QUEUE is set and the
// SQS queue otherwise.
func BuildQueue(cfg *appconfig.Config, awsCfg aws.Config) (worker.Queue, error) {
	if cfg.UseMemoryQueue {
		return worker.NewMemoryQueue(0), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, ErrQueueNotConfigured
	}
	return worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL), nil
}

// BuildSender routes replies to UltraMsg by default. The web chat route is
// registered once its handler exists.
func BuildSender(cfg *appconfig.Config, m *metrics.MessagingMetrics, logger *logging.Logger) *messaging.Router {
	ultra := messaging.NewUltraMsgClient(messaging.UltraMsgConfig{
		BaseURL:    cfg.UltraMsgBaseURL,
		InstanceID: cfg.UltraMsgInstanceID,
		Token:      cfg.UltraMsgToken,
	}, logger)

	var fallback messaging.Sender
	if ultra.Configured() {
		fallback = ultra
	} else {
		logger.Warn("ultramsg not configured; whatsapp replies will not be delivered")
	}
	return messaging.NewRouter(messaging.ChannelWhatsApp, fallback, m, logger)
}

// BuildBookings connects the closed-booking ledger. The returned func closes the pool.
func BuildBookings(ctx context.Context, databaseURL string, logger *logging.Logger) (*bookings.Service, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("booking ledger enabled")
	return bookings.NewService(bookings.NewRepository(pool), logger), pool.Close, nil
}

// BuildArchive returns the S3 transcript archive, or nil without ARCHIVE_BUCKET.
func BuildArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *archive.Store {
	bucket := strings.TrimSpace(cfg.ArchiveBucket)
	if bucket == "" {
		return nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	logger.Info("conversation archive enabled", "bucket", bucket)
	return archive.NewStore(client, bucket, logger)
}

// BuildEmailSender picks SendGrid, then SES, then a logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg
	}
	if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); ses != nil {
		return ses
	}
	return notify.NewStubEmailSender(logger)
}

// BuildNotifier wires the BookingClosed handler: ledger insert plus alert email.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, ledger *bookings.Service, logger *logging.Logger) *notify.Service {
	var recorder notify.BookingRecorder
	if ledger != nil {
		recorder = ledger
	}
	return notify.NewService(BuildEmailSender(cfg, awsCfg, logger), recorder, cfg.AlertEmailTo, logger)
}
