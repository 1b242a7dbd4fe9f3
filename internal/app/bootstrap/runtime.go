// Package bootstrap assembles the booking pipeline from configuration. Every
// binary builds its components here so they share one wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/wa-autoresponder/cmd/mainconfig"
	"github.com/wolfman30/wa-autoresponder/internal/api/router"
	"github.com/wolfman30/wa-autoresponder/internal/archive"
	"github.com/wolfman30/wa-autoresponder/internal/bookings"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-autoresponder/internal/http/middleware"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/internal/webchat"
	"github.com/wolfman30/wa-autoresponder/internal/worker"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Runtime holds the long-lived components of one process.
type Runtime struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry
	AWS      aws.Config

	Store        negotiation.Store
	Dispatcher   *llm.Dispatcher
	Sender       *messaging.Router
	WebChat      *webchat.Handler
	Orchestrator *orchestrator.Orchestrator
	Queue        worker.Queue
	Publisher    *worker.Publisher

	// Bookings is nil unless DATABASE_URL is set.
	Bookings *bookings.Service
	// Archive is nil unless ARCHIVE_BUCKET is set.
	Archive *archive.Store

	MessagingMetrics *metrics.MessagingMetrics

	closeOnce sync.Once
	closers   []func()
}

// Build wires every component from cfg. Background janitors stop when ctx is
// cancelled; Close releases connections.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	rt.Registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	rt.MessagingMetrics = metrics.NewMessagingMetrics(rt.Registry)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	rt.AWS = awsCfg

	rt.Store, err = mainconfig.NewStateStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, closeBackends, err := mainconfig.BuildDispatcher(ctx, cfg, awsCfg, logger, metrics.NewDispatcherMetrics(rt.Registry))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: model backends: %w", err)
	}
	rt.Dispatcher = dispatcher
	rt.addCloser(closeBackends)

	rt.Queue, err = BuildQueue(cfg, awsCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Publisher = worker.NewPublisher(rt.Queue, logger)

	rt.Sender = BuildSender(cfg, rt.MessagingMetrics, logger)

	if cfg.DatabaseURL != "" {
		svc, closeDB, err := BuildBookings(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Bookings = svc
		rt.addCloser(closeDB)
	}
	rt.Archive = BuildArchive(cfg, awsCfg, logger)

	rt.Orchestrator = orchestrator.New(
		rt.Store,
		negotiation.NewMachine(NegotiationPolicy(cfg), nil),
		rt.Dispatcher,
		rt.Sender,
		rt.orchestratorOptions(awsCfg)...,
	)
	rt.WebChat = webchat.NewHandler(rt.Publisher, rt.Orchestrator, logger)
	rt.Sender.Handle(messaging.ChannelWebChat, messaging.WebChatPrefix, rt.WebChat)
	return rt, nil
}

func (rt *Runtime) orchestratorOptions(awsCfg aws.Config) []orchestrator.Option {
	cfg := rt.Config
	opts := []orchestrator.Option{
		orchestrator.WithLogger(rt.Logger),
		orchestrator.WithMetrics(metrics.NewConversationMetrics(rt.Registry)),
		orchestrator.WithPromptBuilder(orchestrator.NewPromptBuilder(orchestrator.Profile{
			Name:       cfg.ProviderName,
			Website:    cfg.ProviderWebsite,
			Schedule:   cfg.ProviderSchedule,
			ExtraAreas: cfg.ProviderAreas,
			Rates:      cfg.ProviderRates,
		}, cfg.Persona)),
		orchestrator.WithAck(cfg.AckText),
		orchestrator.WithReplyDelay(cfg.ReplyDelayMin, cfg.ReplyDelayMax),
		orchestrator.WithNotifier(BuildNotifier(cfg, awsCfg, rt.Bookings, rt.Logger)),
	}
	if rt.Archive != nil {
		opts = append(opts, orchestrator.WithArchiver(rt.Archive))
	}
	return opts
}

// NegotiationPolicy maps the conversation timings from cfg.
func NegotiationPolicy(cfg *appconfig.Config) negotiation.Policy {
	return negotiation.Policy{
		StaleAfter:   cfg.StaleAfter,
		ReaskLock:    cfg.ReaskLock,
		MuteFor:      cfg.MuteFor,
		HistoryLimit: cfg.HistoryLimit,
	}
}

const (
	minJobTimeout  = 2 * time.Minute
	jobSendMargin  = 30 * time.Second
	defaultLLMWait = 25 * time.Second
)

// JobTimeout bounds one queued turn: the longest reply delay, a full model
// dispatch and the gateway sends must all fit inside it.
func JobTimeout(cfg *appconfig.Config) time.Duration {
	dispatch := cfg.LLMDispatchTimeout
	if dispatch <= 0 {
		dispatch = defaultLLMWait
	}
	d := cfg.ReplyDelayMax + dispatch + jobSendMargin
	if d < minJobTimeout {
		return minJobTimeout
	}
	return d
}

// NewWorker builds a worker pool draining the runtime queue into the orchestrator.
func (rt *Runtime) NewWorker(opts ...worker.WorkerOption) *worker.Worker {
	opts = append([]worker.WorkerOption{
		worker.WithWorkerCount(rt.Config.WorkerCount),
		worker.WithJobTimeout(JobTimeout(rt.Config)),
	}, opts...)
	return worker.NewWorker(rt.Orchestrator, rt.Queue, rt.Logger, opts...)
}

// Router builds the HTTP API. The webhook rate limiter's janitor runs until ctx
// is cancelled.
func (rt *Runtime) Router(ctx context.Context) http.Handler {
	cfg := rt.Config
	var ledger handlers.BookingLedger
	if rt.Bookings != nil {
		ledger = rt.Bookings
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.WebhookRateLimit > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
		go limiter.RunJanitor(ctx, 5*time.Minute)
	}

	return router.New(&router.Config{
		Logger:             rt.Logger,
		UltraMsgWebhook:    handlers.NewUltraMsgWebhookHandler(rt.Publisher, rt.MessagingMetrics, rt.Logger),
		WebChat:            rt.WebChat,
		Admin:              handlers.NewAdminHandler(rt.Orchestrator, rt.Dispatcher, ledger, rt.Logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		WebhookLimiter:     limiter,
		CORSAllowedOrigins: httpmiddleware.SplitOrigins(cfg.CORSOrigins),
	})
}

func (rt *Runtime) addCloser(fn func()) {
	if fn != nil {
		rt.closers = append(rt.closers, fn)
	}
}

// Close releases backend clients and database pools in reverse build order.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		for i := len(rt.closers) - 1; i >= 0; i-- {
			rt.closers[i]()
		}
	})
}
