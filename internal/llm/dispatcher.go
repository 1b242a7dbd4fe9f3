package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFallbackText is returned when no backend produced a usable reply.
const DefaultFallbackText = "Sorry, I missed part of that. Could you tell me again the place, the time and how you'd like to pay?"

// Backend is one entry of the dispatch pool. Lower Priority is tried first.
type Backend struct {
	ID          string
	Priority    int
	Model       string
	MaxTokens   int32
	Temperature float32
	Client      Client
}

// Policy configures retries, the breaker and the overall time budget of a dispatch.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Breaker     BreakerPolicy
	// MaxCooldownWait bounds how long Generate waits when every backend is cooling
	// down. Negative disables the wait.
	MaxCooldownWait time.Duration
	// DispatchTimeout bounds one Generate call end to end.
	DispatchTimeout time.Duration
	FallbackText    string
}

// DefaultPolicy returns the production dispatch policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       1500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Breaker:         DefaultBreakerPolicy(),
		MaxCooldownWait: 20 * time.Second,
		DispatchTimeout: 25 * time.Second,
		FallbackText:    DefaultFallbackText,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	switch {
	case p.MaxCooldownWait == 0:
		p.MaxCooldownWait = def.MaxCooldownWait
	case p.MaxCooldownWait < 0:
		p.MaxCooldownWait = 0
	}
	if p.DispatchTimeout <= 0 {
		p.DispatchTimeout = def.DispatchTimeout
	}
	if strings.TrimSpace(p.FallbackText) == "" {
		p.FallbackText = def.FallbackText
	}
	return p
}

// Backoff returns the wait before retry number n (1-based): BaseDelay doubled
// per retry, capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Prompt is what the conversation layer asks the pool to answer.
type Prompt struct {
	System   []string
	Messages []Message
}

// Dispatcher sends prompts to an ordered backend pool. It is safe for concurrent use.
type Dispatcher struct {
	backends []Backend
	policy   Policy
	health   *HealthRegistry
	clock    Clock
	logger   *logging.Logger
	metrics  *metrics.DispatcherMetrics
	tracer   trace.Tracer
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHealthRegistry shares a registry, e.g. with an admin endpoint.
func WithHealthRegistry(h *HealthRegistry) DispatcherOption {
	return func(d *Dispatcher) {
		if h != nil {
			d.health = h
		}
	}
}

func WithClock(c Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *metrics.DispatcherMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// NewDispatcher validates the pool and returns a Dispatcher. An empty pool is
// ErrNoBackends.
func NewDispatcher(backends []Backend, policy Policy, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	seen := make(map[string]struct{}, len(backends))
	for _, b := range backends {
		if strings.TrimSpace(b.ID) == "" {
			return nil, errors.New("llm: backend id is required")
		}
		if b.Client == nil {
			return nil, fmt.Errorf("llm: backend %s has no client", b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("llm: duplicate backend id %s", b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	ordered := append([]Backend(nil), backends...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	policy = policy.withDefaults()
	d := &Dispatcher{
		backends: ordered,
		policy:   policy,
		clock:    SystemClock{},
		logger:   logging.Default(),
		tracer:   otel.Tracer("wa.internal.llm.dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.health == nil {
		d.health = NewHealthRegistry(policy.Breaker)
	}
	return d, nil
}

// Health exposes the registry backing the breaker.
func (d *Dispatcher) Health() *HealthRegistry {
	return d.health
}

// Backends returns the pool in dispatch order.
func (d *Dispatcher) Backends() []Backend {
	return append([]Backend(nil), d.backends...)
}

// Policy returns the effective policy.
func (d *Dispatcher) Policy() Policy {
	return d.policy
}

// Generate returns a non-empty reply for prompt. When every backend fails it
// returns the fallback text and a nil error; the only error is ErrNoBackends.
func (d *Dispatcher) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if d == nil || len(d.backends) == 0 {
		return "", ErrNoBackends
	}

	ctx, cancel := context.WithTimeout(ctx, d.policy.DispatchTimeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "llm.generate")
	defer span.End()

	waited := false
	for {
		candidates := d.candidates(d.clock.Now())
		if len(candidates) == 0 {
			if waited || !d.waitForCooldown(ctx) {
				break
			}
			waited = true
			continue
		}

		for _, b := range candidates {
			text, err := d.tryBackend(ctx, b, prompt)
			if err == nil {
				span.SetAttributes(attribute.String("wa.llm.backend", b.ID))
				return text, nil
			}
			if ctx.Err() != nil {
				return d.fallback(span, "timeout", ctx.Err()), nil
			}
		}
		break
	}

	return d.fallback(span, "exhausted", ErrPoolExhausted), nil
}

func (d *Dispatcher) candidates(now time.Time) []Backend {
	out := make([]Backend, 0, len(d.backends))
	for _, b := range d.backends {
		if d.health.Available(b.ID, now) {
			out = append(out, b)
		}
	}
	return out
}

// waitForCooldown sleeps until the earliest cooldown expiry if that is within
// MaxCooldownWait. It reports whether the wait completed.
func (d *Dispatcher) waitForCooldown(ctx context.Context) bool {
	now := d.clock.Now()
	ids := make([]string, 0, len(d.backends))
	for _, b := range d.backends {
		ids = append(ids, b.ID)
	}
	until, ok := d.health.EarliestCooldownEnd(ids, now)
	if !ok {
		return true
	}
	wait := until.Sub(now)
	if wait > d.policy.MaxCooldownWait {
		d.logger.Warn("all backends cooling down beyond wait budget",
			"wait", wait.String(),
			"max_wait", d.policy.MaxCooldownWait.String(),
		)
		return false
	}
	d.logger.Info("all backends cooling down, waiting", "wait", wait.String())
	return d.clock.Sleep(ctx, wait) == nil
}

func (d *Dispatcher) tryBackend(ctx context.Context, b Backend, prompt Prompt) (string, error) {
	ctx, span := d.tracer.Start(ctx, "llm.backend")
	defer span.End()
	span.SetAttributes(attribute.String("wa.llm.backend", b.ID), attribute.String("wa.llm.model", b.Model))

	req := Request{
		Model:       b.Model,
		System:      prompt.System,
		Messages:    prompt.Messages,
		MaxTokens:   b.MaxTokens,
		Temperature: b.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.clock.Sleep(ctx, d.policy.Backoff(attempt-1)); err != nil {
				return "", err
			}
		}

		start := d.clock.Now()
		resp, err := b.Client.Complete(ctx, req)
		elapsed := d.clock.Now().Sub(start).Seconds()
		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			d.health.RecordSuccess(b.ID, d.clock.Now())
			d.metrics.ObserveAttempt(b.ID, "ok", elapsed)
			span.SetAttributes(attribute.Int("wa.llm.attempts", attempt))
			return strings.TrimSpace(resp.Text), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		transient := IsTransient(err)
		d.metrics.ObserveAttempt(b.ID, attemptResult(err, transient), elapsed)
		span.RecordError(err)
		if d.health.RecordFailure(b.ID, transient, d.clock.Now(), err) {
			d.metrics.ObserveCooldown(b.ID)
			d.logger.Warn("backend entered cooldown",
				"backend", b.ID,
				"until", d.health.Get(b.ID).CooldownUntil,
			)
		}
		d.logger.Warn("backend call failed",
			"backend", b.ID,
			"attempt", attempt,
			"transient", transient,
			"error", err.Error(),
		)
		if !transient {
			break
		}
	}
	span.SetStatus(codes.Error, "backend failed")
	return "", lastErr
}

func attemptResult(err error, transient bool) string {
	switch {
	case transient:
		return "transient"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "permanent"
	}
}

func (d *Dispatcher) fallback(span trace.Span, reason string, cause error) string {
	span.SetAttributes(attribute.String("wa.llm.fallback", reason))
	d.metrics.ObserveFallback(reason)
	d.logger.Error("dispatch fell back to canned reply",
		"reason", reason,
		"error", cause.Error(),
	)
	return d.policy.FallbackText
}
