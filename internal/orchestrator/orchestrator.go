// Package orchestrator runs one inbound chat message through the booking state
// machine and, when details are still missing, the model pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Inbound is one message received from a client.
type Inbound struct {
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Turn reports what HandleInbound did.
type Turn struct {
	ConversationID string
	Outcome        negotiation.Outcome
	Reply          string
	Sent           bool
	Missing        []negotiation.Slot
	Facts          *negotiation.BookingFacts
}

// Generator produces a reply for a prompt. *llm.Dispatcher satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Notifier receives the BookingClosed event once per closed negotiation.
type Notifier interface {
	NotifyBookingClosed(ctx context.Context, conversationID string, facts negotiation.BookingFacts) error
}

// Archiver stores the transcript of a closed conversation.
type Archiver interface {
	ArchiveConversation(ctx context.Context, st negotiation.State, facts negotiation.BookingFacts) error
}

// Clock abstracts time for the humanized reply delay.
type Clock = llm.Clock

// ErrEmptyConversationID is returned for inbound messages without a key.
var ErrEmptyConversationID = errors.New("orchestrator: conversation id required")

// Orchestrator is the composition root of one conversational turn.
type Orchestrator struct {
	store     negotiation.Store
	machine   *negotiation.Machine
	generator Generator
	sender    messaging.Sender
	prompts   *PromptBuilder
	notifier  Notifier
	archiver  Archiver
	locks     *KeyedLocker
	clock     Clock
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	tracer    trace.Tracer

	ackText  string
	delayMin time.Duration
	delayMax time.Duration
	rand     func(n int64) int64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier wires the BookingClosed notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithArchiver wires the closed-conversation archive.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithPromptBuilder overrides the default prompt builder.
func WithPromptBuilder(b *PromptBuilder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// WithAck sends text right away whenever a generated reply is on its way.
func WithAck(text string) Option {
	return func(o *Orchestrator) { o.ackText = strings.TrimSpace(text) }
}

// WithReplyDelay waits a random duration in [min, max] before generating a
// reply so answers do not arrive instantly.
func WithReplyDelay(min, max time.Duration) Option {
	return func(o *Orchestrator) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		o.delayMin, o.delayMax = min, max
	}
}

// WithClock overrides the clock used for the reply delay.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics wires conversation metrics.
func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New wires an Orchestrator. store, machine, generator and sender are required.
func New(store negotiation.Store, machine *negotiation.Machine, generator Generator, sender messaging.Sender, opts ...Option) *Orchestrator {
	if store == nil {
		panic("orchestrator: store cannot be nil")
	}
	if machine == nil {
		panic("orchestrator: machine cannot be nil")
	}
	if generator == nil {
		panic("orchestrator: generator cannot be nil")
	}
	if sender == nil {
		panic("orchestrator: sender cannot be nil")
	}
	o := &Orchestrator{
		store:     store,
		machine:   machine,
		generator: generator,
		sender:    sender,
		prompts:   NewPromptBuilder(Profile{}, ""),
		locks:     NewKeyedLocker(),
		clock:     llm.SystemClock{},
		logger:    logging.Default(),
		tracer:    otel.Tracer("wa.internal.orchestrator"),
		rand:      rand.Int63n,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleInbound processes one inbound message end to end. Only configuration
// errors (no backends), store failures and cancellation are returned; delivery
// and notification failures are logged and reflected in Turn.Sent.
func (o *Orchestrator) HandleInbound(ctx context.Context, in Inbound) (Turn, error) {
	id := strings.TrimSpace(in.ConversationID)
	if id == "" {
		return Turn{}, ErrEmptyConversationID
	}
	now := in.ReceivedAt
	if now.IsZero() {
		now = o.clock.Now()
	}
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle_inbound")
	defer span.End()
	span.SetAttributes(
		attribute.String("wa.conversation_id", id),
		attribute.String("wa.channel", in.Channel),
	)

	unlock := o.locks.Lock(id)
	defer unlock()

	logger := o.logger.With("conversation_id", id)
	turn, err := o.handleLocked(ctx, logger, id, in.Text, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return turn, err
	}
	span.SetAttributes(attribute.String("wa.outcome", turn.Outcome.String()))
	o.metrics.ObserveTurn(turn.Outcome.String(), time.Since(started).Seconds())
	logger.Info("inbound handled", "outcome", turn.Outcome.String(), "sent", turn.Sent, "missing", slotNames(turn.Missing))
	return turn, nil
}

func (o *Orchestrator) handleLocked(ctx context.Context, logger *logging.Logger, id, text string, now time.Time) (Turn, error) {
	st, err := o.load(ctx, id)
	if err != nil {
		return Turn{}, err
	}

	next, res := o.machine.Advance(st, text, now)
	turn := Turn{ConversationID: id, Outcome: res.Outcome, Missing: res.Missing, Facts: res.Facts}

	switch res.Outcome {
	case negotiation.OutcomeMuted, negotiation.OutcomeAlreadyClosed:
		return turn, nil
	case negotiation.OutcomeReadyToClose:
		return o.close(ctx, logger, next, *res.Facts, turn, now)
	}

	// Persist what was learned before any slow work so a crash mid-reply does
	// not lose captured slots.
	if err := o.save(ctx, next); err != nil {
		return turn, err
	}

	if o.ackText != "" {
		if err := o.sender.Send(ctx, id, o.ackText); err != nil {
			logger.Warn("ack send failed", "error", err)
		}
	}
	if err := o.humanDelay(ctx); err != nil {
		return turn, err
	}

	reply, err := o.generator.Generate(ctx, o.prompts.Build(next, res.Missing))
	if err != nil {
		return turn, fmt.Errorf("orchestrator: generate reply: %w", err)
	}
	reply = messaging.Truncate(strings.TrimSpace(reply))
	turn.Reply = reply

	next = o.machine.MarkAsked(next, res.Missing, now)
	next.AppendAssistant(reply, o.clock.Now(), o.machine.Policy().HistoryLimit)
	if err := o.save(ctx, next); err != nil {
		return turn, err
	}

	turn.Sent = o.send(ctx, logger, id, reply)
	return turn, nil
}

func (o *Orchestrator) close(ctx context.Context, logger *logging.Logger, st negotiation.State, facts negotiation.BookingFacts, turn Turn, now time.Time) (Turn, error) {
	reply := o.prompts.Closing(facts)
	st.AppendAssistant(reply, now, o.machine.Policy().HistoryLimit)
	if err := o.save(ctx, st); err != nil {
		return turn, err
	}
	turn.Reply = reply
	turn.Sent = o.send(ctx, logger, st.ConversationID, reply)
	o.announceClosed(ctx, logger, st, facts)
	return turn, nil
}

// announceClosed runs once per closure transition, after the closed state is
// persisted.
func (o *Orchestrator) announceClosed(ctx context.Context, logger *logging.Logger, st negotiation.State, facts negotiation.BookingFacts) {
	o.metrics.ObserveBookingClosed()
	logger.Info("booking closed", "place", facts.Place, "time", facts.Time, "payment", facts.Payment)

	if o.notifier != nil {
		if err := o.notifier.NotifyBookingClosed(ctx, st.ConversationID, facts); err != nil {
			logger.Error("booking notification failed", "error", err)
		}
	}
	if o.archiver != nil {
		if err := o.archiver.ArchiveConversation(ctx, st, facts); err != nil {
			logger.Warn("transcript archive failed", "error", err)
		}
	}
}

func (o *Orchestrator) send(ctx context.Context, logger *logging.Logger, id, text string) bool {
	if err := o.sender.Send(ctx, id, text); err != nil {
		logger.Error("reply send failed", "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) humanDelay(ctx context.Context) error {
	if o.delayMax <= 0 {
		return nil
	}
	d := o.delayMin
	if spread := o.delayMax - o.delayMin; spread > 0 {
		d += time.Duration(o.rand(int64(spread) + 1))
	}
	if d <= 0 {
		return nil
	}
	if err := o.clock.Sleep(ctx, d); err != nil {
		return fmt.Errorf("orchestrator: reply delay interrupted: %w", err)
	}
	return nil
}

// Advance applies text to the stored conversation without generating or
// sending anything. A closing transition still notifies and archives.
func (o *Orchestrator) Advance(ctx context.Context, conversationID, text string, now time.Time) (negotiation.State, negotiation.Result, error) {
	if strings.TrimSpace(conversationID) == "" {
		return negotiation.State{}, negotiation.Result{}, ErrEmptyConversationID
	}
	unlock := o.locks.Lock(conversationID)
	defer unlock()

	st, err := o.load(ctx, conversationID)
	if err != nil {
		return negotiation.State{}, negotiation.Result{}, err
	}
	next, res := o.machine.Advance(st, text, now)
	if res.Outcome == negotiation.OutcomeMuted || res.Outcome == negotiation.OutcomeAlreadyClosed {
		return next, res, nil
	}
	if err := o.save(ctx, next); err != nil {
		return negotiation.State{}, negotiation.Result{}, err
	}
	if res.Outcome == negotiation.OutcomeReadyToClose && res.Facts != nil {
		o.announceClosed(ctx, o.logger.With("conversation_id", conversationID), next, *res.Facts)
	}
	return next, res, nil
}

// Generate passes prompt to the model pool.
func (o *Orchestrator) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	return o.generator.Generate(ctx, prompt)
}

// Conversation returns the stored state for id.
func (o *Orchestrator) Conversation(ctx context.Context, id string) (negotiation.State, bool, error) {
	unlock := o.locks.Lock(id)
	defer unlock()
	return o.store.Load(ctx, id)
}

// Reset forgets a conversation entirely.
func (o *Orchestrator) Reset(ctx context.Context, id string) error {
	unlock := o.locks.Lock(id)
	defer unlock()
	return o.store.Delete(ctx, id)
}

// Unmute lifts the mute window and starts a fresh negotiation so the next
// message is answered. It reports false when the conversation does not exist.
func (o *Orchestrator) Unmute(ctx context.Context, id string) (negotiation.State, bool, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	st, ok, err := o.store.Load(ctx, id)
	if err != nil || !ok {
		return st, ok, err
	}
	st = st.Clone()
	st.Reopen()
	if err := o.save(ctx, st); err != nil {
		return negotiation.State{}, true, err
	}
	return st, true, nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (negotiation.State, error) {
	st, ok, err := o.store.Load(ctx, id)
	if err != nil {
		return negotiation.State{}, fmt.Errorf("orchestrator: load state: %w", err)
	}
	if !ok {
		st = negotiation.NewState(id)
	}
	return st, nil
}

func (o *Orchestrator) save(ctx context.Context, st negotiation.State) error {
	if err := o.store.Save(ctx, st); err != nil {
		return fmt.Errorf("orchestrator: save state: %w", err)
	}
	return nil
}

func slotNames(slots []negotiation.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, string(s))
	}
	return out
}
