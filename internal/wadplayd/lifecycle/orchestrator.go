// Package lifecycle drives one ad cycle from identity resolution to a
// confirmed playout and publishes the host-facing readiness status.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
	"github.com/wrale/wrale-adplay/internal/wadplayd/exchange"
	"github.com/wrale/wrale-adplay/internal/wadplayd/identity"
	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
	"github.com/wrale/wrale-adplay/internal/wadplayd/playback"
	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

// ErrCycleInProgress is returned when a cycle is started while another runs
var ErrCycleInProgress = werrors.NewError(
	"CYCLE_IN_PROGRESS",
	"a cycle is already running",
	"lifecycle.Start",
	werrors.ErrInvalidState,
)

// DefaultMaxLifecycle bounds the time from offer request to display trigger
const DefaultMaxLifecycle = 2 * time.Minute

const rejectTimeout = 5 * time.Second

// IdentityResolver returns the current screen identity
type IdentityResolver interface {
	Resolve(ctx context.Context) (identity.Identity, bool)
}

// Exchange is the part of the exchange client a cycle negotiates with.
// Confirmation is sent by the player.
type Exchange interface {
	RequestOffer(ctx context.Context, screenID string, minPriceCents int64, format exchange.Format) (exchange.OfferResult, error)
	RespondToOffer(ctx context.Context, offerID string, decision exchange.Decision) (exchange.DecisionResult, error)
}

// Player plays one descriptor. *playback.Engine implements it.
type Player interface {
	Preload(ctx context.Context, desc *vast.Descriptor) error
	Play(ctx context.Context, dealID string) error
	Done() <-chan struct{}
	Err() error
	State() playback.State
	Report() playback.Report
	Cleanup()
}

// PlayerFactory creates the player for a cycle
type PlayerFactory func(lc *LifecycleContext) Player

// StatusListener is told about every status a cycle publishes, starting with Wait
type StatusListener func(cycleID uuid.UUID, status Status)

// Config holds the cycle parameters
type Config struct {
	MinPriceCents int64
	Format        exchange.Format
	MaxLifecycle  time.Duration
}

// Outcome summarizes a finished cycle
type Outcome struct {
	CycleID uuid.UUID
	Status  Status
	// Result is one of the journal Result constants
	Result string
	Reason string
	Report *playback.Report
	Err    error
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithJournal records every finished cycle
func WithJournal(j journal.Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithMetrics counts cycles and skips
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStatusListener adds a listener for status changes
func WithStatusListener(l StatusListener) Option {
	return func(o *Orchestrator) {
		o.listeners = append(o.listeners, l)
	}
}

// Orchestrator runs cycles one at a time
type Orchestrator struct {
	resolver  IdentityResolver
	exchange  Exchange
	newPlayer PlayerFactory
	cfg       Config
	logger    zerolog.Logger
	journal   journal.Journal
	metrics   *metrics.Metrics
	listeners []StatusListener
	now       func() time.Time

	mu             sync.Mutex
	running        bool
	pendingTrigger bool
	current        atomic.Pointer[LifecycleContext]
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(resolver IdentityResolver, ex Exchange, newPlayer PlayerFactory, cfg Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxLifecycle <= 0 {
		cfg.MaxLifecycle = DefaultMaxLifecycle
	}
	if cfg.Format == "" {
		cfg.Format = exchange.FormatVAST
	}

	o := &Orchestrator{
		resolver:  resolver,
		exchange:  ex,
		newPlayer: newPlayer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current returns the running or most recent cycle, nil before the first
func (o *Orchestrator) Current() *LifecycleContext {
	return o.current.Load()
}

// Status returns the status of the current cycle, Wait before the first
func (o *Orchestrator) Status() Status {
	if lc := o.current.Load(); lc != nil {
		return lc.Status.Get()
	}
	return Wait()
}

// Trigger asks the running cycle to start playback. A trigger that arrives
// before the first cycle exists is held for it; once a cycle has run, a
// trigger with nothing running is dropped. Calling it repeatedly is harmless.
func (o *Orchestrator) Trigger() {
	o.mu.Lock()
	defer o.mu.Unlock()

	lc := o.current.Load()
	switch {
	case o.running:
		lc.Trigger()
	case lc == nil:
		o.pendingTrigger = true
	default:
		o.logger.Info().
			Str("lastCycle", lc.ID.String()).
			Msg("display trigger with no cycle running, ignoring")
	}
}

// Start runs a cycle in the background and returns its id
func (o *Orchestrator) Start(ctx context.Context) (uuid.UUID, error) {
	lc, err := o.begin()
	if err != nil {
		return uuid.Nil, err
	}
	go o.run(ctx, lc)
	return lc.ID, nil
}

// RunCycle runs a cycle to its end
func (o *Orchestrator) RunCycle(ctx context.Context) Outcome {
	lc, err := o.begin()
	if err != nil {
		return Outcome{Result: journal.ResultSkipped, Status: Wait(), Err: err}
	}
	return o.run(ctx, lc)
}

func (o *Orchestrator) begin() (*LifecycleContext, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	lc := newLifecycleContext(o.now())
	if o.pendingTrigger {
		lc.Trigger()
		o.pendingTrigger = false
	}
	o.running = true
	o.current.Store(lc)
	o.mu.Unlock()

	o.notify(lc, Wait())
	return lc, nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
}

// stepError tags a failure with the skip reason it causes
type stepError struct {
	reason string
	err    error
}

func (e *stepError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (o *Orchestrator) run(ctx context.Context, lc *LifecycleContext) Outcome {
	defer o.release()

	logger := o.logger.With().Str("cycleID", lc.ID.String()).Logger()
	logger.Info().Msg("cycle started")

	lifeCtx, cancel := context.WithTimeout(ctx, o.cfg.MaxLifecycle)
	defer cancel()

	out := Outcome{CycleID: lc.ID}

	player, err := o.prepare(lifeCtx, lc, logger)
	if err != nil {
		var step *stepError
		reason := ReasonExchangeFailure
		if errors.As(err, &step) {
			reason = step.reason
		}
		if errors.Is(lifeCtx.Err(), context.DeadlineExceeded) {
			reason = ReasonLifecycleTimeout
		}
		o.skip(lc, reason, logger)
		out.Result = journal.ResultSkipped
		out.Reason = reason
		out.Err = err
		return o.finish(ctx, lc, out, logger)
	}

	o.setStatus(lc, Ready(), logger)
	logger.Info().Str("dealId", lc.DealID()).Msg("cycle ready, awaiting display trigger")

	select {
	case <-lc.Triggered():
	case <-lifeCtx.Done():
		player.Cleanup()
		out.Result = journal.ResultExpired
		out.Reason = ReasonLifecycleTimeout
		out.Err = werrors.NewError("LIFECYCLE_TIMEOUT", "display trigger never arrived", "lifecycle.run", werrors.ErrLifecycleTimeout)
		return o.finish(ctx, lc, out, logger)
	}

	// Once playing, the cycle no longer answers to the lifecycle deadline
	playCtx := context.WithoutCancel(ctx)
	if err := player.Play(playCtx, lc.DealID()); err != nil {
		player.Cleanup()
		out.Result = journal.ResultErrored
		out.Err = err
		return o.finish(ctx, lc, out, logger)
	}

	<-player.Done()

	report := player.Report()
	out.Report = &report
	if player.State() == playback.StateCompleted {
		out.Result = journal.ResultCompleted
	} else {
		out.Result = journal.ResultErrored
		out.Err = player.Err()
	}
	player.Cleanup()

	return o.finish(ctx, lc, out, logger)
}

// prepare takes the cycle up to Ready. The returned player is preloaded.
func (o *Orchestrator) prepare(ctx context.Context, lc *LifecycleContext, logger zerolog.Logger) (Player, error) {
	id, ok := o.resolver.Resolve(ctx)
	if !ok {
		return nil, &stepError{ReasonNoIdentity, werrors.ErrIdentityUnavailable}
	}
	lc.setIdentity(id)

	result, err := o.exchange.RequestOffer(ctx, id.ID, o.cfg.MinPriceCents, o.cfg.Format)
	if err != nil {
		return nil, &stepError{o.exchangeReason(ctx), err}
	}
	if !result.Available() {
		logger.Info().
			Int("status", result.StatusCode).
			Str("reason", result.Reason).
			Msg("no offer available")
		return nil, &stepError{ReasonNoOffer, werrors.ErrNoOfferAvailable}
	}
	offer := result.Offer
	lc.setOffer(offer)

	desc, err := vast.Decode(offer.Payload)
	if err != nil {
		o.reject(ctx, offer.ID, ReasonDecodeFailed, logger)
		return nil, &stepError{ReasonDecodeFailed, err}
	}
	lc.setDescriptor(desc)

	player := o.newPlayer(lc)
	var decision exchange.DecisionResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := player.Preload(gctx, desc); err != nil {
			return &stepError{ReasonMediaFailed, err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		decision, err = o.exchange.RespondToOffer(gctx, offer.ID, exchange.Accept(offer.PriceCents))
		if err != nil {
			return &stepError{o.exchangeReason(ctx), err}
		}
		if decision.Declined {
			return &stepError{ReasonOfferDeclined, werrors.NewError(
				"OFFER_DECLINED",
				decision.Reason,
				"lifecycle.accept",
				werrors.ErrClientRejected,
			)}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		player.Cleanup()
		var step *stepError
		if errors.As(err, &step) && step.reason == ReasonMediaFailed {
			o.reject(ctx, offer.ID, ReasonMediaFailed, logger)
		}
		return nil, err
	}

	lc.setDealID(firstNonEmpty(decision.DealID, offer.DealID, desc.DealID))
	return player, nil
}

// exchangeReason distinguishes a failure caused by the lifecycle deadline
func (o *Orchestrator) exchangeReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonLifecycleTimeout
	}
	return ReasonExchangeFailure
}

// reject tells the exchange the offer will not be played. Failures are logged only.
func (o *Orchestrator) reject(ctx context.Context, offerID, reason string, logger zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rejectTimeout)
	defer cancel()

	if _, err := o.exchange.RespondToOffer(rctx, offerID, exchange.Reject(reason)); err != nil {
		logger.Warn().
			Err(err).
			Str("offerId", offerID).
			Msg("failed to reject offer")
	}
}

func (o *Orchestrator) skip(lc *LifecycleContext, reason string, logger zerolog.Logger) {
	if o.setStatus(lc, Skip(reason), logger) {
		o.metrics.IncSkip(reason)
	}
}

func (o *Orchestrator) setStatus(lc *LifecycleContext, s Status, logger zerolog.Logger) bool {
	if !lc.Status.Set(s) {
		logger.Warn().
			Str("current", lc.Status.Get().String()).
			Str("next", s.String()).
			Msg("status transition refused")
		return false
	}
	o.notify(lc, s)
	return true
}

func (o *Orchestrator) notify(lc *LifecycleContext, s Status) {
	for _, l := range o.listeners {
		l(lc.ID, s)
	}
}

func (o *Orchestrator) finish(ctx context.Context, lc *LifecycleContext, out Outcome, logger zerolog.Logger) Outcome {
	out.Status = lc.Status.Get()
	o.metrics.IncCycle(out.Result)

	event := logger.Info()
	if out.Result == journal.ResultErrored {
		event = logger.Warn().Err(out.Err)
	}
	if desc := lc.Descriptor(); desc != nil {
		event = event.
			Str("adId", desc.Ad.ID).
			Str("adTitle", desc.Ad.Title).
			Str("advertiser", desc.Ad.Advertiser)
	}
	event.
		Str("status", out.Status.String()).
		Str("result", out.Result).
		Str("reason", out.Reason).
		Msg("cycle finished")

	if o.journal == nil {
		return out
	}

	entry := journal.Entry{
		CycleID:        lc.ID,
		ScreenID:       lc.Identity().ID,
		IdentitySource: string(lc.Identity().Source),
		DealID:         lc.DealID(),
		Status:         out.Status.String(),
		Result:         out.Result,
		StartedAt:      lc.StartedAt,
		FinishedAt:     o.now(),
	}
	if offer := lc.Offer(); offer != nil {
		entry.OfferID = offer.ID
	}
	if out.Report != nil {
		entry.CompletionRate = out.Report.CompletionRate
		entry.Confirmed = out.Report.Confirmed
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rejectTimeout)
	defer cancel()
	if err := o.journal.Record(jctx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to record cycle")
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
