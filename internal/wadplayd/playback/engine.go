// Package playback drives the presentation of a single ad: preload while
// off-screen, start on the display trigger, fire progress tracking and
// confirm the playout.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
	"github.com/wrale/wrale-adplay/internal/wadplayd/exchange"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

// State is the playback engine state
type State int

const (
	StateIdle State = iota
	StatePreloading
	StatePreloaded
	StatePlaying
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreloading:
		return "preloading"
	case StatePreloaded:
		return "preloaded"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Kind tells the engine how progress is measured
type Kind string

const (
	// KindVideo reports progress from the element's own position
	KindVideo Kind = "video"
	// KindImage is timed by the engine against the creative duration
	KindImage Kind = "image"
)

// Source is what an Element is asked to load
type Source struct {
	URL      string
	MimeType string
	Kind     Kind
	// Duration is the creative duration declared by the descriptor
	Duration time.Duration
}

// Element is the media surface
type Element interface {
	// Load starts acquiring the source off-screen and returns its futures
	Load(ctx context.Context, src Source) Signals
	// Attach makes the loaded media visible
	Attach() error
	Play() error
	Pause()
	// Reset detaches the media and clears its source
	Reset()
}

// Tracker fires tracking beacons without blocking
type Tracker interface {
	Fire(ctx context.Context, event string, urls []string)
}

// Confirmer reports finished playouts to the exchange
type Confirmer interface {
	ConfirmPlayout(ctx context.Context, dealID string, playout exchange.Playout) (exchange.Ack, error)
}

// Config holds engine timing and selection settings
type Config struct {
	PreloadTimeout       time.Duration
	DefaultImageDuration time.Duration
	// StallTimeout ends playback when the media stops reporting progress
	StallTimeout     time.Duration
	ProgressInterval time.Duration
	MimePreferences  []string
	Player           v1alpha1.PlayerInfo
}

func (c Config) withDefaults() Config {
	if c.PreloadTimeout <= 0 {
		c.PreloadTimeout = 20 * time.Second
	}
	if c.DefaultImageDuration <= 0 {
		c.DefaultImageDuration = 15 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 10 * time.Second
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 250 * time.Millisecond
	}
	return c
}

var quartiles = []struct {
	threshold float64
	event     string
}{
	{0.25, vast.EventFirstQuartile},
	{0.50, vast.EventMidpoint},
	{0.75, vast.EventThirdQuartile},
}

// Engine plays one ad. It is single use: create a new Engine per cycle.
type Engine struct {
	element   Element
	tracker   Tracker
	confirmer Confirmer
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// ctx outlives Preload and Play calls; it is cancelled by Cleanup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	started bool
	closed  bool
	session *Session
	signals Signals
	kind    Kind
	err     error

	stop        chan struct{}
	done        chan struct{}
	doneOnce    sync.Once
	cleanupOnce sync.Once
}

// NewEngine creates an idle engine
func NewEngine(element Element, tracker Tracker, confirmer Confirmer, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		element:   element,
		tracker:   tracker,
		confirmer: confirmer,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "playback").Logger(),
		metrics:   m,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done is closed when playback reached Completed or Errored, or the engine
// was cleaned up before it could
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the failure that ended playback, if any
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Session returns the current session, nil before Preload
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Report summarises the session
func (e *Engine) Report() Report {
	s := e.Session()
	if s == nil {
		return Report{}
	}
	return s.report()
}

// Preload selects the media and acquires it off-screen. It returns once
// the media can start, failing on error, timeout or ctx cancellation.
func (e *Engine) Preload(ctx context.Context, desc *vast.Descriptor) error {
	e.mu.Lock()
	if e.state != StateIdle || e.closed {
		state := e.state
		e.mu.Unlock()
		return werrors.NewError("INVALID_STATE", fmt.Sprintf("preload in state %s", state), "playback.Preload", werrors.ErrInvalidState)
	}

	media := desc.SelectBestMedia(e.cfg.MimePreferences)
	if media == nil {
		e.mu.Unlock()
		return e.fail(werrors.NewError("NO_MEDIA", "descriptor has no playable media", "playback.Preload", werrors.ErrMediaAcquisition))
	}

	src := Source{URL: media.URL, MimeType: media.MimeType, Kind: KindVideo}
	if media.IsImage() || desc.Creative.Type == vast.CreativeNonLinear {
		src.Kind = KindImage
	}
	if desc.Creative.DurationSeconds > 0 {
		src.Duration = time.Duration(desc.Creative.DurationSeconds * float64(time.Second))
	}

	e.session = newSession(desc, media)
	e.kind = src.Kind
	e.state = StatePreloading
	e.mu.Unlock()

	logger := e.logger.With().Str("sessionId", e.session.ID.String()).Logger()
	logger.Info().
		Str("url", media.URL).
		Str("mimeType", media.MimeType).
		Str("kind", string(src.Kind)).
		Msg("preloading media")

	start := e.now()
	signals := e.element.Load(e.ctx, src)

	e.mu.Lock()
	e.signals = signals
	e.mu.Unlock()

	if err := e.awaitReady(ctx, signals); err != nil {
		return e.fail(err)
	}

	e.mu.Lock()
	if e.state != StatePreloading || e.closed {
		e.mu.Unlock()
		return werrors.NewError("INVALID_STATE", "engine cleaned up during preload", "playback.Preload", werrors.ErrInvalidState)
	}
	e.state = StatePreloaded
	e.mu.Unlock()

	elapsed := e.now().Sub(start)
	e.metrics.ObservePreload(elapsed)
	logger.Info().Dur("elapsed", elapsed).Msg("media preloaded")
	return nil
}

// awaitReady races metadata and can-play readiness against the preload
// timeout. Can-play-through is deliberately not awaited.
func (e *Engine) awaitReady(ctx context.Context, s Signals) error {
	timer := time.NewTimer(e.cfg.PreloadTimeout)
	defer timer.Stop()

	metadata, canPlay := s.Metadata, s.CanPlay
	for metadata != nil || canPlay != nil {
		select {
		case <-metadata:
			metadata = nil
		case <-canPlay:
			canPlay = nil
		case err, ok := <-s.Failed:
			if !ok {
				err = errors.New("media element closed")
			}
			return werrors.NewError("MEDIA_LOAD", "media failed to load", "playback.Preload",
				fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, err))
		case <-timer.C:
			return werrors.NewError("MEDIA_TIMEOUT", fmt.Sprintf("media not ready within %s", e.cfg.PreloadTimeout), "playback.Preload",
				werrors.ErrMediaAcquisition)
		case <-ctx.Done():
			return werrors.NewError("MEDIA_TIMEOUT", "preload abandoned", "playback.Preload",
				fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, ctx.Err()))
		case <-e.stop:
			return werrors.NewError("INVALID_STATE", "engine cleaned up during preload", "playback.Preload", werrors.ErrInvalidState)
		}
	}
	return nil
}

// Play moves a preloaded engine to Playing. Only the first call acts;
// later calls are logged and ignored.
func (e *Engine) Play(ctx context.Context, dealID string) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		e.logger.Info().Msg("display trigger already handled, ignoring")
		return nil
	}
	if e.state != StatePreloaded || e.closed {
		state := e.state
		e.mu.Unlock()
		return werrors.NewError("INVALID_STATE", fmt.Sprintf("play in state %s", state), "playback.Play", werrors.ErrInvalidState)
	}
	e.started = true
	e.state = StatePlaying
	session, signals, kind := e.session, e.signals, e.kind
	e.mu.Unlock()

	session.start(dealID, e.now())

	if err := e.element.Attach(); err != nil {
		return e.fail(werrors.NewError("MEDIA_ATTACH", "media could not be attached", "playback.Play",
			fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, err)))
	}

	e.fire(ctx, session, vast.EventImpression)

	if err := e.element.Play(); err != nil {
		return e.fail(werrors.NewError("MEDIA_PLAY", "media could not start", "playback.Play",
			fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, err)))
	}

	e.logger.Info().
		Str("sessionId", session.ID.String()).
		Str("dealId", dealID).
		Msg("playback started")

	if kind == KindImage {
		go e.runImage(session, signals)
	} else {
		go e.runVideo(session, signals)
	}
	return nil
}

func (e *Engine) runVideo(session *Session, s Signals) {
	stall := time.NewTimer(e.cfg.StallTimeout)
	defer stall.Stop()
	resetStall := func() {
		if !stall.Stop() {
			select {
			case <-stall.C:
			default:
			}
		}
		stall.Reset(e.cfg.StallTimeout)
	}

	playing, updates := s.Playing, s.Time
	var duration float64
	for {
		select {
		case <-e.stop:
			return
		case <-playing:
			playing = nil
			e.fire(e.ctx, session, vast.EventStart)
			resetStall()
		case p, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if p.Duration > 0 {
				duration = p.Duration
			}
			e.progress(session, p)
			resetStall()
		case <-s.Ended:
			if duration <= 0 {
				duration = session.Descriptor.Creative.DurationSeconds
			}
			e.complete(session, duration)
			return
		case err, ok := <-s.Failed:
			if !ok {
				err = errors.New("media element closed")
			}
			e.fail(werrors.NewError("MEDIA_PLAYBACK", "media failed during playback", "playback.run",
				fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, err)))
			return
		case <-stall.C:
			e.fail(werrors.NewError("MEDIA_STALLED", fmt.Sprintf("no progress for %s", e.cfg.StallTimeout), "playback.run",
				werrors.ErrMediaAcquisition))
			return
		}
	}
}

// runImage simulates progress against the wall clock
func (e *Engine) runImage(session *Session, s Signals) {
	duration := e.cfg.DefaultImageDuration
	if d := session.Descriptor.Creative.DurationSeconds; d > 0 {
		duration = time.Duration(d * float64(time.Second))
	}

	e.fire(e.ctx, session, vast.EventStart)

	start := e.now()
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()
	end := time.NewTimer(duration)
	defer end.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.progress(session, Progress{
				Current:  e.now().Sub(start).Seconds(),
				Duration: duration.Seconds(),
			})
		case <-end.C:
			e.progress(session, Progress{Current: duration.Seconds(), Duration: duration.Seconds()})
			e.complete(session, duration.Seconds())
			return
		case err, ok := <-s.Failed:
			if !ok {
				continue
			}
			e.fail(werrors.NewError("MEDIA_PLAYBACK", "image failed during playback", "playback.run",
				fmt.Errorf("%w: %v", werrors.ErrMediaAcquisition, err)))
			return
		}
	}
}

// progress fires the quartiles reached, lowest first. Reports without a
// positive duration are ignored.
func (e *Engine) progress(session *Session, p Progress) {
	if p.Duration <= 0 || math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) || math.IsNaN(p.Current) {
		return
	}
	session.advance(p.Current, p.Duration)

	ratio := p.Current / p.Duration
	for _, q := range quartiles {
		if ratio < q.threshold {
			break
		}
		e.fire(e.ctx, session, q.event)
	}
}

func (e *Engine) complete(session *Session, duration float64) {
	session.complete(duration)
	e.fire(e.ctx, session, vast.EventComplete)

	e.mu.Lock()
	e.state = StateCompleted
	e.mu.Unlock()
	e.logger.Info().Str("sessionId", session.ID.String()).Msg("playback completed")

	e.confirm(session, duration)
	e.finish()
}

// confirm reports the playout; failures are logged and never change state
func (e *Engine) confirm(session *Session, duration float64) {
	r := session.report()
	logger := e.logger.With().Str("sessionId", session.ID.String()).Str("dealId", r.DealID).Logger()

	if r.DealID == "" {
		logger.Warn().Msg("no deal bound to session, playout not confirmed")
		e.metrics.ObserveConfirmation(false)
		return
	}
	if e.confirmer == nil {
		return
	}

	ack, err := e.confirmer.ConfirmPlayout(e.ctx, r.DealID, exchange.Playout{
		PlayedAt:              r.StartedAt,
		DurationSeconds:       duration,
		CompletionRatePercent: r.CompletionRate,
		Player:                e.cfg.Player,
	})
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("playout confirmation failed")
		e.metrics.ObserveConfirmation(false)
	case !ack.Acknowledged:
		logger.Warn().Int("status", ack.StatusCode).Str("reason", ack.Reason).Msg("playout not acknowledged")
		e.metrics.ObserveConfirmation(false)
	default:
		session.setConfirmed(true)
		logger.Info().Int("completionRate", r.CompletionRate).Msg("playout confirmed")
		e.metrics.ObserveConfirmation(true)
	}
}

// fail moves the engine to Errored, releases its resources and returns err
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return err
	}
	e.state = StateErrored
	e.err = err
	session := e.session
	e.mu.Unlock()

	e.logger.Error().Err(err).Msg("playback failed")
	if session != nil {
		e.fire(e.ctx, session, vast.EventError)
	}
	e.finish()
	return err
}

func (e *Engine) finish() {
	e.doneOnce.Do(func() { close(e.done) })
	e.Cleanup()
}

func (e *Engine) fire(ctx context.Context, session *Session, event string) {
	if !session.markFired(event) {
		return
	}
	urls := session.Descriptor.Tracking(event)
	e.logger.Debug().
		Str("sessionId", session.ID.String()).
		Str("event", event).
		Int("beacons", len(urls)).
		Msg("tracking event")
	if len(urls) > 0 && e.tracker != nil {
		e.tracker.Fire(ctx, event, urls)
	}
}

// Cleanup pauses and detaches the media, stops timers and clears the fired
// set. It is safe to call more than once and from any state.
func (e *Engine) Cleanup() {
	e.cleanupOnce.Do(func() {
		close(e.stop)
		e.cancel()
		e.element.Pause()
		e.element.Reset()

		e.mu.Lock()
		e.closed = true
		session := e.session
		e.mu.Unlock()
		if session != nil {
			session.reset()
		}
		e.doneOnce.Do(func() { close(e.done) })
	})
}
