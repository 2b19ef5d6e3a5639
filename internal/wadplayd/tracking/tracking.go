// Package tracking delivers fire-and-forget tracking beacons
package tracking

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
)

// DefaultTimeout bounds a single beacon
const DefaultTimeout = 2 * time.Second

// Firer sends tracking beacons. Every URL of an event is requested
// concurrently with its own timeout; failures are logged and counted only.
type Firer struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand

	inflight sync.WaitGroup
}

// Option configures a Firer
type Option func(*Firer)

// WithHTTPClient replaces the HTTP client used for beacons
func WithHTTPClient(c *http.Client) Option {
	return func(f *Firer) {
		f.client = c
	}
}

// WithMetrics counts beacon results
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Firer) {
		f.metrics = m
	}
}

// NewFirer creates a beacon firer with the given per-beacon timeout
func NewFirer(timeout time.Duration, logger zerolog.Logger, opts ...Option) *Firer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Firer{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger.With().Str("component", "tracking").Logger(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fire sends the beacons for one event and returns immediately. The
// caller's context only contributes values; its cancellation does not
// abort beacons already on their way.
func (f *Firer) Fire(ctx context.Context, event string, urls []string) {
	if len(urls) == 0 {
		return
	}

	base := context.WithoutCancel(ctx)
	expanded := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			expanded = append(expanded, f.expandMacros(u))
		}
	}

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()

		var g errgroup.Group
		for _, u := range expanded {
			u := u
			g.Go(func() error {
				return f.send(base, event, u)
			})
		}
		if err := g.Wait(); err != nil {
			f.logger.Warn().
				Err(err).
				Str("event", event).
				Int("beacons", len(expanded)).
				Msg("tracking event partially delivered")
			return
		}
		f.logger.Debug().
			Str("event", event).
			Int("beacons", len(expanded)).
			Msg("tracking event delivered")
	}()
}

// Wait blocks until every beacon fired so far has finished or timed out
func (f *Firer) Wait() {
	f.inflight.Wait()
}

func (f *Firer) send(ctx context.Context, event, target string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		f.metrics.ObserveBeacon(event, false)
		return werrors.NewError("TRACKING_FAILURE", "invalid beacon URL", "tracking.Fire",
			fmt.Errorf("%w: %v", werrors.ErrTrackingDelivery, err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveBeacon(event, false)
		f.logger.Warn().Err(err).Str("event", event).Msg("tracking beacon failed")
		return werrors.NewError("TRACKING_FAILURE", "beacon not delivered", "tracking.Fire",
			fmt.Errorf("%w: %v", werrors.ErrTrackingDelivery, err))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.metrics.ObserveBeacon(event, false)
		f.logger.Warn().Int("status", resp.StatusCode).Str("event", event).Msg("tracking beacon rejected")
		return werrors.NewError("TRACKING_FAILURE", fmt.Sprintf("beacon answered %d", resp.StatusCode), "tracking.Fire",
			werrors.ErrTrackingDelivery)
	}

	f.metrics.ObserveBeacon(event, true)
	return nil
}

// expandMacros substitutes the VAST [TIMESTAMP] and [CACHEBUSTING] macros,
// in plain or URL-encoded form. Values are URL-encoded.
func (f *Firer) expandMacros(u string) string {
	if !strings.Contains(u, "TIMESTAMP") && !strings.Contains(u, "CACHEBUSTING") {
		return u
	}

	ts := url.QueryEscape(f.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	f.mu.Lock()
	cb := fmt.Sprintf("%08d", f.rng.Intn(100000000))
	f.mu.Unlock()

	r := strings.NewReplacer(
		"[TIMESTAMP]", ts,
		"%5BTIMESTAMP%5D", ts,
		"[CACHEBUSTING]", cb,
		"%5BCACHEBUSTING%5D", cb,
	)
	return r.Replace(u)
}
