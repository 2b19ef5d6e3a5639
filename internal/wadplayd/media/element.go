// Package media provides the headless playback.Element used by the daemon.
// It acquires the media over HTTP and keeps a playback clock; rendering is
// left to the host, which loads the same URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/internal/wadplayd/playback"
)

// DefaultInitialBurst is how many bytes must arrive before playback may start
const DefaultInitialBurst = 256 << 10

var (
	errNotLoaded   = errors.New("media not loaded")
	errNotAttached = errors.New("media not attached")
)

// Element acquires an initial burst of the media and then runs a clock
// reporting position until the declared duration elapses
type Element struct {
	client   *http.Client
	burst    int64
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	src      playback.Source
	emitter  *playback.Emitter
	ready    bool
	attached bool
	cancel   context.CancelFunc
	clock    chan struct{}
}

// NewElement creates an element. burst and interval fall back to defaults
// when not positive.
func NewElement(client *http.Client, burst int64, interval time.Duration, logger zerolog.Logger) *Element {
	if client == nil {
		client = &http.Client{}
	}
	if burst <= 0 {
		burst = DefaultInitialBurst
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Element{
		client:   client,
		burst:    burst,
		interval: interval,
		logger:   logger.With().Str("component", "media").Logger(),
	}
}

// Load starts acquiring src in the background
func (e *Element) Load(ctx context.Context, src playback.Source) playback.Signals {
	e.Reset()

	loadCtx, cancel := context.WithCancel(ctx)
	emitter := playback.NewEmitter()

	e.mu.Lock()
	e.src = src
	e.emitter = emitter
	e.cancel = cancel
	e.mu.Unlock()

	go e.acquire(loadCtx, src, emitter)
	return emitter.Signals()
}

func (e *Element) acquire(ctx context.Context, src playback.Source, emitter *playback.Emitter) {
	if src.Kind == playback.KindVideo && src.Duration <= 0 {
		emitter.Fail(errors.New("media duration unknown"))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		emitter.Fail(fmt.Errorf("invalid media URL: %w", err))
		return
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", e.burst-1))

	resp, err := e.client.Do(req)
	if err != nil {
		emitter.Fail(fmt.Errorf("media request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		emitter.Fail(fmt.Errorf("media request answered %d", resp.StatusCode))
		return
	}
	emitter.Metadata()

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, e.burst))
	if err != nil {
		emitter.Fail(fmt.Errorf("media download interrupted: %w", err))
		return
	}
	if n == 0 {
		emitter.Fail(errors.New("media is empty"))
		return
	}

	e.mu.Lock()
	current := e.emitter == emitter
	if current {
		e.ready = true
	}
	e.mu.Unlock()
	if !current {
		return
	}

	e.logger.Debug().
		Str("url", src.URL).
		Int64("bytes", n).
		Int("status", resp.StatusCode).
		Msg("initial media burst buffered")
	emitter.CanPlay()
}

// Attach marks the buffered media as visible
func (e *Element) Attach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return errNotLoaded
	}
	e.attached = true
	return nil
}

// Play starts the playback clock
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return errNotAttached
	}
	if e.clock != nil {
		return nil
	}

	e.clock = make(chan struct{})
	go e.run(e.src, e.emitter, e.clock)
	return nil
}

func (e *Element) run(src playback.Source, emitter *playback.Emitter, stop <-chan struct{}) {
	emitter.Playing()
	if src.Kind == playback.KindImage {
		// Images are timed by the engine
		return
	}

	total := src.Duration.Seconds()
	start := time.Now()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	end := time.NewTimer(src.Duration)
	defer end.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			emitter.Time(playback.Progress{Current: time.Since(start).Seconds(), Duration: total})
		case <-end.C:
			emitter.Time(playback.Progress{Current: total, Duration: total})
			emitter.Ended()
			return
		}
	}
}

// Pause stops the playback clock
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clock != nil {
		close(e.clock)
		e.clock = nil
	}
}

// Reset detaches the media, abandons any download and clears the source
func (e *Element) Reset() {
	e.Pause()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.src = playback.Source{}
	e.emitter = nil
	e.ready = false
	e.attached = false
}
