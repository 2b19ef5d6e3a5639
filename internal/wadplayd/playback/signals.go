package playback

import "sync"

// Progress is a playback position report, in seconds
type Progress struct {
	Current  float64
	Duration float64
}

// Signals are the readiness futures of a loaded media element. Each struct{}
// channel is closed exactly once when its condition is reached; Failed
// delivers at most one error. A nil channel means the element never
// reports that condition.
type Signals struct {
	// Metadata is closed once dimensions and duration are known
	Metadata <-chan struct{}
	// CanPlay is closed once enough data to start is buffered
	CanPlay <-chan struct{}
	// Playing is closed when playback actually began
	Playing <-chan struct{}
	// Ended is closed at natural end of media
	Ended <-chan struct{}
	// Failed delivers a load or playback error
	Failed <-chan error
	// Time delivers position updates while playing
	Time <-chan Progress
}

type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) resolve() {
	l.once.Do(func() { close(l.ch) })
}

// Emitter is the producing side of Signals, used by Element implementations
type Emitter struct {
	metadata *latch
	canPlay  *latch
	playing  *latch
	ended    *latch

	failOnce sync.Once
	failed   chan error
	time     chan Progress
}

// NewEmitter creates an emitter with unresolved futures
func NewEmitter() *Emitter {
	return &Emitter{
		metadata: newLatch(),
		canPlay:  newLatch(),
		playing:  newLatch(),
		ended:    newLatch(),
		failed:   make(chan error, 1),
		time:     make(chan Progress, 16),
	}
}

// Signals returns the consuming side
func (e *Emitter) Signals() Signals {
	return Signals{
		Metadata: e.metadata.ch,
		CanPlay:  e.canPlay.ch,
		Playing:  e.playing.ch,
		Ended:    e.ended.ch,
		Failed:   e.failed,
		Time:     e.time,
	}
}

// Metadata resolves the metadata future
func (e *Emitter) Metadata() { e.metadata.resolve() }

// CanPlay resolves the "enough data to start" future
func (e *Emitter) CanPlay() { e.canPlay.resolve() }

// Playing resolves the "began playing" future
func (e *Emitter) Playing() { e.playing.resolve() }

// Ended resolves the end-of-media future
func (e *Emitter) Ended() { e.ended.resolve() }

// Fail reports the first error; later calls are ignored
func (e *Emitter) Fail(err error) {
	e.failOnce.Do(func() { e.failed <- err })
}

// Time reports a position update. Updates are dropped while the consumer
// is behind; a later report supersedes them.
func (e *Emitter) Time(p Progress) {
	select {
	case e.time <- p:
	default:
	}
}
