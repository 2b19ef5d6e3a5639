package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

// Session is the mutable state of one ad playback. Its fired set
// guarantees at most one beacon per event name while the session lives.
type Session struct {
	ID         uuid.UUID
	Descriptor *vast.Descriptor
	Media      *vast.MediaCandidate

	mu             sync.Mutex
	dealID         string
	startedAt      time.Time
	completionRate int
	position       float64
	fired          map[string]bool
	confirmed      bool
}

func newSession(desc *vast.Descriptor, media *vast.MediaCandidate) *Session {
	return &Session{
		ID:         uuid.New(),
		Descriptor: desc,
		Media:      media,
		fired:      make(map[string]bool),
	}
}

// markFired records event and reports whether it was new
func (s *Session) markFired(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired == nil || s.fired[event] {
		return false
	}
	s.fired[event] = true
	return true
}

func (s *Session) wasFired(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[event]
}

func (s *Session) start(dealID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dealID = dealID
	s.startedAt = at
}

// advance records a position and returns the completion rate, which never decreases
func (s *Session) advance(position, duration float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if position > s.position {
		s.position = position
	}
	rate := int(position / duration * 100)
	if rate > 100 {
		rate = 100
	}
	if rate > s.completionRate {
		s.completionRate = rate
	}
	return s.completionRate
}

// complete marks a natural end. The media reached its end, so the rate is
// 100 even when the last progress report came earlier.
func (s *Session) complete(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completionRate = 100
	if duration > s.position {
		s.position = duration
	}
}

func (s *Session) setConfirmed(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = ok
}

// reset clears the fired set; the session must not fire afterwards
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = nil
}

// Report is a point-in-time summary of a session
type Report struct {
	SessionID      uuid.UUID
	DealID         string
	MediaURL       string
	StartedAt      time.Time
	Position       float64
	CompletionRate int
	Confirmed      bool
}

func (s *Session) report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{
		SessionID:      s.ID,
		DealID:         s.dealID,
		StartedAt:      s.startedAt,
		Position:       s.position,
		CompletionRate: s.completionRate,
		Confirmed:      s.confirmed,
	}
	if s.Media != nil {
		r.MediaURL = s.Media.URL
	}
	return r
}
