// Package journal records the outcome of every ad cycle
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cycle results
const (
	ResultCompleted = "completed"
	ResultErrored   = "errored"
	ResultSkipped   = "skipped"
	ResultExpired   = "expired"
)

// Entry is one finished cycle
type Entry struct {
	CycleID        uuid.UUID
	ScreenID       string
	IdentitySource string
	OfferID        string
	DealID         string
	// Status is the host-facing status the cycle ended with
	Status string
	// Result is one of the Result constants
	Result         string
	CompletionRate int
	Confirmed      bool
	StartedAt      time.Time
	FinishedAt     time.Time
	Error          string
}

// Journal stores cycle entries
type Journal interface {
	// Record stores or replaces the entry for its cycle
	Record(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// DefaultMemorySize is the ring capacity used when none is configured
const DefaultMemorySize = 256

// Memory is an in-process ring of the most recent entries
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewMemory creates a ring holding up to size entries
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{entries: make([]Entry, size)}
}

// Record implements Journal
func (m *Memory) Record(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if (m.full || i < m.next) && m.entries[i].CycleID == entry.CycleID {
			m.entries[i] = entry
			return nil
		}
	}

	m.entries[m.next] = entry
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent implements Journal
func (m *Memory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := m.next
	if m.full {
		count = len(m.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.entries)) % len(m.entries)
		out = append(out, m.entries[idx])
	}
	return out, nil
}
