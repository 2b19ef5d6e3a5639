package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrale/wrale-adplay/internal/wadplayd/exchange"
	"github.com/wrale/wrale-adplay/internal/wadplayd/identity"
	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

// LifecycleContext carries everything one cycle learns, from the resolved
// identity to the deal. A new one is created for every cycle.
type LifecycleContext struct {
	ID        uuid.UUID
	StartedAt time.Time
	Status    *StatusChannel

	mu         sync.RWMutex
	identity   identity.Identity
	offer      *exchange.Offer
	descriptor *vast.Descriptor
	dealID     string

	triggerOnce sync.Once
	trigger     chan struct{}
}

func newLifecycleContext(now time.Time) *LifecycleContext {
	return &LifecycleContext{
		ID:        uuid.New(),
		StartedAt: now,
		Status:    NewStatusChannel(),
		trigger:   make(chan struct{}),
	}
}

// Identity returns the screen identity, zero until resolved
func (lc *LifecycleContext) Identity() identity.Identity {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.identity
}

// Offer returns the offer being played, nil until one is received
func (lc *LifecycleContext) Offer() *exchange.Offer {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.offer
}

// Descriptor returns the decoded ad, nil until decoded
func (lc *LifecycleContext) Descriptor() *vast.Descriptor {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.descriptor
}

// DealID returns the resolved deal, "" until accepted
func (lc *LifecycleContext) DealID() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.dealID
}

func (lc *LifecycleContext) setIdentity(id identity.Identity) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.identity = id
}

func (lc *LifecycleContext) setOffer(o *exchange.Offer) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.offer = o
}

func (lc *LifecycleContext) setDescriptor(d *vast.Descriptor) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.descriptor = d
}

func (lc *LifecycleContext) setDealID(id string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.dealID = id
}

// Trigger records that the host wants playback to start. Repeated calls are no-ops.
func (lc *LifecycleContext) Trigger() {
	lc.triggerOnce.Do(func() { close(lc.trigger) })
}

// Triggered is closed once Trigger has been called
func (lc *LifecycleContext) Triggered() <-chan struct{} {
	return lc.trigger
}
