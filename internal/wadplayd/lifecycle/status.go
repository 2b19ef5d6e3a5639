package lifecycle

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// StatusKind is the variant of a Status
type StatusKind int

const (
	// KindWait means the cycle is still preparing
	KindWait StatusKind = iota
	// KindReady means media is buffered and the deal is secured
	KindReady
	// KindSkip means the host should move on without playing
	KindSkip
)

// Skip reasons reported to the host
const (
	ReasonNoIdentity       = "no identity"
	ReasonNoOffer          = "no offer available"
	ReasonExchangeFailure  = "exchange failure"
	ReasonDecodeFailed     = "decode failed"
	ReasonOfferDeclined    = "offer declined"
	ReasonMediaFailed      = "media failed"
	ReasonLifecycleTimeout = "lifecycle timeout"
)

// Status is the host-visible readiness of a cycle. Reason is only set for Skip.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Wait returns the initial status
func Wait() Status { return Status{Kind: KindWait} }

// Ready returns the ready status
func Ready() Status { return Status{Kind: KindReady} }

// Skip returns a skip status with an optional reason
func Skip(reason string) Status { return Status{Kind: KindSkip, Reason: reason} }

// String renders the wire form: wait, ready, skip or skip:<reason>
func (s Status) String() string {
	switch s.Kind {
	case KindReady:
		return "ready"
	case KindSkip:
		if s.Reason == "" {
			return "skip"
		}
		return "skip:" + s.Reason
	default:
		return "wait"
	}
}

// ParseStatus reads the wire form produced by String
func ParseStatus(v string) (Status, error) {
	switch {
	case v == "wait":
		return Wait(), nil
	case v == "ready":
		return Ready(), nil
	case v == "skip":
		return Skip(""), nil
	case strings.HasPrefix(v, "skip:"):
		return Skip(strings.TrimPrefix(v, "skip:")), nil
	}
	return Status{}, fmt.Errorf("unknown status %q", v)
}

// StatusChannel holds the status of one cycle. Reads never block; the only
// allowed transitions are Wait to Ready and Wait to Skip.
type StatusChannel struct {
	current atomic.Pointer[Status]
}

// NewStatusChannel returns a channel in the Wait state
func NewStatusChannel() *StatusChannel {
	c := &StatusChannel{}
	initial := Wait()
	c.current.Store(&initial)
	return c
}

// Get returns the current status
func (c *StatusChannel) Get() Status {
	return *c.current.Load()
}

// Set moves the channel out of Wait. It reports false when the status has
// already left Wait or next is itself Wait.
func (c *StatusChannel) Set(next Status) bool {
	if next.Kind == KindWait {
		return false
	}
	cur := c.current.Load()
	if cur.Kind != KindWait {
		return false
	}
	return c.current.CompareAndSwap(cur, &next)
}
