package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

// IdentityProperties is the property bag the host publishes about the screen.
// Every field is optional.
type IdentityProperties struct {
	// SlotID is the per-slot identifier
	SlotID *string `json:"slotId,omitempty"`
	// GroupID is the group or display identifier
	GroupID *string `json:"groupId,omitempty"`
	// HardwareID is the player hardware identifier
	HardwareID *string `json:"hardwareId,omitempty"`
	// Resolution is the display resolution, e.g. "1920x1080"
	Resolution *string `json:"resolution,omitempty"`
	// Metadata carries any further host fields
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StatusMessage is pushed to host status subscribers
type StatusMessage struct {
	// TypeMeta describes API version details
	TypeMeta `json:",inline"`
	// CycleID identifies the cycle the status belongs to
	CycleID uuid.UUID `json:"cycleId"`
	// Status is the serialized status: wait, ready, skip or skip:<reason>
	Status string `json:"status"`
	// UpdatedAt is when the status was read
	UpdatedAt time.Time `json:"updatedAt"`
}

// CycleStarted is returned when the host starts a cycle
type CycleStarted struct {
	TypeMeta `json:",inline"`
	CycleID  uuid.UUID `json:"cycleId"`
}

// CycleRecord summarises a finished cycle from the playout journal
type CycleRecord struct {
	CycleID        uuid.UUID `json:"cycleId"`
	ScreenID       string    `json:"screenId,omitempty"`
	IdentitySource string    `json:"identitySource,omitempty"`
	OfferID        string    `json:"offerId,omitempty"`
	DealID         string    `json:"dealId,omitempty"`
	Status         string    `json:"status"`
	Result         string    `json:"result"`
	CompletionRate int       `json:"completionRate"`
	Confirmed      bool      `json:"confirmed"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Error          string    `json:"error,omitempty"`
}

// CycleRecordList wraps journal listings
type CycleRecordList struct {
	TypeMeta `json:",inline"`
	Items    []CycleRecord `json:"items"`
}
