// Package v1alpha1 contains the wire types spoken by the ad runtime: the
// ad-exchange REST calls and the host-facing boundary.
package v1alpha1

import (
	"encoding/json"
	"time"
)

// TypeMeta describes an individual object's type and API version
type TypeMeta struct {
	// Kind is a string value representing the type of this object
	Kind string `json:"kind,omitempty"`
	// APIVersion defines the versioned schema of this object
	APIVersion string `json:"apiVersion,omitempty"`
}

// APIVersion is the version string stamped on host-facing objects
const APIVersion = "v1alpha1"

// OfferEnvelope is the JSON form of an offer returned by the exchange
type OfferEnvelope struct {
	// OfferID identifies the offer in later calls
	OfferID string `json:"offerId"`
	// DealID is set when the exchange has already bound a deal
	DealID string `json:"dealId,omitempty"`
	// PriceCents is the offered price
	PriceCents int64 `json:"priceCents"`
	// Format names the descriptor format of the payload ("vast" or "json")
	Format string `json:"format,omitempty"`
	// VAST carries the ad descriptor as an XML string
	VAST string `json:"vast,omitempty"`
	// Payload carries a descriptor in JSON form when VAST is empty
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OfferAction is the decision sent back for an offer
type OfferAction string

const (
	// OfferActionAccept takes the offer and binds a deal
	OfferActionAccept OfferAction = "accept"
	// OfferActionReject declines the offer
	OfferActionReject OfferAction = "reject"
)

// OfferResponseRequest is the body of the offer-response call
type OfferResponseRequest struct {
	Action     OfferAction `json:"action"`
	PriceCents *int64      `json:"priceCents,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// OfferResponseResult is the exchange's answer to an offer response
type OfferResponseResult struct {
	DealID string `json:"dealId"`
}

// PlayerInfo describes the playing device in confirmations
type PlayerInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	ScreenID   string `json:"screenId,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// PlayoutConfirmation is the body of the playout-confirm call
type PlayoutConfirmation struct {
	PlayedAt              time.Time  `json:"playedAt"`
	DurationSeconds       float64    `json:"durationSeconds"`
	CompletionRatePercent int        `json:"completionRatePercent"`
	PlayerInfo            PlayerInfo `json:"playerInfo"`
}

// PlayoutAck is the exchange's acknowledgement of a confirmation
type PlayoutAck struct {
	Acknowledged bool   `json:"acknowledged"`
	ID           string `json:"id,omitempty"`
}

// ErrorResponse is the error body returned by the exchange and the host boundary
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
