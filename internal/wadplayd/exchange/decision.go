package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/buger/jsonparser"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
)

// Decision is the answer sent back for an offer
type Decision struct {
	Action v1alpha1.OfferAction
	// PriceCents optionally confirms the accepted price
	PriceCents *int64
	// Reason explains a rejection
	Reason string
}

// Accept builds an accepting decision at the given price
func Accept(priceCents int64) Decision {
	return Decision{Action: v1alpha1.OfferActionAccept, PriceCents: &priceCents}
}

// Reject builds a rejecting decision
func Reject(reason string) Decision {
	return Decision{Action: v1alpha1.OfferActionReject, Reason: reason}
}

// DecisionResult is the outcome of RespondToOffer
type DecisionResult struct {
	// DealID is the bound deal for an accepted offer, when the exchange returned one
	DealID string
	// Declined is set when the exchange refused the decision with a 4xx
	Declined   bool
	StatusCode int
	Reason     string
}

// RespondToOffer accepts or rejects an offer. A 4xx answer is reported as a
// declined result rather than an error.
func (c *Client) RespondToOffer(ctx context.Context, offerID string, decision Decision) (DecisionResult, error) {
	if offerID == "" {
		return DecisionResult{}, werrors.NewError("INVALID_OFFER", "offer id is required", "exchange.RespondToOffer", werrors.ErrInvalidState)
	}

	body := v1alpha1.OfferResponseRequest{
		Action:     decision.Action,
		PriceCents: decision.PriceCents,
		Reason:     decision.Reason,
	}

	resp, err := c.doRequest(ctx, "respond_offer", http.MethodPost,
		fmt.Sprintf("/v1/offers/%s/response", url.PathEscape(offerID)), nil, body)
	if err != nil {
		return DecisionResult{}, err
	}

	if !resp.ok() {
		c.logger.Warn().
			Str("offerId", offerID).
			Str("action", string(decision.Action)).
			Int("status", resp.status).
			Str("reason", resp.reason()).
			Msg("offer response declined")
		return DecisionResult{Declined: true, StatusCode: resp.status, Reason: resp.reason()}, nil
	}

	return DecisionResult{DealID: dealIDFrom(resp.body), StatusCode: resp.status}, nil
}

// dealIDFrom accepts the documented {"dealId"} shape as well as the
// snake_case and nested variants some exchanges answer with
func dealIDFrom(body []byte) string {
	paths := [][]string{
		{"dealId"},
		{"deal_id"},
		{"deal", "id"},
	}
	for _, p := range paths {
		if v, err := jsonparser.GetString(body, p...); err == nil && v != "" {
			return v
		}
	}
	return ""
}
