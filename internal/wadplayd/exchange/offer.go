package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
)

// Format names the descriptor format requested from the exchange
type Format string

const (
	// FormatVAST asks for an XML VAST document
	FormatVAST Format = "vast"
	// FormatJSON asks for a JSON offer envelope
	FormatJSON Format = "json"
)

// Offer is a priced inventory proposal returned for a screen
type Offer struct {
	// ID identifies the offer in the response call
	ID string
	// DealID may be empty until the offer is accepted
	DealID string
	// PriceCents is the offered price
	PriceCents int64
	// Format is the format of Payload
	Format Format
	// Payload is the raw ad descriptor
	Payload []byte
}

// OfferResult is the outcome of RequestOffer. Offer is nil when the
// exchange had nothing to offer or rejected the request.
type OfferResult struct {
	Offer *Offer
	// StatusCode is the HTTP status the exchange answered with
	StatusCode int
	// Reason explains why no offer is available
	Reason string
}

// Available reports whether an offer was returned
func (r OfferResult) Available() bool {
	return r.Offer != nil
}

// RequestOffer asks the exchange for an offer for the given screen.
// No inventory, an empty answer and any 4xx status are reported as an
// unavailable result rather than an error.
func (c *Client) RequestOffer(ctx context.Context, screenID string, minPriceCents int64, format Format) (OfferResult, error) {
	query := url.Values{}
	query.Set("screen_id", screenID)
	query.Set("min_price_cents", strconv.FormatInt(minPriceCents, 10))
	if format != "" {
		query.Set("format", string(format))
	}

	resp, err := c.doRequest(ctx, "request_offer", http.MethodGet, "/v1/offers", query, nil)
	if err != nil {
		return OfferResult{}, err
	}

	switch {
	case resp.status == http.StatusNoContent:
		return noOffer(resp.status, "no inventory"), nil
	case resp.status == http.StatusNotFound:
		return noOffer(resp.status, "no inventory for screen"), nil
	case resp.status >= 400:
		c.logger.Warn().
			Int("status", resp.status).
			Str("screenId", screenID).
			Str("reason", resp.reason()).
			Msg("offer request rejected by exchange")
		return noOffer(resp.status, resp.reason()), nil
	case !resp.ok():
		return noOffer(resp.status, "unexpected status "+strconv.Itoa(resp.status)), nil
	}

	offer, reason := parseOffer(resp, format)
	if offer == nil {
		c.logger.Warn().
			Int("status", resp.status).
			Str("reason", reason).
			Msg("exchange answered without a usable offer")
		return noOffer(resp.status, reason), nil
	}

	c.logger.Info().
		Str("offerId", offer.ID).
		Str("dealId", offer.DealID).
		Int64("priceCents", offer.PriceCents).
		Str("format", string(offer.Format)).
		Msg("offer received")

	return OfferResult{Offer: offer, StatusCode: resp.status}, nil
}

func noOffer(status int, reason string) OfferResult {
	return OfferResult{StatusCode: status, Reason: reason}
}

// parseOffer reads either a JSON envelope or a bare XML document whose
// metadata travels in response headers
func parseOffer(resp *response, requested Format) (*Offer, string) {
	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return nil, "empty offer body"
	}

	if body[0] == '<' || strings.Contains(resp.header.Get("Content-Type"), "xml") {
		price, _ := strconv.ParseInt(resp.header.Get("X-Price-Cents"), 10, 64)
		return &Offer{
			ID:         resp.header.Get("X-Offer-Id"),
			DealID:     resp.header.Get("X-Deal-Id"),
			PriceCents: price,
			Format:     FormatVAST,
			Payload:    body,
		}, ""
	}

	var env v1alpha1.OfferEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "unreadable offer body"
	}

	offer := &Offer{
		ID:         env.OfferID,
		DealID:     env.DealID,
		PriceCents: env.PriceCents,
		Format:     Format(env.Format),
	}
	switch {
	case env.VAST != "":
		offer.Payload = []byte(env.VAST)
		offer.Format = FormatVAST
	case len(env.Payload) > 0:
		offer.Payload = env.Payload
		if offer.Format == "" {
			offer.Format = FormatJSON
		}
	default:
		return nil, "offer without descriptor"
	}
	if offer.Format == "" {
		offer.Format = requested
	}
	return offer, ""
}
