package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/buger/jsonparser"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
)

// Playout describes a finished playback for confirmation
type Playout struct {
	PlayedAt              time.Time
	DurationSeconds       float64
	CompletionRatePercent int
	Player                v1alpha1.PlayerInfo
}

// Ack is the exchange's answer to a playout confirmation
type Ack struct {
	Acknowledged bool
	ID           string
	StatusCode   int
	Reason       string
}

// ConfirmPlayout reports a playout for a deal. A 4xx answer yields an
// unacknowledged Ack; exhausted retries return an error.
func (c *Client) ConfirmPlayout(ctx context.Context, dealID string, playout Playout) (Ack, error) {
	if dealID == "" {
		return Ack{}, werrors.NewError("INVALID_DEAL", "deal id is required", "exchange.ConfirmPlayout", werrors.ErrConfirmation)
	}

	body := v1alpha1.PlayoutConfirmation{
		PlayedAt:              playout.PlayedAt.UTC(),
		DurationSeconds:       playout.DurationSeconds,
		CompletionRatePercent: playout.CompletionRatePercent,
		PlayerInfo:            playout.Player,
	}

	resp, err := c.doRequest(ctx, "confirm_playout", http.MethodPost,
		fmt.Sprintf("/v1/deals/%s/playouts", url.PathEscape(dealID)), nil, body)
	if err != nil {
		return Ack{}, err
	}

	if !resp.ok() {
		return Ack{StatusCode: resp.status, Reason: resp.reason()}, nil
	}

	ack := Ack{Acknowledged: true, StatusCode: resp.status}
	var wire v1alpha1.PlayoutAck
	if len(resp.body) > 0 && json.Unmarshal(resp.body, &wire) == nil {
		ack.ID = wire.ID
		// An explicit false in the body overrides the 2xx status
		if hasField(resp.body, "acknowledged") {
			ack.Acknowledged = wire.Acknowledged
		}
	}

	return ack, nil
}

func hasField(body []byte, name string) bool {
	_, _, _, err := jsonparser.Get(body, name)
	return err == nil
}
