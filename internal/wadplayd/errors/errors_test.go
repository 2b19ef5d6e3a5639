package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewError("SERVER", "exchange kept failing", "Client.RequestOffer", ErrServer)
	assert.Equal(t, "Client.RequestOffer: exchange kept failing", err.Error())

	bare := NewError("SERVER", "exchange kept failing", "", nil)
	assert.Equal(t, "exchange kept failing", bare.Error())
}

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "wrapped server failure",
			err:       NewError("SERVER", "503", "op", ErrServer),
			retryable: true,
		},
		{
			name:      "transport failure",
			err:       fmt.Errorf("dial: %w", ErrTransport),
			retryable: true,
		},
		{
			name: "no offer",
			err:  fmt.Errorf("exchange: %w", ErrNoOfferAvailable),
		},
		{
			name: "client rejection",
			err:  ErrClientRejected,
		},
		{
			name: "unrelated",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
