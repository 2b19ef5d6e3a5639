package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_WireForm(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Wait(), "wait"},
		{Ready(), "ready"},
		{Skip(""), "skip"},
		{Skip(ReasonNoOffer), "skip:no offer available"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			parsed, err := ParseStatus(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.status, parsed)
		})
	}

	_, err := ParseStatus("playing")
	assert.Error(t, err)
}

func TestStatusChannel_OnlyLeavesWaitOnce(t *testing.T) {
	c := NewStatusChannel()
	assert.Equal(t, Wait(), c.Get())

	assert.False(t, c.Set(Wait()))
	assert.True(t, c.Set(Ready()))
	assert.False(t, c.Set(Skip("late")))
	assert.False(t, c.Set(Ready()))
	assert.Equal(t, Ready(), c.Get())
}

func TestStatusChannel_ConcurrentSetHasOneWinner(t *testing.T) {
	c := NewStatusChannel()

	var wg sync.WaitGroup
	wins := make(chan Status, 20)
	for i := 0; i < 20; i++ {
		next := Ready()
		if i%2 == 0 {
			next = Skip("race")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Set(next) {
				wins <- next
			}
		}()
	}
	wg.Wait()
	close(wins)

	var won []Status
	for s := range wins {
		won = append(won, s)
	}
	require.Len(t, won, 1)
	assert.Equal(t, won[0], c.Get())
}

func TestLifecycleContext_TriggerIsIdempotent(t *testing.T) {
	lc := newLifecycleContext(time.Now())
	lc.Trigger()
	lc.Trigger()
	<-lc.Triggered()
	assert.Equal(t, Wait(), lc.Status.Get())
}
