package journal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RecentNewestFirst(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, m.Record(ctx, Entry{CycleID: ids[i], Result: ResultCompleted}))
	}

	got, err := m.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].CycleID)
	assert.Equal(t, ids[3], got[1].CycleID)
	assert.Equal(t, ids[2], got[2].CycleID)

	got, err = m.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[4], got[0].CycleID)
}

func TestMemory_RecordReplacesSameCycle(t *testing.T) {
	m := NewMemory(4)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, m.Record(ctx, Entry{CycleID: id, Result: ResultSkipped}))
	require.NoError(t, m.Record(ctx, Entry{CycleID: id, Result: ResultCompleted, Confirmed: true}))

	got, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ResultCompleted, got[0].Result)
	assert.True(t, got[0].Confirmed)
}

func TestMemory_Empty(t *testing.T) {
	got, err := NewMemory(0).Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
