package identity

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSurface struct {
	mock.Mock
}

func (m *mockSurface) SlotID() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *mockSurface) GroupID() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *mockSurface) HardwareID() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *mockSurface) QueryParam() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

type failingStore struct{}

func (failingStore) Load(ctx context.Context) (string, error)  { return "", errors.New("down") }
func (failingStore) Save(ctx context.Context, id string) error { return errors.New("down") }

func TestResolve_Priority(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   Identity
		wantOK bool
	}{
		{
			name:   "slot wins over everything",
			fields: Fields{SlotID: "slot-1", GroupID: "grp-1", HardwareID: "hw-1", QueryParam: "q-1", Persisted: "p-1"},
			want:   Identity{ID: "slot-1", Source: SourcePrimary},
			wantOK: true,
		},
		{
			name:   "group when slot is blank",
			fields: Fields{SlotID: "  ", GroupID: "grp-1", HardwareID: "hw-1"},
			want:   Identity{ID: "grp-1", Source: SourceGroup},
			wantOK: true,
		},
		{
			name:   "hardware",
			fields: Fields{HardwareID: "hw-1", QueryParam: "q-1"},
			want:   Identity{ID: "hw-1", Source: SourceHardware},
			wantOK: true,
		},
		{
			name:   "query override",
			fields: Fields{QueryParam: " q-1 ", Persisted: "p-1"},
			want:   Identity{ID: "q-1", Source: SourceURLParam},
			wantOK: true,
		},
		{
			name:   "persisted fallback",
			fields: Fields{Persisted: "p-1"},
			want:   Identity{ID: "p-1", Source: SourcePersisted},
			wantOK: true,
		},
		{
			name:   "nothing available",
			fields: Fields{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.fields)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Primary identifier empty, group identifier set: the group id is used and
// logged with its source.
func TestResolver_GroupIdentifierScenario(t *testing.T) {
	surface := new(mockSurface)
	surface.On("SlotID").Return("", false)
	surface.On("GroupID").Return("lobby-wall", true)
	surface.On("HardwareID").Return("hw-9", true)
	surface.On("QueryParam").Return("", false)

	var buf bytes.Buffer
	store := NewMemoryStore()
	r := NewResolver(surface, store, zerolog.New(&buf))

	id, ok := r.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, "lobby-wall", id.ID)
	assert.Equal(t, SourceGroup, id.Source)
	assert.Contains(t, buf.String(), `"source":"GroupIdentifier"`)

	persisted, _ := store.Load(context.Background())
	assert.Equal(t, "lobby-wall", persisted)
	surface.AssertExpectations(t)
}

func TestResolver_ReadsSurfaceOnEveryCall(t *testing.T) {
	surface := new(mockSurface)
	surface.On("SlotID").Return("", false).Once()
	surface.On("SlotID").Return("slot-late", true).Once()
	surface.On("GroupID").Return("", false)
	surface.On("HardwareID").Return("", false)
	surface.On("QueryParam").Return("", false)

	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "old-screen"))
	r := NewResolver(surface, store, zerolog.Nop())

	first, ok := r.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, Identity{ID: "old-screen", Source: SourcePersisted}, first)

	second, ok := r.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, Identity{ID: "slot-late", Source: SourcePrimary}, second)
	surface.AssertNumberOfCalls(t, "SlotID", 2)
}

func TestResolver_NoIdentity(t *testing.T) {
	surface := new(mockSurface)
	surface.On("SlotID").Return("", false)
	surface.On("GroupID").Return("", false)
	surface.On("HardwareID").Return("", false)
	surface.On("QueryParam").Return("", false)

	r := NewResolver(surface, failingStore{}, zerolog.Nop())

	id, ok := r.Resolve(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id.ID)
}

func TestResolver_StoreFailureDoesNotBlockResolution(t *testing.T) {
	surface := new(mockSurface)
	surface.On("SlotID").Return("slot-1", true)
	surface.On("GroupID").Return("", false)
	surface.On("HardwareID").Return("", false)
	surface.On("QueryParam").Return("", false)

	r := NewResolver(surface, failingStore{}, zerolog.Nop())

	id, ok := r.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, "slot-1", id.ID)
}
