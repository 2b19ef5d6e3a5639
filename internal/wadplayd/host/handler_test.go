package host

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	"github.com/wrale/wrale-adplay/internal/wadplayd/identity"
	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
)

type fakeCycles struct {
	mu       sync.Mutex
	status   lifecycle.Status
	startErr error
	started  int
	triggers int
	nextID   uuid.UUID
}

func (f *fakeCycles) Start(ctx context.Context) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	f.started++
	return f.nextID, nil
}

func (f *fakeCycles) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeCycles) Status() lifecycle.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeCycles) Current() *lifecycle.LifecycleContext { return nil }

func (f *fakeCycles) set(status lifecycle.Status, startErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.startErr = startErr
}

func (f *fakeCycles) triggered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

type fixture struct {
	cycles  *fakeCycles
	journal *journal.Memory
	props   *Properties
	hub     *Hub
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		cycles:  &fakeCycles{status: lifecycle.Wait(), nextID: uuid.New()},
		journal: journal.NewMemory(8),
		props:   NewProperties(),
		hub:     NewHub(zerolog.Nop()),
	}
	go f.hub.Run(ctx)

	h := NewHandler(ctx, f.cycles, f.journal, f.props, f.hub, Options{
		AllowedOrigins: []string{"https://player.example"},
	}, zerolog.Nop())
	f.server = httptest.NewServer(h.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPutIdentity_FeedsResolver(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1alpha1/identity",
		[]byte(`{"groupId":"lobby-group","hardwareId":"hw-9","resolution":"1920x1080"}`))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	id, ok := identity.NewResolver(f.props, nil, zerolog.Nop()).Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, "lobby-group", id.ID)
	assert.Equal(t, identity.SourceGroup, id.Source)

	_, ok = f.props.SlotID()
	assert.False(t, ok)
}

func TestPutIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `slot=1`},
		{name: "bad resolution", body: `{"slotId":"a","resolution":"full hd"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.do(t, http.MethodPut, "/api/v1alpha1/identity", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestStartCycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1alpha1/cycles?screen_id=from-url", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started v1alpha1.CycleStarted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, f.cycles.nextID, started.CycleID)

	v, ok := f.props.QueryParam()
	assert.True(t, ok)
	assert.Equal(t, "from-url", v)
}

func TestStartCycle_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.cycles.set(lifecycle.Wait(), lifecycle.ErrCycleInProgress)

	resp := f.do(t, http.MethodPost, "/api/v1alpha1/cycles", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older, newer := uuid.New(), uuid.New()
	require.NoError(t, f.journal.Record(ctx, journal.Entry{CycleID: older, Status: "ready", Result: journal.ResultCompleted, CompletionRate: 100}))
	require.NoError(t, f.journal.Record(ctx, journal.Entry{CycleID: newer, Status: "skip:no identity", Result: journal.ResultSkipped}))

	resp := f.do(t, http.MethodGet, "/api/v1alpha1/cycles?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list v1alpha1.CycleRecordList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, newer, list.Items[0].CycleID)
	assert.Equal(t, "skipped", list.Items[0].Result)
	assert.Equal(t, 100, list.Items[1].CompletionRate)

	resp = f.do(t, http.MethodGet, "/api/v1alpha1/cycles?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrigger_AlwaysAccepted(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.do(t, http.MethodPost, "/api/v1alpha1/trigger", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	assert.Equal(t, 3, f.cycles.triggered())
}

func TestStatus_PlainText(t *testing.T) {
	tests := []struct {
		status lifecycle.Status
		want   string
	}{
		{lifecycle.Wait(), "wait"},
		{lifecycle.Ready(), "ready"},
		{lifecycle.Skip(lifecycle.ReasonNoOffer), "skip:no offer available"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := newFixture(t)
			f.cycles.set(tt.status, nil)

			resp := f.do(t, http.MethodGet, "/api/v1alpha1/status", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

			var buf bytes.Buffer
			_, err := buf.ReadFrom(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestStatusWebSocket_PushesChanges(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1alpha1/status/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://player.example"}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg v1alpha1.StatusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "wait", msg.Status)

	// The initial message is only written once the subscriber is registered
	cycleID := uuid.New()
	f.hub.Publish(cycleID, lifecycle.Ready())

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "ready", msg.Status)
	assert.Equal(t, cycleID, msg.CycleID)
	assert.Equal(t, v1alpha1.APIVersion, msg.APIVersion)
}

func TestStatusWebSocket_RejectsUnknownOrigin(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1alpha1/status/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/v1alpha1/trigger", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://player.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://player.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
