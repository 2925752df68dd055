package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/storage"
)

type collector struct {
	mu     sync.Mutex
	bodies map[string][]map[string]any
	got    chan struct{}
}

func newCollector() (*collector, *httptest.Server) {
	c := &collector{bodies: map[string][]map[string]any{}, got: make(chan struct{}, 100)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		c.mu.Lock()
		c.bodies[r.URL.Path] = append(c.bodies[r.URL.Path], m)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		c.got <- struct{}{}
	}))
	return c, srv
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for payload %d", i+1)
		}
	}
}

func TestReporter_SendEvent(t *testing.T) {
	c, srv := newCollector()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(Config{Enabled: true, APIBase: srv.URL + "/", Version: "1.2.3"}, WithUserID("user-1"))
	r.Start(ctx)

	r.SendEvent("newUser", nil)
	c.wait(t, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies["/events"], 1)
	body := c.bodies["/events"][0]
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "newUser", body["type"])
	assert.Equal(t, map[string]any{}, body["data"])
	assert.NotEmpty(t, body["eventId"])
}

func TestReporter_ReportError(t *testing.T) {
	c, srv := newCollector()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(Config{Enabled: true, APIBase: srv.URL}, WithPageviewID("pv-7"))
	r.Start(ctx)

	r.ReportError("Error in facebook content flow", assert.AnError, map[string]string{"adapter": "facebook"})
	c.wait(t, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies["/error"], 1)
	body := c.bodies["/error"][0]
	assert.Equal(t, "Error in facebook content flow", body["desc"])
	assert.Equal(t, "pv-7", body["pageviewId"])
	assert.Equal(t, "unknown", body["userId"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), data["message"])
}

func TestReporter_GateDropsPayloads(t *testing.T) {
	c, srv := newCollector()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consent := false
	r := New(Config{Enabled: true, APIBase: srv.URL}, WithGate(func() bool { return consent }))
	r.Start(ctx)

	r.SendEvent("ignored", nil)
	consent = true
	r.SendEvent("kept", nil)
	c.wait(t, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies["/events"], 1)
	assert.Equal(t, "kept", c.bodies["/events"][0]["type"])
}

func TestReporter_DisabledWithoutAPIBase(t *testing.T) {
	r := New(Config{Enabled: true})
	r.SendEvent("x", nil)
	assert.Len(t, r.queue, 0)
}

func TestReporter_HighWaterDropsNewest(t *testing.T) {
	r := New(Config{Enabled: true, APIBase: "http://collector.invalid", HighWater: 3})
	// Worker not started, so the queue only fills.
	for i := 0; i < 10; i++ {
		r.SendEvent("e", i)
	}
	require.Len(t, r.queue, 3)

	first := <-r.queue
	var ev eventBody
	require.NoError(t, json.Unmarshal(first.body, &ev))
	assert.EqualValues(t, 0, ev.Data)
}

func TestReporter_StopsWithContext(t *testing.T) {
	r := New(Config{Enabled: true, APIBase: "http://collector.invalid"})
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, 50, r.cfg.Burst)
	assert.Equal(t, 3*time.Second, r.cfg.Refill)
	assert.Equal(t, 20, cap(r.queue))
	assert.Equal(t, 50, r.limiter.Burst())
}

func TestUserID(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()

	id, created, err := UserID(ctx, local)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, id, 36)

	again, created, err := UserID(ctx, local)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)
}

func TestUserID_ReplacesCorruptValue(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	require.NoError(t, local.Set(ctx, map[string]any{storage.KeyUserID: json.RawMessage(`42`)}))

	id, created, err := UserID(ctx, local)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "42", id)
}

var _ Sink = (*Reporter)(nil)
var _ Sink = Nop{}
var _ Sink = (*Memory)(nil)

func TestMemory_Records(t *testing.T) {
	var m Memory
	m.SendEvent("newUser", nil)
	m.SendEvent("achievement", map[string]string{"key": "lng_choice"})
	m.ReportError("Error in youtube content flow", assert.AnError, nil)

	assert.Equal(t, []string{"newUser", "achievement"}, m.EventNames())
	require.Len(t, m.Errors(), 1)
	assert.ErrorIs(t, m.Errors()[0].Err, assert.AnError)
	assert.Equal(t, map[string]string{"key": "lng_choice"}, m.Events()[1].Data)
}
