package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/broadcast"
)

type countingRegistry struct {
	mu     sync.Mutex
	leaves int
}

func (r *countingRegistry) Join(string, *broadcast.Member) error { return nil }

func (r *countingRegistry) Leave(string, *broadcast.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
}

func (r *countingRegistry) leaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaves
}

func newTestConnPair(t *testing.T) (*ws.Conn, *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *ws.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(server.Close)

	client, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return <-serverConns, client
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	server, _ := newTestConnPair(t)
	registry := &countingRegistry{}
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	released := 0

	c := newConn(server, 42, "tasks_42", broadcast.NewMember(4), registry, clockwork.NewRealClock(), m, func() { released++ })
	assert.Equal(t, StateAuthenticated, c.State())

	done := make(chan struct{})
	go func() {
		c.serve(context.Background())
		close(done)
	}()

	c.close(context.Background(), "test")
	c.close(context.Background(), "test")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after close")
	}

	assert.Equal(t, 1, registry.leaveCount())
	assert.Equal(t, 1, released)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestConn_WritesEventsInOrder(t *testing.T) {
	server, client := newTestConnPair(t)
	member := broadcast.NewMember(8)
	c := newConn(server, 42, "tasks_42", member, &countingRegistry{}, clockwork.NewRealClock(), metrics.NewWebSocketMetrics(prometheus.NewRegistry()), nil)
	go c.serve(context.Background())
	t.Cleanup(func() { c.close(context.Background(), "test") })

	registry := broadcast.NewRegistry(clockwork.NewRealClock(), metrics.NewBroadcastMetrics(prometheus.NewRegistry()))
	t.Cleanup(registry.Stop)
	require.NoError(t, registry.Join("tasks_42", member))
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, registry.Publish(context.Background(), "tasks_42", []byte(p)))
	}

	for _, want := range []string{"a", "b", "c"} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
}

func TestConn_WritesQueuedEventsBeforeDropClose(t *testing.T) {
	server, client := newTestConnPair(t)
	member := broadcast.NewMember(8)

	registry := broadcast.NewRegistry(clockwork.NewRealClock(), metrics.NewBroadcastMetrics(prometheus.NewRegistry()))
	require.NoError(t, registry.Join("tasks_42", member))
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, registry.Publish(context.Background(), "tasks_42", []byte(p)))
	}
	require.Eventually(t, func() bool { return len(member.Events()) == 3 }, time.Second, time.Millisecond)

	// Both the mailbox and Done are ready when serve starts.
	registry.Stop()

	c := newConn(server, 42, "tasks_42", member, registry, clockwork.NewRealClock(), metrics.NewWebSocketMetrics(prometheus.NewRegistry()), nil)
	go c.serve(context.Background())

	for _, want := range []string{"a", "b", "c"} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
	_, _, err := client.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "got %v", err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unknown", State(0).String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "closed", StateClosed.String())
}
