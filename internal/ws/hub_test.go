package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(b)
}

func TestBroadcastRespectsFilters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(zaptest.NewLogger(t))
	joined := make(chan int, 4)
	hub.registered = func(n int) { joined <- n }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { hub.Run(ctx); close(done) }()
	srv := httptest.NewServer(hub.Handler())

	all := dial(t, srv, "")
	filtered := dial(t, srv, "?filter=transition-error,%20heartbeat")
	for i := 0; i < 2; i++ {
		select {
		case <-joined:
		case <-time.After(2 * time.Second):
			t.Fatal("clients did not register")
		}
	}

	hub.BroadcastJSON("transition-applied", map[string]any{"name": "scale-up"})
	hub.BroadcastJSON("transition-error", map[string]any{"kind": "timeout"})

	assert.Contains(t, read(t, all), "scale-up")
	assert.Contains(t, read(t, all), "timeout")
	assert.Contains(t, read(t, filtered), "timeout")

	require.NoError(t, all.Close())
	require.NoError(t, filtered.Close())
	srv.Close()
	cancel()
	<-done
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(nil)
	drops := 0
	hub.OnDrop(func() { drops++ })
	for i := 0; i < cap(hub.broadcast)+3; i++ {
		hub.BroadcastJSON("log", map[string]int{"i": i})
	}
	assert.Equal(t, 3, drops)
}

func TestParseFilter(t *testing.T) {
	assert.Nil(t, parseFilter(""))
	assert.Equal(t, map[string]bool{"log": true, "state": true}, parseFilter("log, state,"))
}
