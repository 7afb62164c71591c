package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/logging"
)

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageMemory
	cfg.Logging.Level = "debug"

	a, err := New(Options{
		Logger: logging.New(cfg.Logging, zapcore.AddSync(io.Discard)),
		Cfg:    cfg,
	})
	require.NoError(t, err)
	a.state.Store("IDLE")

	ctx, cancel := context.WithCancel(context.Background())
	go a.loop.Run(ctx)
	srv := httptest.NewServer(a.routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-a.loop.Done()
		a.shutdownCore()
	})
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string) map[string]any {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, path)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestNavigationRoundTrip(t *testing.T) {
	srv := newTestApp(t)

	code, out := postJSON(t, srv, "/api/nav/start", `{"to_path":"/blog/hello"}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "in-progress", out["state"])
	params := out["params"].(map[string]any)
	assert.NotEmpty(t, params["name"])
	assert.Contains(t, params, "duration_ms")

	code, out = postJSON(t, srv, "/api/frames", `{"timestamps_ms":[1000,1016.7,1033.4,1050.1],"memory_ratio":0.3}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.EqualValues(t, 4, out["frames"])

	code, _ = postJSON(t, srv, "/api/nav/swapped", `{"new_path":"/blog/hello"}`)
	require.Equal(t, http.StatusOK, code)
	code, out = postJSON(t, srv, "/api/nav/loaded", `{}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", out["state"])

	status := getJSON(t, srv, "/api/status")
	assert.Equal(t, "/blog/hello", status["current_path"])
	assert.Equal(t, false, status["in_progress"])

	metrics := getJSON(t, srv, "/api/metrics")
	transitions := metrics["transitions"].(map[string]any)
	assert.EqualValues(t, 1, transitions["total_count"])

	samples := getJSON(t, srv, "/api/samples?limit=5")
	assert.Len(t, samples["samples"], 1)
}

func TestRejectsBadInput(t *testing.T) {
	srv := newTestApp(t)

	code, _ := postJSON(t, srv, "/api/nav/start", `{"to_path":""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postJSON(t, srv, "/api/signals/gravity", `{}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = postJSON(t, srv, "/api/frames", `{"timestamps_ms":[1],"memory_ratio":2}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postJSON(t, srv, "/api/preferences", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postJSON(t, srv, "/api/debug/explode", `{}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = postJSON(t, srv, "/api/reload", `{}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestPreferencesAndDebug(t *testing.T) {
	srv := newTestApp(t)

	code, out := postJSON(t, srv, "/api/preferences", `{"intensity":"reduced","debugMode":true}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Len(t, out["changes"], 2)

	prefs := getJSON(t, srv, "/api/preferences")
	assert.Equal(t, "reduced", prefs["intensity"])

	dbg := getJSON(t, srv, "/api/debug")
	assert.Equal(t, true, dbg["visible"])

	code, out = postJSON(t, srv, "/api/debug/force-fallback", `{}`)
	require.Equal(t, http.StatusOK, code)
	snap := out["snapshot"].(map[string]any)
	assert.EqualValues(t, 1, snap["error_count"])

	code, out = postJSON(t, srv, "/api/debug/key", `{"combo":"Ctrl+Shift+D"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["handled"])
	assert.Equal(t, false, out["snapshot"].(map[string]any)["visible"])

	code, out = postJSON(t, srv, "/api/signals/reduced-motion", `{"reduced":true}`)
	require.Equal(t, http.StatusOK, code, out)
}

func TestHealthz(t *testing.T) {
	srv := newTestApp(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("Accept", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["healthy"])
}
