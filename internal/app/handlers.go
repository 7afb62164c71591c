package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/controller"
	"github.com/large-farva/transition-engine/internal/debug"
	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/engine"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/optimizer"
	"github.com/large-farva/transition-engine/internal/perfmon"
	"github.com/large-farva/transition-engine/internal/prefs"
	"github.com/large-farva/transition-engine/internal/registry"
	"github.com/large-farva/transition-engine/internal/store"
)

const maxBody = 64 << 10

// signals maps the /api/signals/{name} segment to the consumed event.
var signals = map[string]events.Name{
	"reduced-motion": events.ReducedMotionChange,
	"online":         events.OnlineChange,
	"visibility":     events.VisibilityChange,
	"orientation":    events.OrientationChange,
	"connection":     events.ConnectionChange,
	"battery":        events.BatteryChange,
	"support":        events.SupportChange,
	"error":          events.UncaughtError,
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/version", a.handleVersion)
	mux.HandleFunc("GET /api/config", a.handleConfig)
	mux.HandleFunc("POST /api/reload", a.handleReload)
	mux.HandleFunc("GET /api/logs", a.handleLogs)

	mux.HandleFunc("POST /api/nav/start", a.handleEvent(events.NavigationStart))
	mux.HandleFunc("POST /api/nav/swapped", a.handleEvent(events.NavigationSwapped))
	mux.HandleFunc("POST /api/nav/loaded", a.handleEvent(events.NavigationLoaded))
	mux.HandleFunc("POST /api/nav/back-forward", a.handleEvent(events.BackForward))
	mux.HandleFunc("POST /api/signals/{name}", a.handleSignal)
	mux.HandleFunc("POST /api/frames", a.handleFrames)

	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/context", a.handleContext)
	mux.HandleFunc("GET /api/samples", a.handleSamples)
	mux.HandleFunc("GET /api/errors", a.handleErrors)
	mux.HandleFunc("GET /api/device", a.handleDevice)
	mux.HandleFunc("GET /api/transitions", a.handleTransitions)

	mux.HandleFunc("GET /api/preferences", a.handleGetPreferences)
	mux.HandleFunc("POST /api/preferences", a.handleSetPreferences)
	mux.HandleFunc("GET /api/accessibility", a.handleGetAccessibility)
	mux.HandleFunc("POST /api/accessibility", a.handleSetAccessibility)

	mux.HandleFunc("GET /api/debug", a.handleDebug)
	mux.HandleFunc("POST /api/debug/{action}", a.handleDebugAction)

	mux.Handle("GET /ws", a.hub.Handler())
	return mux
}

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()
	resp := map[string]any{
		"name":           "transition-engine",
		"state":          a.state.Load().(string),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"frames_source":  cfg.Frames.Source,
		"storage":        cfg.Storage.Driver,
		"demo_enabled":   cfg.Demo.Enabled,
		"ws_dropped":     a.dropped.Load(),
	}
	if cfg.Demo.Enabled {
		resp["mode"] = "demo"
	} else {
		resp["mode"] = "live"
	}

	err := a.call(r.Context(), func(e *engine.Engine) {
		resp["fallback_state"] = e.Fallback.State()
		resp["fallback_strategy"] = e.Fallback.Strategy()
		resp["lifecycle"] = e.Controller.State()
		resp["current_path"] = e.Controller.CurrentPath()
		resp["in_progress"] = e.Controller.InProgress()
		resp["low_performance"] = e.Monitor.IsLowPerformance()
		resp["effective_intensity"] = e.Prefs.EffectiveIntensity()
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if cfg.Storage.Driver == config.StorageSQLite {
		if du := diskUsage(cfg.Storage.Path); du != nil {
			resp["disk"] = du
		}
	}
	writeJSON(w, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
		"runtime":    runtime.Version(),
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.getConfig())
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()
	checks := map[string]any{}
	allOK := true

	// The loop must answer promptly or nothing else works.
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	start := time.Now()
	if err := a.loop.Call(ctx, func() {}); err != nil {
		checks["loop"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["loop"] = map[string]any{"ok": true, "latency_ms": time.Since(start).Milliseconds()}
	}

	// Storage must be readable; a missing record is fine.
	if _, err := a.storage.Load(store.KeyTransitionPreferences); err != nil && !errors.Is(err, store.ErrNotFound) {
		checks["storage"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["storage"] = map[string]any{"ok": true, "driver": cfg.Storage.Driver}
	}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleReload(w http.ResponseWriter, _ *http.Request) {
	if a.configPath == "" {
		jsonError(w, "no config file path set", http.StatusConflict)
		return
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		jsonError(w, "config reload failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	a.applyConfig(cfg)
	writeJSON(w, map[string]any{
		"ok":      true,
		"message": "configuration reloaded from " + a.configPath,
	})
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, map[string]any{"logs": a.logs.Recent.Lines(r.URL.Query().Get("level"), limit)})
}

// ---------------------------------------------------------------------------
// Ingress: navigation, signals, frames
// ---------------------------------------------------------------------------

type paramsJSON struct {
	optimizer.Params
	DurationMs int64 `json:"duration_ms"`
}

func viewParams(p optimizer.Params) paramsJSON {
	return paramsJSON{Params: p, DurationMs: p.DurationMs()}
}

// handleEvent decodes the body as the named event and publishes it. The
// reply describes the lifecycle afterwards, including the applied params
// when a transition is in flight.
func (a *App) handleEvent(name events.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := decodeEvent(w, r, name)
		if !ok {
			return
		}
		resp := map[string]any{"ok": true, "event": name}
		var perr error
		err := a.call(r.Context(), func(e *engine.Engine) {
			if perr = e.Publish(p); perr != nil {
				return
			}
			resp["state"] = e.Controller.State()
			if s, active := e.Controller.ActiveSession(); active {
				resp["navigation_id"] = s.ID
				resp["context"] = s.Context
				resp["params"] = viewParams(s.Params)
			}
		})
		if !writeCallError(w, err, perr) {
			writeJSON(w, resp)
		}
	}
}

func (a *App) handleSignal(w http.ResponseWriter, r *http.Request) {
	name, ok := signals[r.PathValue("name")]
	if !ok {
		jsonError(w, fmt.Sprintf("unknown signal %q", r.PathValue("name")), http.StatusNotFound)
		return
	}
	p, ok := decodeEvent(w, r, name)
	if !ok {
		return
	}
	if !writeCallError(w, nil, a.Publish(r.Context(), p)) {
		writeJSON(w, map[string]any{"ok": true, "event": name})
	}
}

func (a *App) handleFrames(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimestampsMs []float64 `json:"timestamps_ms"`
		MemoryRatio  *float64  `json:"memory_ratio"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.MemoryRatio != nil {
		if *req.MemoryRatio < 0 || *req.MemoryRatio > 1 {
			jsonError(w, "memory_ratio must be within [0, 1]", http.StatusBadRequest)
			return
		}
		if err := a.setMemory(r.Context(), *req.MemoryRatio); err != nil {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	if err := a.Frames(r.Context(), req.TimestampsMs); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "frames": len(req.TimestampsMs)})
}

// ---------------------------------------------------------------------------
// Read-only views
// ---------------------------------------------------------------------------

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var ctl controller.Metrics
	var frames perfmon.Metrics
	err := a.call(r.Context(), func(e *engine.Engine) {
		ctl = e.Controller.Metrics()
		frames = e.Monitor.CurrentMetrics()
	})
	if writeCallError(w, err, nil) {
		return
	}
	writeJSON(w, map[string]any{
		"transitions": map[string]any{
			"total_count":         ctl.TotalCount,
			"failures":            ctl.Failures,
			"failure_rate":        ctl.FailureRate,
			"average_duration_ms": ctl.AverageDurationMs(),
		},
		"frames": frames,
	})
}

func (a *App) handleContext(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"context": nil, "session": nil}
	err := a.call(r.Context(), func(e *engine.Engine) {
		if c, ok := e.Controller.CurrentContext(); ok {
			resp["context"] = c
		}
		if s, ok := e.Controller.ActiveSession(); ok {
			resp["session"] = map[string]any{
				"id":      s.ID,
				"started": s.Started,
				"params":  viewParams(s.Params),
			}
		}
		resp["history"] = e.Controller.History()
	})
	if !writeCallError(w, err, nil) {
		writeJSON(w, resp)
	}
}

func (a *App) handleSamples(w http.ResponseWriter, r *http.Request) {
	var samples []perfmon.Sample
	err := a.call(r.Context(), func(e *engine.Engine) { samples = e.Monitor.History() })
	if writeCallError(w, err, nil) {
		return
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(samples) {
		samples = samples[len(samples)-n:]
	}
	type sampleJSON struct {
		perfmon.Sample
		DurationMs   int64   `json:"duration_ms"`
		WorstFrameMs float64 `json:"worst_frame_ms"`
	}
	out := make([]sampleJSON, len(samples))
	for i, s := range samples {
		out[i] = sampleJSON{Sample: s, DurationMs: s.Duration().Milliseconds(), WorstFrameMs: float64(s.WorstFrame) / float64(time.Millisecond)}
	}
	writeJSON(w, map[string]any{"samples": out})
}

func (a *App) handleErrors(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	err := a.call(r.Context(), func(e *engine.Engine) {
		resp["state"] = e.Fallback.State()
		resp["reason"] = e.Fallback.Reason()
		resp["strategy"] = e.Fallback.Strategy()
		resp["error_count"] = e.Fallback.ErrorCount()
		resp["errors"] = e.Fallback.Errors()
		resp["persisted"] = e.Fallback.PersistedErrors()
	})
	if !writeCallError(w, err, nil) {
		writeJSON(w, resp)
	}
}

func (a *App) handleDevice(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	err := a.call(r.Context(), func(e *engine.Engine) {
		opt := e.Device.Optimization()
		resp["capabilities"] = e.Device.Snapshot()
		resp["optimization"] = struct {
			device.Optimization
			RecommendedDurationMs int64 `json:"recommended_duration_ms"`
		}{opt, opt.RecommendedDuration.Milliseconds()}
		resp["can_handle_complex"] = e.Device.CanHandleComplexTransitions()
		resp["recommended_intensity"] = e.Monitor.RecommendIntensity(nil)
	})
	if !writeCallError(w, err, nil) {
		writeJSON(w, resp)
	}
}

func (a *App) handleTransitions(w http.ResponseWriter, r *http.Request) {
	var descs []registry.Descriptor
	var patterns []registry.Pattern
	err := a.call(r.Context(), func(e *engine.Engine) {
		descs = e.Registry.Descriptors()
		patterns = e.Registry.Patterns()
	})
	if writeCallError(w, err, nil) {
		return
	}
	type descJSON struct {
		registry.Descriptor
		DurationMs int64 `json:"duration_ms"`
	}
	out := make([]descJSON, len(descs))
	for i, d := range descs {
		out[i] = descJSON{Descriptor: d, DurationMs: d.DurationMs()}
	}
	writeJSON(w, map[string]any{"descriptors": out, "patterns": patterns})
}

// ---------------------------------------------------------------------------
// Preferences
// ---------------------------------------------------------------------------

func (a *App) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	err := a.call(r.Context(), func(e *engine.Engine) { p = e.Prefs.Get() })
	if !writeCallError(w, err, nil) {
		writeJSON(w, p)
	}
}

func (a *App) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var partial prefs.Partial
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&partial); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	var (
		changes []prefs.Change
		uerr    error
		current prefs.Preferences
	)
	err := a.call(r.Context(), func(e *engine.Engine) {
		changes, uerr = e.Prefs.Update(partial)
		current = e.Prefs.Get()
	})
	if writeCallError(w, err, nil) {
		return
	}
	resp := map[string]any{"ok": uerr == nil, "changes": changes, "preferences": current}
	if uerr != nil {
		resp["error"] = uerr.Error()
		// An invalid value changes nothing; a storage failure keeps the
		// in-memory change.
		w.Header().Set("Content-Type", "application/json")
		if len(changes) == 0 {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	writeJSON(w, resp)
}

func (a *App) handleGetAccessibility(w http.ResponseWriter, r *http.Request) {
	var acc prefs.Accessibility
	err := a.call(r.Context(), func(e *engine.Engine) { acc = e.Prefs.Accessibility() })
	if !writeCallError(w, err, nil) {
		writeJSON(w, acc)
	}
}

func (a *App) handleSetAccessibility(w http.ResponseWriter, r *http.Request) {
	var (
		acc     prefs.Accessibility
		changes []prefs.Change
		uerr    error
	)
	err := a.call(r.Context(), func(e *engine.Engine) { acc = e.Prefs.Accessibility() })
	if writeCallError(w, err, nil) {
		return
	}
	// Decode over the current values so omitted keys keep them.
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&acc); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	err = a.call(r.Context(), func(e *engine.Engine) { changes, uerr = e.Prefs.UpdateAccessibility(acc) })
	if writeCallError(w, err, nil) {
		return
	}
	resp := map[string]any{"ok": uerr == nil, "changes": changes, "accessibility": acc}
	if uerr != nil {
		resp["error"] = uerr.Error()
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Debug overlay
// ---------------------------------------------------------------------------

func (a *App) handleDebug(w http.ResponseWriter, r *http.Request) {
	var snap debug.Snapshot
	err := a.call(r.Context(), func(e *engine.Engine) { snap = e.Debug.Snapshot() })
	if !writeCallError(w, err, nil) {
		writeJSON(w, snap)
	}
}

func (a *App) handleDebugAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	var combo string
	if action == "key" {
		var req struct {
			Combo string `json:"combo"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		combo = req.Combo
	}

	resp := map[string]any{"ok": true, "action": action}
	known := true
	err := a.call(r.Context(), func(e *engine.Engine) {
		switch action {
		case "toggle":
			resp["visible"] = e.Debug.Toggle()
		case "force-fallback":
			resp["forced"] = e.Debug.ForceFallback()
		case "self-test":
			resp["scheduled"] = e.Debug.SelfTest()
		case "key":
			resp["handled"] = e.Debug.HandleKey(combo)
		default:
			known = false
			return
		}
		resp["snapshot"] = e.Debug.Snapshot()
	})
	if writeCallError(w, err, nil) {
		return
	}
	if !known {
		jsonError(w, fmt.Sprintf("unknown debug action %q", action), http.StatusNotFound)
		return
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeEvent(w http.ResponseWriter, r *http.Request, name events.Name) (events.Payload, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	p, err := events.Decode(name, body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return p, true
}

// writeCallError reports a failed loop call or a rejected publish. It
// returns true when it wrote a response.
func writeCallError(w http.ResponseWriter, callErr, publishErr error) bool {
	switch {
	case callErr != nil:
		jsonError(w, callErr.Error(), http.StatusServiceUnavailable)
	case errors.Is(publishErr, events.ErrInvalidPayload):
		jsonError(w, publishErr.Error(), http.StatusBadRequest)
	case publishErr != nil:
		jsonError(w, publishErr.Error(), http.StatusConflict)
	default:
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}
