package ctl

import (
	"fmt"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name               string         `json:"name"`
	State              string         `json:"state"`
	Mode               string         `json:"mode"`
	UptimeSeconds      int64          `json:"uptime_seconds"`
	Lifecycle          string         `json:"lifecycle"`
	CurrentPath        string         `json:"current_path"`
	InProgress         bool           `json:"in_progress"`
	FallbackState      string         `json:"fallback_state"`
	FallbackStrategy   string         `json:"fallback_strategy"`
	LowPerformance     bool           `json:"low_performance"`
	EffectiveIntensity string         `json:"effective_intensity"`
	FramesSource       string         `json:"frames_source"`
	Storage            string         `json:"storage"`
	WSDropped          int64          `json:"ws_dropped"`
	Disk               map[string]any `json:"disk,omitempty"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	fmt.Println()
	fmt.Println(header("  TRANSITION ENGINE STATUS"))
	fmt.Println(divider(38))
	field("Daemon", s.Name+" ("+s.Mode+")")
	field("State", colorize(stateColor(s.State), s.State))
	field("Uptime", formatDuration(time.Duration(s.UptimeSeconds)*time.Second))
	field("Path", s.CurrentPath)
	field("In progress", yesNo(s.InProgress))
	field("Fallback", colorize(stateColor(s.FallbackState), s.FallbackState)+" / "+s.FallbackStrategy)
	field("Low perf", yesNo(s.LowPerformance))
	field("Intensity", s.EffectiveIntensity)
	field("Frames", s.FramesSource)
	field("Storage", s.Storage)
	if free, ok := s.Disk["available_bytes"].(float64); ok {
		field("Disk free", formatBytes(int64(free)))
	}
	if s.WSDropped > 0 {
		field("WS dropped", colorize(yellow, fmt.Sprint(s.WSDropped)))
	}
	field("Host", baseURL)
	fmt.Println()
	return nil
}
