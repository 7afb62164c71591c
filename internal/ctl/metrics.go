package ctl

import (
	"fmt"
	"strconv"
	"time"
)

// Metrics shows the controller's transition counters and the monitor's
// rolling frame view.
func Metrics(baseURL string, jsonOutput bool) error {
	var resp struct {
		Transitions struct {
			TotalCount        int64   `json:"total_count"`
			Failures          int64   `json:"failures"`
			FailureRate       float64 `json:"failure_rate"`
			AverageDurationMs float64 `json:"average_duration_ms"`
		} `json:"transitions"`
		Frames struct {
			FrameRate     float64 `json:"frame_rate"`
			Frames        int     `json:"frames"`
			DroppedFrames int     `json:"dropped_frames"`
			Monitoring    bool    `json:"monitoring"`
			LowPerf       bool    `json:"low_performance"`
		} `json:"frames"`
	}
	if err := getJSON(baseURL, "/api/metrics", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	t, f := resp.Transitions, resp.Frames
	fmt.Println()
	fmt.Println(header("  TRANSITION METRICS"))
	fmt.Println(divider(42))
	field("Transitions", t.TotalCount)
	failures := fmt.Sprintf("%d (%s)", t.Failures, formatPercent(t.FailureRate))
	if t.FailureRate > 0.2 {
		failures = colorize(red, failures)
	}
	field("Failures", failures)
	field("Avg duration", formatMs(t.AverageDurationMs))

	fmt.Println()
	fmt.Println(header("  FRAMES"))
	fmt.Println(divider(42))
	field("Frame rate", fmt.Sprintf("%.1f fps over %d frames", f.FrameRate, f.Frames))
	field("Dropped", f.DroppedFrames)
	field("Monitoring", yesNo(f.Monitoring))
	field("Low perf", yesNo(f.LowPerf))
	fmt.Println()
	return nil
}

// Samples lists the most recent per-transition performance samples.
func Samples(baseURL string, limit int, jsonOutput bool) error {
	path := "/api/samples"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Samples []struct {
			Label            string    `json:"label"`
			Start            time.Time `json:"start"`
			DurationMs       int64     `json:"duration_ms"`
			FrameCount       int       `json:"frame_count"`
			DroppedFrames    int       `json:"dropped_frames"`
			WorstFrameMs     float64   `json:"worst_frame_ms"`
			AverageFrameRate float64   `json:"average_frame_rate"`
		} `json:"samples"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  PERFORMANCE SAMPLES"))
	if len(resp.Samples) == 0 {
		fmt.Println("  No samples recorded yet.")
		fmt.Println()
		return nil
	}
	t := newTable("  ", "Time", "Transition", "Duration", "Frames", "Dropped", "Worst", "FPS")
	t.alignRight(2, 3, 4, 5, 6)
	for _, s := range resp.Samples {
		t.row(
			s.Start.Local().Format("15:04:05"),
			s.Label,
			formatMs(float64(s.DurationMs)),
			strconv.Itoa(s.FrameCount),
			strconv.Itoa(s.DroppedFrames),
			formatMs(s.WorstFrameMs),
			fmt.Sprintf("%.1f", s.AverageFrameRate),
		)
	}
	t.flush()
	fmt.Println()
	return nil
}
