package ctl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Context shows the most recent navigation context, the session in
// flight, and the path history.
func Context(baseURL string, jsonOutput bool) error {
	var resp struct {
		Context *struct {
			Direction    string    `json:"direction"`
			FromType     string    `json:"from_type"`
			ToType       string    `json:"to_type"`
			Relationship string    `json:"relationship"`
			FromPath     string    `json:"from_path"`
			ToPath       string    `json:"to_path"`
			Timestamp    time.Time `json:"timestamp"`
		} `json:"context"`
		Session *struct {
			ID      string    `json:"id"`
			Started time.Time `json:"started"`
			Params  struct {
				Name       string `json:"name"`
				DurationMs int64  `json:"duration_ms"`
			} `json:"params"`
		} `json:"session"`
		History []string `json:"history"`
	}
	if err := getJSON(baseURL, "/api/context", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  NAVIGATION CONTEXT"))
	fmt.Println(divider(42))
	if c := resp.Context; c != nil {
		field("From", c.FromPath+colorize(dim, " ("+c.FromType+")"))
		field("To", c.ToPath+colorize(dim, " ("+c.ToType+")"))
		field("Direction", c.Direction)
		field("Relation", c.Relationship)
		field("At", c.Timestamp.Local().Format("15:04:05.000"))
	} else {
		fmt.Println("  No navigation seen yet.")
	}
	if s := resp.Session; s != nil {
		field("Session", shortID(s.ID)+" "+s.Params.Name+" "+formatMs(float64(s.Params.DurationMs)))
		field("Running", formatDuration(time.Since(s.Started)))
	}
	if len(resp.History) > 0 {
		field("History", strings.Join(resp.History, colorize(dim, " > ")))
	}
	fmt.Println()
	return nil
}

// Errors shows the fallback controller's state and its error log.
func Errors(baseURL string, jsonOutput bool) error {
	type entry struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Cause   string `json:"cause"`
		Context struct {
			FromPath  string    `json:"fromPath"`
			ToPath    string    `json:"toPath"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"context"`
	}
	var resp struct {
		State      string  `json:"state"`
		Reason     string  `json:"reason"`
		Strategy   string  `json:"strategy"`
		ErrorCount int64   `json:"error_count"`
		Errors     []entry `json:"errors"`
		Persisted  []entry `json:"persisted"`
	}
	if err := getJSON(baseURL, "/api/errors", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  FALLBACK"))
	fmt.Println(divider(42))
	field("State", colorize(stateColor(resp.State), resp.State))
	if resp.Reason != "" {
		field("Reason", resp.Reason)
	}
	field("Strategy", resp.Strategy)
	field("Errors", resp.ErrorCount)

	list := resp.Errors
	if len(list) == 0 {
		list = resp.Persisted
	}
	if len(list) > 0 {
		fmt.Println()
		t := newTable("  ", "Time", "Kind", "Route", "Message")
		for _, e := range list {
			route := e.Context.FromPath + " -> " + e.Context.ToPath
			if e.Context.FromPath == "" && e.Context.ToPath == "" {
				route = "-"
			}
			t.row(e.Context.Timestamp.Local().Format("15:04:05"), e.Kind, route, e.Message)
		}
		t.flush()
	}
	fmt.Println()
	return nil
}

// Device shows the capability snapshot and what it implies for motion.
func Device(baseURL string, jsonOutput bool) error {
	var resp struct {
		Capabilities map[string]any `json:"capabilities"`
		Optimization struct {
			ShouldOptimize        bool     `json:"should_optimize"`
			Tier                  string   `json:"tier"`
			RecommendedDurationMs int64    `json:"recommended_duration_ms"`
			RecommendedEasing     string   `json:"recommended_easing"`
			Reasons               []string `json:"reasons"`
		} `json:"optimization"`
		CanHandleComplex     bool   `json:"can_handle_complex"`
		RecommendedIntensity string `json:"recommended_intensity"`
	}
	if err := getJSON(baseURL, "/api/device", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  DEVICE"))
	fmt.Println(divider(42))
	for _, k := range []string{"is_mobile", "is_tablet", "is_installed_app", "orientation", "online", "is_low_battery", "cpu_cores", "memory_gb"} {
		field(strings.ReplaceAll(strings.TrimPrefix(k, "is_"), "_", " "), configValue(resp.Capabilities[k]))
	}
	if conn, ok := resp.Capabilities["connection"].(map[string]any); ok {
		field("connection", fmt.Sprintf("%v %v Mbps save-data=%v", conn["type"], conn["downlink_mbps"], conn["save_data"]))
	}
	if bat, ok := resp.Capabilities["battery"].(map[string]any); ok {
		level, _ := bat["level"].(float64)
		field("battery", fmt.Sprintf("%s charging=%v", formatPercent(level), bat["charging"]))
	}

	o := resp.Optimization
	fmt.Println()
	fmt.Println(header("  MOTION"))
	fmt.Println(divider(42))
	field("Tier", o.Tier)
	field("Optimize", yesNo(o.ShouldOptimize))
	if o.RecommendedDurationMs > 0 {
		field("Duration", formatMs(float64(o.RecommendedDurationMs)))
	}
	if o.RecommendedEasing != "" {
		field("Easing", o.RecommendedEasing)
	}
	field("Complex", yesNo(resp.CanHandleComplex))
	field("Intensity", resp.RecommendedIntensity)
	if len(o.Reasons) > 0 {
		field("Reasons", strings.Join(o.Reasons, ", "))
	}
	fmt.Println()
	return nil
}

// Transitions lists the registered descriptors and selection patterns.
func Transitions(baseURL string, jsonOutput bool) error {
	var resp struct {
		Descriptors []struct {
			Name       string   `json:"name"`
			DurationMs int64    `json:"duration_ms"`
			Easing     string   `json:"easing"`
			Conditions []string `json:"conditions"`
			CSSClass   string   `json:"css_class"`
			Targets    []struct {
				Selector string `json:"selector"`
			} `json:"targets"`
		} `json:"descriptors"`
		Patterns []struct {
			Name          string `json:"name"`
			Priority      int    `json:"priority"`
			ReducedMotion bool   `json:"reduced_motion"`
			Relationship  string `json:"relationship"`
			Direction     string `json:"direction"`
			From          string `json:"from"`
			To            string `json:"to"`
		} `json:"patterns"`
	}
	if err := getJSON(baseURL, "/api/transitions", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  DESCRIPTORS"))
	t := newTable("  ", "Name", "Duration", "Easing", "Targets", "Conditions")
	t.alignRight(1, 3)
	for _, d := range resp.Descriptors {
		t.row(d.Name, formatMs(float64(d.DurationMs)), d.Easing, strconv.Itoa(len(d.Targets)), strings.Join(d.Conditions, ","))
	}
	t.flush()

	fmt.Println()
	fmt.Println(header("  PATTERNS"))
	wildcard := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	t = newTable("  ", "Priority", "Transition", "Relationship", "Direction", "From", "To", "Reduced")
	t.alignRight(0)
	for _, p := range resp.Patterns {
		reduced := ""
		if p.ReducedMotion {
			reduced = "yes"
		}
		t.row(strconv.Itoa(p.Priority), p.Name, wildcard(p.Relationship), wildcard(p.Direction), wildcard(p.From), wildcard(p.To), reduced)
	}
	t.flush()
	fmt.Println()
	return nil
}
