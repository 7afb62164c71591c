package ctl

import (
	"fmt"
	"strings"
)

// navRoutes maps the CLI verbs to the daemon's navigation ingress.
var navRoutes = map[string]struct {
	path string
	key  string
}{
	"start": {"/api/nav/start", "to_path"},
	"swap":  {"/api/nav/swapped", "new_path"},
	"load":  {"/api/nav/loaded", ""},
	"back":  {"/api/nav/back-forward", "new_path"},
}

type navResult struct {
	OK           bool   `json:"ok"`
	Event        string `json:"event"`
	State        string `json:"state"`
	NavigationID string `json:"navigation_id"`
	Params       *struct {
		Name       string   `json:"name"`
		DurationMs int64    `json:"duration_ms"`
		Easing     string   `json:"easing"`
		Disabled   bool     `json:"disabled"`
		Tier       string   `json:"tier"`
		CSSClass   string   `json:"css_class"`
		Reasons    []string `json:"reasons"`
	} `json:"params"`
	Context *struct {
		Direction    string `json:"direction"`
		Relationship string `json:"relationship"`
	} `json:"context"`
}

// Nav reports one navigation lifecycle event to the daemon, the way the
// page shim would, and prints the transition it chose.
func Nav(baseURL, verb, path string, jsonOutput bool) error {
	route, ok := navRoutes[verb]
	if !ok {
		return fmt.Errorf("unknown nav verb %q (want start, swap, load or back)", verb)
	}
	body := map[string]any{}
	if route.key != "" {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("nav %s needs a path", verb)
		}
		body[route.key] = path
	}

	var res navResult
	if err := postJSON(baseURL, route.path, body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Println()
	field("Event", res.Event)
	field("State", colorize(stateColor(res.State), res.State))
	if res.Params != nil {
		p := res.Params
		name := p.Name
		if p.Disabled {
			name += colorize(dim, " (disabled)")
		}
		field("Navigation", shortID(res.NavigationID))
		field("Transition", colorize(bold, name))
		field("Duration", formatMs(float64(p.DurationMs)))
		field("Easing", p.Easing)
		field("Tier", p.Tier)
		if p.CSSClass != "" {
			field("CSS class", p.CSSClass)
		}
		if res.Context != nil {
			field("Direction", res.Context.Direction)
			field("Relation", res.Context.Relationship)
		}
		if len(p.Reasons) > 0 {
			field("Reasons", strings.Join(p.Reasons, ", "))
		}
	}
	fmt.Println()
	return nil
}

// Signal forwards one host signal, e.g. "online online=false" or
// "connection effective_type=3g downlink_mbps=1.2".
func Signal(baseURL, name string, assignments []string, jsonOutput bool) error {
	body, err := parseAssignments(assignments)
	if err != nil {
		return err
	}
	var res struct {
		OK    bool   `json:"ok"`
		Event string `json:"event"`
	}
	if err := postJSON(baseURL, "/api/signals/"+name, body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	fmt.Printf("\n  %s  %s\n\n", colorize(green, "SENT"), res.Event)
	return nil
}

// Frames posts a batch of frame timestamps in milliseconds.
func Frames(baseURL string, timestampsMs []float64, memoryRatio float64, jsonOutput bool) error {
	body := map[string]any{"timestamps_ms": timestampsMs}
	if memoryRatio >= 0 {
		body["memory_ratio"] = memoryRatio
	}
	var res struct {
		OK     bool `json:"ok"`
		Frames int  `json:"frames"`
	}
	if err := postJSON(baseURL, "/api/frames", body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	fmt.Printf("\n  %s  %d frames\n\n", colorize(green, "SENT"), res.Frames)
	return nil
}
