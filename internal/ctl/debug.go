package ctl

import (
	"fmt"
	"time"
)

type debugSnapshot struct {
	Visible       bool   `json:"visible"`
	APISupported  bool   `json:"api_supported"`
	CurrentPath   string `json:"current_path"`
	InProgress    bool   `json:"in_progress"`
	ErrorCount    int64  `json:"error_count"`
	FallbackState string `json:"fallback_state"`
	Strategy      string `json:"strategy"`
	LastError     *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Context struct {
			Timestamp time.Time `json:"timestamp"`
		} `json:"context"`
	} `json:"last_error"`
}

// debugActions maps CLI verbs to the overlay's endpoints.
var debugActions = map[string]string{
	"toggle":    "toggle",
	"force":     "force-fallback",
	"self-test": "self-test",
	"key":       "key",
}

// Debug shows the debug overlay, or runs one of its actions: toggle,
// force, self-test, or key COMBO.
func Debug(baseURL string, args []string, jsonOutput bool) error {
	if len(args) == 0 {
		var snap debugSnapshot
		if err := getJSON(baseURL, "/api/debug", &snap); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(snap)
		}
		printDebug(snap)
		return nil
	}

	action, ok := debugActions[args[0]]
	if !ok {
		return fmt.Errorf("unknown debug action %q (want toggle, force, self-test or key)", args[0])
	}
	var body any
	if action == "key" {
		if len(args) < 2 {
			return fmt.Errorf("debug key needs a combo, e.g. ctrl+shift+d")
		}
		body = map[string]string{"combo": args[1]}
	}

	var res struct {
		OK        bool          `json:"ok"`
		Action    string        `json:"action"`
		Handled   *bool         `json:"handled,omitempty"`
		Scheduled *int          `json:"scheduled,omitempty"`
		Snapshot  debugSnapshot `json:"snapshot"`
	}
	if err := postJSON(baseURL, "/api/debug/"+action, body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Println()
	switch {
	case res.Handled != nil && !*res.Handled:
		fmt.Printf("  %s  %s is not bound\n", colorize(yellow, "IGNORED"), args[1])
	case res.Scheduled != nil:
		fmt.Printf("  %s  %d errors scheduled\n", colorize(green, "SELF-TEST"), *res.Scheduled)
	default:
		fmt.Printf("  %s  %s\n", colorize(green, "OK"), res.Action)
	}
	printDebug(res.Snapshot)
	return nil
}

func printDebug(s debugSnapshot) {
	fmt.Println()
	fmt.Println(header("  DEBUG OVERLAY"))
	fmt.Println(divider(42))
	field("Visible", yesNo(s.Visible))
	field("API", yesNo(s.APISupported))
	field("Path", s.CurrentPath)
	field("In progress", yesNo(s.InProgress))
	field("Fallback", colorize(stateColor(s.FallbackState), s.FallbackState)+" / "+s.Strategy)
	field("Errors", s.ErrorCount)
	if e := s.LastError; e != nil {
		field("Last error", e.Kind+": "+e.Message+colorize(dim, " at "+e.Context.Timestamp.Local().Format("15:04:05")))
	}
	fmt.Println()
}
