package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Health asks for the daemon's component checks via GET /healthz.
func Health(baseURL string, jsonOutput bool) error {
	status, body, err := getRaw(baseURL, "/healthz", "application/json")
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	var resp struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("HTTP %d: unreadable health response: %w", status, err)
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.Healthy {
		fmt.Printf("  %s  transitiond is healthy at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  transitiond returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), status, colorize(dim, baseURL))
	}

	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := resp.Checks[name]
		mark := colorize(green, "ok  ")
		detail := ""
		if ok, _ := c["ok"].(bool); !ok {
			mark = colorize(red, "FAIL")
			detail, _ = c["error"].(string)
		} else if ms, ok := c["latency_ms"].(float64); ok {
			detail = formatMs(ms)
		}
		fmt.Printf("    %s %s %s\n", mark, padRight(name, 12), colorize(dim, detail))
	}
	fmt.Println()
	return nil
}
