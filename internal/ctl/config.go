package ctl

import (
	"fmt"
	"sort"
	"strings"
)

// configSections is the display order; it follows the TOML file layout.
var configSections = []string{
	"server", "logging", "storage", "frames", "transitions",
	"monitor", "fallback", "device", "demo",
}

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	var cfg map[string]any
	if err := getJSON(baseURL, "/api/config", &cfg); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cfg)
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(divider(50))

	for _, name := range configSections {
		section, ok := cfg[name].(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %-22s %s\n", colorize(dim, k+":"), configValue(section[k]))
		}
	}
	fmt.Println()
	return nil
}

// configValue renders one config value. Lists of tables collapse to their
// names so custom transitions stay on one line.
func configValue(v any) string {
	switch v := v.(type) {
	case nil:
		return colorize(dim, "(unset)")
	case string:
		if v == "" {
			return colorize(dim, `""`)
		}
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					parts = append(parts, name)
					continue
				}
			}
			parts = append(parts, fmt.Sprint(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
