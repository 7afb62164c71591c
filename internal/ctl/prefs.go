package ctl

import (
	"fmt"
	"sort"
)

type prefsUpdate struct {
	OK      bool `json:"ok"`
	Changes []struct {
		Key      string `json:"key"`
		OldValue any    `json:"old_value"`
		NewValue any    `json:"new_value"`
	} `json:"changes"`
	Error string `json:"error"`
}

// Prefs shows the transition preferences, or updates them when settings
// are given as key=value pairs (e.g. intensity=reduced debugMode=true).
func Prefs(baseURL string, settings []string, jsonOutput bool) error {
	return preferences(baseURL, "/api/preferences", "TRANSITION PREFERENCES", settings, jsonOutput)
}

// Accessibility shows or updates the accessibility preferences.
func Accessibility(baseURL string, settings []string, jsonOutput bool) error {
	return preferences(baseURL, "/api/accessibility", "ACCESSIBILITY", settings, jsonOutput)
}

func preferences(baseURL, path, title string, settings []string, jsonOutput bool) error {
	if len(settings) == 0 {
		var current map[string]any
		if err := getJSON(baseURL, path, &current); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(current)
		}
		fmt.Println()
		fmt.Println(header("  " + title))
		fmt.Println(divider(42))
		keys := make([]string, 0, len(current))
		for k := range current {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-28s %s\n", colorize(dim, k+":"), configValue(current[k]))
		}
		fmt.Println()
		return nil
	}

	body, err := parseAssignments(settings)
	if err != nil {
		return err
	}
	var res prefsUpdate
	if err := postJSON(baseURL, path, body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Println()
	if len(res.Changes) == 0 {
		fmt.Println("  Nothing changed.")
	}
	for _, c := range res.Changes {
		fmt.Printf("  %s  %s: %v %s %v\n", colorize(green, "SET"), c.Key, c.OldValue, colorize(dim, "->"), c.NewValue)
	}
	if res.Error != "" {
		fmt.Printf("  %s  %s\n", colorize(yellow, "WARN"), res.Error)
	}
	fmt.Println()
	return nil
}
