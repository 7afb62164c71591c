package ctl

import (
	"fmt"
	"strconv"
	"strings"
)

// parseAssignments turns key=value arguments into a JSON object. Values
// that read as booleans or numbers are sent as such; "null" clears a
// field; anything else is a string.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = parseValue(strings.TrimSpace(raw))
	}
	return out, nil
}

func parseValue(raw string) any {
	switch raw {
	case "true", "on", "yes":
		return true
	case "false", "off", "no":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
