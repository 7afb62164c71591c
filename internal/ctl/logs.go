package ctl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LogsOptions configures the logs command.
type LogsOptions struct {
	Level     string
	Component string // substring of the logger name, e.g. "perfmon"
	Limit     int
	Tail      bool
	JSON      bool
}

// Logs shows recent daemon log messages, or streams them live with --tail.
// The component filter applies after the limit, so it can return fewer
// lines than asked for.
func Logs(baseURL string, opts LogsOptions) error {
	// --tail mode: use WebSocket watch with log filter.
	if opts.Tail {
		return Watch(baseURL, WatchOptions{
			Filter: []string{"log"},
			JSON:   opts.JSON,
		})
	}

	// Query the in-memory ring of recent lines.
	params := url.Values{}
	if opts.Level != "" {
		params.Set("level", opts.Level)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/logs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Logs []struct {
			TS        string `json:"ts"`
			Level     string `json:"level"`
			Message   string `json:"message"`
			Component string `json:"component"`
		} `json:"logs"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if opts.Component != "" {
		kept := resp.Logs[:0]
		for _, l := range resp.Logs {
			if strings.Contains(l.Component, opts.Component) {
				kept = append(kept, l)
			}
		}
		resp.Logs = kept
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  DAEMON LOGS"))
	fmt.Println(divider(70))

	if len(resp.Logs) == 0 {
		fmt.Println("  No log entries found.")
	} else {
		for _, entry := range resp.Logs {
			ts := entry.TS
			if t, err := time.Parse(time.RFC3339Nano, entry.TS); err == nil {
				ts = t.Local().Format("15:04:05")
			}

			src := ""
			if entry.Component != "" {
				src = colorize(dim, "["+entry.Component+"] ")
			}
			fmt.Printf("  %s %s  %s%s\n", ts, formatLogLevel(entry.Level), src, entry.Message)
		}
	}

	fmt.Println()
	return nil
}
