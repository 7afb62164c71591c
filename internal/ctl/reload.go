package ctl

import "fmt"

// Reload tells the daemon to re-read its config file from disk. Only the
// log level takes effect without a restart.
func Reload(baseURL string, jsonOutput bool) error {
	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := postJSON(baseURL, "/api/reload", nil, &result); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("\n  %s  %s\n\n", colorize(green, "RELOADED"), result.Message)
	return nil
}
