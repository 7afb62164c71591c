package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // message kinds to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// watchURL turns the daemon base URL into its WebSocket endpoint. The
// filter travels in the query so the daemon skips what we would discard.
func watchURL(baseURL string, filter []string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	if len(filter) > 0 {
		u.RawQuery = url.Values{"filter": {strings.Join(filter, ",")}}.Encode()
	}
	return u.String(), nil
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := watchURL(baseURL, opts.Filter)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, target))
		if len(opts.Filter) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(divider(50))
		fmt.Println()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if opts.JSON {
				fmt.Println(string(msg))
			} else {
				renderEvent(os.Stdout, msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

// renderEvent parses a JSON message and prints it in a human-friendly
// format. Unrecognized messages are dumped as indented JSON.
func renderEvent(w io.Writer, raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(w, "  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := colorize(dim, formatEventTime(ev))

	switch evType {
	case "heartbeat":
		// Heartbeats are noisy, keep them dim on one line.
		state, _ := ev["state"].(string)
		fb, _ := ev["fallback"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		fmt.Fprintf(w, "  %s %s  %s  %s  up %s\n",
			ts,
			colorize(dim, "heartbeat"),
			colorize(stateColor(state), state),
			colorize(stateColor(fb), fb),
			colorize(dim, formatDuration(time.Duration(uptime)*time.Second)),
		)

	case "state":
		from, _ := ev["from"].(string)
		to, _ := ev["to"].(string)
		id, _ := ev["navigation_id"].(string)
		fmt.Fprintf(w, "  %s %s  %s %s %s  %s\n",
			ts,
			colorize(bold, "STATE"),
			colorize(stateColor(from), from),
			colorize(dim, "->"),
			colorize(stateColor(to), to),
			colorize(dim, shortID(id)),
		)

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		component, _ := ev["component"].(string)
		src := ""
		if component != "" {
			src = colorize(dim, "["+component+"] ")
		}
		fmt.Fprintf(w, "  %s %s  %s%s\n", ts, formatLogLevel(level), src, message)

	case "event":
		name, _ := ev["name"].(string)
		data, _ := ev["data"].(map[string]any)
		renderBusEvent(w, ts, name, data)

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(w, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(w, "  %s\n", string(pretty))
	}
}

func renderBusEvent(w io.Writer, ts, name string, d map[string]any) {
	str := func(k string) string { s, _ := d[k].(string); return s }
	num := func(k string) float64 { f, _ := d[k].(float64); return f }

	switch name {
	case "transition-applied":
		label := str("name")
		if b, _ := d["disabled"].(bool); b {
			label += " (disabled)"
		}
		fmt.Fprintf(w, "  %s %s  %s %s %s  %s %s  %s\n",
			ts,
			colorize(cyan, "APPLIED"),
			str("from_path"), colorize(dim, "->"), str("to_path"),
			colorize(bold, label),
			formatMs(num("duration_ms")),
			colorize(dim, str("direction")+"/"+str("relationship")+" "+str("tier")),
		)
	case "transition-error":
		fmt.Fprintf(w, "  %s %s  %s  %s  %s\n",
			ts,
			colorize(red, "ERROR  "),
			colorize(bold, str("kind")),
			str("message"),
			colorize(dim, "strategy="+str("strategy")),
		)
	case "performance-fallback-triggered":
		fmt.Fprintf(w, "  %s %s  %s  %.1f fps, %d dropped, worst %s\n",
			ts,
			colorize(yellow, "JANK   "),
			str("label"),
			num("average_frame_rate"),
			int(num("dropped_frames")),
			formatMs(num("worst_frame_ms")),
		)
	case "preferences-changed":
		fmt.Fprintf(w, "  %s %s  %s: %v %s %v\n",
			ts,
			colorize(blue, "PREFS  "),
			str("key"), d["old_value"], colorize(dim, "->"), d["new_value"],
		)
	case "lifecycle-changed":
		// Mirrored by the "state" message.
	default:
		b, _ := json.Marshal(d)
		fmt.Fprintf(w, "  %s %s  %s\n", ts, colorize(dim, padRight(name, 7)), colorize(dim, string(b)))
	}
}

// shortID keeps the first segment of a navigation UUID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return colorize(dim, "DEBUG")
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
