// Transctl is the command-line client for inspecting and driving a running
// transitiond instance. It connects over HTTP and WebSocket to query the
// transition core, report navigations and signals, and stream live events.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/large-farva/transition-engine/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Transition daemon URL (e.g. http://127.0.0.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Message kinds to show in watch (e.g. --filter state,transition-error)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --limit are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "metrics":
		err = ctl.Metrics(*host, *jsonOut)

	case "samples":
		sampleFlags := pflag.NewFlagSet("samples", pflag.ContinueOnError)
		limit := sampleFlags.Int("limit", 0, "Limit number of samples shown")
		_ = sampleFlags.Parse(subArgs)
		err = ctl.Samples(*host, *limit, *jsonOut)

	case "context":
		err = ctl.Context(*host, *jsonOut)

	case "errors":
		err = ctl.Errors(*host, *jsonOut)

	case "device":
		err = ctl.Device(*host, *jsonOut)

	case "transitions":
		err = ctl.Transitions(*host, *jsonOut)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (debug, info, warn, error)")
		logFlags.StringVar(&opts.Component, "component", "", "Only show lines from loggers whose name contains this")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	// ── Preferences ───────────────────────────────────────────────
	case "prefs":
		err = ctl.Prefs(*host, subArgs, *jsonOut)

	case "a11y":
		err = ctl.Accessibility(*host, subArgs, *jsonOut)

	// ── Control commands ──────────────────────────────────────────
	case "nav":
		if len(subArgs) < 1 {
			usage()
			os.Exit(2)
		}
		path := ""
		if len(subArgs) > 1 {
			path = subArgs[1]
		}
		err = ctl.Nav(*host, subArgs[0], path, *jsonOut)

	case "signal":
		if len(subArgs) < 1 {
			usage()
			os.Exit(2)
		}
		err = ctl.Signal(*host, subArgs[0], subArgs[1:], *jsonOut)

	case "frames":
		frameFlags := pflag.NewFlagSet("frames", pflag.ContinueOnError)
		memory := frameFlags.Float64("memory", -1, "Heap used/limit ratio to report with the batch")
		_ = frameFlags.Parse(subArgs)
		var ts []float64
		for _, a := range frameFlags.Args() {
			v, perr := strconv.ParseFloat(a, 64)
			if perr != nil {
				fmt.Fprintf(os.Stderr, "error: bad timestamp %q\n", a)
				os.Exit(2)
			}
			ts = append(ts, v)
		}
		err = ctl.Frames(*host, ts, *memory, *jsonOut)

	case "debug":
		err = ctl.Debug(*host, subArgs, *jsonOut)

	case "reload":
		err = ctl.Reload(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  transctl: transition engine control CLI

  USAGE
    transctl [flags] <command> [args]

  COMMANDS (query)
    status          Show daemon state, uptime, and the current navigation
    health          Check daemon and component health
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    metrics         Show transition counters and frame metrics
    samples         List recent per-transition performance samples
    context         Show the last navigation context and path history
    errors          Show fallback state and the transition error log
    device          Show device capabilities and motion recommendations
    transitions     List registered transitions and selection patterns
    logs            Show recent daemon log messages

  COMMANDS (preferences)
    prefs [k=v ...]     Show or update transition preferences
    a11y [k=v ...]      Show or update accessibility preferences

  COMMANDS (control)
    nav start|swap|back PATH    Report a navigation event
    nav load                    Report that the new page finished loading
    signal NAME [k=v ...]       Report a host signal (reduced-motion, online,
                                visibility, orientation, connection, battery,
                                support, error)
    frames TS_MS ...            Report animation frame timestamps
    debug [toggle|force|self-test|key COMBO]
                                Show the debug overlay or run an action
    reload                      Reload configuration from disk

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter KIND   Message kinds to show in watch (comma-separated)

  COMMAND FLAGS
    samples:
        --limit N           Limit number of samples shown

    logs:
        --level LEVEL       Filter by log level (debug, info, warn, error)
        --component NAME    Filter by logger name (e.g. perfmon, fallback)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

    frames:
        --memory RATIO      Heap used/limit ratio (0..1)

  EXAMPLES
    transctl status
    transctl --json metrics
    transctl nav start /blog/view-transitions-in-practice
    transctl frames 1000 1016.7 1033.4 --memory 0.42
    transctl nav swap /blog/view-transitions-in-practice
    transctl nav load
    transctl signal reduced-motion reduced=true
    transctl signal connection effective_type=3g downlink_mbps=1.2 save_data=false
    transctl prefs intensity=reduced debugMode=true
    transctl a11y focusManagement=false
    transctl debug self-test
    transctl logs --level warn --limit 20
    transctl watch --filter state,transition-applied,transition-error

`)
}
