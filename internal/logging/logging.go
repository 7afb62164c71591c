// Package logging builds the daemon's zap logger: a console or JSON core on
// stdout, an optional rotating JSON file through lumberjack, and a small
// in-memory tail of recent lines that the HTTP API and the WebSocket stream
// read from.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/ring"
)

// RecentLines is how many log lines the tail keeps.
const RecentLines = 200

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorReset  = "\x1b[0m"
)

// Logger bundles the root logger with the handles the daemon needs to
// adjust it at runtime.
type Logger struct {
	*zap.Logger
	Level  zap.AtomicLevel
	Recent *Recent
	file   *lumberjack.Logger
}

// New builds a logger from cfg writing console output to console.
func New(cfg config.LoggingConfig, console zapcore.WriteSyncer) *Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder("json"), zapcore.AddSync(file), level))
	}

	recent := NewRecent(RecentLines)
	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddStacktrace(zap.ErrorLevel),
		zap.Hooks(recent.record),
	).Named("transitiond")

	return &Logger{Logger: logger, Level: level, Recent: recent, file: file}
}

// SetLevel applies a level name from a reloaded config.
func (l *Logger) SetLevel(name string) error {
	return l.Level.UnmarshalText([]byte(name))
}

// Close flushes buffered output and closes the rotating file.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "json" {
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = colorLevel
	return zapcore.NewConsoleEncoder(ec)
}

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = colorBlue
	case zapcore.InfoLevel:
		color = colorCyan
	case zapcore.WarnLevel:
		color = colorYellow
	default:
		color = colorRed
	}
	enc.AppendString(fmt.Sprintf("%s%-5s%s", color, strings.ToUpper(level.String()), colorReset))
}

// Line is one retained log entry.
type Line struct {
	TS        time.Time `json:"ts"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
}

// Recent retains the newest log lines. Unlike the core components it is
// written from every goroutine that logs, so it carries its own lock.
type Recent struct {
	mu    sync.Mutex
	buf   *ring.Buffer[Line]
	watch []func(Line)
}

func NewRecent(capacity int) *Recent {
	return &Recent{buf: ring.New[Line](capacity)}
}

func (r *Recent) record(e zapcore.Entry) error {
	line := Line{TS: e.Time.UTC(), Level: e.Level.String(), Message: e.Message, Component: e.LoggerName}
	r.mu.Lock()
	r.buf.Push(line)
	watch := r.watch
	r.mu.Unlock()
	for _, fn := range watch {
		fn(line)
	}
	return nil
}

// OnLine registers fn for every future line. fn runs on the logging
// goroutine and must not block or log.
func (r *Recent) OnLine(fn func(Line)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watch = append(r.watch[:len(r.watch):len(r.watch)], fn)
}

// Lines returns retained lines oldest first, filtered by level when level
// is non-empty and trimmed to the newest limit when limit > 0.
func (r *Recent) Lines(level string, limit int) []Line {
	r.mu.Lock()
	all := r.buf.All()
	r.mu.Unlock()

	out := all[:0]
	for _, l := range all {
		if level == "" || l.Level == level {
			out = append(out, l)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out
}
