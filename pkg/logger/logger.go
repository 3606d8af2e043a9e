// Package logger provides component-scoped structured logging.
//
// Every call names the component it comes from ("dispatch", "moderation",
// "transport.telegram", ...) so log lines can be filtered per subsystem.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu       sync.Mutex
	level    = new(slog.LevelVar)
	current  atomic.Pointer[slog.Logger]
	out      io.Writer = os.Stderr
	jsonMode bool
)

func init() {
	level.Set(slog.LevelInfo)
	rebuild()
}

func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if jsonMode {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	current.Store(slog.New(h))
}

// ParseLevel maps a config level name ("debug", "INFO", ...) to a LogLevel.
func ParseLevel(s string) (LogLevel, bool) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return l, true
		}
	}
	return INFO, false
}

// SetLevel changes the minimum level that is emitted.
func SetLevel(l LogLevel) {
	level.Set(l.slogLevel())
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// EnableJSON switches to one JSON object per line.
func EnableJSON() {
	mu.Lock()
	defer mu.Unlock()
	jsonMode = true
	rebuild()
}

func logCF(l LogLevel, component, message string, fields map[string]any) {
	lg := current.Load()
	sl := l.slogLevel()
	if !lg.Enabled(context.Background(), sl) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("component", component))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	lg.LogAttrs(context.Background(), sl, message, attrs...)
}

func DebugC(component, message string) { logCF(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logCF(INFO, component, message, nil) }
func WarnC(component, message string)  { logCF(WARN, component, message, nil) }
func ErrorC(component, message string) { logCF(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logCF(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logCF(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logCF(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logCF(ERROR, component, message, fields)
}
