package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LevelTrace sits below debug and is used for per-request cookie and storage chatter
const LevelTrace = slog.Level(-8)

var (
	level     atomic.Value // slog.Level
	handlerMu sync.Mutex
	output    io.Writer = os.Stderr
	jsonMode  bool
)

func init() {
	lvl, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		lvl = slog.LevelInfo
	}
	level.Store(lvl)
	jsonMode = strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")
	rebuild()
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return slog.LevelError, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if jsonMode {
			return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
		}
		return slog.String(slog.TimeKey, a.Value.Time().Format("2006-01-02 15:04:05.000-07:00"))
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			return slog.String(slog.LevelKey, "TRACE")
		}
	}
	return a
}

// rebuild swaps the default slog handler for one matching the current level and format
func rebuild() {
	handlerMu.Lock()
	defer handlerMu.Unlock()

	opts := &slog.HandlerOptions{
		Level:       level.Load().(slog.Level),
		ReplaceAttr: replaceAttr,
	}
	var h slog.Handler
	if jsonMode {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Configure applies level and format settings resolved at startup.
// An empty level keeps the current one.
func Configure(lvl, format string) error {
	if lvl != "" {
		parsed, err := parseLevel(lvl)
		if err != nil {
			return err
		}
		level.Store(parsed)
	}
	jsonMode = strings.EqualFold(format, "json")
	rebuild()
	return nil
}

// SetOutput redirects log output, mostly for tests
func SetOutput(w io.Writer) {
	output = w
	rebuild()
}

// SetLogLevel atomically updates the log level at runtime
func SetLogLevel(lvl string) error {
	parsed, err := parseLevel(lvl)
	if err != nil {
		return err
	}
	level.Store(parsed)
	rebuild()

	LogInfoWithFields("logging", "Log level changed", map[string]any{
		"new_level": lvl,
	})
	return nil
}

// GetLogLevel returns the current log level as a lowercase string
func GetLogLevel() string {
	switch level.Load().(slog.Level) {
	case slog.LevelError:
		return "error"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelInfo:
		return "info"
	case slog.LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

func traceEnabled() bool {
	return level.Load().(slog.Level) <= LevelTrace
}

func Logf(format string, args ...any) {
	slog.Default().Info(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	slog.Default().Error(fmt.Sprintf(format, args...))
}

func LogWarn(format string, args ...any) {
	slog.Default().Warn(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...any) {
	slog.Default().Debug(fmt.Sprintf(format, args...))
}

func fieldArgs(component string, fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2+2)
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func LogInfoWithFields(component, message string, fields map[string]any) {
	slog.Default().Info(message, fieldArgs(component, fields)...)
}

func LogDebugWithFields(component, message string, fields map[string]any) {
	slog.Default().Debug(message, fieldArgs(component, fields)...)
}

func LogWarnWithFields(component, message string, fields map[string]any) {
	slog.Default().Warn(message, fieldArgs(component, fields)...)
}

func LogErrorWithFields(component, message string, fields map[string]any) {
	slog.Default().Error(message, fieldArgs(component, fields)...)
}

func LogTraceWithFields(component, message string, fields map[string]any) {
	if traceEnabled() {
		slog.Default().Log(context.Background(), LevelTrace, message, fieldArgs(component, fields)...)
	}
}
