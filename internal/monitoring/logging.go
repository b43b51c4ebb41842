package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel accepts debug, info, warn and error in any case.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level '%s'", s)
}

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
	FormatConsole
)

// ParseLogFormat accepts json, text and console.
func ParseLogFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format '%s'", s)
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer
	Component string
	Fields    map[string]any
}

// NewLogger creates a slog logger with the given configuration. Every record
// carries the service name, the component and the extra fields.
func NewLogger(config LoggerConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.Level == LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	case FormatConsole:
		handler = NewConsoleHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	attrs := []any{"service", "classify"}
	if config.Component != "" {
		attrs = append(attrs, "component", config.Component)
	}
	for k, v := range config.Fields {
		attrs = append(attrs, k, v)
	}
	return slog.New(handler).With(attrs...)
}

// NewProductionLogger creates a logger configured from CLASSIFY_LOG_LEVEL
// and CLASSIFY_LOG_FORMAT. Unknown values fall back to info and JSON.
func NewProductionLogger(component string) *slog.Logger {
	level, _ := ParseLogLevel(os.Getenv("CLASSIFY_LOG_LEVEL"))
	format, _ := ParseLogFormat(os.Getenv("CLASSIFY_LOG_FORMAT"))
	return NewLogger(LoggerConfig{
		Level:     level,
		Format:    format,
		Component: component,
		Fields: map[string]any{
			"pid": os.Getpid(),
		},
	})
}

// NewDevelopmentLogger creates a logger optimized for development
func NewDevelopmentLogger(component string) *slog.Logger {
	return NewLogger(LoggerConfig{
		Level:     LevelDebug,
		Format:    FormatConsole,
		Component: component,
	})
}

// NewDiscardLogger returns a logger that drops every record.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ConsoleHandler provides colorized console output
type ConsoleHandler struct {
	handler slog.Handler
	output  io.Writer
	attrs   []slog.Attr
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(output io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		handler: slog.NewTextHandler(output, opts),
		output:  output,
	}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ConsoleHandler) Handle(ctx context.Context, record slog.Record) error {
	var levelStr string
	switch record.Level {
	case slog.LevelDebug:
		levelStr = "\033[36mDEBUG\033[0m" // Cyan
	case slog.LevelInfo:
		levelStr = "\033[32mINFO\033[0m" // Green
	case slog.LevelWarn:
		levelStr = "\033[33mWARN\033[0m" // Yellow
	case slog.LevelError:
		levelStr = "\033[31mERROR\033[0m" // Red
	default:
		levelStr = record.Level.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", record.Time.Format("15:04:05.000"), levelStr, record.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')
	_, err := io.WriteString(h.output, b.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithAttrs(attrs),
		output:  h.output,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithGroup(name),
		output:  h.output,
		attrs:   h.attrs,
	}
}
