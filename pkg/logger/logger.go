// Package logger builds the zap loggers used by the API server and the
// terminal client.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Format is the encoding of log lines.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// New creates a JSON logger writing to stdout.
func New(level string) (*Logger, error) {
	return build(level, FormatJSON, "stdout")
}

// NewFile creates a JSON logger appending to path. The terminal client
// uses it so log lines never land on the screen.
func NewFile(level, path string) (*Logger, error) {
	return build(level, FormatJSON, path)
}

// NewDevelopment creates a colored console logger at debug level.
func NewDevelopment() (*Logger, error) {
	return build("debug", FormatConsole, "stderr")
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func build(level string, format Format, output string) (*Logger, error) {
	dev := format == FormatConsole

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if dev {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:       dev,
		DisableStacktrace: !dev,
		Encoding:          string(format),
		EncoderConfig:     enc,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithActor creates a child logger tagged with the request and the
// identity acting in it. A zero user id means anonymous.
func (l *Logger) WithActor(correlationID, role string, userID int64) *Logger {
	fields := []zap.Field{zap.String("correlation_id", correlationID)}
	if userID != 0 {
		fields = append(fields, zap.Int64("user_id", userID), zap.String("role", role))
	}
	return l.With(fields...)
}

// Install makes l the process-wide zap logger.
func Install(l *Logger) {
	zap.ReplaceGlobals(l.Logger)
}
