package observability

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khotaikhoan/storefront/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds the JSON logger used in every environment. The level comes from LOG_LEVEL and
// the keys match what Cloud Logging parses.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// FromContext returns the request logger, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger is the logging hook handed to services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewEventLogger adapts zap to EventLogger. Events whose name ends in ".failed" or ".error" log at
// warn; everything else logs at info. The request logger on ctx wins over fallback.
func NewEventLogger(fallback *zap.Logger) EventLogger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		zfields := make([]zap.Field, 0, len(keys)+1)
		zfields = append(zfields, zap.String("event", event))
		for _, k := range keys {
			zfields = append(zfields, zap.Any(k, fields[k]))
		}

		if strings.HasSuffix(event, ".failed") || strings.HasSuffix(event, ".error") {
			logger.Warn(event, zfields...)
			return
		}
		logger.Info(event, zfields...)
	}
}
