package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger builds the process-wide logger. Every line carries the
// service name so api and worker output can share one sink.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// ExecutionGroup tags a log line with the tenant and execution it belongs
// to, keeping the key layout identical across api, queue, and worker.
func ExecutionGroup(tenantID, executionID string) slog.Attr {
	return slog.Group("execution",
		slog.String("tenant_id", tenantID),
		slog.String("id", executionID),
	)
}

func parseLevel(level string) slog.Level {
	normalized := strings.TrimSpace(level)
	if strings.EqualFold(normalized, "warning") {
		normalized = "warn"
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
