package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lzqa/feature-qa/internal/request"
)

// NewLogger constructs a *slog.Logger writing to stderr, leaving stdout for the report.
// Supported levels: debug, info, warn, error.
// Supported formats: text (default), json.
func NewLogger(level, format string) (*slog.Logger, error) {
	return newLogger(os.Stderr, level, format)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	logger := slog.New(handler)
	return logger.With("component", "feature-qa"), nil
}

// runLogger scopes base to one workflow run. A nil base stays nil.
func runLogger(base *slog.Logger, runID string, req request.Request) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With(
		slog.String("run_id", runID),
		slog.String("action", string(req.Action)),
		slog.String("ticket", req.Ticket),
	)
}

func parseLevel(level string) (*slog.LevelVar, error) {
	var lvl slog.LevelVar

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info", "":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		return nil, fmt.Errorf("unsupported log level %q", level)
	}

	return &lvl, nil
}
