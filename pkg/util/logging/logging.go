package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var logLevelMapping = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level reads LOG_LEVEL, falling back to info.
func Level() slog.Level {
	level := strings.ToLower(os.Getenv("LOG_LEVEL"))

	logLevel, ok := logLevelMapping[level]
	if !ok {
		logLevel = slog.LevelInfo
	}
	return logLevel
}

// New строит JSON-логгер реплики с полем node_id.
func New(w io.Writer, nodeID string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: Level(),
	})).With("node_id", nodeID)
}

func InitDefault(nodeID string) {
	slog.SetDefault(New(os.Stdout, nodeID))
}
