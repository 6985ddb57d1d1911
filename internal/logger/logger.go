package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"recruit-inbox/internal/config"
)

// createLogFilePath generates a log file path with the current date
func createLogFilePath(logDir, prefix string) string {
	currentDate := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, currentDate))
}

// createRotatingLogger creates a lumberjack rotating logger
func createRotatingLogger(logFilePath string, cfg *config.LoggerConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// ParseLevel maps the configured level name onto a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "FATAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the slog handler for the given writer and settings.
func NewHandler(w io.Writer, cfg *config.LoggerConfig, toFile bool) slog.Handler {
	level := ParseLevel(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "2006/01/02 15:04:05",
		NoColor:    toFile,
	})
}

// Setup configures the default logger to write to stdout and, when a log
// directory is configured, to a rotating log file as well.
func Setup(cfg *config.LoggerConfig) (*slog.Logger, error) {
	var out io.Writer = os.Stdout
	toFile := cfg.Directory != ""
	logFilePath := ""

	if toFile {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFilePath = createLogFilePath(cfg.Directory, "inbox")
		out = io.MultiWriter(os.Stdout, createRotatingLogger(logFilePath, cfg))
	}

	logger := slog.New(NewHandler(out, cfg, toFile))
	slog.SetDefault(logger)

	if toFile {
		logger.Info("Logging initialized", "file", logFilePath)
	}
	return logger, nil
}
