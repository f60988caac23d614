package services

import (
	"io"
	"os"
	"strings"

	"github.com/amirphl/food-parcel/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the root logger. The returned closer releases the log
// file when file output is enabled.
func NewLogger(cfg config.LoggingConfig, deployment config.DeploymentConfig) (zerolog.Logger, io.Closer) {
	writers := make([]io.Writer, 0, 2)
	var closer io.Closer = nopCloser{}

	output := strings.ToLower(cfg.Output)
	if output == "" || output == "stdout" || output == "both" {
		writers = append(writers, consoleOrJSON(os.Stdout, cfg.Format))
	}
	if output == "file" || output == "both" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		closer = rotating
		writers = append(writers, rotating)
	}
	if len(writers) == 0 {
		writers = append(writers, consoleOrJSON(os.Stdout, cfg.Format))
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().
		Timestamp().
		Str("env", deployment.Environment).
		Str("version", deployment.Version)
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer
}

func consoleOrJSON(w io.Writer, format string) io.Writer {
	if strings.EqualFold(format, "console") {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
	}
	return w
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return fallback
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
