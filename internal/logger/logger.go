package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"whatsapp-crm/internal/config"
)

// Init configures the global zerolog logger. It returns a closer for the
// rotating file writer, or a no-op when LOG_FILE is unset.
func Init(cfg *config.Config) func() error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.LogFormat, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	closer := func() error { return nil }
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating.Close
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "whatsapp-crm").Logger()
	return closer
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
