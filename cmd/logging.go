package cmd

import (
	"io"

	"github.com/habedi/salonctl/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging redirects the global logger to a rotating file when one is
// configured. Writing to a file turns logging on at info level unless debug
// logging is already enabled.
func setupLogging(cfg config.Config) io.Closer {
	if cfg.LogFile == "" {
		return nil
	}
	writer := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	if zerolog.GlobalLevel() == zerolog.Disabled {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return writer
}
