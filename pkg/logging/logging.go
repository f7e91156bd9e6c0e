package logging

import (
	"io"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File receives the log while the terminal UI owns stdout/stderr. Empty
	// means console output on stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup configures the global zerolog logger. The returned closer flushes
// the rotating file, if any.
func Setup(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrap(err, "parse log level")
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	if opts.File == "" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		return io.NopCloser(nil), nil
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return w, nil
}

type watermillAdapter struct {
	logger zerolog.Logger
}

// Watermill adapts the global zerolog logger to watermill.
func Watermill() watermill.LoggerAdapter {
	return watermillAdapter{logger: log.Logger.With().Str("component", "watermill").Logger()}
}

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillAdapter{logger: a.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
