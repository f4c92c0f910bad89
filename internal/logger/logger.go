package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// WithBuild returns a context whose logger tags every event with the build
// id and mode. It starts from the logger already in ctx, falling back to the
// global logger.
func WithBuild(ctx context.Context, buildID, mode string) context.Context {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}

	return base.With().
		Str("build_id", buildID).
		Str("mode", mode).
		Logger().WithContext(ctx)
}

// Timed logs msg with the duration since started once the returned func is
// called.
func Timed(ctx context.Context, msg string) func(err error) {
	started := time.Now()
	return func(err error) {
		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Dur("duration", time.Since(started)).
				Msg(msg)
			return
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg(msg)
	}
}
