package logger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger and returns ctx carrying it.
func Init(ctx context.Context, level string) context.Context {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(level))

	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
	log.Logger = log.With().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	return log.Logger.WithContext(ctx)
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case zerolog.LevelDebugValue:
		return zerolog.DebugLevel
	case zerolog.LevelInfoValue:
		return zerolog.InfoLevel
	case zerolog.LevelWarnValue:
		return zerolog.WarnLevel
	case zerolog.LevelErrorValue:
		return zerolog.ErrorLevel
	case zerolog.LevelFatalValue:
		return zerolog.FatalLevel
	default:
		return zerolog.TraceLevel
	}
}
