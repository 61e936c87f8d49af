package attachcrypto

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured-logging capability an Engine needs: every
// error a pipeline surfaces (except one wrapping ErrAborted) is logged
// at error level with id and op context, rather than via fmt.Printf.
type Logger interface {
	LogError(op, id string, err error)
}

// zerologLogger wraps zerolog.Logger, generalized from the teacher
// pack's logging.Logger (rescale-labs-Rescale_Interlink) down to the one
// capability this engine needs.
type zerologLogger struct {
	zlog zerolog.Logger
}

// NewLogger returns the default Logger: a zerolog logger writing
// console-formatted output to stderr with a timestamp, at info level.
func NewLogger() Logger {
	return NewLoggerAtLevel("info")
}

// NewLoggerAtLevel is NewLogger with an explicit zerolog level name
// ("debug", "info", "warn", "error"); a name zerolog.ParseLevel rejects
// falls back to info.
func NewLoggerAtLevel(levelName string) Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return &zerologLogger{zlog: zerolog.New(output).Level(level).With().Timestamp().Logger()}
}

func (l *zerologLogger) LogError(op, id string, err error) {
	l.zlog.Error().Str("op", op).Str("id", id).Err(err).Msg("attachcrypto pipeline error")
}

// logPipelineError logs err via logger unless it wraps ErrAborted, per
// spec.md §7's propagation policy.
func logPipelineError(logger Logger, op, id string, err error) {
	if err == nil || logger == nil {
		return
	}
	if errors.Is(err, ErrAborted) {
		return
	}
	logger.LogError(op, id, err)
}
