package core

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a Logger backed by zerolog writing structured
// output to the given writer.
func NewZerologLogger(writer io.Writer, minLevel LogLevel) Logger {
	logger := zerolog.New(writer).Level(toZerologLevel(minLevel)).With().Timestamp().Logger()
	return &zerologLogger{logger: logger}
}

// WrapZerolog adapts an existing zerolog.Logger to the Logger interface.
func WrapZerolog(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zerologLogger) Debug(msg string, keyvals ...any) {
	l.emit(l.logger.Debug(), msg, keyvals)
}

func (l *zerologLogger) Info(msg string, keyvals ...any) {
	l.emit(l.logger.Info(), msg, keyvals)
}

func (l *zerologLogger) Warn(msg string, keyvals ...any) {
	l.emit(l.logger.Warn(), msg, keyvals)
}

func (l *zerologLogger) Error(msg string, keyvals ...any) {
	l.emit(l.logger.Error(), msg, keyvals)
}

// With returns a new logger carrying the additional key-value pairs.
func (l *zerologLogger) With(keyvals ...any) Logger {
	ctx := l.logger.With()
	for i := 0; i+1 < len(keyvals); i += 2 {
		ctx = ctx.Interface(keyString(keyvals[i]), keyvals[i+1])
	}
	return &zerologLogger{logger: ctx.Logger()}
}

func (l *zerologLogger) emit(event *zerolog.Event, msg string, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		event = event.Interface(keyString(keyvals[i]), keyvals[i+1])
	}
	event.Msg(msg)
}

func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", key)
}
