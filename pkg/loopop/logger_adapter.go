package loopop

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// loggerAdapter adapts zerolog.Logger to core.Logger interface
type loggerAdapter struct {
	logger *zerolog.Logger
}

// NewLoggerAdapter creates a new logger adapter
func NewLoggerAdapter(logger *zerolog.Logger) core.Logger {
	return &loggerAdapter{logger: logger}
}

// logEventAdapter adapts zerolog.Event to core.LogEvent interface
type logEventAdapter struct {
	event *zerolog.Event
}

func (l *loggerAdapter) Info() core.LogEvent {
	return &logEventAdapter{event: l.logger.Info()}
}

func (l *loggerAdapter) Debug() core.LogEvent {
	return &logEventAdapter{event: l.logger.Debug()}
}

func (l *loggerAdapter) Warn() core.LogEvent {
	return &logEventAdapter{event: l.logger.Warn()}
}

func (l *loggerAdapter) Error() core.LogEvent {
	return &logEventAdapter{event: l.logger.Error()}
}

func (l *loggerAdapter) Trace() core.LogEvent {
	return &logEventAdapter{event: l.logger.Trace()}
}

// A disabled level yields a nil *zerolog.Event; its methods are nil-safe.

func (e *logEventAdapter) Str(key, val string) core.LogEvent {
	e.event = e.event.Str(key, val)
	return e
}

func (e *logEventAdapter) Int(key string, val int) core.LogEvent {
	e.event = e.event.Int(key, val)
	return e
}

func (e *logEventAdapter) Err(err error) core.LogEvent {
	e.event = e.event.Err(err)
	return e
}

func (e *logEventAdapter) Bool(key string, val bool) core.LogEvent {
	e.event = e.event.Bool(key, val)
	return e
}

func (e *logEventAdapter) Dur(key string, val time.Duration) core.LogEvent {
	e.event = e.event.Dur(key, val)
	return e
}

func (e *logEventAdapter) Strs(key string, vals []string) core.LogEvent {
	e.event = e.event.Strs(key, vals)
	return e
}

func (e *logEventAdapter) Interface(key string, val interface{}) core.LogEvent {
	e.event = e.event.Interface(key, val)
	return e
}

func (e *logEventAdapter) Msg(msg string) {
	e.event.Msg(msg)
}
