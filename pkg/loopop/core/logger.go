package core

import "time"

// Logger interface defines logging capabilities
type Logger interface {
	Info() LogEvent
	Debug() LogEvent
	Warn() LogEvent
	Error() LogEvent
	Trace() LogEvent
}

// LogEvent interface for structured logging
type LogEvent interface {
	Str(key, val string) LogEvent
	Int(key string, val int) LogEvent
	Err(err error) LogEvent
	Bool(key string, val bool) LogEvent
	Dur(key string, val time.Duration) LogEvent
	Strs(key string, vals []string) LogEvent
	Interface(key string, val interface{}) LogEvent
	Msg(msg string)
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Info() LogEvent { return nopEvent{} }
func (nopLogger) Debug() LogEvent { return nopEvent{} }
func (nopLogger) Warn() LogEvent { return nopEvent{} }
func (nopLogger) Error() LogEvent { return nopEvent{} }
func (nopLogger) Trace() LogEvent { return nopEvent{} }

type nopEvent struct{}

func (e nopEvent) Str(string, string) LogEvent { return e }
func (e nopEvent) Int(string, int) LogEvent { return e }
func (e nopEvent) Err(error) LogEvent { return e }
func (e nopEvent) Bool(string, bool) LogEvent { return e }
func (e nopEvent) Dur(string, time.Duration) LogEvent { return e }
func (e nopEvent) Strs(string, []string) LogEvent { return e }
func (e nopEvent) Interface(string, interface{}) LogEvent { return e }
func (e nopEvent) Msg(string) {}
