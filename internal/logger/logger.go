package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"github.com/rs/zerolog"
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func replace(w io.Writer) {
	mu.Lock()
	base = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

// LogEvent wraps a zerolog event so callers only import this package.
type LogEvent struct {
	*zerolog.Event
}

// Code attaches the error together with its code when err is a coded error.
func (e *LogEvent) Code(err error) *LogEvent {
	var coded errors.Error
	if errors.As(err, &coded) {
		e.Event = e.Event.Str("error_code", string(coded.Code()))
	}
	e.Event = e.Event.Err(err)
	return e
}

// Init switches to console output. Services log without timestamps since
// journald adds its own.
func Init(level string, isService bool) error {
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if isService {
		w.FormatTimestamp = func(any) string { return "" }
	}
	replace(w)

	lvl, err := ParseLevel(level)
	SetLogLevel(lvl)
	return err
}

// SetOutput sends JSON output to w.
func SetOutput(w io.Writer) {
	replace(w)
}

// ParseLevel returns InfoLevel along with the error for unknown names.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
}

func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService guesses whether we run under an init system rather than a
// terminal.
func IsService() bool {
	switch {
	case os.Getenv("INVOCATION_ID") != "", os.Getenv("SERVICE_NAME") != "":
		return true
	case os.Getppid() == 1:
		return true
	}
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	return syscall.Getpgrp() == syscall.Getpid()
}

func Debug() *LogEvent { return &LogEvent{current().Debug()} }
func Info() *LogEvent  { return &LogEvent{current().Info()} }
func Warn() *LogEvent  { return &LogEvent{current().Warn()} }
func Error() *LogEvent { return &LogEvent{current().Error()} }

// Fatal exits the process once the event is sent.
func Fatal() *LogEvent { return &LogEvent{current().Fatal()} }

type component string

// With returns a Logger tagging every event with name. The output set by
// Init or SetOutput is looked up per event.
func With(name string) Logger {
	return component(name)
}

func (c component) tag(ev *zerolog.Event) *LogEvent {
	return &LogEvent{ev.Str("component", string(c))}
}

func (c component) Debug() *LogEvent { return c.tag(current().Debug()) }
func (c component) Info() *LogEvent  { return c.tag(current().Info()) }
func (c component) Warn() *LogEvent  { return c.tag(current().Warn()) }
func (c component) Error() *LogEvent { return c.tag(current().Error()) }
