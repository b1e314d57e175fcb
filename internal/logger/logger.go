package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warning"
	ErrorLevel LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger defines the interface for component logging.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	InitWithWriter(output, level)
}

// InitWithWriter routes all log output to w. Used by Init and by tests that
// want to inspect what was logged.
func InitWithWriter(w io.Writer, level LogLevel) {
	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(level.zerolog())
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type component struct {
	name string
}

// Component returns a Logger that tags every event with the component name.
// The underlying logger is resolved per event, so components created before
// Init still follow the configured output.
func Component(name string) Logger {
	return &component{name: name}
}

func (c *component) Debug() *LogEvent {
	return &LogEvent{log.Debug().Str("component", c.name)}
}

func (c *component) Info() *LogEvent {
	return &LogEvent{log.Info().Str("component", c.name)}
}

func (c *component) Warn() *LogEvent {
	return &LogEvent{log.Warn().Str("component", c.name)}
}

func (c *component) Error() *LogEvent {
	return &LogEvent{log.Error().Str("component", c.name)}
}

func (c *component) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error().Str("component", c.name), err)
}

// Writer returns an io.Writer that logs each write as one info line, for
// libraries that only know how to write to a stream.
func Writer(name string) io.Writer {
	return writer{name: name}
}

type writer struct {
	name string
}

func (w writer) Write(p []byte) (int, error) {
	n := len(p)
	for n > 0 && (p[n-1] == '\n' || p[n-1] == '\r') {
		n--
	}
	log.Info().Str("component", w.name).Msg(string(p[:n]))

	return len(p), nil
}
