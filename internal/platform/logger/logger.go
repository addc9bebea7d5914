// Package logger provides structured logging for the simulation server.
// Every state transition the engine commits is traceable through Event.
package logger

import (
	"io"
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/ttacon/chalk"
)

// Logger provides structured logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewLogger creates a new logger instance writing to stdout/stderr.
// Level prefixes are colored when stdout is a terminal.
func NewLogger() *Logger {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return newLogger(os.Stdout, os.Stderr, color)
}

// NewNopLogger discards everything. Used by batch runs and tests.
func NewNopLogger() *Logger {
	return newLogger(io.Discard, io.Discard, false)
}

// NewWriterLogger logs every level to w without colors.
func NewWriterLogger(w io.Writer) *Logger {
	return newLogger(w, w, false)
}

func newLogger(out, errOut io.Writer, color bool) *Logger {
	info, warn, fail := "[SIM-INFO] ", "[SIM-WARN] ", "[SIM-ERROR] "
	if color {
		info = chalk.Cyan.Color(info)
		warn = chalk.Yellow.Color(warn)
		fail = chalk.Red.Color(fail)
	}
	flags := log.Ldate | log.Ltime | log.Lshortfile
	return &Logger{
		infoLogger:  log.New(out, info, flags),
		warnLogger:  log.New(out, warn, flags),
		errorLogger: log.New(errOut, fail, flags),
	}
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Event logs a simulation event: a transition, a reset or a control command.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Printf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details)
}
