// Package logging configures the single root charmbracelet/log logger
// every audera component is handed at construction time. There is no
// package-level global logger: components take a *log.Logger explicitly.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// Options configures the root logger.
type Options struct {
	// Role names the process ("streamer" or "player") and is attached to
	// every log line as a field.
	Role string

	// Level is the minimum severity logged. Defaults to log.InfoLevel.
	Level log.Level

	// Output defaults to os.Stderr.
	Output io.Writer

	// JSON forces the JSON formatter regardless of whether Output is a
	// TTY. When false, the formatter is auto-detected: JSON when Output
	// is an *os.File that is not a terminal, text otherwise (including
	// any writer that is not an *os.File).
	JSON bool
}

// New builds the root logger for a process.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	formatter := log.TextFormatter
	if opts.JSON {
		formatter = log.JSONFormatter
	} else if f, ok := out.(*os.File); ok && !isatty.IsTerminal(f.Fd()) {
		formatter = log.JSONFormatter
	}

	level := opts.Level
	if level == 0 {
		level = log.InfoLevel
	}

	logger := log.NewWithOptions(out, log.Options{
		Formatter:       formatter,
		ReportTimestamp: true,
		Level:           level,
	})
	logger = logger.With("role", opts.Role)

	return logger
}

// ErrorKind classifies a failure by how it is recovered from, which fixes
// the severity it is logged at: transient peer failures, clock-probe
// failures, frame validation failures and protocol desync are Warn (local
// recovery); audio device failures are Error (supervised restart);
// cancellation is Debug (orderly shutdown).
type ErrorKind int

const (
	ErrorKindTransientPeer ErrorKind = iota + 1
	ErrorKindClockProbe
	ErrorKindAudioDevice
	ErrorKindFrameValidation
	ErrorKindProtocolDesync
	ErrorKindCancellation
)

// Log emits msg at the level kind's recovery mode assigns to it.
func Log(logger *log.Logger, kind ErrorKind, msg string, keyvals ...any) {
	switch kind {
	case ErrorKindAudioDevice:
		logger.Error(msg, keyvals...)
	case ErrorKindCancellation:
		logger.Debug(msg, keyvals...)
	default:
		logger.Warn(msg, keyvals...)
	}
}
