// Package logx is the library's logger. Output goes through one process-wide
// standard logger; each DB logs through its own Logger so a quiet DB does not
// silence the others.
package logx

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[log.Logger]

func init() {
	logger.Store(log.New(os.Stderr, "", log.LstdFlags))
}

// SetOutput redirects library logs.
func SetOutput(w io.Writer) {
	logger.Store(log.New(w, "", log.LstdFlags))
}

// SetQuiet discards library logs when quiet is true and restores stderr
// otherwise.
func SetQuiet(quiet bool) {
	if quiet {
		SetOutput(io.Discard)
		return
	}
	SetOutput(os.Stderr)
}

// Printf logs a formatted message.
func Printf(format string, args ...any) {
	logger.Load().Printf(format, args...)
}

// Logger writes through the process-wide logger unless it is quiet. A nil
// Logger logs.
type Logger struct {
	quiet bool
}

// New returns a Logger. A quiet Logger discards every message.
func New(quiet bool) *Logger {
	return &Logger{quiet: quiet}
}

// Printf logs a formatted message unless l is quiet.
func (l *Logger) Printf(format string, args ...any) {
	if l != nil && l.quiet {
		return
	}
	Printf(format, args...)
}
