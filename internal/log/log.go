// Package log provides the small logging surface the handshake and the
// public rsyncd server depend on, matching the teacher's
// rsyncd.Option/WithLogger/WithStderr shape: callers supply a
// destination, not a logging framework, and every call site logs
// through the same Printf-shaped interface.
package log

import (
	"io"
	"log"
	"os"
)

// Logger is the minimal surface the handshake logs through. Modeled on
// the stdlib *log.Logger's Printf so the zero-effort implementation is
// just log.New under the hood.
type Logger interface {
	Printf(format string, v ...any)
}

// New returns a Logger writing to w, one line per call, with no prefix
// and the stdlib's standard date and time stamp (log.LstdFlags).
func New(w io.Writer) Logger {
	return log.New(w, "", log.LstdFlags)
}

// Stderr is the default logger when no Option overrides it.
var Stderr = New(os.Stderr)

// Discard silences all log output, used by tests that don't want
// handshake diagnostics on stderr.
var Discard = New(io.Discard)
