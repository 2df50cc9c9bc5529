// Package monitoring holds the process-wide logging hooks shared by the
// command binaries and the storage adapters.
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Verbosity selects which of the three per-package log streams are enabled.
type Verbosity int

const (
	// Quiet keeps only the ops stream.
	Quiet Verbosity = iota
	// Diagnostic adds the diag stream (-v).
	Diagnostic
	// Trace adds the per-record trace stream (-vv).
	Trace
)

// VerbosityFromFlags maps the -v and -vv command-line flags to a Verbosity.
func VerbosityFromFlags(v, vv bool) Verbosity {
	switch {
	case vv:
		return Trace
	case v:
		return Diagnostic
	default:
		return Quiet
	}
}

// Streams returns the ops, diag and trace writers for a SetLogWriters call.
// Disabled streams are nil.
func (v Verbosity) Streams(w io.Writer) (ops, diag, trace io.Writer) {
	ops = w
	if v >= Diagnostic {
		diag = w
	}
	if v >= Trace {
		trace = w
	}
	return ops, diag, trace
}
