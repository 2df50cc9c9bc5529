package monitoring

import (
	"io"
	"log"
)

// LayerLog is the ops/diag/trace triple behind each pipeline layer's
// SetLogWriters. The zero value logs nothing.
type LayerLog struct {
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// NewLayerLog prefixes every line with [name]. A nil writer disables its
// stream.
func NewLayerLog(name string, ops, diag, trace io.Writer) *LayerLog {
	prefix := "[" + name + "] "
	return &LayerLog{
		ops:   newLogger(prefix, ops),
		diag:  newLogger(prefix, diag),
		trace: newLogger(prefix, trace),
	}
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs actionable warnings, errors and data loss.
func (l *LayerLog) Opsf(format string, args ...interface{}) {
	if l != nil && l.ops != nil {
		l.ops.Printf(format, args...)
	}
}

// Diagf logs day-to-day diagnostics and tuning context.
func (l *LayerLog) Diagf(format string, args ...interface{}) {
	if l != nil && l.diag != nil {
		l.diag.Printf(format, args...)
	}
}

// Tracef logs high-frequency per-record telemetry.
func (l *LayerLog) Tracef(format string, args ...interface{}) {
	if l != nil && l.trace != nil {
		l.trace.Printf(format, args...)
	}
}
