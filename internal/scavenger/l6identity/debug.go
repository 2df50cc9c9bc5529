package l6identity

import (
	"io"

	"github.com/banshee-data/scavenger/internal/monitoring"
)

var logs *monitoring.LayerLog

// SetLogWriters configures the ops, diag and trace streams of l6identity.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewLayerLog("l6identity", ops, diag, trace)
}

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func diagf(format string, args ...interface{})  { logs.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }

// DO NOT add Debugf, that's an anti-pattern. Each callsite needs to use opsf, diagf, or tracef.
