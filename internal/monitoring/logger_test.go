package monitoring

import (
	"bytes"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestVerbosityFromFlags(t *testing.T) {
	tests := []struct {
		v, vv bool
		want  Verbosity
	}{
		{false, false, Quiet},
		{true, false, Diagnostic},
		{false, true, Trace},
		{true, true, Trace},
	}
	for _, tt := range tests {
		if got := VerbosityFromFlags(tt.v, tt.vv); got != tt.want {
			t.Errorf("VerbosityFromFlags(%v, %v) = %d, want %d", tt.v, tt.vv, got, tt.want)
		}
	}
}

func TestStreams(t *testing.T) {
	var buf bytes.Buffer

	ops, diag, trace := Quiet.Streams(&buf)
	if ops == nil || diag != nil || trace != nil {
		t.Errorf("Quiet streams = %v, %v, %v; want only ops", ops, diag, trace)
	}
	ops, diag, trace = Diagnostic.Streams(&buf)
	if ops == nil || diag == nil || trace != nil {
		t.Errorf("Diagnostic streams = %v, %v, %v; want ops and diag", ops, diag, trace)
	}
	ops, diag, trace = Trace.Streams(&buf)
	if ops == nil || diag == nil || trace == nil {
		t.Errorf("Trace streams = %v, %v, %v; want all three", ops, diag, trace)
	}
}
