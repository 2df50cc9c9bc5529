package l1capture

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/scavenger/internal/fsutil"
)

func newMemorySource(t *testing.T, files map[string]string) *Source {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	for name, body := range files {
		if err := mfs.WriteFile(name, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return &Source{FS: mfs, Pattern: "/captures/*.json"}
}

func TestSourceEach_Order(t *testing.T) {
	t.Parallel()

	src := newMemorySource(t, map[string]string{
		"/captures/0002.json":  `[{"ap":"b","epoch":2,"rssi":-1,"ie":"i","ssid":"s"}]`,
		"/captures/0001.json":  `[{"ap":"a","epoch":1,"rssi":-1,"ie":"i","ssid":"s"}]`,
		"/captures/readme.txt": `not json`,
	})

	var names []string
	var aps []string
	err := src.Each(context.Background(), func(b Batch) error {
		names = append(names, b.Name)
		for _, r := range b.Records {
			aps = append(aps, r.SnifferID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error = %v", err)
	}
	if len(names) != 2 || names[0] != "/captures/0001.json" || names[1] != "/captures/0002.json" {
		t.Errorf("batches = %v", names)
	}
	if len(aps) != 2 || aps[0] != "a" || aps[1] != "b" {
		t.Errorf("records = %v", aps)
	}
}

func TestSourceEach_StopsOnMalformed(t *testing.T) {
	t.Parallel()

	src := newMemorySource(t, map[string]string{
		"/captures/0001.json":  `[{"ap":"a","epoch":1,"rssi":-1,"ie":"i","ssid":"s"}]`,
		"/captures/0002.json":  `[{"ap":"a"}]`,
		"/captures/0003.json": `[]`,
	})
	seen := 0
	err := src.Each(context.Background(), func(Batch) error { seen++; return nil })
	if !errors.Is(err, ErrMalformedBatch) {
		t.Fatalf("Each() error = %v, want ErrMalformedBatch", err)
	}
	if seen != 1 {
		t.Errorf("handled %d batches before failure, want 1", seen)
	}
}

func TestSourceEach_CallbackErrorAndCancel(t *testing.T) {
	t.Parallel()

	src := newMemorySource(t, map[string]string{
		"/captures/0001.json":  `[]`,
		"/captures/0002.json":  `[]`,
	})

	stop := errors.New("stop")
	if err := src.Each(context.Background(), func(Batch) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Each() error = %v, want callback error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := src.Each(ctx, func(Batch) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Each() error = %v, want context.Canceled", err)
	}
}

func TestSourceFiles_BadPattern(t *testing.T) {
	t.Parallel()

	src := &Source{FS: fsutil.NewMemoryFileSystem(), Pattern: "[bad"}
	if _, err := src.Files(); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
