package l2window

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

const sec = int64(time.Second)

func rec(ap string, epoch int64) scavenger.DetectionRecord {
	return scavenger.DetectionRecord{SnifferID: ap, EpochNs: epoch, RSSI: -50, InformationElement: "ie", ClaimedID: "c"}
}

func TestPush_SingleBucketBuffers(t *testing.T) {
	t.Parallel()

	w := New(10*time.Second, true)
	if got := w.Push([]scavenger.DetectionRecord{rec("a", 0), rec("b", 3*sec)}); got != nil {
		t.Fatalf("Push() = %v, want nil", got)
	}
	if got := w.Push([]scavenger.DetectionRecord{rec("c", 9*sec)}); got != nil {
		t.Fatalf("Push() = %v, want nil", got)
	}
	if w.Pending() != 3 {
		t.Errorf("Pending() = %d, want 3", w.Pending())
	}
}

func TestPush_EarlyFlushEmitsAllBuckets(t *testing.T) {
	t.Parallel()

	w := New(10*time.Second, true)
	w.Push([]scavenger.DetectionRecord{rec("a", 0), rec("b", 4*sec)})
	got := w.Push([]scavenger.DetectionRecord{rec("c", 12*sec), rec("d", 2*sec), rec("e", 35*sec)})

	want := []scavenger.Window{
		{rec("a", 0), rec("b", 4*sec), rec("d", 2*sec)},
		{rec("c", 12*sec)},
		{rec("e", 35*sec)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Push() mismatch (-want +got):\n%s", diff)
	}
	if w.Pending() != 0 {
		t.Errorf("buffer not reset: %d pending", w.Pending())
	}
}

func TestPush_EarlyFlushIncompleteNewestBucket(t *testing.T) {
	t.Parallel()

	// A batch spanning 0s and 10.5s releases the 10s bucket immediately,
	// so a record at 15s arriving next lands in a fresh buffer.
	w := New(10*time.Second, true)
	got := w.Push([]scavenger.DetectionRecord{rec("a", 0), rec("b", 10*sec+sec/2)})
	if len(got) != 2 || len(got[1]) != 1 {
		t.Fatalf("Push() = %v, want two windows", got)
	}
	if got := w.Push([]scavenger.DetectionRecord{rec("c", 15*sec)}); got != nil {
		t.Errorf("Push() = %v, want nil", got)
	}
	if w.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", w.Pending())
	}
}

func TestPush_WaitForClosure(t *testing.T) {
	t.Parallel()

	w := New(10*time.Second, false)
	got := w.Push([]scavenger.DetectionRecord{rec("a", 0), rec("b", 11*sec), rec("c", 25*sec)})
	want := []scavenger.Window{{rec("a", 0)}, {rec("b", 11*sec)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Push() mismatch (-want +got):\n%s", diff)
	}
	if w.Pending() != 1 {
		t.Fatalf("Pending() = %d, want newest bucket kept", w.Pending())
	}

	// The kept 25s record stays on the grid anchored at 0s.
	got = w.Push([]scavenger.DetectionRecord{rec("d", 33*sec), rec("e", 36*sec)})
	want = []scavenger.Window{{rec("c", 25*sec)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Push() mismatch (-want +got):\n%s", diff)
	}
	want = []scavenger.Window{{rec("d", 33*sec), rec("e", 36*sec)}}
	if diff := cmp.Diff(want[0], w.Drain()); diff != "" {
		t.Errorf("Drain() mismatch (-want +got):\n%s", diff)
	}
}

func TestPush_WaitForClosureKeepsGrid(t *testing.T) {
	t.Parallel()

	w := New(10, false)
	steps := []struct {
		push []scavenger.DetectionRecord
		want []scavenger.Window
	}{
		{[]scavenger.DetectionRecord{rec("a", 0), rec("b", 15), rec("c", 12)}, []scavenger.Window{{rec("a", 0)}}},
		{[]scavenger.DetectionRecord{rec("d", 18)}, nil},
		{[]scavenger.DetectionRecord{rec("e", 24)}, []scavenger.Window{{rec("b", 15), rec("c", 12), rec("d", 18)}}},
		{[]scavenger.DetectionRecord{rec("f", 26)}, nil},
		{[]scavenger.DetectionRecord{rec("g", 31)}, []scavenger.Window{{rec("e", 24), rec("f", 26)}}},
	}
	for i, step := range steps {
		got := w.Push(step.push)
		if diff := cmp.Diff(step.want, got); diff != "" {
			t.Errorf("step %d: Push() mismatch (-want +got):\n%s", i, diff)
		}
	}
	if w.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", w.Pending())
	}

	// Once drained the next record anchors a fresh grid.
	w.Drain()
	if got := w.Push([]scavenger.DetectionRecord{rec("h", 37), rec("i", 46)}); got != nil {
		t.Errorf("Push() after Drain = %v, want nil", got)
	}
}

func TestPush_RecordsOlderThanHead(t *testing.T) {
	t.Parallel()

	w := New(10*time.Second, true)
	got := w.Push([]scavenger.DetectionRecord{rec("a", 20*sec), rec("b", 19*sec)})
	want := []scavenger.Window{{rec("b", 19*sec)}, {rec("a", 20*sec)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Push() mismatch (-want +got):\n%s", diff)
	}
}

func TestDrain(t *testing.T) {
	t.Parallel()

	w := New(time.Second, true)
	if got := w.Drain(); got != nil {
		t.Errorf("Drain() on empty = %v", got)
	}
	w.Push([]scavenger.DetectionRecord{rec("a", 0)})
	if got := w.Drain(); len(got) != 1 {
		t.Errorf("Drain() = %v", got)
	}
	if w.Pending() != 0 {
		t.Error("Drain() left records behind")
	}
	if got := w.Push(nil); got != nil {
		t.Errorf("Push(nil) = %v", got)
	}
}

func TestFloorDiv(t *testing.T) {
	t.Parallel()

	tests := []struct{ a, b, want int64 }{
		{0, 10, 0}, {9, 10, 0}, {10, 10, 1}, {-1, 10, -1}, {-10, 10, -1}, {-11, 10, -2},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if New(0, true).Interval() != time.Nanosecond {
		t.Error("zero interval not raised")
	}
}
