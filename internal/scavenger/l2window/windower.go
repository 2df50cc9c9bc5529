package l2window

import (
	"sort"
	"time"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Windower buckets the detection stream by time relative to the first
// record pushed into an empty buffer. It holds the single pending buffer of
// a pipeline and is not safe for concurrent use.
type Windower struct {
	interval int64

	// EarlyFlush emits every bucket, including the newest, as soon as a
	// second bucket appears. When false the newest bucket stays buffered
	// until a later bucket closes it.
	EarlyFlush bool

	buffer []scavenger.DetectionRecord

	// origin anchors the bucket grid while records stay buffered. A kept
	// newest bucket keeps the grid of the buckets emitted before it.
	origin int64
}

// New returns a Windower with the given bucket length. Intervals below one
// nanosecond are raised to one.
func New(interval time.Duration, earlyFlush bool) *Windower {
	if interval < 1 {
		interval = 1
	}
	return &Windower{interval: int64(interval), EarlyFlush: earlyFlush}
}

// Interval returns the bucket length.
func (w *Windower) Interval() time.Duration { return time.Duration(w.interval) }

// Pending returns how many records are buffered.
func (w *Windower) Pending() int { return len(w.buffer) }

// Push appends a batch and returns the windows that became ready, oldest
// first. It returns nil while all buffered records share one bucket.
func (w *Windower) Push(batch []scavenger.DetectionRecord) []scavenger.Window {
	if len(w.buffer) == 0 && len(batch) > 0 {
		w.origin = batch[0].EpochNs
	}
	w.buffer = append(w.buffer, batch...)
	if len(w.buffer) == 0 {
		return nil
	}

	buckets := make(map[int64]scavenger.Window)
	for _, r := range w.buffer {
		idx := floorDiv(r.EpochNs-w.origin, w.interval)
		buckets[idx] = append(buckets[idx], r)
	}
	if len(buckets) < 2 {
		return nil
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if !w.EarlyFlush {
		newest := keys[len(keys)-1]
		keys = keys[:len(keys)-1]
		w.buffer = append([]scavenger.DetectionRecord(nil), buckets[newest]...)
	} else {
		w.buffer = nil
	}

	out := make([]scavenger.Window, 0, len(keys))
	for _, k := range keys {
		out = append(out, buckets[k])
	}
	return out
}

// Drain returns whatever is buffered as one final window and empties the
// buffer. It returns nil when nothing is pending.
func (w *Windower) Drain() scavenger.Window {
	if len(w.buffer) == 0 {
		return nil
	}
	out := scavenger.Window(w.buffer)
	w.buffer = nil
	return out
}

// floorDiv rounds towards negative infinity so records older than the
// buffer head fall into earlier buckets.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
