package scavenger

import "testing"

func TestWindowEpochRange(t *testing.T) {
	w := Window{
		{EpochNs: 30}, {EpochNs: 10}, {EpochNs: 20},
	}
	min, max := w.EpochRange()
	if min != 10 || max != 30 {
		t.Errorf("EpochRange() = (%d, %d), want (10, 30)", min, max)
	}

	min, max = Window{}.EpochRange()
	if min != 0 || max != 0 {
		t.Errorf("empty EpochRange() = (%d, %d), want (0, 0)", min, max)
	}
}

func TestRegionKind(t *testing.T) {
	tests := []struct {
		region Region
		want   RegionKind
	}{
		{nil, RegionEmpty},
		{Region{{1, 1}}, RegionPoint},
		{Region{{1, 1}, {2, 2}}, RegionSegment},
		{Region{{0, 0}, {2, 0}, {1, 2}}, RegionPolygon},
	}
	for _, tt := range tests {
		if got := tt.region.Kind(); got != tt.want {
			t.Errorf("Kind(%v) = %v, want %v", tt.region, got, tt.want)
		}
	}
}

func TestLayoutCovers(t *testing.T) {
	l := Layout{"a": {0, 0}, "b": {1, 1}}
	if _, ok := l.Covers("a", "b"); !ok {
		t.Error("expected layout to cover a and b")
	}
	missing, ok := l.Covers("a", "c")
	if ok || missing != "c" {
		t.Errorf("Covers(a, c) = (%q, %v), want (c, false)", missing, ok)
	}
}

func TestReadingsSniffersSorted(t *testing.T) {
	r := Readings{"z": {1}, "a": {2}, "m": {3}}
	got := r.Sniffers()
	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sniffers() = %v, want %v", got, want)
		}
	}
}
