package scavenger

import (
	"fmt"
	"sort"
)

// DetectionRecord is a single probe request as seen by one sniffer.
// Records are immutable once decoded.
type DetectionRecord struct {
	SnifferID string `json:"ap"`
	EpochNs   int64  `json:"epoch"`
	RSSI      int    `json:"rssi"`
	// InformationElement is the canonical string form of the device's
	// capability fingerprint. It is independent of the claimed id.
	InformationElement string `json:"ie"`
	// ClaimedID is the broadcast identifier, possibly randomized.
	ClaimedID string `json:"ssid"`
}

// Window is a run of detection records falling into one interval bucket.
// Records keep arrival order and need not be sorted by epoch.
type Window []DetectionRecord

// EpochRange returns the smallest and largest epoch in the window.
// An empty window returns (0, 0).
func (w Window) EpochRange() (min, max int64) {
	for i, r := range w {
		if i == 0 || r.EpochNs < min {
			min = r.EpochNs
		}
		if i == 0 || r.EpochNs > max {
			max = r.EpochNs
		}
	}
	return min, max
}

// GroupKey identifies one (information element, claimed id) combination.
type GroupKey struct {
	InformationElement string
	ClaimedID          string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s", k.InformationElement, k.ClaimedID)
}

// Readings maps sniffer id to the RSSI values it reported, in arrival order.
type Readings map[string][]int

// Sniffers returns the sniffer ids in sorted order.
func (r Readings) Sniffers() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Group is the aggregated view of one key inside a correlated window.
type Group struct {
	Key      GroupKey
	Readings Readings
	// MedianEpochNs is the logical timestamp shared by every group of the
	// same window.
	MedianEpochNs int64
}

// CellPoint is a vertex in spatial-bin coordinates.
type CellPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is one density cluster of position estimates: a convex polygon
// (3+ vertices), a segment (2 vertices) or a point (1 vertex).
type Region []CellPoint

// Kind reports the geometry the region stands for.
func (r Region) Kind() RegionKind {
	switch {
	case len(r) >= 3:
		return RegionPolygon
	case len(r) == 2:
		return RegionSegment
	case len(r) == 1:
		return RegionPoint
	default:
		return RegionEmpty
	}
}

// RegionKind classifies regions by vertex count.
type RegionKind int

const (
	RegionEmpty RegionKind = iota
	RegionPoint
	RegionSegment
	RegionPolygon
)

func (k RegionKind) String() string {
	switch k {
	case RegionPoint:
		return "point"
	case RegionSegment:
		return "segment"
	case RegionPolygon:
		return "polygon"
	default:
		return "empty"
	}
}

// Position is a sniffer or device location in metres.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Layout maps sniffer id to its fixed position. One layout per venue.
type Layout map[string]Position

// Covers reports the first sniffer id in ids that has no position.
func (l Layout) Covers(ids ...string) (missing string, ok bool) {
	for _, id := range ids {
		if _, found := l[id]; !found {
			return id, false
		}
	}
	return "", true
}
