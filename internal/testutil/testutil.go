// Package testutil provides shared test utilities and fixtures.
//
// The fixtures describe a small rectangular venue with four sniffers and build
// detection records whose RSSI follows the same log-distance model the
// localizer inverts, so tests can place a device and check where it lands.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Defaults of the log-distance model used by SyntheticRSSI.
const (
	ReferenceDBm     = 30.0
	PathLossExponent = 2.0
)

// FourSnifferLayout returns sniffers at the corners of an 8 m by 5 m room.
func FourSnifferLayout() scavenger.Layout {
	return scavenger.Layout{
		"ap1": {X: 0, Y: 0},
		"ap2": {X: 8, Y: 0},
		"ap3": {X: 8, Y: 5},
		"ap4": {X: 0, Y: 5},
	}
}

// Record builds a detection record.
func Record(ap string, epochNs int64, rssi int, ie, claimed string) scavenger.DetectionRecord {
	return scavenger.DetectionRecord{
		SnifferID:          ap,
		EpochNs:            epochNs,
		RSSI:               rssi,
		InformationElement: ie,
		ClaimedID:          claimed,
	}
}

// SyntheticRSSI returns the reading a sniffer at s would report for a
// transmitter at p. Distances below 10 cm are clamped.
func SyntheticRSSI(s, p scavenger.Position) int {
	d := math.Hypot(s.X-p.X, s.Y-p.Y)
	if d < 0.1 {
		d = 0.1
	}
	return -int(math.Round(ReferenceDBm + 10*PathLossExponent*math.Log10(d)))
}

// Sighting returns one record per sniffer of layout for a device at p, all
// stamped epochNs.
func Sighting(layout scavenger.Layout, p scavenger.Position, epochNs int64, ie, claimed string) []scavenger.DetectionRecord {
	recs := make([]scavenger.DetectionRecord, 0, len(layout))
	for _, id := range sortedIDs(layout) {
		recs = append(recs, Record(id, epochNs, SyntheticRSSI(layout[id], p), ie, claimed))
	}
	return recs
}

// SightingReadings is Sighting in aggregated form.
func SightingReadings(layout scavenger.Layout, p scavenger.Position) scavenger.Readings {
	r := make(scavenger.Readings, len(layout))
	for id, s := range layout {
		r[id] = []int{SyntheticRSSI(s, p)}
	}
	return r
}

func sortedIDs(layout scavenger.Layout) []string {
	r := make(scavenger.Readings, len(layout))
	for id := range layout {
		r[id] = nil
	}
	return r.Sniffers()
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
