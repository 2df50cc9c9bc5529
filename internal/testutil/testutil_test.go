package testutil

import (
	"math"
	"net/http"
	"testing"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

func TestSyntheticRSSI(t *testing.T) {
	t.Parallel()

	origin := scavenger.Position{}
	tests := []struct {
		name string
		p    scavenger.Position
		want int
	}{
		{"one metre", scavenger.Position{X: 1}, -30},
		{"ten metres", scavenger.Position{Y: 10}, -50},
		{"clamped", scavenger.Position{}, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SyntheticRSSI(origin, tt.p); got != tt.want {
				t.Errorf("SyntheticRSSI() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSyntheticRSSIInvertsModel(t *testing.T) {
	t.Parallel()

	s := scavenger.Position{X: 3, Y: 4}
	rssi := SyntheticRSSI(s, scavenger.Position{})
	sq := math.Pow(10, (math.Abs(float64(rssi))-ReferenceDBm)/(5*PathLossExponent))
	if math.Abs(sq-25) > 2 {
		t.Errorf("squared distance from model = %.2f, want about 25", sq)
	}
}

func TestSighting(t *testing.T) {
	t.Parallel()

	layout := FourSnifferLayout()
	recs := Sighting(layout, scavenger.Position{X: 2, Y: 1}, 42, "ie", "dev")
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	for i, want := range []string{"ap1", "ap2", "ap3", "ap4"} {
		if recs[i].SnifferID != want || recs[i].EpochNs != 42 || recs[i].ClaimedID != "dev" {
			t.Errorf("record %d = %+v", i, recs[i])
		}
	}
	if recs[0].RSSI <= recs[2].RSSI {
		t.Errorf("nearest sniffer should be loudest: %d vs %d", recs[0].RSSI, recs[2].RSSI)
	}

	readings := SightingReadings(layout, scavenger.Position{X: 2, Y: 1})
	if len(readings) != 4 || readings["ap1"][0] != recs[0].RSSI {
		t.Errorf("SightingReadings() = %v", readings)
	}
}

func TestHTTPHelpers(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodGet, "/api/summary")
	if req.URL.Path != "/api/summary" {
		t.Errorf("path = %s", req.URL.Path)
	}
	rec := NewTestRecorder()
	rec.WriteHeader(http.StatusTeapot)
	AssertStatusCode(t, rec.Code, http.StatusTeapot)
	AssertNoError(t, nil)
}
