package trajectory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
)

// ErrNoSightings is returned by Build when a claimed id and its aliases
// have no stored regions.
var ErrNoSightings = errors.New("trajectory: no sightings")

// Point is one position of a track.
type Point struct {
	EpochNs   int64              `json:"epoch_ns"`
	ClaimedID string             `json:"claimed_id"`
	Position  scavenger.Position `json:"position"`
}

// Track is the raw and smoothed path of one device.
type Track struct {
	ClaimedID string   `json:"claimed_id"`
	Aliases   []string `json:"aliases,omitempty"`
	Raw       []Point  `json:"raw"`
	Smoothed  []Point  `json:"smoothed"`
}

// RegionCentre maps a region to a position in metres.
// (*l5localize.Localizer).RegionCentre satisfies it.
type RegionCentre func(scavenger.Region) scavenger.Position

// Build loads the sightings of claimedID and every alias recorded for it,
// turns each sighting into the mean centre of its regions and smooths the
// result. Sightings sharing a timestamp are merged into one point.
func Build(ctx context.Context, rep l6identity.Reporter, centre RegionCentre, claimedID string) (*Track, error) {
	aliases, err := rep.Aliases(ctx, claimedID)
	if err != nil {
		return nil, fmt.Errorf("aliases of %s: %w", claimedID, err)
	}
	ids := append([]string{claimedID}, aliases...)
	history, err := rep.History(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", claimedID, err)
	}

	raw := positions(history, centre)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoSightings, claimedID)
	}
	in := make([]scavenger.Position, len(raw))
	for i, p := range raw {
		in[i] = p.Position
	}
	sm, err := Smooth(in)
	if err != nil {
		return nil, err
	}
	smoothed := make([]Point, len(raw))
	for i, p := range raw {
		smoothed[i] = Point{EpochNs: p.EpochNs, ClaimedID: p.ClaimedID, Position: sm[i]}
	}
	return &Track{ClaimedID: claimedID, Aliases: aliases, Raw: raw, Smoothed: smoothed}, nil
}

// positions expects history in timestamp order.
func positions(history []l6identity.Sighting, centre RegionCentre) []Point {
	var out []Point
	var sumX, sumY float64
	var n int
	var cur Point
	flush := func() {
		if n > 0 {
			cur.Position = scavenger.Position{X: sumX / float64(n), Y: sumY / float64(n)}
			out = append(out, cur)
		}
		sumX, sumY, n = 0, 0, 0
	}
	for i, s := range history {
		if i == 0 || s.EpochNs != cur.EpochNs {
			flush()
			cur = Point{EpochNs: s.EpochNs, ClaimedID: s.ClaimedID}
		}
		for _, r := range s.Regions {
			c := centre(r)
			if math.IsNaN(c.X) || math.IsNaN(c.Y) {
				continue
			}
			sumX += c.X
			sumY += c.Y
			n++
		}
	}
	flush()
	return out
}
