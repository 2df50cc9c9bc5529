package l5localize

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

var (
	// ErrUnknownSniffer is returned when readings name a sniffer that has
	// no position in the layout.
	ErrUnknownSniffer = errors.New("sniffer not in layout")
	// ErrNoReadings is returned for an empty readings map.
	ErrNoReadings = errors.New("no readings")
)

// Localizer estimates transmitter regions for one venue layout. It is safe
// for concurrent use; draws from the random source are serialised.
type Localizer struct {
	opts   Options
	layout scavenger.Layout
	bounds orb.Bound
	grid   grid

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Localizer. A nil rng is seeded from the clock. Unknown loss
// or variance modes panic.
func New(layout scavenger.Layout, opts Options, rng *rand.Rand) (*Localizer, error) {
	if len(layout) == 0 {
		return nil, errors.New("l5localize: empty layout")
	}
	if opts.MeterPerBin <= 0 {
		return nil, fmt.Errorf("l5localize: meter per bin must be positive, got %v", opts.MeterPerBin)
	}
	if opts.PathLossExponent <= 0 {
		return nil, fmt.Errorf("l5localize: path loss exponent must be positive, got %v", opts.PathLossExponent)
	}
	if opts.FScale <= 0 {
		return nil, fmt.Errorf("l5localize: f_scale must be positive, got %v", opts.FScale)
	}
	if opts.AmountOfDraws < 0 {
		return nil, fmt.Errorf("l5localize: amount of draws must not be negative, got %d", opts.AmountOfDraws)
	}
	if _, ok := lossNames[opts.Loss]; !ok {
		panic(fmt.Sprintf("l5localize: unknown loss %d", int(opts.Loss)))
	}
	if _, ok := varianceNames[opts.VarianceImpact]; !ok {
		panic(fmt.Sprintf("l5localize: unknown variance impact %d", int(opts.VarianceImpact)))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	mp := make(orb.MultiPoint, 0, len(layout))
	for _, p := range layout {
		mp = append(mp, orb.Point{p.X, p.Y})
	}
	b := mp.Bound()

	l := &Localizer{
		opts:   opts,
		layout: layout,
		bounds: b,
		grid:   newGrid(b, opts.MeterPerBin),
		rng:    rng,
	}
	diagf("localizer ready: %d sniffers, box (%.2f,%.2f)-(%.2f,%.2f), %dx%d bins, loss=%s",
		len(layout), b.Min[0], b.Min[1], b.Max[0], b.Max[1], l.grid.nx, l.grid.ny, opts.Loss)
	return l, nil
}

// Options returns the settings in use.
func (l *Localizer) Options() Options { return l.opts }

// Bounds returns the sniffer bounding box in metres.
func (l *Localizer) Bounds() orb.Bound { return l.bounds }

// Bins returns the histogram size.
func (l *Localizer) Bins() (nx, ny int) { return l.grid.nx, l.grid.ny }

// CellCentre converts a bin coordinate to metres.
func (l *Localizer) CellCentre(c scavenger.CellPoint) scavenger.Position {
	return l.grid.centre(c)
}

// RegionCentre converts the centroid of a region to metres.
func (l *Localizer) RegionCentre(r scavenger.Region) scavenger.Position {
	c := RegionCentroid(r)
	return scavenger.Position{
		X: l.grid.minX + (c[0]+0.5)*l.grid.cellW,
		Y: l.grid.minY + (c[1]+0.5)*l.grid.cellH,
	}
}

func (l *Localizer) anchors(readings scavenger.Readings) ([]anchor, error) {
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	ids := readings.Sniffers()
	out := make([]anchor, 0, len(ids))
	for _, id := range ids {
		pos, ok := l.layout[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSniffer, id)
		}
		rssi := readings[id]
		if len(rssi) == 0 {
			continue
		}
		vals := make([]float64, len(rssi))
		for i, v := range rssi {
			vals[i] = float64(v)
		}
		mean, spread := stat.PopMeanStdDev(vals, nil)
		out = append(out, anchor{x: pos.X, y: pos.Y, sqRange: squaredRange(mean, spread, l.opts)})
	}
	if len(out) == 0 {
		return nil, ErrNoReadings
	}
	return out, nil
}

// guesses draws the starting points. All x coordinates are drawn before
// all y coordinates.
func (l *Localizer) guesses() [][2]float64 {
	b := l.bounds
	if l.opts.AmountOfDraws == 0 {
		c := b.Center()
		return [][2]float64{{c[0], c[1]}}
	}
	n := l.opts.AmountOfDraws
	out := make([][2]float64, n)

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range out {
		out[i][0] = b.Min[0] + l.rng.Float64()*(b.Max[0]-b.Min[0])
	}
	for i := range out {
		out[i][1] = b.Min[1] + l.rng.Float64()*(b.Max[1]-b.Min[1])
	}
	return out
}

// Solve runs every restart and returns them in draw order.
func (l *Localizer) Solve(readings scavenger.Readings) ([]Restart, error) {
	anchors, err := l.anchors(readings)
	if err != nil {
		return nil, err
	}
	prob := newBoxProblem(anchors, l.bounds, l.opts.Loss, l.opts.FScale)
	starts := l.guesses()

	restarts := make([]Restart, len(starts))
	var g errgroup.Group
	g.SetLimit(l.opts.Workers)
	for i, s := range starts {
		g.Go(func() error {
			restarts[i] = prob.solve(s[0], s[1])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return restarts, nil
}

// Localize returns the density regions of the transmitter position, one
// convex hull per connected peak, in bin coordinates.
func (l *Localizer) Localize(readings scavenger.Readings) ([]scavenger.Region, error) {
	restarts, err := l.Solve(readings)
	if err != nil {
		return nil, err
	}
	return l.Regions(restarts), nil
}

// Regions runs the density stage over already solved restarts.
func (l *Localizer) Regions(restarts []Restart) []scavenger.Region {
	if len(restarts) == 0 {
		return nil
	}
	hist := histogram(restarts, restartWeights(restarts), l.grid)
	heat := gaussianSmooth(hist, smoothingSigma, smoothingTruncate)
	mask := peakMask(heat, peakQuantile)

	comps := components(mask)
	regions := make([]scavenger.Region, 0, len(comps))
	for _, c := range comps {
		regions = append(regions, convexHull(c))
	}
	tracef("%d restarts -> %d regions", len(restarts), len(regions))
	return regions
}
