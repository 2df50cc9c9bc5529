package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
	"github.com/banshee-data/scavenger/internal/scavenger/l3correlate"
	"github.com/banshee-data/scavenger/internal/scavenger/l5localize"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/testutil"
)

const second = int64(time.Second)

var errNoFix = errors.New("no fix")

// tagLocalizer returns fixed regions per claimed id and compares regions
// at one metre per bin. Groups are told apart by their ap1 reading, which
// device.at sets to the device tag.
type tagLocalizer struct {
	ids     map[int]string
	regions map[string][]scavenger.Region
	fail    map[string]bool
}

func (l *tagLocalizer) Localize(readings scavenger.Readings) ([]scavenger.Region, error) {
	id := l.ids[readings["ap1"][0]]
	if l.fail[id] {
		return nil, errNoFix
	}
	return l.regions[id], nil
}

func (l *tagLocalizer) IsEqual(prev, curr []scavenger.Region, elapsedS, walkingKmh float64) l5localize.Match {
	return l5localize.IsEqual(prev, curr, elapsedS, walkingKmh, 1)
}

// device is one simulated transmitter heard by all four sniffers.
type device struct {
	tag     int
	ie      string
	claimed string
}

func (d device) at(epochNs int64) []scavenger.DetectionRecord {
	out := make([]scavenger.DetectionRecord, 0, 4)
	for _, ap := range []string{"ap1", "ap2", "ap3", "ap4"} {
		rssi := -50
		if ap == "ap1" {
			rssi = d.tag
		}
		out = append(out, testutil.Record(ap, epochNs, rssi, d.ie, d.claimed))
	}
	return out
}

func newLocalizer(devices []device, regions map[string][]scavenger.Region) *tagLocalizer {
	ids := make(map[int]string, len(devices))
	for _, d := range devices {
		ids[d.tag] = d.claimed
	}
	return &tagLocalizer{ids: ids, regions: regions, fail: map[string]bool{}}
}

func defaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		EarlyFlush:       true,
		MinDetectionRate: 3,
		Resolver: l6identity.Config{
			WalkingSpeedKmh:  2,
			InBurstThreshold: time.Second,
		},
	}
}

type pingFailRegistry struct {
	*l6identity.MemoryRegistry
}

func (pingFailRegistry) Ping(context.Context) error { return errors.New("connection refused") }

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := newLocalizer(nil, nil)
	reg := l6identity.NewMemoryRegistry()

	_, err := New(ctx, defaultConfig(), nil, reg, nil)
	assert.Error(t, err)
	_, err = New(ctx, defaultConfig(), loc, nil, nil)
	assert.Error(t, err)

	cfg := defaultConfig()
	cfg.MinDetectionRate = 0
	_, err = New(ctx, cfg, loc, reg, nil)
	assert.Error(t, err)

	_, err = New(ctx, defaultConfig(), loc, pingFailRegistry{reg}, nil)
	assert.ErrorContains(t, err, "registry unreachable")

	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)
	assert.Zero(t, p.State().Pending())
}

func TestProcessBatch_AliasAcrossWindows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := device{tag: -41, ie: "ie1", claimed: "A"}
	b := device{tag: -42, ie: "ie1", claimed: "B"}
	loc := newLocalizer([]device{a, b}, map[string][]scavenger.Region{
		"A": {{{X: 0, Y: 0}}},
		"B": {{{X: 3, Y: 0}}},
	})
	reg := l6identity.NewMemoryRegistry()
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	reports, err := p.ProcessBatch(ctx, a.at(0))
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, 4, p.State().Pending())

	reports, err = p.ProcessBatch(ctx, b.at(15*second))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Zero(t, p.State().Pending())

	require.Len(t, reports[0].Decisions, 1)
	assert.Equal(t, l6identity.OutcomeNew, reports[0].Decisions[0].Outcome)
	assert.Equal(t, int64(0), reports[0].MedianEpochNs)

	require.Len(t, reports[1].Decisions, 1)
	d := reports[1].Decisions[0]
	assert.Equal(t, l6identity.OutcomeAlias, d.Outcome)
	assert.Equal(t, "A", d.Peer)
	assert.InDelta(t, 15.0, d.ElapsedS, 1e-9)
	assert.InDelta(t, 3.0, d.Match.DistanceM, 1e-9)
	assert.Equal(t, 15*second, p.State().LastMedianEpochNs)
	assert.True(t, p.State().HaveMedian)

	summary, err := reg.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []l6identity.SummaryEntry{{ClaimedID: "A", Seen: 1, Aliases: []string{"B"}}}, summary)
}

func TestProcessBatch_DistinctWhenOutOfReach(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := device{tag: -41, ie: "ie1", claimed: "A"}
	b := device{tag: -42, ie: "ie1", claimed: "B"}
	loc := newLocalizer([]device{a, b}, map[string][]scavenger.Region{
		"A": {{{X: 0, Y: 0}}},
		"B": {{{X: 50, Y: 0}}},
	})
	reg := l6identity.NewMemoryRegistry()
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	_, err = p.ProcessBatch(ctx, a.at(0))
	require.NoError(t, err)
	reports, err := p.ProcessBatch(ctx, b.at(15*second))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, l6identity.OutcomeDistinct, reports[1].Decisions[0].Outcome)

	c, err := l6identity.ReadCounts(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, l6identity.Counts{Total: 2, Singletons: 1, RepeatNonAliased: 1}, c)
}

func TestProcessBatch_DropsUncorroboratedWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := device{tag: -41, ie: "ie1", claimed: "A"}
	loc := newLocalizer([]device{a}, map[string][]scavenger.Region{"A": {{{X: 1, Y: 1}}}})
	reg := l6identity.NewMemoryRegistry()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	p, err := New(ctx, defaultConfig(), loc, reg, metrics)
	require.NoError(t, err)

	// Only two sniffers hear the device in the first window.
	_, err = p.ProcessBatch(ctx, a.at(0)[:2])
	require.NoError(t, err)
	reports, err := p.ProcessBatch(ctx, a.at(20*second))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, l3correlate.TooFewSniffers, reports[0].Correlation)
	assert.Equal(t, 2, reports[0].Sniffers)
	assert.Empty(t, reports[0].Decisions)
	assert.Equal(t, l3correlate.Kept, reports[1].Correlation)
	assert.Equal(t, l6identity.OutcomeNew, reports[1].Decisions[0].Outcome)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Windows.WithLabelValues("too_few_sniffers")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Windows.WithLabelValues("kept")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Decisions.WithLabelValues("new")))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(metrics.Decisions.WithLabelValues("alias")))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(metrics.Batches))
	assert.Equal(t, 6.0, promtestutil.ToFloat64(metrics.Records))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Groups))
}

func TestProcessBatch_LocalizeFailureSkipsGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	good := device{tag: -41, ie: "ie1", claimed: "good"}
	bad := device{tag: -42, ie: "ie2", claimed: "bad"}
	loc := newLocalizer([]device{good, bad}, map[string][]scavenger.Region{"good": {{{X: 1, Y: 1}}}})
	loc.fail["bad"] = true
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	p, err := New(ctx, defaultConfig(), loc, l6identity.NewMemoryRegistry(), metrics)
	require.NoError(t, err)

	batch := append(good.at(second), bad.at(2*second)...)
	_, err = p.ProcessBatch(ctx, batch)
	require.NoError(t, err)
	reports, err := p.Drain(ctx)
	require.ErrorIs(t, err, errNoFix)
	require.Len(t, reports, 1)

	assert.Equal(t, 2, reports[0].Groups)
	assert.Equal(t, 1, reports[0].FailedGroups)
	assert.Zero(t, reports[0].IntegrityErrors)
	require.Len(t, reports[0].Decisions, 1)
	assert.Equal(t, "good", reports[0].Decisions[0].Key.ClaimedID)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.GroupErrors.WithLabelValues("localize")))
}

func TestProcessBatch_CausalityIsReported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := device{tag: -41, ie: "ie1", claimed: "A"}
	b := device{tag: -42, ie: "ie1", claimed: "B"}
	loc := newLocalizer([]device{a, b}, map[string][]scavenger.Region{
		"A": {{{X: 0, Y: 0}}},
		"B": {{{X: 0, Y: 0}}},
	})
	reg := l6identity.NewMemoryRegistry()
	// A later sighting of the same ie is already stored.
	require.NoError(t, reg.AppendRegion(ctx, "ie1", "A", 100*second, scavenger.Region{{X: 0, Y: 0}}))
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	_, err = p.ProcessBatch(ctx, b.at(0))
	require.NoError(t, err)
	reports, err := p.Drain(ctx)
	assert.ErrorIs(t, err, l6identity.ErrCausality)
	var integrity *l6identity.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "B", integrity.ClaimedID)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].FailedGroups)
	assert.Equal(t, 1, reports[0].IntegrityErrors)
	assert.Empty(t, reports[0].Decisions)
}

func TestDrain_Empty(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), defaultConfig(), newLocalizer(nil, nil), l6identity.NewMemoryRegistry(), nil)
	require.NoError(t, err)
	reports, err := p.Drain(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, reports)
}

// sliceSource replays fixed batches.
type sliceSource struct {
	batches []l1capture.Batch
	err     error
}

func (s *sliceSource) Each(ctx context.Context, fn func(l1capture.Batch) error) error {
	for _, b := range s.batches {
		if err := fn(b); err != nil {
			return err
		}
	}
	return s.err
}

func TestRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := device{tag: -41, ie: "ie1", claimed: "A"}
	loc := newLocalizer([]device{a}, map[string][]scavenger.Region{"A": {{{X: 1, Y: 1}}}})
	reg := l6identity.NewMemoryRegistry()
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	src := &sliceSource{batches: []l1capture.Batch{
		{Name: "0.json", Records: a.at(0)},
		{Name: "1.json", Records: a.at(second / 2)},
		{Name: "2.json", Records: a.at(20 * second)},
		{Name: "3.json", Records: a.at(40 * second)},
	}}
	stats, err := p.Run(ctx, src, true)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, 16, stats.Records)
	assert.Equal(t, 3, stats.Windows)
	assert.Equal(t, 3, stats.Kept)
	assert.Equal(t, map[l6identity.Outcome]int{
		l6identity.OutcomeNew:    1,
		l6identity.OutcomeRepeat: 2,
	}, stats.Decisions)

	summary, err := reg.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []l6identity.SummaryEntry{{ClaimedID: "A", Seen: 3}}, summary)
}

func TestRun_CountsCausalityApart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := device{tag: -42, ie: "ie1", claimed: "B"}
	bad := device{tag: -43, ie: "ie2", claimed: "bad"}
	loc := newLocalizer([]device{b, bad}, map[string][]scavenger.Region{"B": {{{X: 0, Y: 0}}}})
	loc.fail["bad"] = true
	reg := l6identity.NewMemoryRegistry()
	require.NoError(t, reg.AppendRegion(ctx, "ie1", "A", 100*second, scavenger.Region{{X: 0, Y: 0}}))
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	src := &sliceSource{batches: []l1capture.Batch{
		{Name: "0.json", Records: append(b.at(0), bad.at(second)...)},
	}}
	stats, err := p.Run(ctx, src, true)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Groups)
	assert.Equal(t, 2, stats.FailedGroups)
	assert.Equal(t, 1, stats.IntegrityErrors)
}

func TestCountIntegrity(t *testing.T) {
	t.Parallel()
	integrity := &l6identity.IntegrityError{InformationElement: "ie", ClaimedID: "B"}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errNoFix, 0},
		{"single", integrity, 1},
		{"wrapped", fmt.Errorf("resolve: %w", integrity), 1},
		{"joined", errors.Join(errNoFix, integrity, errors.Join(integrity)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countIntegrity(tt.err))
		})
	}
}

func TestRun_StopsOnSourceError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(ctx, defaultConfig(), newLocalizer(nil, nil), l6identity.NewMemoryRegistry(), nil)
	require.NoError(t, err)

	bad := &l1capture.FormatError{Index: 0, Field: "epoch", Reason: "missing"}
	_, err = p.Run(ctx, &sliceSource{err: bad}, false)
	assert.ErrorIs(t, err, l1capture.ErrMalformedBatch)
}

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	layout := testutil.FourSnifferLayout()
	opts := l5localize.DefaultOptions()
	loc, err := l5localize.New(layout, opts, rand.New(rand.NewPCG(7, 11)))
	require.NoError(t, err)
	reg := l6identity.NewMemoryRegistry()
	p, err := New(ctx, defaultConfig(), loc, reg, nil)
	require.NoError(t, err)

	pos := scavenger.Position{X: 2, Y: 1.5}
	_, err = p.ProcessBatch(ctx, testutil.Sighting(layout, pos, 0, "ie1", "A"))
	require.NoError(t, err)
	reports, err := p.ProcessBatch(ctx, testutil.Sighting(layout, pos, 15*second, "ie1", "B"))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, l6identity.OutcomeNew, reports[0].Decisions[0].Outcome)
	assert.Equal(t, l6identity.OutcomeAlias, reports[1].Decisions[0].Outcome)

	hist, err := reg.History(ctx, []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	for _, s := range hist {
		require.NotEmpty(t, s.Regions)
	}
}
