package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
	"github.com/banshee-data/scavenger/internal/scavenger/l2window"
	"github.com/banshee-data/scavenger/internal/scavenger/l3correlate"
	"github.com/banshee-data/scavenger/internal/scavenger/l4aggregate"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/timeutil"
)

// Localizer turns a group's readings into regions and compares region
// sets. *l5localize.Localizer satisfies it.
type Localizer interface {
	l6identity.Comparator
	Localize(readings scavenger.Readings) ([]scavenger.Region, error)
}

// Config holds the pipeline tunables.
type Config struct {
	Interval         time.Duration
	EarlyFlush       bool
	MinDetectionRate int
	Resolver         l6identity.Config
	// Clock times localization; nil means the wall clock.
	Clock timeutil.Clock
}

// State is the mutable per-run state. It is owned by exactly one
// Pipeline and only touched while that pipeline's lock is held.
type State struct {
	windower *l2window.Windower

	// LastMedianEpochNs is the logical timestamp of the most recent
	// window that survived correlation.
	LastMedianEpochNs int64
	HaveMedian        bool
}

// NewState returns an empty State for cfg.
func NewState(cfg Config) *State {
	return &State{windower: l2window.New(cfg.Interval, cfg.EarlyFlush)}
}

// Pending returns the number of records waiting for their window to close.
func (s *State) Pending() int { return s.windower.Pending() }

// WindowReport describes what happened to one emitted window.
type WindowReport struct {
	Records       int
	Sniffers      int
	Correlation   l3correlate.Outcome
	Kept          int
	MedianEpochNs int64
	Groups        int
	Decisions     []l6identity.Decision
	// FailedGroups counts groups that could not be localized or resolved.
	FailedGroups int
	// IntegrityErrors counts the failed groups that broke causality
	// against the registry.
	IntegrityErrors int
}

// Pipeline runs capture batches through every layer.
type Pipeline struct {
	mu       sync.Mutex
	cfg      Config
	state    *State
	loc      Localizer
	resolver *l6identity.Resolver
	metrics  *Metrics
	clock    timeutil.Clock
}

// New checks the registry is reachable and returns a Pipeline with a fresh
// State. metrics may be nil.
func New(ctx context.Context, cfg Config, loc Localizer, reg l6identity.Registry, metrics *Metrics) (*Pipeline, error) {
	if loc == nil {
		return nil, errors.New("pipeline: nil localizer")
	}
	if reg == nil {
		return nil, errors.New("pipeline: nil registry")
	}
	if cfg.MinDetectionRate < 1 {
		return nil, fmt.Errorf("pipeline: min detection rate %d must be at least 1", cfg.MinDetectionRate)
	}
	if err := reg.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: registry unreachable: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		cfg:      cfg,
		state:    NewState(cfg),
		loc:      loc,
		resolver: l6identity.NewResolver(reg, loc, cfg.Resolver),
		metrics:  metrics,
		clock:    clock,
	}, nil
}

// State returns the pipeline's state. Callers must not use it while a
// batch is being processed.
func (p *Pipeline) State() *State { return p.state }

// ProcessBatch pushes batch into the windower and processes every window
// it emits, oldest first. Group failures do not stop the batch; they are
// joined into the returned error next to the reports of all windows.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch []scavenger.DetectionRecord) ([]WindowReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.batch(len(batch))
	windows := p.state.windower.Push(batch)
	tracef("batch of %d records emitted %d windows, %d pending", len(batch), len(windows), p.state.Pending())
	return p.processWindows(ctx, windows)
}

// Drain processes whatever is still buffered as one final window.
func (p *Pipeline) Drain(ctx context.Context) ([]WindowReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.state.windower.Drain()
	if len(w) == 0 {
		return nil, nil
	}
	diagf("draining %d buffered records", len(w))
	return p.processWindows(ctx, []scavenger.Window{w})
}

func (p *Pipeline) processWindows(ctx context.Context, windows []scavenger.Window) ([]WindowReport, error) {
	var errs []error
	reports := make([]WindowReport, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := p.processWindow(ctx, w)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

func (p *Pipeline) processWindow(ctx context.Context, w scavenger.Window) (WindowReport, error) {
	rep := WindowReport{Records: len(w)}

	res := l3correlate.Correlate(w, p.cfg.MinDetectionRate)
	rep.Sniffers = res.Sniffers
	rep.Correlation = res.Outcome
	p.metrics.window(res.Outcome)
	if res.Outcome != l3correlate.Kept {
		tracef("window of %d records from %d sniffers dropped: %s", len(w), res.Sniffers, res.Outcome)
		return rep, nil
	}
	rep.Kept = len(res.Records)

	groups, median, err := l4aggregate.Aggregate(res.Records)
	if err != nil {
		return rep, err
	}
	p.state.LastMedianEpochNs = median
	p.state.HaveMedian = true
	rep.MedianEpochNs = median
	rep.Groups = len(groups)
	p.metrics.groups(len(groups))

	var errs []error
	localized := make([]l6identity.Localized, 0, len(groups))
	for _, g := range groups {
		start := p.clock.Now()
		regions, err := p.loc.Localize(g.Readings)
		p.metrics.localized(p.clock.Since(start))
		if err != nil {
			opsf("localize %s: %v", g.Key, err)
			errs = append(errs, fmt.Errorf("localize %s: %w", g.Key, err))
			continue
		}
		tracef("group %s: %d regions", g.Key, len(regions))
		localized = append(localized, l6identity.Localized{Group: g, Regions: regions})
	}
	p.metrics.groupErrors(stageLocalize, len(errs))

	decisions, err := p.resolver.ResolveBatch(ctx, localized)
	for _, d := range decisions {
		p.metrics.decision(d.Outcome)
		diagf("%s: %s peer=%q elapsed=%.3fs distance=%.2fm", d.Key, d.Outcome, d.Peer, d.ElapsedS, d.Match.DistanceM)
	}
	rep.Decisions = decisions
	if err != nil {
		n := countJoined(err)
		p.metrics.groupErrors(stageResolve, n)
		rep.FailedGroups += n
		rep.IntegrityErrors += countIntegrity(err)
		errs = append(errs, err)
	}
	rep.FailedGroups += len(groups) - len(localized)
	return rep, errors.Join(errs...)
}

func countJoined(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}

// countIntegrity counts the IntegrityErrors in a tree of joined errors.
func countIntegrity(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range j.Unwrap() {
			n += countIntegrity(e)
		}
		return n
	}
	var integrity *l6identity.IntegrityError
	if errors.As(err, &integrity) {
		return 1
	}
	return 0
}

// BatchSource yields capture batches in arrival order. *l1capture.Source
// satisfies it.
type BatchSource interface {
	Each(ctx context.Context, fn func(l1capture.Batch) error) error
}

// Stats summarises a Run.
type Stats struct {
	Batches         int
	Records         int
	Windows         int
	Kept            int
	Groups          int
	Decisions       map[l6identity.Outcome]int
	FailedGroups    int
	IntegrityErrors int
}

func (s *Stats) add(reports []WindowReport) {
	for _, r := range reports {
		s.Windows++
		if r.Correlation == l3correlate.Kept {
			s.Kept++
		}
		s.Groups += r.Groups
		s.FailedGroups += r.FailedGroups
		s.IntegrityErrors += r.IntegrityErrors
		for _, d := range r.Decisions {
			s.Decisions[d.Outcome]++
		}
	}
}

// Run processes every batch of src. Group failures are logged on the ops
// stream and counted, causality violations separately in IntegrityErrors;
// decoding failures and cancellation stop the run.
// With drain set the records still buffered at the end are processed as a
// final window.
func (p *Pipeline) Run(ctx context.Context, src BatchSource, drain bool) (Stats, error) {
	stats := Stats{Decisions: make(map[l6identity.Outcome]int)}
	err := src.Each(ctx, func(b l1capture.Batch) error {
		stats.Batches++
		stats.Records += len(b.Records)
		reports, err := p.ProcessBatch(ctx, b.Records)
		stats.add(reports)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			opsf("batch %s: %v", b.Name, err)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if drain {
		reports, err := p.Drain(ctx)
		stats.add(reports)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			opsf("drain: %v", err)
		}
	}
	diagf("run finished: %d batches, %d records, %d windows (%d kept), %d groups, %d failed (%d causality)",
		stats.Batches, stats.Records, stats.Windows, stats.Kept, stats.Groups, stats.FailedGroups, stats.IntegrityErrors)
	if stats.IntegrityErrors > 0 {
		opsf("%d groups broke causality against the registry", stats.IntegrityErrors)
	}
	return stats, nil
}
