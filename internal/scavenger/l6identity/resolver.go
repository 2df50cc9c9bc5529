package l6identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l5localize"
)

// ErrCausality is wrapped by IntegrityError.
var ErrCausality = errors.New("causality violation")

// IntegrityError reports a group whose timestamp is older than the newest
// sighting of its information element.
type IntegrityError struct {
	InformationElement string
	ClaimedID          string
	LatestEpochNs      int64
	MedianEpochNs      int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: ie %s claimed %s at %d precedes latest sighting at %d",
		e.InformationElement, e.ClaimedID, e.MedianEpochNs, e.LatestEpochNs)
}

func (e *IntegrityError) Unwrap() error { return ErrCausality }

// Outcome is the resolver's verdict for one group.
type Outcome string

const (
	// OutcomeBurst is a repeat of a known ie and claimed id inside the
	// burst threshold. Only the regions are recorded.
	OutcomeBurst Outcome = "burst"
	// OutcomeRepeat is a known ie and claimed id seen again after the
	// burst threshold: a device that does not randomize.
	OutcomeRepeat Outcome = "repeat"
	// OutcomeAlias links a new claimed id to the latest claimed id of the
	// same ie because the device could have walked between the regions.
	OutcomeAlias Outcome = "alias"
	// OutcomeDistinct registers both claimed ids as separate devices.
	OutcomeDistinct Outcome = "distinct"
	// OutcomeNew is the first sighting of an ie.
	OutcomeNew Outcome = "new"
)

// Outcomes lists every outcome, for metric label pre-registration.
var Outcomes = []Outcome{OutcomeBurst, OutcomeRepeat, OutcomeAlias, OutcomeDistinct, OutcomeNew}

// Comparator decides whether two region sets can belong to one device.
// *l5localize.Localizer satisfies it.
type Comparator interface {
	IsEqual(prev, curr []scavenger.Region, elapsedS, walkingKmh float64) l5localize.Match
}

// Localized is an aggregated group together with its regions.
type Localized struct {
	Group   scavenger.Group
	Regions []scavenger.Region
}

// Decision records how one group was resolved.
type Decision struct {
	Key     scavenger.GroupKey
	Outcome Outcome
	// Peer is the claimed id the group was compared with for alias and
	// distinct outcomes.
	Peer string
	// ElapsedS is the time since the compared sighting.
	ElapsedS float64
	Match    l5localize.Match
}

// Config tunes the resolver.
type Config struct {
	WalkingSpeedKmh  float64
	InBurstThreshold time.Duration
}

// Resolver applies the identity rules against a Registry.
type Resolver struct {
	reg Registry
	cmp Comparator
	cfg Config
}

// NewResolver returns a Resolver.
func NewResolver(reg Registry, cmp Comparator, cfg Config) *Resolver {
	return &Resolver{reg: reg, cmp: cmp, cfg: cfg}
}

// ResolveBatch resolves every group of one window. All groups are
// classified before any region is written, so groups of the same window
// never see each other's regions. A group that fails (causality or storage)
// is skipped without stopping the others; the failures are joined into the
// returned error and the decisions of the successful groups are returned.
func (r *Resolver) ResolveBatch(ctx context.Context, groups []Localized) ([]Decision, error) {
	var errs []error
	decisions := make([]Decision, 0, len(groups))
	resolved := make([]Localized, 0, len(groups))

	for _, g := range groups {
		d, err := r.classify(ctx, g)
		if err != nil {
			opsf("resolve %s: %v", g.Group.Key, err)
			errs = append(errs, err)
			continue
		}
		decisions = append(decisions, d)
		resolved = append(resolved, g)
	}

	for _, g := range resolved {
		key := g.Group.Key
		for _, region := range g.Regions {
			if err := r.reg.AppendRegion(ctx, key.InformationElement, key.ClaimedID, g.Group.MedianEpochNs, region); err != nil {
				errs = append(errs, fmt.Errorf("append region for %s: %w", key, err))
				break
			}
		}
	}
	return decisions, errors.Join(errs...)
}

func (r *Resolver) classify(ctx context.Context, g Localized) (Decision, error) {
	key := g.Group.Key
	median := g.Group.MedianEpochNs
	d := Decision{Key: key}

	tl, found, err := r.reg.FindByInformationElementAndClaimedID(ctx, key.InformationElement, key.ClaimedID)
	if err != nil {
		return d, fmt.Errorf("lookup %s: %w", key, err)
	}
	if prev, ok := tl.Latest(); found && ok {
		gap := time.Duration(median - prev)
		d.ElapsedS = gap.Seconds()
		if gap < r.cfg.InBurstThreshold {
			d.Outcome = OutcomeBurst
			tracef("%s: same burst (%.3fs since last sighting)", key, d.ElapsedS)
			return d, nil
		}
		if err := r.reg.IncrementRepeatCount(ctx, key.ClaimedID); err != nil {
			return d, fmt.Errorf("increment repeat count for %s: %w", key.ClaimedID, err)
		}
		d.Outcome = OutcomeRepeat
		diagf("%s: seen again after %.1fs, not randomizing", key, d.ElapsedS)
		return d, nil
	}

	doc, found, err := r.reg.FindByInformationElement(ctx, key.InformationElement)
	if err != nil {
		return d, fmt.Errorf("lookup ie %s: %w", key.InformationElement, err)
	}
	var (
		peerID string
		latest int64
		ok     bool
	)
	if found && doc != nil {
		peerID, latest, ok = doc.Latest()
	}
	if !ok {
		if err := r.reg.AddSingleton(ctx, key.ClaimedID); err != nil {
			return d, fmt.Errorf("add singleton %s: %w", key.ClaimedID, err)
		}
		d.Outcome = OutcomeNew
		tracef("%s: new information element", key)
		return d, nil
	}

	if median < latest {
		return d, &IntegrityError{
			InformationElement: key.InformationElement,
			ClaimedID:          key.ClaimedID,
			LatestEpochNs:      latest,
			MedianEpochNs:      median,
		}
	}
	d.Peer = peerID
	d.ElapsedS = time.Duration(median - latest).Seconds()
	d.Match = r.cmp.IsEqual(doc.Sightings[peerID][latest], g.Regions, d.ElapsedS, r.cfg.WalkingSpeedKmh)

	if d.Match.Equal {
		if err := r.reg.AddAlias(ctx, peerID, key.ClaimedID); err != nil {
			return d, fmt.Errorf("add alias %s -> %s: %w", peerID, key.ClaimedID, err)
		}
		d.Outcome = OutcomeAlias
		diagf("%s: alias of %s, %.2fm apart after %.1fs", key, peerID, d.Match.DistanceM, d.ElapsedS)
		return d, nil
	}

	for _, id := range []string{peerID, key.ClaimedID} {
		if err := r.reg.AddSingleton(ctx, id); err != nil {
			return d, fmt.Errorf("add singleton %s: %w", id, err)
		}
	}
	d.Outcome = OutcomeDistinct
	diagf("%s: distinct from %s, %.2fm apart after %.1fs", key, peerID, d.Match.DistanceM, d.ElapsedS)
	return d, nil
}
