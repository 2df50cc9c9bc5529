package l6identity

import (
	"context"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Timeline maps a sighting timestamp (median epoch, ns) to the regions
// recorded at that time.
type Timeline map[int64][]scavenger.Region

// Latest returns the newest timestamp of the timeline.
func (t Timeline) Latest() (int64, bool) {
	var latest int64
	found := false
	for ts := range t {
		if !found || ts > latest {
			latest, found = ts, true
		}
	}
	return latest, found
}

// Document is everything known about one information element: every
// claimed id it was seen under and the regions per sighting.
type Document struct {
	InformationElement string
	Sightings          map[string]Timeline
}

// Latest returns the claimed id with the newest sighting and that
// sighting's timestamp. Ties pick the lexically smallest claimed id.
func (d *Document) Latest() (claimedID string, epochNs int64, ok bool) {
	for id, tl := range d.Sightings {
		ts, found := tl.Latest()
		if !found {
			continue
		}
		if !ok || ts > epochNs || (ts == epochNs && id < claimedID) {
			claimedID, epochNs, ok = id, ts, true
		}
	}
	return claimedID, epochNs, ok
}

// SummaryEntry is the per-claimed-id summary record.
type SummaryEntry struct {
	ClaimedID string   `json:"claimed_id"`
	Seen      int      `json:"seen"`
	Aliases   []string `json:"aliases,omitempty"`
}

// Sighting is one stored (information element, claimed id, timestamp)
// combination with its regions.
type Sighting struct {
	InformationElement string             `json:"ie"`
	ClaimedID          string             `json:"claimed_id"`
	EpochNs            int64              `json:"epoch_ns"`
	Regions            []scavenger.Region `json:"regions"`
}

// Registry is the store the resolver consults and updates. Every write is
// an upsert that is atomic per key; the resolver never needs transactions.
type Registry interface {
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// FindByInformationElementAndClaimedID returns the timeline of one
	// (ie, claimed id) combination.
	FindByInformationElementAndClaimedID(ctx context.Context, ie, claimedID string) (Timeline, bool, error)
	// FindByInformationElement returns every claimed id seen with ie.
	FindByInformationElement(ctx context.Context, ie string) (*Document, bool, error)
	// AppendRegion adds region under (ie, claimed id, epochNs), creating
	// the parent keys when absent.
	AppendRegion(ctx context.Context, ie, claimedID string, epochNs int64, region scavenger.Region) error

	// IncrementRepeatCount bumps the seen counter of a claimed id.
	IncrementRepeatCount(ctx context.Context, claimedID string) error
	// AddAlias records alias as another identifier of claimedID. Adding
	// the same alias twice is a no-op.
	AddAlias(ctx context.Context, claimedID, alias string) error
	// AddSingleton records a sighting of a claimed id with no known alias.
	AddSingleton(ctx context.Context, claimedID string) error

	CountTotalIdentities(ctx context.Context) (int, error)
	CountSingletonIdentities(ctx context.Context) (int, error)
	CountRepeatNonAliased(ctx context.Context) (int, error)
	CountAliased(ctx context.Context) (int, error)
}

// Reporter is the read side used by reports and the trajectory tool.
type Reporter interface {
	// Summary lists every summary entry ordered by claimed id.
	Summary(ctx context.Context) ([]SummaryEntry, error)
	// Aliases returns the aliases recorded for claimedID.
	Aliases(ctx context.Context, claimedID string) ([]string, error)
	// History returns the sightings of the given claimed ids ordered by
	// timestamp.
	History(ctx context.Context, claimedIDs []string) ([]Sighting, error)
}

// Counts is a snapshot of the four summary counters.
type Counts struct {
	Total            int `json:"total"`
	Singletons       int `json:"singletons"`
	RepeatNonAliased int `json:"repeat_non_aliased"`
	Aliased          int `json:"aliased"`
}

// ReadCounts queries all four counters.
func ReadCounts(ctx context.Context, reg Registry) (Counts, error) {
	var c Counts
	var err error
	if c.Total, err = reg.CountTotalIdentities(ctx); err != nil {
		return c, err
	}
	if c.Singletons, err = reg.CountSingletonIdentities(ctx); err != nil {
		return c, err
	}
	if c.RepeatNonAliased, err = reg.CountRepeatNonAliased(ctx); err != nil {
		return c, err
	}
	if c.Aliased, err = reg.CountAliased(ctx); err != nil {
		return c, err
	}
	return c, nil
}
