package l6identity

import (
	"context"
	"sort"
	"sync"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// MemoryRegistry keeps the registry in process memory. It is safe for
// concurrent use.
type MemoryRegistry struct {
	mu      sync.Mutex
	docs    map[string]map[string]Timeline // ie -> claimed id -> timeline
	summary map[string]*memorySummary
}

type memorySummary struct {
	seen    int
	aliases map[string]struct{}
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		docs:    make(map[string]map[string]Timeline),
		summary: make(map[string]*memorySummary),
	}
}

func (m *MemoryRegistry) Ping(ctx context.Context) error { return ctx.Err() }

func copyRegion(r scavenger.Region) scavenger.Region {
	return append(scavenger.Region(nil), r...)
}

func copyTimeline(tl Timeline) Timeline {
	out := make(Timeline, len(tl))
	for ts, regions := range tl {
		rs := make([]scavenger.Region, len(regions))
		for i, r := range regions {
			rs[i] = copyRegion(r)
		}
		out[ts] = rs
	}
	return out
}

func (m *MemoryRegistry) FindByInformationElementAndClaimedID(ctx context.Context, ie, claimedID string) (Timeline, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.docs[ie][claimedID]
	if !ok {
		return nil, false, nil
	}
	return copyTimeline(tl), true, nil
}

func (m *MemoryRegistry) FindByInformationElement(ctx context.Context, ie string) (*Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byClaimed, ok := m.docs[ie]
	if !ok {
		return nil, false, nil
	}
	doc := &Document{InformationElement: ie, Sightings: make(map[string]Timeline, len(byClaimed))}
	for id, tl := range byClaimed {
		doc.Sightings[id] = copyTimeline(tl)
	}
	return doc, true, nil
}

func (m *MemoryRegistry) AppendRegion(ctx context.Context, ie, claimedID string, epochNs int64, region scavenger.Region) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byClaimed, ok := m.docs[ie]
	if !ok {
		byClaimed = make(map[string]Timeline)
		m.docs[ie] = byClaimed
	}
	tl, ok := byClaimed[claimedID]
	if !ok {
		tl = make(Timeline)
		byClaimed[claimedID] = tl
	}
	tl[epochNs] = append(tl[epochNs], copyRegion(region))
	return nil
}

func (m *MemoryRegistry) entry(claimedID string) *memorySummary {
	e, ok := m.summary[claimedID]
	if !ok {
		e = &memorySummary{aliases: make(map[string]struct{})}
		m.summary[claimedID] = e
	}
	return e
}

func (m *MemoryRegistry) IncrementRepeatCount(ctx context.Context, claimedID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(claimedID).seen++
	return nil
}

func (m *MemoryRegistry) AddAlias(ctx context.Context, claimedID, alias string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(claimedID).aliases[alias] = struct{}{}
	return nil
}

// AddSingleton shares its upsert with IncrementRepeatCount: both bump the
// seen counter, creating the entry when needed.
func (m *MemoryRegistry) AddSingleton(ctx context.Context, claimedID string) error {
	return m.IncrementRepeatCount(ctx, claimedID)
}

func (m *MemoryRegistry) count(ctx context.Context, keep func(*memorySummary) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.summary {
		if keep(e) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRegistry) CountTotalIdentities(ctx context.Context) (int, error) {
	return m.count(ctx, func(*memorySummary) bool { return true })
}

func (m *MemoryRegistry) CountSingletonIdentities(ctx context.Context) (int, error) {
	return m.count(ctx, func(e *memorySummary) bool { return e.seen == 1 && len(e.aliases) == 0 })
}

func (m *MemoryRegistry) CountRepeatNonAliased(ctx context.Context) (int, error) {
	return m.count(ctx, func(e *memorySummary) bool { return e.seen > 1 && len(e.aliases) == 0 })
}

func (m *MemoryRegistry) CountAliased(ctx context.Context) (int, error) {
	return m.count(ctx, func(e *memorySummary) bool { return len(e.aliases) > 0 })
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryRegistry) Summary(ctx context.Context) ([]SummaryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SummaryEntry, 0, len(m.summary))
	for id, e := range m.summary {
		se := SummaryEntry{ClaimedID: id, Seen: e.seen}
		if len(e.aliases) > 0 {
			se.Aliases = sortedKeys(e.aliases)
		}
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedID < out[j].ClaimedID })
	return out, nil
}

func (m *MemoryRegistry) Aliases(ctx context.Context, claimedID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.summary[claimedID]
	if !ok || len(e.aliases) == 0 {
		return nil, nil
	}
	return sortedKeys(e.aliases), nil
}

func (m *MemoryRegistry) History(ctx context.Context, claimedIDs []string) ([]Sighting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(claimedIDs))
	for _, id := range claimedIDs {
		want[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sighting
	for ie, byClaimed := range m.docs {
		for id, tl := range byClaimed {
			if _, ok := want[id]; !ok {
				continue
			}
			for ts, regions := range copyTimeline(tl) {
				out = append(out, Sighting{InformationElement: ie, ClaimedID: id, EpochNs: ts, Regions: regions})
			}
		}
	}
	SortSightings(out)
	return out, nil
}

// SortSightings orders sightings by timestamp, then claimed id, then
// information element.
func SortSightings(s []Sighting) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].EpochNs != s[j].EpochNs {
			return s[i].EpochNs < s[j].EpochNs
		}
		if s[i].ClaimedID != s[j].ClaimedID {
			return s[i].ClaimedID < s[j].ClaimedID
		}
		return s[i].InformationElement < s[j].InformationElement
	})
}

var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Reporter = (*MemoryRegistry)(nil)
)
