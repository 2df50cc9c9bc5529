// Package redis implements the identity registry on a Redis server.
//
// Keys of one run share the prefix scav:<run-id>:. Each registry write is
// a single command or a MULTI/EXEC pipeline, so concurrent writers never
// see a half-applied upsert.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
)

const runsKey = "scav:runs"

// ErrUnknownRun is returned by ResumeRun for a run id with no runs entry.
var ErrUnknownRun = errors.New("unknown run")

// NewClient connects to addr and checks the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Store is the registry of one run.
type Store struct {
	client redis.UniversalClient
	runID  string
}

// StartRun registers a new run and returns a Store scoped to it.
func StartRun(ctx context.Context, client redis.UniversalClient, label string) (*Store, error) {
	id := uuid.New().String()
	entry, err := json.Marshal(runEntry{Label: label, StartedNs: time.Now().UnixNano()})
	if err != nil {
		return nil, err
	}
	if err := client.HSet(ctx, runsKey, id, string(entry)).Err(); err != nil {
		return nil, fmt.Errorf("register run: %w", err)
	}
	return &Store{client: client, runID: id}, nil
}

// ResumeRun returns a Store scoped to an existing run.
func ResumeRun(ctx context.Context, client redis.UniversalClient, runID string) (*Store, error) {
	ok, err := client.HExists(ctx, runsKey, runID).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return &Store{client: client, runID: runID}, nil
}

type runEntry struct {
	Label     string `json:"label"`
	StartedNs int64  `json:"started_ns"`
}

// timelineEntry is one element of a timeline list.
type timelineEntry struct {
	EpochNs int64            `json:"t"`
	Region  scavenger.Region `json:"r"`
}

// RunID returns the run the store is scoped to.
func (s *Store) RunID() string { return s.runID }

func (s *Store) prefix() string { return "scav:" + s.runID + ":" }

// ieKey holds the set of claimed ids seen with ie.
func (s *Store) ieKey(ie string) string { return s.prefix() + "ie:" + ie }

// claimedKey holds the set of information elements seen with a claimed id.
func (s *Store) claimedKey(claimedID string) string { return s.prefix() + "claimed:" + claimedID }

// timelineKey is length-prefixed so no (ie, claimed id) pair can collide.
func (s *Store) timelineKey(ie, claimedID string) string {
	return fmt.Sprintf("%stl:%d:%s:%s", s.prefix(), len(ie), ie, claimedID)
}

func (s *Store) summaryKey() string { return s.prefix() + "summary" }

func (s *Store) aliasKey(claimedID string) string { return s.prefix() + "alias:" + claimedID }

func (s *Store) aliasedKey() string { return s.prefix() + "aliased" }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) timeline(ctx context.Context, ie, claimedID string) (l6identity.Timeline, error) {
	raw, err := s.client.LRange(ctx, s.timelineKey(ie, claimedID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read timeline %s/%s: %w", ie, claimedID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	tl := make(l6identity.Timeline)
	for _, item := range raw {
		var e timelineEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode timeline entry %q: %w", item, err)
		}
		tl[e.EpochNs] = append(tl[e.EpochNs], e.Region)
	}
	return tl, nil
}

func (s *Store) FindByInformationElementAndClaimedID(ctx context.Context, ie, claimedID string) (l6identity.Timeline, bool, error) {
	tl, err := s.timeline(ctx, ie, claimedID)
	if err != nil {
		return nil, false, err
	}
	return tl, tl != nil, nil
}

func (s *Store) FindByInformationElement(ctx context.Context, ie string) (*l6identity.Document, bool, error) {
	ids, err := s.client.SMembers(ctx, s.ieKey(ie)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read claimed ids of %s: %w", ie, err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	doc := &l6identity.Document{InformationElement: ie, Sightings: make(map[string]l6identity.Timeline, len(ids))}
	for _, id := range ids {
		tl, err := s.timeline(ctx, ie, id)
		if err != nil {
			return nil, false, err
		}
		if tl != nil {
			doc.Sightings[id] = tl
		}
	}
	return doc, true, nil
}

func (s *Store) AppendRegion(ctx context.Context, ie, claimedID string, epochNs int64, region scavenger.Region) error {
	entry, err := json.Marshal(timelineEntry{EpochNs: epochNs, Region: region})
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.ieKey(ie), claimedID)
		pipe.SAdd(ctx, s.claimedKey(claimedID), ie)
		pipe.RPush(ctx, s.timelineKey(ie, claimedID), string(entry))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append region %s/%s: %w", ie, claimedID, err)
	}
	return nil
}

func (s *Store) IncrementRepeatCount(ctx context.Context, claimedID string) error {
	if err := s.client.HIncrBy(ctx, s.summaryKey(), claimedID, 1).Err(); err != nil {
		return fmt.Errorf("increment %s: %w", claimedID, err)
	}
	return nil
}

func (s *Store) AddAlias(ctx context.Context, claimedID, alias string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.summaryKey(), claimedID, 0)
		pipe.SAdd(ctx, s.aliasKey(claimedID), alias)
		pipe.SAdd(ctx, s.aliasedKey(), claimedID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add alias %s of %s: %w", alias, claimedID, err)
	}
	return nil
}

// AddSingleton shares the IncrementRepeatCount upsert.
func (s *Store) AddSingleton(ctx context.Context, claimedID string) error {
	return s.IncrementRepeatCount(ctx, claimedID)
}

// snapshot reads the seen counters and the set of aliased claimed ids.
func (s *Store) snapshot(ctx context.Context) (map[string]int, map[string]bool, error) {
	raw, err := s.client.HGetAll(ctx, s.summaryKey()).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("read summary: %w", err)
	}
	seen := make(map[string]int, len(raw))
	for id, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, nil, fmt.Errorf("summary %s: %w", id, err)
		}
		seen[id] = n
	}
	members, err := s.client.SMembers(ctx, s.aliasedKey()).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("read aliased set: %w", err)
	}
	aliased := make(map[string]bool, len(members))
	for _, id := range members {
		aliased[id] = true
	}
	return seen, aliased, nil
}

func (s *Store) count(ctx context.Context, keep func(seen int, aliased bool) bool) (int, error) {
	seen, aliased, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, c := range seen {
		if keep(c, aliased[id]) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTotalIdentities(ctx context.Context) (int, error) {
	return s.count(ctx, func(int, bool) bool { return true })
}

func (s *Store) CountSingletonIdentities(ctx context.Context) (int, error) {
	return s.count(ctx, func(seen int, aliased bool) bool { return seen == 1 && !aliased })
}

func (s *Store) CountRepeatNonAliased(ctx context.Context) (int, error) {
	return s.count(ctx, func(seen int, aliased bool) bool { return seen > 1 && !aliased })
}

func (s *Store) CountAliased(ctx context.Context) (int, error) {
	return s.count(ctx, func(_ int, aliased bool) bool { return aliased })
}

func (s *Store) Summary(ctx context.Context) ([]l6identity.SummaryEntry, error) {
	seen, aliased, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]l6identity.SummaryEntry, 0, len(seen))
	for id, c := range seen {
		e := l6identity.SummaryEntry{ClaimedID: id, Seen: c}
		if aliased[id] {
			if e.Aliases, err = s.Aliases(ctx, id); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedID < out[j].ClaimedID })
	return out, nil
}

func (s *Store) Aliases(ctx context.Context, claimedID string) ([]string, error) {
	aliases, err := s.client.SMembers(ctx, s.aliasKey(claimedID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read aliases of %s: %w", claimedID, err)
	}
	if len(aliases) == 0 {
		return nil, nil
	}
	sort.Strings(aliases)
	return aliases, nil
}

func (s *Store) History(ctx context.Context, claimedIDs []string) ([]l6identity.Sighting, error) {
	var out []l6identity.Sighting
	for _, id := range claimedIDs {
		ies, err := s.client.SMembers(ctx, s.claimedKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("read information elements of %s: %w", id, err)
		}
		for _, ie := range ies {
			tl, err := s.timeline(ctx, ie, id)
			if err != nil {
				return nil, err
			}
			for ts, regions := range tl {
				out = append(out, l6identity.Sighting{InformationElement: ie, ClaimedID: id, EpochNs: ts, Regions: regions})
			}
		}
	}
	l6identity.SortSightings(out)
	return out, nil
}

// Purge deletes every key of the run and its runs entry.
func (s *Store) Purge(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix()+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan run keys: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete run keys: %w", err)
		}
	}
	return s.client.HDel(ctx, runsKey, s.runID).Err()
}

var (
	_ l6identity.Registry = (*Store)(nil)
	_ l6identity.Reporter = (*Store)(nil)
)
