package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/timeutil"
)

// ErrUnknownRun is returned by ResumeRun for a run id not in the database.
var ErrUnknownRun = errors.New("unknown run")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// DB is an open registry database.
type DB struct {
	*sql.DB
	// Clock stamps new runs.
	Clock timeutil.Clock
}

// Open opens (creating if needed) the database at path, applies the
// connection pragmas and migrates the schema to the latest version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	db := &DB{DB: sqlDB, Clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one row of the runs table.
type Run struct {
	RunID     string    `json:"run_id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
}

// StartRun creates a new run and returns a Store scoped to it.
func (db *DB) StartRun(ctx context.Context, label string) (*Store, error) {
	id := uuid.New().String()
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, label, started_ns) VALUES (?, ?, ?)`,
		id, label, db.Clock.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Store{db: db.DB, runID: id}, nil
}

// ResumeRun returns a Store scoped to an existing run.
func (db *DB) ResumeRun(ctx context.Context, runID string) (*Store, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return &Store{db: db.DB, runID: runID}, nil
}

// Runs lists every run, oldest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, label, started_ns FROM runs ORDER BY started_ns, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.RunID, &r.Label, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Store is the registry of one run.
type Store struct {
	db    *sql.DB
	runID string
}

// RunID returns the run the store is scoped to.
func (s *Store) RunID() string { return s.runID }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByInformationElementAndClaimedID(ctx context.Context, ie, claimedID string) (l6identity.Timeline, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch_ns, region_json FROM sightings
		WHERE run_id = ? AND ie = ? AND claimed_id = ?
		ORDER BY sighting_id`, s.runID, ie, claimedID)
	if err != nil {
		return nil, false, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var tl l6identity.Timeline
	for rows.Next() {
		var epoch int64
		var raw string
		if err := rows.Scan(&epoch, &raw); err != nil {
			return nil, false, fmt.Errorf("scan sighting: %w", err)
		}
		region, err := decodeRegion(raw)
		if err != nil {
			return nil, false, err
		}
		if tl == nil {
			tl = make(l6identity.Timeline)
		}
		tl[epoch] = append(tl[epoch], region)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return tl, tl != nil, nil
}

func (s *Store) FindByInformationElement(ctx context.Context, ie string) (*l6identity.Document, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claimed_id, epoch_ns, region_json FROM sightings
		WHERE run_id = ? AND ie = ?
		ORDER BY sighting_id`, s.runID, ie)
	if err != nil {
		return nil, false, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var doc *l6identity.Document
	for rows.Next() {
		var claimed, raw string
		var epoch int64
		if err := rows.Scan(&claimed, &epoch, &raw); err != nil {
			return nil, false, fmt.Errorf("scan sighting: %w", err)
		}
		region, err := decodeRegion(raw)
		if err != nil {
			return nil, false, err
		}
		if doc == nil {
			doc = &l6identity.Document{InformationElement: ie, Sightings: make(map[string]l6identity.Timeline)}
		}
		tl, ok := doc.Sightings[claimed]
		if !ok {
			tl = make(l6identity.Timeline)
			doc.Sightings[claimed] = tl
		}
		tl[epoch] = append(tl[epoch], region)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

func (s *Store) AppendRegion(ctx context.Context, ie, claimedID string, epochNs int64, region scavenger.Region) error {
	raw, err := json.Marshal(region)
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sightings (run_id, ie, claimed_id, epoch_ns, region_json)
		VALUES (?, ?, ?, ?, ?)`, s.runID, ie, claimedID, epochNs, string(raw))
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}
	return nil
}

func (s *Store) IncrementRepeatCount(ctx context.Context, claimedID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summary (run_id, claimed_id, seen) VALUES (?, ?, 1)
		ON CONFLICT (run_id, claimed_id) DO UPDATE SET seen = seen + 1`, s.runID, claimedID)
	if err != nil {
		return fmt.Errorf("upsert summary %s: %w", claimedID, err)
	}
	return nil
}

func (s *Store) AddAlias(ctx context.Context, claimedID, alias string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alias tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summary (run_id, claimed_id, seen) VALUES (?, ?, 0)
		ON CONFLICT (run_id, claimed_id) DO NOTHING`, s.runID, claimedID); err != nil {
		return fmt.Errorf("ensure summary %s: %w", claimedID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summary_alias (run_id, claimed_id, alias) VALUES (?, ?, ?)
		ON CONFLICT (run_id, claimed_id, alias) DO NOTHING`, s.runID, claimedID, alias); err != nil {
		return fmt.Errorf("insert alias %s of %s: %w", alias, claimedID, err)
	}
	return tx.Commit()
}

// AddSingleton shares the IncrementRepeatCount upsert.
func (s *Store) AddSingleton(ctx context.Context, claimedID string) error {
	return s.IncrementRepeatCount(ctx, claimedID)
}

func (s *Store) count(ctx context.Context, where string) (int, error) {
	q := `SELECT COUNT(*) FROM summary s WHERE s.run_id = ?`
	if where != "" {
		q += " AND " + where
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, s.runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count summary: %w", err)
	}
	return n, nil
}

const hasAlias = `EXISTS (SELECT 1 FROM summary_alias a WHERE a.run_id = s.run_id AND a.claimed_id = s.claimed_id)`

func (s *Store) CountTotalIdentities(ctx context.Context) (int, error) {
	return s.count(ctx, "")
}

func (s *Store) CountSingletonIdentities(ctx context.Context) (int, error) {
	return s.count(ctx, "s.seen = 1 AND NOT "+hasAlias)
}

func (s *Store) CountRepeatNonAliased(ctx context.Context) (int, error) {
	return s.count(ctx, "s.seen > 1 AND NOT "+hasAlias)
}

func (s *Store) CountAliased(ctx context.Context) (int, error) {
	return s.count(ctx, hasAlias)
}

func (s *Store) Summary(ctx context.Context) ([]l6identity.SummaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.claimed_id, s.seen, a.alias
		FROM summary s
		LEFT JOIN summary_alias a ON a.run_id = s.run_id AND a.claimed_id = s.claimed_id
		WHERE s.run_id = ?
		ORDER BY s.claimed_id, a.alias`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	out := []l6identity.SummaryEntry{}
	for rows.Next() {
		var id string
		var seen int
		var alias sql.NullString
		if err := rows.Scan(&id, &seen, &alias); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ClaimedID != id {
			out = append(out, l6identity.SummaryEntry{ClaimedID: id, Seen: seen})
		}
		if alias.Valid {
			last := &out[len(out)-1]
			last.Aliases = append(last.Aliases, alias.String)
		}
	}
	return out, rows.Err()
}

func (s *Store) Aliases(ctx context.Context, claimedID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alias FROM summary_alias
		WHERE run_id = ? AND claimed_id = ?
		ORDER BY alias`, s.runID, claimedID)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, claimedIDs []string) ([]l6identity.Sighting, error) {
	if len(claimedIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(claimedIDs)+1)
	args = append(args, s.runID)
	for _, id := range claimedIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(claimedIDs)), ",")
	rows, err := s.db.QueryContext(ctx, `
		SELECT ie, claimed_id, epoch_ns, region_json FROM sightings
		WHERE run_id = ? AND claimed_id IN (`+placeholders+`)
		ORDER BY epoch_ns, claimed_id, ie, sighting_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []l6identity.Sighting
	for rows.Next() {
		var sg l6identity.Sighting
		var raw string
		if err := rows.Scan(&sg.InformationElement, &sg.ClaimedID, &sg.EpochNs, &raw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		region, err := decodeRegion(raw)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.EpochNs == sg.EpochNs && last.ClaimedID == sg.ClaimedID && last.InformationElement == sg.InformationElement {
				last.Regions = append(last.Regions, region)
				continue
			}
		}
		sg.Regions = []scavenger.Region{region}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func decodeRegion(raw string) (scavenger.Region, error) {
	var r scavenger.Region
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode region %q: %w", raw, err)
	}
	return r, nil
}

var (
	_ l6identity.Registry = (*Store)(nil)
	_ l6identity.Reporter = (*Store)(nil)
)
