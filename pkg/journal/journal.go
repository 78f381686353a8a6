// Package journal persists route events to SQLite so runs can be inspected
// after the fact.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devicelab-dev/rerouter/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kind classifies a journal event.
type Kind string

const (
	KindMatched  Kind = "matched"  // Single route matched and acted on
	KindUnknown  Kind = "unknown"  // No route matched
	KindConflict Kind = "conflict" // Several routes matched at the same priority
	KindRestart  Kind = "restart"  // App restarted after a conflict storm
	KindFrozen   Kind = "frozen"   // Screen frozen, device powered off
	KindLaunch   Kind = "launch"   // App was not in the foreground and was launched
)

// Event is one journal entry.
type Event struct {
	Kind   Kind
	Task   string
	Path   string
	Pages  []string
	Detail string
	At     time.Time
}

// RouteStat summarizes how often a route path was matched.
type RouteStat struct {
	Path     string
	Hits     int
	LastSeen time.Time
}

// Journal is an SQLite-backed event log. Each Journal has its own run id.
type Journal struct {
	db    *sql.DB
	runID string
	mu    sync.Mutex
	now   func() time.Time
}

// Open opens or creates the journal database at path and applies pending
// migrations. Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// A single connection keeps ":memory:" databases shared between calls.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, runID: uuid.NewString(), now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// m is not closed: closing it would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debug("[migrate] "+strings.TrimRight(format, "\n"), v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// RunID returns the id stamped on events recorded through this journal.
func (j *Journal) RunID() string {
	return j.runID
}

// Record appends e. A zero At is stamped with the current time.
func (j *Journal) Record(e Event) error {
	if e.At.IsZero() {
		e.At = j.now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(
		`INSERT INTO route_events (run_id, kind, task, path, pages, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.runID, string(e.Kind), e.Task, e.Path, strings.Join(e.Pages, ","), e.Detail, e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.Kind, err)
	}
	return nil
}

// Events returns the most recent events, newest first. limit <= 0 means all.
func (j *Journal) Events(limit int) ([]Event, error) {
	q := `SELECT kind, task, path, pages, detail, created_at FROM route_events ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			kind  string
			pages string
			at    int64
		)
		if err := rows.Scan(&kind, &e.Task, &e.Path, &pages, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		if pages != "" {
			e.Pages = strings.Split(pages, ",")
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RouteStats returns matched-route hit counts, most hit first.
func (j *Journal) RouteStats() ([]RouteStat, error) {
	rows, err := j.db.Query(`
		SELECT path, COUNT(*) AS hits, MAX(created_at)
		FROM route_events
		WHERE kind = ? AND path != ''
		GROUP BY path
		ORDER BY hits DESC, path ASC`, string(KindMatched))
	if err != nil {
		return nil, fmt.Errorf("failed to query route stats: %w", err)
	}
	defer rows.Close()

	var out []RouteStat
	for rows.Next() {
		var (
			s    RouteStat
			last int64
		)
		if err := rows.Scan(&s.Path, &s.Hits, &last); err != nil {
			return nil, err
		}
		s.LastSeen = time.UnixMilli(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByKind returns how many events of each kind were recorded.
func (j *Journal) CountByKind() (map[Kind]int, error) {
	rows, err := j.db.Query(`SELECT kind, COUNT(*) FROM route_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	out := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[Kind(kind)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
