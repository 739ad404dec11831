// Package journal keeps a local SQLite history of power transitions so the
// last suspend, resume or shutdown can be inspected after the fact.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hars-imp/internal/infrastructure/database"
	"github.com/nerrad567/hars-imp/migrations"
)

// Outcomes recorded for a transition.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ErrInvalidLimit is returned by Recent for a non-positive n.
var ErrInvalidLimit = errors.New("journal: limit must be positive")

// Entry is one recorded transition.
type Entry struct {
	ID         int64
	OccurredAt time.Time
	Host       string
	Event      string
	Outcome    string
	Detail     string
}

// Journal appends lifecycle entries for one host.
type Journal struct {
	db   *database.DB
	host string
	now  func() time.Time
}

// Open opens the database at cfg.Path and applies the embedded schema.
func Open(ctx context.Context, cfg database.Config, host string) (*Journal, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &Journal{db: db, host: host, now: time.Now}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an entry stamped with the current time.
func (j *Journal) Record(ctx context.Context, event, outcome, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (occurred_at, host, event, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		j.now().UTC().Format(time.RFC3339Nano), j.host, event, outcome, detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", event, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, occurred_at, host, event, outcome, detail
		 FROM lifecycle_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Host, &e.Event, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, at) //nolint:errcheck // written by Record
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}
