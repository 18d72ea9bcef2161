// Package store persists extracted plates to SQLite. The sink is best
// effort: the in-memory index is authoritative for a run, and persistence
// failures are surfaced as warnings, never as run failures.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dmr-cli/internal/plates"
)

// SQLite persists plates and ingest run metadata using modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS plates (
	plate       TEXT PRIMARY KEY,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME,
	plate_count    INTEGER NOT NULL DEFAULT 0,
	entry_warnings INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

// Migrate creates the schema if it does not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// StartRun records the beginning of an ingest run and returns its ID.
func (s *SQLite) StartRun(ctx context.Context, source string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

// FinishRun records the outcome of an ingest run.
func (s *SQLite) FinishRun(ctx context.Context, runID string, plateCount, entryWarnings int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET finished_at = ?, plate_count = ?, entry_warnings = ? WHERE id = ?`,
		time.Now().UTC(), plateCount, entryWarnings, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

// UpsertPlates writes records to the plates table. A plate already present
// is overwritten with the newer observation. Returns the number of records
// written.
func (s *SQLite) UpsertPlates(ctx context.Context, records []plates.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO plates (plate, observed_at) VALUES (?, ?)
		 ON CONFLICT(plate) DO UPDATE SET observed_at = excluded.observed_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var written int64
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Plate, r.ObservedAt.UTC()); err != nil {
			return written, eris.Wrapf(err, "sqlite: upsert plate %s", r.Plate)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return written, eris.Wrap(err, "sqlite: commit")
	}

	return written, nil
}

// GetPlate returns the persisted record for plate.
func (s *SQLite) GetPlate(ctx context.Context, plate string) (plates.Record, error) {
	var r plates.Record
	r.Plate = plate
	err := s.db.QueryRowContext(ctx,
		`SELECT observed_at FROM plates WHERE plate = ?`, plate,
	).Scan(&r.ObservedAt)
	if err != nil {
		return plates.Record{}, eris.Wrapf(err, "sqlite: get plate %s", plate)
	}
	return r, nil
}

// CountPlates returns the number of rows in the plates table.
func (s *SQLite) CountPlates(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plates`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count plates")
	}
	return n, nil
}
