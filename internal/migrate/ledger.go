package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ledger is the durable record of which schema version a database is at.
// One row is inserted per applied version and removed again on downgrade;
// MAX(version) is authoritative. The table itself does not enforce a
// single row — the runner is the only writer, and that invariant lives
// there, never in ad hoc SQL elsewhere.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger for the given database, creating the
// schema_version table when it does not exist yet.
func NewLedger(db *sql.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("migrate: database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("migrate: failed to create schema_version table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// CurrentVersion returns the highest version recorded. For a fresh database
// it returns (0, ErrUnversioned).
func (l *Ledger) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := l.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrate: failed to query schema version: %w", err)
	}

	if version == 0 {
		return 0, ErrUnversioned
	}

	return version, nil
}

// currentVersionOrZero treats ErrUnversioned as version 0.
func (l *Ledger) currentVersionOrZero(ctx context.Context) (int, error) {
	version, err := l.CurrentVersion(ctx)
	if errors.Is(err, ErrUnversioned) {
		return 0, nil
	}
	return version, err
}

// record inserts a version row. Called only inside a step transaction that
// is about to commit a successful upgrade.
func (l *Ledger) record(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("migrate: failed to record version %d: %w", version, err)
	}
	return nil
}

// remove deletes a version row. Called only inside a step transaction that
// is about to commit a successful downgrade.
func (l *Ledger) remove(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", version)
	if err != nil {
		return fmt.Errorf("migrate: failed to remove version %d: %w", version, err)
	}
	return nil
}
