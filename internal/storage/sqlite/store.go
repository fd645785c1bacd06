// Package sqlite implements the conversation store on SQLite using the
// CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/specterhq/convstore/internal/migrate"
	"github.com/specterhq/convstore/internal/storage"
)

// DB wraps a SQLite connection shared by the conversation and collection
// stores.
type DB struct {
	conn *sql.DB
	path string // filesystem path, "" for in-memory databases
}

// Open opens a SQLite database and configures it for single-writer use.
// It does not create or migrate the schema; call Migrate before handing
// the database to any other component.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent
	// load; WAL mode lets readers proceed without blocking the writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
		// Cascade deletes must fire the FTS sync triggers on messages;
		// SQLite counts those as recursive triggers.
		"PRAGMA recursive_triggers=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", p, err)
		}
	}

	return &DB{conn: conn, path: dbPathFromDSN(dsn)}, nil
}

// Migrate brings the database to the chain head. The migration lock file
// is placed next to the database file; in-memory databases skip the lock.
func (d *DB) Migrate(ctx context.Context) error {
	var opts []migrate.Option
	if d.path != "" {
		lockPath := filepath.Join(filepath.Dir(d.path), filepath.Base(d.path)+".migrate.lock")
		opts = append(opts, migrate.WithLockFile(lockPath))
	}

	runner, err := migrate.NewRunner(d.conn, migrate.Revisions(), opts...)
	if err != nil {
		return err
	}
	return runner.Up(ctx, 0)
}

// Conversations returns the conversation store backed by this database.
func (d *DB) Conversations() *ConversationStore {
	return &ConversationStore{db: d.conn}
}

// Collections returns the collection store backed by this database.
func (d *DB) Collections() *CollectionStore {
	return &CollectionStore{db: d.conn}
}

// SQL exposes the underlying connection for components that need direct
// access (migration runner, backup service).
func (d *DB) SQL() *sql.DB {
	return d.conn
}

// Path returns the database file path, or "" for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// Close flushes the WAL into the main database file and releases
// resources. The TRUNCATE checkpoint removes the -shm and -wal sidecars so
// another process can open the file without stale WAL state.
func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}

	if _, err := d.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return d.conn.Close()
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs
// ("file:/path/to/db.sqlite?mode=rwc"). Returns empty string for
// in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// wrapConstraint maps driver errors caused by check or foreign key
// constraint failures onto storage.ErrConstraint so callers can test for
// them without knowing driver error strings.
func wrapConstraint(err error, op string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "constraint") {
		return fmt.Errorf("%w: %s: %v", storage.ErrConstraint, op, err)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// nullableTime converts a time to sql.NullTime, treating the zero value as NULL.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableInt converts an int to sql.NullInt64, treating zero as NULL.
// Used for optional counters like token_count.
func nullableInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

// marshalJSON encodes a value for a JSON text column, returning NULL for
// nil maps and empty slices.
func marshalJSON(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalJSON decodes a JSON text column into dst when it is non-NULL.
func unmarshalJSON(src sql.NullString, dst interface{}) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
