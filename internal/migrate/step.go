// Package migrate manages the conversation store's schema through an
// ordered chain of reversible migration steps, tracked in a schema_version
// ledger and applied by a transactional runner.
package migrate

import (
	"database/sql"
	"fmt"
	"strings"
)

// Step is a reversible unit of schema change. Revision IDs are opaque
// strings, unique within a chain; the published chain mixes short numeric
// IDs ("001") and hash-like IDs ("79afc519981f"), both valid. DownRevision
// names the predecessor revision and is empty only for the chain root.
//
// Upgrade and Downgrade run inside a single transaction owned by the
// runner. A published step's DDL is immutable: schema changes happen by
// appending new steps, never by editing an old one, or re-running the
// chain from an empty database stops reproducing history.
type Step struct {
	Revision     string
	DownRevision string
	Name         string

	Upgrade   func(tx *sql.Tx) error
	Downgrade func(tx *sql.Tx) error
}

// execAll runs DDL statements in order inside the step transaction,
// stopping at the first failure.
func execAll(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// firstLine trims a SQL statement down to something readable in an error.
func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if idx := strings.IndexByte(stmt, '\n'); idx >= 0 {
		return strings.TrimSpace(stmt[:idx]) + " ..."
	}
	return stmt
}
