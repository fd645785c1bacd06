package migrate

import (
	"database/sql"
	"fmt"
	"strings"
)

// Rebuild describes a shadow-table rebuild: the technique for schema
// changes SQLite cannot express as an in-place ALTER, such as changing a
// CHECK constraint. The new-shape table is created under a shadow name,
// qualifying rows are copied into it, the old table is dropped, the shadow
// is renamed into place, and every index on the table is reissued — a
// drop+rename sequence does not carry indexes over.
//
// When Where is set, rows not matching it are excluded from the copy.
// Steps use this to implement their documented data-loss-on-downgrade
// policy: rows that only satisfy a constraint the downgrade removes are
// dropped, not reinterpreted.
type Rebuild struct {
	Table     string
	CreateSQL string   // CREATE TABLE statement for ShadowName(Table)
	Columns   []string // columns copied between the old and new shape
	Where     string   // row filter for the copy; empty copies everything
	Indexes   []string // CREATE INDEX statements reissued after the rename
}

// ShadowName returns the temporary name a rebuild creates its new-shape
// table under.
func ShadowName(table string) string {
	return table + "_shadow"
}

// Run executes the rebuild inside the step transaction. The runner disables
// foreign key enforcement around the enclosing transaction and verifies
// PRAGMA foreign_key_check before commit, per SQLite's documented ALTER
// procedure.
func (r Rebuild) Run(tx *sql.Tx) error {
	shadow := ShadowName(r.Table)
	cols := strings.Join(r.Columns, ", ")

	if _, err := tx.Exec(r.CreateSQL); err != nil {
		return fmt.Errorf("rebuild %s: create shadow: %w", r.Table, err)
	}

	copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", shadow, cols, cols, r.Table)
	if r.Where != "" {
		copySQL += " WHERE " + r.Where
	}
	if _, err := tx.Exec(copySQL); err != nil {
		return fmt.Errorf("rebuild %s: copy rows: %w", r.Table, err)
	}

	if _, err := tx.Exec(fmt.Sprintf("DROP TABLE %s", r.Table)); err != nil {
		return fmt.Errorf("rebuild %s: drop old table: %w", r.Table, err)
	}

	if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", shadow, r.Table)); err != nil {
		return fmt.Errorf("rebuild %s: rename shadow: %w", r.Table, err)
	}

	for _, idx := range r.Indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("rebuild %s: reissue index: %w", r.Table, err)
		}
	}

	return nil
}
