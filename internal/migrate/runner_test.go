package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// newTestDB opens an in-memory database with the same connection
// discipline the store uses: a single connection, so every statement in a
// test sees the same database.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func userTables(t *testing.T, db *sql.DB) map[string]bool {
	t.Helper()
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_version'`)
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan table name: %v", err)
		}
		tables[name] = true
	}
	return tables
}

func hasColumn(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			t.Fatalf("table_info scan failed: %v", err)
		}
		if name == column {
			return true
		}
	}
	return false
}

func TestUpToHeadCreatesFullSchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Current != 5 || status.Head != 5 {
		t.Errorf("expected version 5/5, got %d/%d", status.Current, status.Head)
	}
	if status.CurrentRevision != "79afc519981f" {
		t.Errorf("current revision: got %q, want %q", status.CurrentRevision, "79afc519981f")
	}
	if status.Pending() != 0 {
		t.Errorf("expected no pending steps, got %d", status.Pending())
	}

	tables := userTables(t, db)
	for _, want := range []string{
		"conversations", "messages", "tags", "conversation_tags",
		"conversation_summaries", "conversation_files", "messages_fts",
		"collections", "collection_files", "collection_tags",
		"conversation_collections",
	} {
		if !tables[want] {
			t.Errorf("table %s missing after upgrade to head", want)
		}
	}

	// Columns added by later revisions on earlier tables.
	if !hasColumn(t, db, "conversations", "priority") {
		t.Error("conversations.priority missing")
	}
	if !hasColumn(t, db, "conversation_files", "collection_tag") {
		t.Error("conversation_files.collection_tag missing")
	}
}

func TestUpIsIdempotentAtHead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("second Up must be a no-op, got: %v", err)
	}
}

func TestDownToZeroRemovesUserTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if err := runner.Down(ctx, 0); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	if tables := userTables(t, db); len(tables) != 0 {
		t.Errorf("expected no user tables after full downgrade, got %v", tables)
	}

	ledger, err := NewLedger(db)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	if _, err := ledger.CurrentVersion(ctx); !errors.Is(err, ErrUnversioned) {
		t.Errorf("expected ErrUnversioned after full downgrade, got %v", err)
	}
}

func TestUpDownRoundTripToIntermediateVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 3); err != nil {
		t.Fatalf("Up to 3 failed: %v", err)
	}

	tables := userTables(t, db)
	if !tables["conversation_files"] {
		t.Error("conversation_files should exist at version 3")
	}
	if tables["collections"] {
		t.Error("collections must not exist before version 4")
	}

	if err := runner.Down(ctx, 1); err != nil {
		t.Fatalf("Down to 1 failed: %v", err)
	}

	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Current != 1 {
		t.Errorf("expected version 1, got %d", status.Current)
	}
	if hasColumn(t, db, "conversations", "priority") {
		t.Error("conversations.priority must be gone at version 1")
	}
}

func TestStatusOnFreshDatabase(t *testing.T) {
	db := newTestDB(t)

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	status, err := runner.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Current != 0 {
		t.Errorf("fresh database: expected version 0, got %d", status.Current)
	}
	if status.CurrentRevision != "" {
		t.Errorf("fresh database: expected empty revision, got %q", status.CurrentRevision)
	}
	if status.Pending() != 5 {
		t.Errorf("expected 5 pending steps, got %d", status.Pending())
	}
}

func TestApplySingleStepInOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	// Skipping ahead is rejected before any DDL runs.
	if err := runner.Apply(ctx, "002"); err == nil {
		t.Fatal("expected out-of-order Apply to fail")
	}
	if tables := userTables(t, db); len(tables) != 0 {
		t.Errorf("failed Apply must not leave tables behind, got %v", tables)
	}

	if err := runner.Apply(ctx, "001"); err != nil {
		t.Fatalf("Apply 001 failed: %v", err)
	}

	var alreadyApplied *AlreadyAppliedError
	err = runner.Apply(ctx, "001")
	if !errors.As(err, &alreadyApplied) {
		t.Fatalf("expected *AlreadyAppliedError, got %v", err)
	}
	if alreadyApplied.Current != 1 || alreadyApplied.Version != 1 {
		t.Errorf("unexpected error detail: %+v", alreadyApplied)
	}
}

func TestRevertRequiresCurrentRevision(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	if err := runner.Revert(ctx, "003"); err == nil {
		t.Fatal("expected Revert of a non-current revision to fail")
	}

	if err := runner.Revert(ctx, "79afc519981f"); err != nil {
		t.Fatalf("Revert of head failed: %v", err)
	}
	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Current != 4 {
		t.Errorf("expected version 4 after revert, got %d", status.Current)
	}
}

func TestFailingStepRollsBackAndBatchResumes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	fail := true
	chain := NewChain(
		Step{
			Revision: "a", Name: "first",
			Upgrade: func(tx *sql.Tx) error {
				return execAll(tx, "CREATE TABLE t1 (id INTEGER PRIMARY KEY)")
			},
			Downgrade: func(tx *sql.Tx) error {
				return execAll(tx, "DROP TABLE t1")
			},
		},
		Step{
			Revision: "b", DownRevision: "a", Name: "second",
			Upgrade: func(tx *sql.Tx) error {
				if err := execAll(tx, "CREATE TABLE t2 (id INTEGER PRIMARY KEY)"); err != nil {
					return err
				}
				if fail {
					return fmt.Errorf("injected failure")
				}
				return nil
			},
			Downgrade: func(tx *sql.Tx) error {
				return execAll(tx, "DROP TABLE t2")
			},
		},
		Step{
			Revision: "c", DownRevision: "b", Name: "third",
			Upgrade: func(tx *sql.Tx) error {
				return execAll(tx, "CREATE TABLE t3 (id INTEGER PRIMARY KEY)")
			},
			Downgrade: func(tx *sql.Tx) error {
				return execAll(tx, "DROP TABLE t3")
			},
		},
	)

	runner, err := NewRunner(db, chain)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	var stepErr *StepError
	err = runner.Up(ctx, 0)
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if stepErr.Revision != "b" || stepErr.Direction != "upgrade" {
		t.Errorf("unexpected step error detail: %+v", stepErr)
	}

	// The first step stays committed, the failing step left nothing.
	tables := userTables(t, db)
	if !tables["t1"] {
		t.Error("t1 from the committed step must survive the aborted batch")
	}
	if tables["t2"] {
		t.Error("t2 from the rolled-back step must not exist")
	}

	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Current != 1 {
		t.Fatalf("expected ledger at version 1 after aborted batch, got %d", status.Current)
	}

	// Resuming the batch picks up at the failed step, not from scratch.
	fail = false
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("resumed Up failed: %v", err)
	}
	tables = userTables(t, db)
	if !tables["t1"] || !tables["t2"] || !tables["t3"] {
		t.Errorf("expected all tables after resume, got %v", tables)
	}
}

func TestForeignKeyCheckBlocksDanglingReferences(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chain := NewChain(
		Step{
			Revision: "a", Name: "parent_child",
			Upgrade: func(tx *sql.Tx) error {
				return execAll(tx,
					"CREATE TABLE parents (id TEXT PRIMARY KEY)",
					"CREATE TABLE children (id TEXT PRIMARY KEY, parent_id TEXT NOT NULL REFERENCES parents(id))",
				)
			},
			Downgrade: func(tx *sql.Tx) error {
				return execAll(tx, "DROP TABLE children", "DROP TABLE parents")
			},
		},
		Step{
			// Enforcement is off while steps run, so this insert succeeds;
			// the pre-commit foreign_key_check must reject the step.
			Revision: "b", DownRevision: "a", Name: "dangling",
			Upgrade: func(tx *sql.Tx) error {
				return execAll(tx, "INSERT INTO children (id, parent_id) VALUES ('c1', 'missing')")
			},
			Downgrade: func(tx *sql.Tx) error {
				return execAll(tx, "DELETE FROM children WHERE id = 'c1'")
			},
		},
	)

	runner, err := NewRunner(db, chain)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	var stepErr *StepError
	err = runner.Up(ctx, 0)
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if stepErr.Revision != "b" {
		t.Errorf("expected failure at revision b, got %s", stepErr.Revision)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM children").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("dangling row must have been rolled back, found %d rows", n)
	}
}

func TestOrganizationDowngradeDropsPinnedConversations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 2); err != nil {
		t.Fatalf("Up to 2 failed: %v", err)
	}

	mustExec(t, db, `INSERT INTO conversations (id, title, status) VALUES ('keep', 'kept', 'active')`)
	mustExec(t, db, `INSERT INTO conversations (id, title, status) VALUES ('pin', 'pinned one', 'pinned')`)
	mustExec(t, db, `INSERT INTO messages (id, conversation_id, role, content) VALUES ('m1', 'pin', 'user', 'hello')`)
	mustExec(t, db, `INSERT INTO conversation_summaries (id, conversation_id, summary) VALUES ('s1', 'pin', 'digest')`)

	// 'pinned' does not exist in the narrower status enum; those rows and
	// everything they own are dropped on the way down.
	if err := runner.Down(ctx, 1); err != nil {
		t.Fatalf("Down to 1 failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the active conversation to survive, got %d rows", n)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("messages of the dropped conversation must be gone, got %d rows", n)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM conversation_summaries").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("summary of the dropped conversation must be gone, got %d rows", n)
	}
}

func TestOrganizationRebuildReissuesIndexes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runner, err := NewRunner(db, Revisions())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 2); err != nil {
		t.Fatalf("Up to 2 failed: %v", err)
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'conversations'`)
	if err != nil {
		t.Fatalf("index query failed: %v", err)
	}
	defer rows.Close()

	indexes := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		indexes[name] = true
	}
	if !indexes["idx_conversations_status_updated"] {
		t.Error("idx_conversations_status_updated must survive the shadow rebuild")
	}
	if !indexes["idx_conversations_category_status"] {
		t.Error("idx_conversations_category_status must be created by the rebuild")
	}
}

func TestLockFileBlocksConcurrentBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	lockPath := filepath.Join(t.TempDir(), "migrate.lock")

	// A lock naming a live process blocks the batch.
	if err := os.WriteFile(lockPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600); err != nil {
		t.Fatalf("failed to write lock file: %v", err)
	}

	runner, err := NewRunner(db, Revisions(), WithLockFile(lockPath))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Up(ctx, 0); err == nil {
		t.Fatal("expected Up to fail while the lock is held by a live process")
	}

	// A lock left by a dead process is removed and the batch proceeds.
	if err := os.WriteFile(lockPath, []byte("99999999\n"), 0o600); err != nil {
		t.Fatalf("failed to write stale lock file: %v", err)
	}
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("Up must recover from a stale lock, got: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file must be removed after the batch")
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec failed: %v\n%s", err, query)
	}
}
