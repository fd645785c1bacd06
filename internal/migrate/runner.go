package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const (
	directionUpgrade   = "upgrade"
	directionDowngrade = "downgrade"
)

// Runner applies migration steps in chain order. Each step runs inside its
// own transaction and the ledger is updated in that same transaction, so a
// crash mid-batch leaves the ledger at the last fully-applied step and the
// batch can be resumed. The runner is the only writer of the ledger.
//
// A batch holds an exclusive advisory lock (a lock file beside the
// database) so a second process cannot observe a half-migrated schema.
// Migration is expected to run once at startup, before anything else opens
// the database.
type Runner struct {
	db       *sql.DB
	chain    *Chain
	ledger   *Ledger
	lockPath string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLockFile sets the advisory lock file used for the duration of a
// migration batch. Without it no cross-process lock is taken, which is
// only appropriate for in-memory databases.
func WithLockFile(path string) Option {
	return func(r *Runner) {
		r.lockPath = path
	}
}

// NewRunner creates a migration runner for the given database and chain,
// ensuring the ledger table exists.
func NewRunner(db *sql.DB, chain *Chain, opts ...Option) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("migrate: database connection is required")
	}
	if chain == nil || chain.Len() == 0 {
		return nil, fmt.Errorf("migrate: migration chain is required")
	}

	ledger, err := NewLedger(db)
	if err != nil {
		return nil, err
	}

	r := &Runner{db: db, chain: chain, ledger: ledger}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Status describes where a database stands relative to the chain head.
type Status struct {
	Current         int    // applied version, 0 for a fresh database
	Head            int    // version of the chain head
	CurrentRevision string // revision ID at Current, "" when fresh
	HeadRevision    string // revision ID at Head
}

// Pending returns the number of steps between current and head.
func (s Status) Pending() int {
	return s.Head - s.Current
}

// Status resolves the chain and reads the ledger.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	order, err := r.chain.Resolve()
	if err != nil {
		return Status{}, err
	}

	current, err := r.ledger.currentVersionOrZero(ctx)
	if err != nil {
		return Status{}, err
	}
	if current > len(order) {
		return Status{}, fmt.Errorf("migrate: database version %d is ahead of chain head %d", current, len(order))
	}

	st := Status{
		Current:      current,
		Head:         len(order),
		HeadRevision: order[len(order)-1].Revision,
	}
	if current > 0 {
		st.CurrentRevision = order[current-1].Revision
	}
	return st, nil
}

// Up migrates the database forward to the target version. A target of 0
// means the chain head. It is a no-op when the database is already at the
// target, and an error when the database is past it.
func (r *Runner) Up(ctx context.Context, target int) error {
	order, err := r.chain.Resolve()
	if err != nil {
		return err
	}
	if target == 0 {
		target = len(order)
	}
	if target > len(order) {
		return fmt.Errorf("migrate: target version %d is beyond chain head %d", target, len(order))
	}

	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := r.ledger.currentVersionOrZero(ctx)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}
	if current > target {
		return fmt.Errorf("migrate: database is at version %d, past target %d (use Down)", current, target)
	}

	for v := current + 1; v <= target; v++ {
		step := order[v-1]
		if err := r.applyStep(ctx, step, v, directionUpgrade); err != nil {
			return err
		}
		log.Printf("migrate: applied %s (%s), now at version %d", step.Revision, step.Name, v)
	}

	return nil
}

// Down reverts the database to the target version, walking the chain head
// to root. A target of 0 reverts every step. It is a no-op when the
// database is already at or below the target.
func (r *Runner) Down(ctx context.Context, target int) error {
	order, err := r.chain.Resolve()
	if err != nil {
		return err
	}
	if target > len(order) {
		return fmt.Errorf("migrate: target version %d is beyond chain head %d", target, len(order))
	}

	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := r.ledger.currentVersionOrZero(ctx)
	if err != nil {
		return err
	}
	if current > len(order) {
		return fmt.Errorf("migrate: database version %d is ahead of chain head %d", current, len(order))
	}
	if current <= target {
		return nil
	}

	for v := current; v > target; v-- {
		step := order[v-1]
		if err := r.applyStep(ctx, step, v, directionDowngrade); err != nil {
			return err
		}
		log.Printf("migrate: reverted %s (%s), now at version %d", step.Revision, step.Name, v-1)
	}

	return nil
}

// Apply upgrades a single step identified by revision. Unlike Up, it does
// not skip: applying a revision the ledger already covers fails with
// *AlreadyAppliedError, and applying one further ahead than the next
// pending version fails outright.
func (r *Runner) Apply(ctx context.Context, revision string) error {
	order, version, err := r.findStep(revision)
	if err != nil {
		return err
	}

	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := r.ledger.currentVersionOrZero(ctx)
	if err != nil {
		return err
	}
	if current >= version {
		return &AlreadyAppliedError{Revision: revision, Version: version, Current: current}
	}
	if current != version-1 {
		return fmt.Errorf("migrate: cannot apply %s (version %d) out of order, database is at version %d",
			revision, version, current)
	}

	return r.applyStep(ctx, order[version-1], version, directionUpgrade)
}

// Revert downgrades a single step identified by revision. The revision
// must be the one the ledger currently stands at.
func (r *Runner) Revert(ctx context.Context, revision string) error {
	order, version, err := r.findStep(revision)
	if err != nil {
		return err
	}

	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := r.ledger.currentVersionOrZero(ctx)
	if err != nil {
		return err
	}
	if current != version {
		return fmt.Errorf("migrate: cannot revert %s (version %d), database is at version %d",
			revision, version, current)
	}

	return r.applyStep(ctx, order[version-1], version, directionDowngrade)
}

// findStep resolves the chain and locates a revision, returning the
// resolved order and the revision's 1-based version.
func (r *Runner) findStep(revision string) ([]Step, int, error) {
	order, err := r.chain.Resolve()
	if err != nil {
		return nil, 0, err
	}
	for i, s := range order {
		if s.Revision == revision {
			return order, i + 1, nil
		}
	}
	return nil, 0, fmt.Errorf("migrate: unknown revision %q", revision)
}

// applyStep runs one step inside its own transaction and updates the
// ledger in that transaction. Foreign key enforcement is disabled around
// the transaction so shadow-table rebuilds can drop and recreate parent
// tables; PRAGMA foreign_key_check before commit catches anything a step
// left dangling. Any failure rolls the whole step back.
func (r *Runner) applyStep(ctx context.Context, step Step, version int, direction string) error {
	if _, err := r.db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return &StepError{Revision: step.Revision, Version: version, Direction: direction, Err: err}
	}
	defer func() {
		if _, err := r.db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			log.Printf("migrate: failed to re-enable foreign keys: %v", err)
		}
	}()

	fail := func(err error) error {
		return &StepError{Revision: step.Revision, Version: version, Direction: direction, Err: err}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = tx.Rollback() }()

	switch direction {
	case directionUpgrade:
		err = step.Upgrade(tx)
	case directionDowngrade:
		err = step.Downgrade(tx)
	default:
		err = fmt.Errorf("unknown direction %q", direction)
	}
	if err != nil {
		return fail(err)
	}

	if err := checkForeignKeys(tx); err != nil {
		return fail(err)
	}

	if direction == directionUpgrade {
		err = r.ledger.record(ctx, tx, version)
	} else {
		err = r.ledger.remove(ctx, tx, version)
	}
	if err != nil {
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}

// checkForeignKeys fails when PRAGMA foreign_key_check reports violations,
// naming the offending tables.
func checkForeignKeys(tx *sql.Tx) error {
	rows, err := tx.Query("PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var table, parent string
		var rowid, fkid interface{}
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("foreign_key_check scan: %w", err)
		}
		tables[table] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("foreign_key_check rows: %w", err)
	}

	if len(tables) > 0 {
		names := make([]string, 0, len(tables))
		for t := range tables {
			names = append(names, t)
		}
		return fmt.Errorf("foreign key violations in: %s", strings.Join(names, ", "))
	}
	return nil
}

// acquireLock takes the advisory migration lock. A lock file left behind
// by a dead process is removed and retried once, mirroring how the store
// recovers stale WAL sidecars.
func (r *Runner) acquireLock() (func(), error) {
	if r.lockPath == "" {
		return func() {}, nil
	}

	release, err := createLockFile(r.lockPath)
	if err == nil {
		return release, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("migrate: failed to create lock file %s: %w", r.lockPath, err)
	}

	if holderAlive(r.lockPath) {
		return nil, fmt.Errorf("migrate: another migration is in progress (lock file %s)", r.lockPath)
	}

	log.Printf("migrate: removing stale lock file %s", r.lockPath)
	if err := os.Remove(r.lockPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("migrate: failed to remove stale lock file: %w", err)
	}

	release, err = createLockFile(r.lockPath)
	if err != nil {
		return nil, fmt.Errorf("migrate: failed to create lock file %s: %w", r.lockPath, err)
	}
	return release, nil
}

func createLockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Close()

	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("migrate: failed to remove lock file %s: %v", path, err)
		}
	}, nil
}

// holderAlive reports whether the process recorded in the lock file still
// exists. Unreadable or malformed lock files are treated as live so we
// never delete a lock we don't understand.
func holderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
