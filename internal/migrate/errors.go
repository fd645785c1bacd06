package migrate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnversioned indicates a database with no migration recorded yet.
var ErrUnversioned = errors.New("schema not versioned")

// ChainError reports a structurally invalid migration chain: duplicate
// revisions, more than one root, a fork (two steps claiming the same
// predecessor), a gap (missing predecessor), or a cycle. Resolution runs
// before any DDL, so a ChainError always means nothing was executed.
type ChainError struct {
	Reason    string
	Revisions []string
}

func (e *ChainError) Error() string {
	if len(e.Revisions) == 0 {
		return fmt.Sprintf("migrate: invalid chain: %s", e.Reason)
	}
	return fmt.Sprintf("migrate: invalid chain: %s (%s)", e.Reason, strings.Join(e.Revisions, ", "))
}

// StepError reports the failure of a single migration step. The step's
// transaction has been rolled back, the ledger is unchanged for this step,
// and the batch it belonged to has been aborted. Steps committed earlier in
// the batch remain committed.
type StepError struct {
	Revision  string
	Version   int
	Direction string // "upgrade" or "downgrade"
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migrate: %s of %s (version %d) failed: %v", e.Direction, e.Revision, e.Version, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// AlreadyAppliedError reports an upgrade invoked on a step whose version is
// not ahead of the ledger. This is a logic error in the caller and is never
// silently ignored.
type AlreadyAppliedError struct {
	Revision string
	Version  int
	Current  int
}

func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("migrate: revision %s (version %d) already applied, database is at version %d",
		e.Revision, e.Version, e.Current)
}
