package migrate

// Chain is the set of migration steps for one database, linked by
// predecessor references. The linked structure, not declaration order, is
// authoritative: Resolve reconstructs the total order and validates it
// before any step is allowed to run.
type Chain struct {
	steps []Step
}

// NewChain creates a chain from the given steps. No validation happens
// here; call Resolve before applying anything.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Len returns the number of steps in the chain.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Resolve orders the steps root→head. It fails with a *ChainError when the
// chain has duplicate revision IDs, no root or more than one root, a fork
// (two steps claiming the same predecessor), a gap (a predecessor revision
// that does not exist), or a cycle.
func (c *Chain) Resolve() ([]Step, error) {
	if len(c.steps) == 0 {
		return nil, &ChainError{Reason: "chain is empty"}
	}

	byRevision := make(map[string]Step, len(c.steps))
	for _, s := range c.steps {
		if s.Revision == "" {
			return nil, &ChainError{Reason: "step with empty revision id"}
		}
		if _, dup := byRevision[s.Revision]; dup {
			return nil, &ChainError{Reason: "duplicate revision", Revisions: []string{s.Revision}}
		}
		byRevision[s.Revision] = s
	}

	// successor maps a predecessor revision to the single step built on it.
	successor := make(map[string]string, len(c.steps))
	var roots []string

	for _, s := range c.steps {
		if s.DownRevision == "" {
			roots = append(roots, s.Revision)
			continue
		}
		if _, ok := byRevision[s.DownRevision]; !ok {
			return nil, &ChainError{
				Reason:    "gap: predecessor revision does not exist",
				Revisions: []string{s.Revision, s.DownRevision},
			}
		}
		if other, taken := successor[s.DownRevision]; taken {
			return nil, &ChainError{
				Reason:    "fork: two steps claim the same predecessor",
				Revisions: []string{other, s.Revision},
			}
		}
		successor[s.DownRevision] = s.Revision
	}

	if len(roots) == 0 {
		return nil, &ChainError{Reason: "cycle: no step without a predecessor"}
	}
	if len(roots) > 1 {
		return nil, &ChainError{Reason: "multiple roots", Revisions: roots}
	}

	order := make([]Step, 0, len(c.steps))
	for rev := roots[0]; ; {
		order = append(order, byRevision[rev])
		next, ok := successor[rev]
		if !ok {
			break
		}
		rev = next
	}

	if len(order) != len(c.steps) {
		// Steps exist that the walk from the root never reached; they can
		// only form a detached cycle.
		var unreachable []string
		reached := make(map[string]bool, len(order))
		for _, s := range order {
			reached[s.Revision] = true
		}
		for _, s := range c.steps {
			if !reached[s.Revision] {
				unreachable = append(unreachable, s.Revision)
			}
		}
		return nil, &ChainError{Reason: "cycle: steps unreachable from root", Revisions: unreachable}
	}

	return order, nil
}

// Head returns the last step of the resolved chain.
func (c *Chain) Head() (Step, error) {
	order, err := c.Resolve()
	if err != nil {
		return Step{}, err
	}
	return order[len(order)-1], nil
}
