package migrate

import (
	"database/sql"
	"errors"
	"testing"
)

func noop(tx *sql.Tx) error { return nil }

func step(revision, downRevision string) Step {
	return Step{
		Revision:     revision,
		DownRevision: downRevision,
		Name:         "step_" + revision,
		Upgrade:      noop,
		Downgrade:    noop,
	}
}

func TestResolveOrdersByLinkage(t *testing.T) {
	// Declaration order is scrambled on purpose; linkage is authoritative.
	chain := NewChain(step("c", "b"), step("a", ""), step("b", "a"))

	order, err := chain.Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(order))
	}
	for i, rev := range want {
		if order[i].Revision != rev {
			t.Errorf("position %d: got %q, want %q", i, order[i].Revision, rev)
		}
	}
}

func TestResolveEmptyChain(t *testing.T) {
	_, err := NewChain().Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
}

func TestResolveDuplicateRevision(t *testing.T) {
	_, err := NewChain(step("a", ""), step("a", "")).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
}

func TestResolveGap(t *testing.T) {
	// "c" names a predecessor that is not in the chain.
	_, err := NewChain(step("a", ""), step("c", "b")).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
}

func TestResolveFork(t *testing.T) {
	// Two steps both claim "a" as their predecessor.
	_, err := NewChain(step("a", ""), step("b", "a"), step("c", "a")).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if len(chainErr.Revisions) != 2 {
		t.Errorf("expected both fork revisions reported, got %v", chainErr.Revisions)
	}
}

func TestResolveMultipleRoots(t *testing.T) {
	_, err := NewChain(step("a", ""), step("b", "")).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
}

func TestResolveCycle(t *testing.T) {
	// a -> b -> a has no root at all.
	_, err := NewChain(step("a", "b"), step("b", "a")).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
}

func TestResolveDetachedCycle(t *testing.T) {
	// Valid root chain plus a two-step cycle the root walk never reaches.
	_, err := NewChain(
		step("a", ""),
		step("b", "a"),
		step("x", "y"),
		step("y", "x"),
	).Resolve()
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if len(chainErr.Revisions) != 2 {
		t.Errorf("expected the unreachable revisions reported, got %v", chainErr.Revisions)
	}
}

func TestHead(t *testing.T) {
	chain := NewChain(step("a", ""), step("b", "a"))
	head, err := chain.Head()
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}
	if head.Revision != "b" {
		t.Errorf("head: got %q, want %q", head.Revision, "b")
	}
}

func TestPublishedChainResolves(t *testing.T) {
	order, err := Revisions().Resolve()
	if err != nil {
		t.Fatalf("published chain must resolve: %v", err)
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 published revisions, got %d", len(order))
	}
	if order[0].Revision != "001" {
		t.Errorf("root: got %q, want %q", order[0].Revision, "001")
	}
	if order[len(order)-1].Revision != "79afc519981f" {
		t.Errorf("head: got %q, want %q", order[len(order)-1].Revision, "79afc519981f")
	}
}
