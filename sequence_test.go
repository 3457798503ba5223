package projection

import "testing"

func TestSequenceGuardUnarmedDiscardsEverything(t *testing.T) {
	var g sequenceGuard
	if g.check(0) {
		t.Errorf("expected an unarmed guard to discard every message")
	}
}

func TestSequenceGuardArmedAcceptsInOrder(t *testing.T) {
	var g sequenceGuard
	g.arm()

	if !g.check(0) {
		t.Fatalf("expected seq 0 to be accepted once armed")
	}
	if !g.check(1) {
		t.Fatalf("expected seq 1 to be accepted next")
	}
	if g.check(1) {
		t.Errorf("expected a repeated seq 1 to be discarded")
	}
	if g.check(5) {
		t.Errorf("expected a skipped-ahead seq to be discarded")
	}
}

func TestSequenceGuardResetUnarms(t *testing.T) {
	var g sequenceGuard
	g.arm()
	g.check(0)
	g.reset()

	if g.check(1) {
		t.Errorf("expected a reset guard to discard messages until re-armed")
	}
}
