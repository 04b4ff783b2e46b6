package admission

import "testing"

func TestSkillLimiterFIFOFairness(t *testing.T) {
	l := NewSkillLimiter(1)

	if !l.TryEnter("A") {
		t.Fatalf("A should enter an empty limiter immediately")
	}
	if l.TryEnter("B") {
		t.Fatalf("B must be refused while A holds the only slot")
	}
	if l.TryEnter("C") {
		t.Fatalf("C must be refused too, and queued behind B")
	}

	l.Leave("A")

	if !l.TryEnter("B") {
		t.Fatalf("B is at the head of the FIFO and capacity is now free; must be admitted")
	}
	if l.TryEnter("C") {
		t.Fatalf("C must not be admitted before B even though capacity briefly freed")
	}

	l.Leave("B")
	if !l.TryEnter("C") {
		t.Fatalf("C should finally be admitted")
	}
}

func TestSkillLimiterIdempotentForActiveAgent(t *testing.T) {
	l := NewSkillLimiter(2)
	l.TryEnter("A")
	if !l.TryEnter("A") {
		t.Fatalf("re-entering while already active should succeed")
	}
	if l.ActiveCount() != 1 {
		t.Fatalf("expected exactly one active slot consumed by A, got %d", l.ActiveCount())
	}
}

func TestExplorerLimiterBoundedAndIdempotent(t *testing.T) {
	l := NewExplorerLimiter(1)
	if !l.TryEnter("A") {
		t.Fatalf("A should enter the empty limiter")
	}
	if !l.TryEnter("A") {
		t.Fatalf("re-entering A should be idempotent, not a second slot")
	}
	if l.TryEnter("B") {
		t.Fatalf("B should be refused while capacity is exhausted by A")
	}
	l.Leave("A")
	if !l.TryEnter("B") {
		t.Fatalf("B should be admitted once A leaves")
	}
}
