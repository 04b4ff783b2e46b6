package model

import "testing"

func TestSubgoalCanonicalEqual(t *testing.T) {
	a := Subgoal{Name: SubgoalCollect, Params: Params{"block": "stone", "count": 10}}
	b := Subgoal{Name: SubgoalCollect, Params: Params{"count": 10, "block": "stone"}}
	c := Subgoal{Name: SubgoalCollect, Params: Params{"block": "stone", "count": 11}}

	if !a.CanonicalEqual(b) {
		t.Fatalf("expected a == b regardless of map iteration order")
	}
	if a.CanonicalEqual(c) {
		t.Fatalf("expected a != c (different count)")
	}
}

func TestPlanCanonicalEqual(t *testing.T) {
	p1 := Plan{Subgoals: []Subgoal{
		{Name: SubgoalGotoNearest, Params: Params{"block": "oak_log"}},
		{Name: SubgoalCollect, Params: Params{"block": "oak_log", "count": 3}},
	}}
	p2 := p1.Clone()
	if !p1.CanonicalEqual(p2) {
		t.Fatalf("clone should compare canonically equal to original")
	}

	p3 := p1.Clone()
	p3.Subgoals = p3.Subgoals[:1]
	if p1.CanonicalEqual(p3) {
		t.Fatalf("plans of different length must not compare equal")
	}
}

func TestTaskStateInvariants(t *testing.T) {
	ts := NewTaskState()
	if err := ts.CheckInvariants(); err != nil {
		t.Fatalf("fresh task state should satisfy invariants: %v", err)
	}

	ts.Busy = true
	if err := ts.CheckInvariants(); err == nil {
		t.Fatalf("busy without current subgoal should violate invariants")
	}

	ts.CurrentSubgoal = &RuntimeSubgoal{ID: "r1", Subgoal: Subgoal{Name: SubgoalExplore}}
	if err := ts.CheckInvariants(); err != nil {
		t.Fatalf("busy with current subgoal should satisfy invariants: %v", err)
	}
}

func TestTriggerSetSemantics(t *testing.T) {
	s := NewTriggerSet()
	s.Add(TriggerStuck)
	s.Add(TriggerStuck)
	if s.Len() != 1 {
		t.Fatalf("duplicate adds should collapse, got len=%d", s.Len())
	}
	if !s.Has(TriggerStuck) {
		t.Fatalf("expected TriggerStuck present")
	}
	s.Remove(TriggerStuck)
	if s.Has(TriggerStuck) {
		t.Fatalf("expected TriggerStuck removed")
	}
}
