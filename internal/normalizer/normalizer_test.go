package normalizer

import (
	"testing"

	"fleetcore.ai/internal/model"
)

func TestCollectAliasesCanonicalize(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalCollect, Params: model.Params{"type": "stone", "amount": 10}},
	}
	out, notes := Normalize(in)

	if len(out) != 1 {
		t.Fatalf("expected 1 subgoal, got %d", len(out))
	}
	block, ok := out[0].Params.String("block")
	if !ok || block != "stone" {
		t.Fatalf("expected block=stone, got %v (ok=%v)", block, ok)
	}
	count, ok := out[0].Params.Int("count")
	if !ok || count != 10 {
		t.Fatalf("expected count=10, got %v (ok=%v)", count, ok)
	}
	if _, stale := out[0].Params["type"]; stale {
		t.Fatalf("expected alias key 'type' to be stripped")
	}
	if _, stale := out[0].Params["amount"]; stale {
		t.Fatalf("expected alias key 'amount' to be stripped")
	}

	if len(notes) != 1 || notes[0] != "normalized_subgoal_0_collect" {
		t.Fatalf("expected a single normalized_subgoal_0_collect note, got %v", notes)
	}
}

func TestGotoNearestDefaultsMaxDistance(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalGotoNearest, Params: model.Params{"resource_type": "OAK_LOG"}},
	}
	out, _ := Normalize(in)

	if len(out) != 1 {
		t.Fatalf("expected 1 subgoal, got %d", len(out))
	}
	maxDist, ok := out[0].Params.Int("max_distance")
	if !ok || maxDist != 48 {
		t.Fatalf("expected default max_distance=48, got %v (ok=%v)", maxDist, ok)
	}
}

func TestGotoAcceptsNestedLocation(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalGoto, Params: model.Params{
			"location": map[string]any{"x": 10.6, "y": 64.0, "z": -3.2},
		}},
	}
	out, notes := Normalize(in)

	if len(out) != 1 {
		t.Fatalf("expected 1 subgoal, got %d", len(out))
	}
	x, _ := out[0].Params.Int("x")
	y, _ := out[0].Params.Int("y")
	z, _ := out[0].Params.Int("z")
	if x != 11 || y != 64 || z != -3 {
		t.Fatalf("expected rounded x,y,z = 11,64,-3, got %d,%d,%d", x, y, z)
	}
	rng, ok := out[0].Params.Int("range")
	if !ok || rng != 2 {
		t.Fatalf("expected default range=2, got %v (ok=%v)", rng, ok)
	}
	if len(notes) == 0 {
		t.Fatalf("expected a note describing the location rewrite")
	}
}

func TestGotoPreservesExplicitRange(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalGoto, Params: model.Params{"x": 1, "y": 2, "z": 3, "range": 5}},
	}
	out, _ := Normalize(in)
	rng, _ := out[0].Params.Int("range")
	if rng != 5 {
		t.Fatalf("expected explicit range=5 preserved, got %d", rng)
	}
}

func TestMissingMandatoryFieldDropsSubgoal(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalCraft, Params: model.Params{"count": 1}},
	}
	out, notes := Normalize(in)
	if len(out) != 0 {
		t.Fatalf("expected craft without item to be dropped, got %v", out)
	}
	if len(notes) != 1 {
		t.Fatalf("expected a single drop note, got %v", notes)
	}
}

func TestInvalidCountDropsSubgoal(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalCollect, Params: model.Params{"block": "stone", "count": 0}},
	}
	out, _ := Normalize(in)
	if len(out) != 0 {
		t.Fatalf("expected count<1 to drop the subgoal, got %v", out)
	}
}

func TestUnrecognizedSubgoalPassesThrough(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalCombatGuard, Params: model.Params{"radius": 5}},
	}
	out, notes := Normalize(in)
	if len(out) != 1 || !out[0].CanonicalEqual(in[0]) {
		t.Fatalf("expected combat_guard to pass through unchanged, got %v", out)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no notes for a pass-through subgoal, got %v", notes)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := []model.Subgoal{
		{Name: model.SubgoalCollect, Params: model.Params{"type": "stone", "amount": 10}},
		{Name: model.SubgoalGoto, Params: model.Params{"location": map[string]any{"x": 1.0, "y": 2.0, "z": 3.0}}},
	}
	once, _ := Normalize(in)
	twice, _ := Normalize(once)

	if len(once) != len(twice) {
		t.Fatalf("expected stable subgoal count across repeated normalization")
	}
	for i := range once {
		if !once[i].CanonicalEqual(twice[i]) {
			t.Fatalf("normalize should be idempotent: %+v != %+v", once[i], twice[i])
		}
	}
}
