// Package model holds the data types shared across the control core: the
// canonical subgoal shapes, runtime queue entries, skill outcomes, and the
// per-agent task state. Nothing in this package talks to the network, the
// LLM, or the game adapter — it is pure data plus the small amount of logic
// (equality, cloning) that every consumer needs identically.
package model

import "fmt"

// SubgoalName is one of the closed set of subgoal kinds the planner and
// guard may emit.
type SubgoalName string

const (
	SubgoalExplore       SubgoalName = "explore"
	SubgoalGoto          SubgoalName = "goto"
	SubgoalGotoNearest   SubgoalName = "goto_nearest"
	SubgoalCollect       SubgoalName = "collect"
	SubgoalCraft         SubgoalName = "craft"
	SubgoalSmelt         SubgoalName = "smelt"
	SubgoalDeposit       SubgoalName = "deposit"
	SubgoalWithdraw      SubgoalName = "withdraw"
	SubgoalBuildBlueprint SubgoalName = "build_blueprint"
	SubgoalCombatEngage  SubgoalName = "combat_engage"
	SubgoalCombatGuard   SubgoalName = "combat_guard"
)

// KnownSubgoalNames is the closed SUBGOAL_NAMES set.
var KnownSubgoalNames = map[SubgoalName]struct{}{
	SubgoalExplore:        {},
	SubgoalGoto:           {},
	SubgoalGotoNearest:    {},
	SubgoalCollect:        {},
	SubgoalCraft:          {},
	SubgoalSmelt:          {},
	SubgoalDeposit:        {},
	SubgoalWithdraw:       {},
	SubgoalBuildBlueprint: {},
	SubgoalCombatEngage:   {},
	SubgoalCombatGuard:    {},
}

func IsKnownSubgoalName(name SubgoalName) bool {
	_, ok := KnownSubgoalNames[name]
	return ok
}

// Params is a loosely-typed parameter bag. The normalizer and guard read and
// write canonical keys out of it; anything else passes through untouched.
type Params map[string]any

func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Subgoal is the canonical planner output: a name drawn from the closed set
// plus its parameters and success/risk metadata.
type Subgoal struct {
	Name             SubgoalName    `json:"name"`
	Params           Params         `json:"params"`
	SuccessCriteria  Params         `json:"success_criteria,omitempty"`
	RiskFlags        []string       `json:"risk_flags,omitempty"`
	Constraints      Params         `json:"constraints,omitempty"`
}

func (s Subgoal) Clone() Subgoal {
	return Subgoal{
		Name:            s.Name,
		Params:          s.Params.Clone(),
		SuccessCriteria: s.SuccessCriteria.Clone(),
		RiskFlags:       append([]string(nil), s.RiskFlags...),
		Constraints:     s.Constraints.Clone(),
	}
}

// CanonicalEqual compares two subgoals the way the guard's dedup rule and
// the idempotence property in the testable-properties section require:
// same name, same params, same success criteria. Risk flags/constraints are
// metadata and are not part of the comparison.
func (s Subgoal) CanonicalEqual(o Subgoal) bool {
	if s.Name != o.Name {
		return false
	}
	return paramsEqual(s.Params, o.Params) && paramsEqual(s.SuccessCriteria, o.SuccessCriteria)
}

func paramsEqual(a, b Params) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if fmt.Sprint(v) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

// RuntimeSubgoal is a Subgoal enqueued for execution, per spec §3: it adds
// an id unique per enqueue (a retry produces a new id), the time it was
// queued, a retry counter, and an earliest-eligible timestamp.
type RuntimeSubgoal struct {
	Subgoal
	ID          string `json:"id"`
	AssignedAt  int64  `json:"assigned_at"`
	RetryCount  int    `json:"retry_count"`
	NotBeforeMs int64  `json:"not_before_ms"`
}

func (r RuntimeSubgoal) Clone() RuntimeSubgoal {
	return RuntimeSubgoal{
		Subgoal:     r.Subgoal.Clone(),
		ID:          r.ID,
		AssignedAt:  r.AssignedAt,
		RetryCount:  r.RetryCount,
		NotBeforeMs: r.NotBeforeMs,
	}
}

// Plan is an ordered sequence of Subgoals plus a human-readable goal label,
// matching the Planner Response shape in spec §6.
type Plan struct {
	NextGoal    string    `json:"next_goal"`
	Subgoals    []Subgoal `json:"subgoals"`
	RiskFlags   []string  `json:"risk_flags,omitempty"`
	Constraints Params    `json:"constraints,omitempty"`
}

func (p Plan) Clone() Plan {
	subgoals := make([]Subgoal, len(p.Subgoals))
	for i, s := range p.Subgoals {
		subgoals[i] = s.Clone()
	}
	return Plan{
		NextGoal:    p.NextGoal,
		Subgoals:    subgoals,
		RiskFlags:   append([]string(nil), p.RiskFlags...),
		Constraints: p.Constraints.Clone(),
	}
}

// CanonicalEqual compares two plans subgoal-by-subgoal under CanonicalEqual,
// used by the Planner Service to decide whether the guard materially
// rewrote a plan (spec §4.6 step 5) and by the idempotence property in §8.
func (p Plan) CanonicalEqual(o Plan) bool {
	if len(p.Subgoals) != len(o.Subgoals) {
		return false
	}
	for i := range p.Subgoals {
		if !p.Subgoals[i].CanonicalEqual(o.Subgoals[i]) {
			return false
		}
	}
	return true
}
