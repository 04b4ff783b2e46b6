package planner

import (
	"fleetcore.ai/internal/guard"
	"fleetcore.ai/internal/model"
)

// FallbackPlanner is a pure function of (snapshot, reason, base position)
// that returns a valid plan without ever calling the LLM (spec §4.7). It
// is consumed both by the Planner Service on rate-limit denial / LLM
// failure and directly by the Agent Controller when it needs an
// "always-active" plan.
type FallbackPlanner struct {
	guard *guard.Guard
}

func NewFallbackPlanner(g *guard.Guard) *FallbackPlanner {
	return &FallbackPlanner{guard: g}
}

const (
	lowHealthThreshold      = 8
	inventoryLoadThreshold  = 120
	nearestHostileThreshold = 10.0
)

// Plan implements spec §4.7's ordered rule list: low health, then
// inventory pressure, then nearby hostiles, else the Autonomous
// Progression Plan. reason identifies why the fallback was invoked
// (e.g. "RATE_LIMIT_BOT_CAP", "PLANNER_ERROR:..."); it is carried into
// the plan's constraints for downstream logging, not used to pick the
// rule — the rule is always chosen from snapshot state alone.
func (f *FallbackPlanner) Plan(snap model.Snapshot, reason string, base model.Position) model.Plan {
	plan := f.plan(snap, base)
	if reason != "" {
		if plan.Constraints == nil {
			plan.Constraints = model.Params{}
		}
		plan.Constraints["fallback_reason"] = reason
	}
	return plan
}

func (f *FallbackPlanner) plan(snap model.Snapshot, base model.Position) model.Plan {
	if snap.Player.Health <= lowHealthThreshold {
		return model.Plan{
			NextGoal: "return_to_base_low_health",
			Subgoals: []model.Subgoal{
				gotoSubgoal(base),
				{Name: model.SubgoalCombatGuard, Params: model.Params{"radius": 12, "duration": 6000}},
			},
			RiskFlags: []string{"LOW_HEALTH"},
		}
	}

	if snap.Inventory.Load() >= inventoryLoadThreshold {
		return model.Plan{
			NextGoal: "deposit_inventory",
			Subgoals: []model.Subgoal{
				gotoSubgoal(base),
				{Name: model.SubgoalDeposit, Params: model.Params{"strategy": "all_non_essential"}},
			},
			RiskFlags: []string{"INVENTORY_PRESSURE"},
		}
	}

	if nearest := nearestHostileDistance(snap); nearest < nearestHostileThreshold {
		return model.Plan{
			NextGoal: "engage_nearby_hostiles",
			Subgoals: []model.Subgoal{
				{Name: model.SubgoalCombatEngage, Params: model.Params{"max_targets": 2, "max_distance": 18}},
			},
			RiskFlags: []string{"HOSTILES_NEARBY"},
		}
	}

	progression := f.guard.AutonomousProgression(snap)
	return model.Plan{
		NextGoal: progression.Reason,
		Subgoals: progression.Subgoals,
	}
}

func gotoSubgoal(base model.Position) model.Subgoal {
	return model.Subgoal{
		Name: model.SubgoalGoto,
		Params: model.Params{
			"x":     int(base.X),
			"y":     int(base.Y),
			"z":     int(base.Z),
			"range": 2,
		},
	}
}

func nearestHostileDistance(snap model.Snapshot) float64 {
	nearest := -1.0
	for _, h := range snap.Nearby.Hostiles {
		if nearest < 0 || h.Distance < nearest {
			nearest = h.Distance
		}
	}
	if nearest < 0 {
		return 1e9
	}
	return nearest
}
