// Package guard implements the Feasibility Guard, spec §4.5: it rewrites a
// normalized plan into a dependency-correct sequence by prepending
// acquisition subplans for missing tools and ingredients, and by replacing
// unresolvable targets with either an acquisition plan or an explore
// fallback.
//
// No teacher file plays this role directly — the teacher's world has no
// LLM planner to guard against — but the recursive-dependency shape is
// grounded on the teacher's blueprint cost/check helpers
// (internal/sim/world/logic/blueprint) and its mining tool-tier helper
// (internal/sim/world/feature/work/mining), both adapted into
// internal/catalog and used here. Per spec §9 "projected state is a
// value, not a reference graph", the guard copies the inventory map at
// entry and only ever mutates its own copy.
package guard

import (
	"fmt"

	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/model"
)

const maxAcquisitionDepth = 8

type Guard struct {
	lookup catalog.Lookup
}

func New(lookup catalog.Lookup) *Guard {
	return &Guard{lookup: lookup}
}

// projectedInventory builds the guard's working copy, initialized from
// snapshot.inventory_summary.key_items ∪ tools (spec §4.5).
func projectedInventory(snap model.Snapshot) map[string]int {
	out := make(map[string]int, len(snap.Inventory.KeyItems)+len(snap.Inventory.Tools))
	for k, v := range snap.Inventory.KeyItems {
		out[k] += v
	}
	for k, v := range snap.Inventory.Tools {
		out[k] += v
	}
	return out
}

// Apply runs the guard's rules 1-5 over plan.Subgoals in order and returns
// the rewritten plan plus human-readable notes.
func (g *Guard) Apply(snap model.Snapshot, plan model.Plan) (model.Plan, []string) {
	projected := projectedInventory(snap)
	var notes []string
	var out []model.Subgoal

	for i, s := range plan.Subgoals {
		kept := g.applyOne(snap, s, i, projected, &notes, 0, nil)
		out = append(out, kept...)
	}

	out = dedupeAdjacent(out)

	return model.Plan{
		NextGoal:    plan.NextGoal,
		Subgoals:    out,
		RiskFlags:   plan.RiskFlags,
		Constraints: plan.Constraints,
	}, notes
}

// applyOne dispatches rules 1-3 for a single input subgoal, returning the
// (possibly expanded, possibly replaced) sequence that should take its
// place, already reflected in projected.
func (g *Guard) applyOne(snap model.Snapshot, s model.Subgoal, idx int, projected map[string]int, notes *[]string, depth int, stack map[string]bool) []model.Subgoal {
	switch s.Name {
	case model.SubgoalCollect, model.SubgoalGotoNearest:
		return g.applyCollectLike(snap, s, idx, projected, notes, depth, stack)
	case model.SubgoalCraft:
		return g.applyCraft(snap, s, idx, projected, notes, depth, stack)
	default:
		applyProjectedOutcome(s, projected, g.lookup)
		return []model.Subgoal{s}
	}
}

func targetParamKey(name model.SubgoalName) string {
	if name == model.SubgoalCollect {
		return "block"
	}
	return "block"
}

// applyCollectLike implements rules 1 and 2.
func (g *Guard) applyCollectLike(snap model.Snapshot, s model.Subgoal, idx int, projected map[string]int, notes *[]string, depth int, stack map[string]bool) []model.Subgoal {
	key := targetParamKey(s.Name)
	target, _ := s.Params.String(key)

	blockName, resolved := g.lookup.ResolveBlock(target)
	if !resolved {
		// Rule 1: no block resolves for this target.
		if recipes := g.lookup.RecipesProducing(target); len(recipes) > 0 {
			count, _ := s.Params.Int("count")
			if count <= 0 {
				count = 1
			}
			acq, ok := g.planAcquisition(target, count, snap, projected, notes, depth, stack)
			if ok {
				*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_replaced_unresolved_%s_with_acquisition", idx, target))
				return acq
			}
		}
		*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_explore_fallback_%s", idx, target))
		return []model.Subgoal{exploreFallback(target)}
	}

	// Rule 2: canonicalize to the resolved block name.
	s2 := s.Clone()
	s2.Params["block"] = blockName

	var out []model.Subgoal
	if bd, ok := g.lookup.Block(blockName); ok && bd.RequiredTool != catalog.ToolFamilyNone {
		missingTier, needed := catalog.LowestMissingTierFor(projected, bd.RequiredTool, bd.MinTier)
		if needed {
			toolItem := catalog.ToolItemName(missingTier, bd.RequiredTool)
			acq, ok := g.planAcquisition(toolItem, 1, snap, projected, notes, depth, stack)
			if ok {
				out = append(out, acq...)
				*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_prepended_tool_acquisition_%s", idx, toolItem))
			}
		}
	}

	applyProjectedOutcome(s2, projected, g.lookup)
	out = append(out, s2)
	return out
}

// applyCraft implements rule 3.
func (g *Guard) applyCraft(snap model.Snapshot, s model.Subgoal, idx int, projected map[string]int, notes *[]string, depth int, stack map[string]bool) []model.Subgoal {
	item, _ := s.Params.String("item")
	count, _ := s.Params.Int("count")
	if count <= 0 {
		count = 1
	}

	recipes := g.lookup.RecipesProducing(item)
	if len(recipes) == 0 {
		acq, ok := g.planAcquisition(item, count, snap, projected, notes, depth, stack)
		if ok {
			*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_craft_%s_replaced_with_acquisition", idx, item))
			return acq
		}
		*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_craft_%s_explore_fallback", idx, item))
		return []model.Subgoal{exploreFallback(item)}
	}

	recipe := selectBestRecipe(recipes, projected, snap)

	var out []model.Subgoal
	if recipe.NeedsWorkbench() && !workbenchAvailable(projected, snap) {
		acq, ok := g.planAcquisition("CRAFTING_TABLE", 1, snap, projected, notes, depth, stack)
		if ok {
			out = append(out, acq...)
			*notes = append(*notes, fmt.Sprintf("guard_subgoal_%d_prepended_workbench", idx))
		}
	}

	resultCount := recipe.ResultCount(item)
	if resultCount <= 0 {
		resultCount = 1
	}
	craftRuns := ceilDiv(count, resultCount)
	for _, ing := range recipe.Inputs {
		need := ing.Count * craftRuns
		have := projected[ing.Item]
		if have < need {
			acq, ok := g.planAcquisition(ing.Item, need-have, snap, projected, notes, depth, stack)
			if ok {
				out = append(out, acq...)
			}
		}
	}

	applyProjectedOutcome(s, projected, g.lookup)
	out = append(out, s)
	return out
}

func exploreFallback(hint string) model.Subgoal {
	return model.Subgoal{
		Name: model.SubgoalExplore,
		Params: model.Params{
			"radius":          28,
			"return_to_base":  false,
			"resource_hint":   hint,
		},
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// selectBestRecipe picks the recipe minimizing missing ingredient units
// plus a +3 penalty when it needs a table the agent can't currently reach
// (spec §4.5 "select the recipe that minimizes missing_ingredient_units +
// (3 if needs_table_and_no_table_access else 0)").
func selectBestRecipe(recipes []catalog.RecipeDef, projected map[string]int, snap model.Snapshot) catalog.RecipeDef {
	best := recipes[0]
	bestScore := recipeScore(best, projected, snap)
	for _, r := range recipes[1:] {
		score := recipeScore(r, projected, snap)
		if score < bestScore {
			best = r
			bestScore = score
		}
	}
	return best
}

func recipeScore(r catalog.RecipeDef, projected map[string]int, snap model.Snapshot) int {
	missing := 0
	for _, ing := range r.Inputs {
		if gap := ing.Count - projected[ing.Item]; gap > 0 {
			missing += gap
		}
	}
	if r.NeedsWorkbench() && !workbenchAvailable(projected, snap) {
		missing += 3
	}
	return missing
}

func workbenchAvailable(projected map[string]int, snap model.Snapshot) bool {
	if projected["CRAFTING_TABLE"] > 0 {
		return true
	}
	for _, poi := range snap.Nearby.PointsOfInterest {
		if poi.Type == "CRAFTING_TABLE" && poi.Distance <= 8 {
			return true
		}
	}
	return false
}

// applyProjectedOutcome implements spec §4.5 rule 4.
func applyProjectedOutcome(s model.Subgoal, projected map[string]int, lookup catalog.Lookup) {
	switch s.Name {
	case model.SubgoalCraft, model.SubgoalWithdraw:
		item, _ := s.Params.String("item")
		count, _ := s.Params.Int("count")
		if item != "" {
			projected[item] += count
		}
	case model.SubgoalCollect:
		block, _ := s.Params.String("block")
		count, _ := s.Params.Int("count")
		item := block
		if bd, ok := lookup.Block(block); ok && bd.DropsItem != "" {
			item = bd.DropsItem
		}
		if item != "" {
			projected[item] += count
		}
	}
}

// dedupeAdjacent implements spec §4.5 rule 5.
func dedupeAdjacent(in []model.Subgoal) []model.Subgoal {
	if len(in) == 0 {
		return in
	}
	out := make([]model.Subgoal, 0, len(in))
	out = append(out, in[0])
	for _, s := range in[1:] {
		if s.CanonicalEqual(out[len(out)-1]) {
			continue
		}
		out = append(out, s)
	}
	return out
}
