package guard

import (
	"sort"

	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/model"
)

// planAcquisition is the recursive acquisition planner used by rules 1-3
// (spec §4.5): "recursive with depth limit 8 and a stack-based cycle
// guard." It mutates projected as it goes so callers observe the
// cumulative effect of every subgoal it emits.
func (g *Guard) planAcquisition(item string, shortage int, snap model.Snapshot, projected map[string]int, notes *[]string, depth int, stack map[string]bool) ([]model.Subgoal, bool) {
	if shortage <= 0 {
		return nil, true
	}
	if depth >= maxAcquisitionDepth {
		return nil, false
	}
	if stack == nil {
		stack = make(map[string]bool)
	}
	if stack[item] {
		return nil, false // cycle guard
	}
	stack[item] = true
	defer delete(stack, item)

	if have := projected[item]; have >= shortage {
		return nil, true
	}
	needed := shortage - projected[item]

	if recipes := g.lookup.RecipesProducing(item); len(recipes) > 0 {
		return g.planCraftAcquisition(item, needed, recipes, snap, projected, notes, depth, stack)
	}
	return g.planHarvestAcquisition(item, needed, snap, projected, notes, depth, stack)
}

func (g *Guard) planCraftAcquisition(item string, needed int, recipes []catalog.RecipeDef, snap model.Snapshot, projected map[string]int, notes *[]string, depth int, stack map[string]bool) ([]model.Subgoal, bool) {
	recipe := selectBestRecipe(recipes, projected, snap)

	var out []model.Subgoal
	if recipe.NeedsWorkbench() && !workbenchAvailable(projected, snap) {
		acq, ok := g.planAcquisition("CRAFTING_TABLE", 1, snap, projected, notes, depth+1, stack)
		if !ok {
			return nil, false
		}
		out = append(out, acq...)
	}

	resultCount := recipe.ResultCount(item)
	if resultCount <= 0 {
		resultCount = 1
	}
	craftRuns := ceilDiv(needed, resultCount)

	for _, ing := range recipe.Inputs {
		need := ing.Count * craftRuns
		have := projected[ing.Item]
		if have < need {
			acq, ok := g.planAcquisition(ing.Item, need-have, snap, projected, notes, depth+1, stack)
			if !ok {
				return nil, false
			}
			out = append(out, acq...)
		}
	}

	craftGoal := model.Subgoal{
		Name: model.SubgoalCraft,
		Params: model.Params{
			"item":  item,
			"count": needed,
		},
	}
	applyProjectedOutcome(craftGoal, projected, g.lookup)
	out = append(out, craftGoal)
	return out, true
}

func (g *Guard) planHarvestAcquisition(item string, needed int, snap model.Snapshot, projected map[string]int, notes *[]string, depth int, stack map[string]bool) ([]model.Subgoal, bool) {
	pos := [3]float64{snap.Player.Position.X, snap.Player.Position.Y, snap.Player.Position.Z}
	sources := g.lookup.SourcesForItem(item, pos)
	if len(sources) == 0 {
		return nil, false
	}

	best, actionable := pickBestSource(sources, projected)
	var out []model.Subgoal
	if !actionable {
		toolItem := catalog.ToolItemName(best.MinTier, best.RequiredTool)
		if toolItem == "" {
			return nil, false
		}
		acq, ok := g.planAcquisition(toolItem, 1, snap, projected, notes, depth+1, stack)
		if !ok {
			return nil, false
		}
		out = append(out, acq...)
	}

	gotoGoal := model.Subgoal{Name: model.SubgoalGotoNearest, Params: model.Params{"block": best.Block}}
	collectGoal := model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": best.Block, "count": needed}}
	applyProjectedOutcome(collectGoal, projected, g.lookup)

	out = append(out, gotoGoal, collectGoal)
	return out, true
}

// pickBestSource orders candidates "preferring actionable candidates; then
// distance; then name" (spec §4.5) and returns the winner plus whether it
// is actionable (agent already owns the required tool, if any).
func pickBestSource(sources []catalog.SourceBlock, projected map[string]int) (catalog.SourceBlock, bool) {
	isActionable := func(s catalog.SourceBlock) bool {
		if s.RequiredTool == catalog.ToolFamilyNone {
			return true
		}
		_, needed := catalog.LowestMissingTierFor(projected, s.RequiredTool, s.MinTier)
		return !needed
	}

	sorted := append([]catalog.SourceBlock(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := isActionable(sorted[i]), isActionable(sorted[j])
		if ai != aj {
			return ai
		}
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].Block < sorted[j].Block
	})
	best := sorted[0]
	return best, isActionable(best)
}
