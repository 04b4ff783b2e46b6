package guard

import (
	"fmt"
	"sort"
	"strings"

	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/model"
)

const defaultDesiredIncrement = 8

// ProgressionPlan is the result of the Autonomous Progression Plan (spec
// §4.5), consumed by the Fallback Planner.
type ProgressionPlan struct {
	Reason   string
	Subgoals []model.Subgoal
}

// AutonomousProgression first looks for capability gaps (a resource whose
// required tool is missing) and synthesizes an acquisition plan for the
// tool; otherwise it picks the nearest actionable resource with a positive
// shortage against desiredIncrement and plans its acquisition; otherwise
// it falls back to exploring.
func (g *Guard) AutonomousProgression(snap model.Snapshot) ProgressionPlan {
	return g.autonomousProgression(snap, defaultDesiredIncrement)
}

func (g *Guard) autonomousProgression(snap model.Snapshot, desiredIncrement int) ProgressionPlan {
	projected := projectedInventory(snap)
	pos := [3]float64{snap.Player.Position.X, snap.Player.Position.Y, snap.Player.Position.Z}
	resources := g.lookup.KnownResources(pos)

	if gap := firstCapabilityGap(resources, projected); gap != nil {
		toolItem := catalog.ToolItemName(gap.MinTier, gap.RequiredTool)
		notes := []string{}
		plan, ok := g.planAcquisition(toolItem, 1, snap, projected, &notes, 0, nil)
		if ok {
			return ProgressionPlan{
				Reason:   fmt.Sprintf("unlock_%s_for_%s", strings.ToLower(toolItem), strings.ToLower(gap.Block)),
				Subgoals: plan,
			}
		}
	}

	if target := nearestActionableShortage(resources, projected, desiredIncrement); target != nil {
		shortage := desiredIncrement - projected[target.Item]
		notes := []string{}
		plan, ok := g.planAcquisition(target.Item, desiredIncrement, snap, projected, &notes, 0, nil)
		if ok && shortage > 0 {
			return ProgressionPlan{
				Reason:   fmt.Sprintf("acquire_%s", strings.ToLower(target.Item)),
				Subgoals: plan,
			}
		}
	}

	return ProgressionPlan{
		Reason:   "explore_for_resources",
		Subgoals: []model.Subgoal{{Name: model.SubgoalExplore, Params: model.Params{"radius": 26}}},
	}
}

// firstCapabilityGap returns the nearest resource whose required tool the
// agent does not own, or nil if there is none.
func firstCapabilityGap(resources []catalog.SourceBlock, projected map[string]int) *catalog.SourceBlock {
	for i := range resources {
		r := resources[i]
		if r.RequiredTool == catalog.ToolFamilyNone {
			continue
		}
		if _, needed := catalog.LowestMissingTierFor(projected, r.RequiredTool, r.MinTier); needed {
			return &r
		}
	}
	return nil
}

// nearestActionableShortage picks the actionable resource (tool already
// owned, if one is required) with the largest shortage against
// desiredIncrement, ties broken by distance then name.
func nearestActionableShortage(resources []catalog.SourceBlock, projected map[string]int, desiredIncrement int) *catalog.SourceBlock {
	type candidate struct {
		src      catalog.SourceBlock
		shortage int
	}
	var cands []candidate
	for _, r := range resources {
		if r.RequiredTool != catalog.ToolFamilyNone {
			if _, needed := catalog.LowestMissingTierFor(projected, r.RequiredTool, r.MinTier); needed {
				continue
			}
		}
		shortage := desiredIncrement - projected[r.Item]
		if shortage > 0 {
			cands = append(cands, candidate{src: r, shortage: shortage})
		}
	}
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].shortage != cands[j].shortage {
			return cands[i].shortage > cands[j].shortage
		}
		if cands[i].src.Distance != cands[j].src.Distance {
			return cands[i].src.Distance < cands[j].src.Distance
		}
		return cands[i].src.Block < cands[j].src.Block
	})
	return &cands[0].src
}
