package skills

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/model"
)

func handleGoto(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	x, _ := s.Params.Int("x")
	y, _ := s.Params.Int("y")
	z, _ := s.Params.Int("z")
	rng, ok := s.Params.Int("range")
	if !ok || rng < 1 {
		rng = 2
	}

	target := adapter.Vec3{X: x, Y: y, Z: z}
	if err := e.agent.PathfindTo(ctx, target, float64(rng)); err != nil {
		return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
	}
	return model.Success(map[string]any{"arrived_at": target}, nil), nil
}

func handleGotoNearest(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	block, _ := s.Params.String("block")
	maxDistance, ok := s.Params.Int("max_distance")
	if !ok || maxDistance <= 0 {
		maxDistance = 48
	}

	sighting, ok, err := nearestSighting(ctx, e, block, maxDistance)
	if err != nil {
		return model.SkillResult{}, err
	}
	if !ok {
		return model.Failure(model.FailResourceNotFound, fmt.Sprintf("no %s within %d blocks", block, maxDistance), true), nil
	}

	if err := e.agent.PathfindTo(ctx, sighting.Position, 2); err != nil {
		return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
	}
	return model.Success(map[string]any{"arrived_at": sighting.Position, "block": sighting.Block}, nil), nil
}

func handleCollect(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	block, _ := s.Params.String("block")
	count, ok := s.Params.Int("count")
	if !ok || count < 1 {
		count = 1
	}

	if selector, ok := e.agent.(adapter.ToolSelectionPlugin); ok {
		if item, ok := selector.SelectToolFor(ctx, block); ok {
			if err := e.agent.Equip(ctx, item); err != nil {
				return model.Failure(model.FailNoToolAvailable, err.Error(), false), nil
			}
		}
	}

	if collector, ok := e.agent.(adapter.CollectBlockPlugin); ok {
		if err := collector.CollectBlock(ctx, block, count); err != nil {
			return model.Failure(model.FailResourceNotFound, err.Error(), true), nil
		}
		return model.Success(map[string]any{"block": block, "count": count}, nil), nil
	}

	collected := 0
	for collected < count {
		sighting, found, err := nearestSighting(ctx, e, block, ScanRadius)
		if err != nil {
			return model.SkillResult{}, err
		}
		if !found {
			if collected > 0 {
				return model.Success(map[string]any{"block": block, "count": collected}, nil), nil
			}
			return model.Failure(model.FailResourceNotFound, fmt.Sprintf("no %s within %d blocks", block, ScanRadius), true), nil
		}
		if err := e.agent.PathfindTo(ctx, sighting.Position, 2); err != nil {
			return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
		}
		if err := e.agent.Dig(ctx, sighting.Position); err != nil {
			return model.Failure(model.FailInterruptedByHostiles, err.Error(), true), nil
		}
		collected++
	}
	return model.Success(map[string]any{"block": block, "count": collected}, nil), nil
}

func handleCraft(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	item, _ := s.Params.String("item")
	count, ok := s.Params.Int("count")
	if !ok || count < 1 {
		count = 1
	}

	recipes := e.lookup.RecipesProducing(item)
	if len(recipes) == 0 {
		return model.Failure(model.FailDependsOnItem, fmt.Sprintf("no known recipe produces %s", item), false), nil
	}
	recipe := recipes[0]

	if err := e.agent.Craft(ctx, recipe.RecipeID, count); err != nil {
		return model.Failure(model.FailNoToolAvailable, err.Error(), false), nil
	}
	return model.Success(map[string]any{"item": item, "count": count, "recipe_id": recipe.RecipeID}, nil), nil
}

func handleSmelt(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	input, _ := s.Params.String("input")
	count, ok := s.Params.Int("count")
	if !ok || count < 1 {
		count = 1
	}

	recipeID, found := findSmeltRecipe(e, input)
	if !found {
		return model.Failure(model.FailDependsOnItem, fmt.Sprintf("no furnace recipe consumes %s", input), false), nil
	}

	if err := e.agent.Craft(ctx, recipeID, count); err != nil {
		return model.Failure(model.FailNoToolAvailable, err.Error(), false), nil
	}
	return model.Success(map[string]any{"input": input, "count": count, "recipe_id": recipeID}, nil), nil
}

func findSmeltRecipe(e *Engine, input string) (string, bool) {
	recipes := e.lookup.RecipesConsuming(input, "FURNACE")
	if len(recipes) == 0 {
		return "", false
	}
	return recipes[0].RecipeID, true
}

func handleDeposit(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	strategy, _ := s.Params.String("strategy")
	if strategy == "" {
		strategy = "all_non_essential"
	}
	storage, ok := e.agent.(adapter.StoragePlugin)
	if !ok {
		return model.Failure(model.FailDependsOnItem, "adapter has no storage capability", false), nil
	}
	pos := e.agent.State().Position
	if err := storage.Deposit(ctx, pos, strategy); err != nil {
		return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
	}
	return model.Success(map[string]any{"strategy": strategy}, nil), nil
}

func handleWithdraw(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	item, _ := s.Params.String("item")
	count, ok := s.Params.Int("count")
	if !ok || count < 1 {
		count = 1
	}
	storage, ok := e.agent.(adapter.StoragePlugin)
	if !ok {
		return model.Failure(model.FailDependsOnItem, "adapter has no storage capability", false), nil
	}
	pos := e.agent.State().Position
	if err := storage.Withdraw(ctx, pos, item, count); err != nil {
		return model.Failure(model.FailResourceNotFound, err.Error(), true), nil
	}
	return model.Success(map[string]any{"item": item, "count": count}, nil), nil
}

func handleBuildBlueprint(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	blueprintID, _ := s.Params.String("blueprint_id")
	x, y, z, ok := anchorXYZ(s.Params)
	if !ok {
		return model.Failure(model.FailPlacementFailed, "build_blueprint missing an int anchor", false), nil
	}

	bp, ok := e.lookup.Blueprint(blueprintID)
	if !ok {
		return model.Failure(model.FailDependsOnItem, fmt.Sprintf("unknown blueprint %s", blueprintID), false), nil
	}

	placed := 0
	for _, b := range bp.Blocks {
		at := adapter.Vec3{X: x + b.Pos[0], Y: y + b.Pos[1], Z: z + b.Pos[2]}
		if err := e.agent.PathfindTo(ctx, at, 3); err != nil {
			return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
		}
		if err := e.agent.Place(ctx, adapter.PlaceSpec{At: at, Block: b.Block}); err != nil {
			if placed > 0 {
				return model.Failure(model.FailPlacementFailed, fmt.Sprintf("placed %d/%d blocks before failing: %v", placed, len(bp.Blocks), err), true), nil
			}
			return model.Failure(model.FailPlacementFailed, err.Error(), true), nil
		}
		placed++
	}
	return model.Success(map[string]any{"blueprint_id": blueprintID, "blocks_placed": placed}, nil), nil
}

func handleCombatEngage(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	pvp, ok := e.agent.(adapter.PvPPlugin)
	if !ok {
		return model.Failure(model.FailDependsOnItem, "adapter has no combat capability", false), nil
	}

	maxTargets, ok := s.Params.Int("max_targets")
	if !ok || maxTargets < 1 {
		maxTargets = 1
	}
	maxDistance, ok := s.Params.Float("max_distance")
	if !ok || maxDistance <= 0 {
		maxDistance = 16
	}

	state := e.agent.State()
	engaged := 0
	for _, ent := range state.Nearby {
		if engaged >= maxTargets {
			break
		}
		if ent.Distance > maxDistance {
			continue
		}
		if err := pvp.Attack(ctx, ent.ID); err != nil {
			return model.Failure(model.FailCombatLostTarget, err.Error(), true), nil
		}
		engaged++
	}
	if engaged == 0 {
		return model.Failure(model.FailCombatLostTarget, "no target within max_distance", true), nil
	}
	return model.Success(map[string]any{"targets_engaged": engaged}, nil), nil
}

func handleCombatGuard(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	pvp, ok := e.agent.(adapter.PvPPlugin)
	if !ok {
		return model.Failure(model.FailDependsOnItem, "adapter has no combat capability", false), nil
	}

	radius, ok := s.Params.Float("radius")
	if !ok || radius <= 0 {
		radius = 12
	}

	state := e.agent.State()
	defended := 0
	for _, ent := range state.Nearby {
		if ent.Distance > radius {
			continue
		}
		if err := pvp.Attack(ctx, ent.ID); err != nil {
			continue
		}
		defended++
	}
	if defended == 0 {
		if err := pvp.Flee(ctx, state.Position); err != nil {
			return model.Failure(model.FailCombatLostTarget, err.Error(), true), nil
		}
	}
	return model.Success(map[string]any{"defended": defended}, nil), nil
}

func handleExplore(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error) {
	radius, ok := s.Params.Int("radius")
	if !ok || radius < 1 {
		radius = 24
	}
	hint, _ := s.Params.String("resource_hint")

	state := e.agent.State()
	bearing := rand.Float64() * 2 * math.Pi
	target := adapter.Vec3{
		X: state.Position.X + int(math.Round(float64(radius)*math.Cos(bearing))),
		Y: state.Position.Y,
		Z: state.Position.Z + int(math.Round(float64(radius)*math.Sin(bearing))),
	}

	if err := e.agent.PathfindTo(ctx, target, 3); err != nil {
		return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
	}

	details := map[string]any{"explored_to": target}
	if hint != "" {
		if sighting, found, err := nearestSighting(ctx, e, hint, radius); err == nil && found {
			details["found_hint"] = sighting.Block
		}
	}

	if returnToBase, _ := s.Params.Bool("return_to_base"); returnToBase {
		if err := e.agent.PathfindTo(ctx, state.Position, 3); err != nil {
			return model.Failure(model.FailPathfindFailed, err.Error(), true), nil
		}
	}
	return model.Success(details, nil), nil
}

// nearestSighting scans within maxDistance for the nearest block whose
// name or catalog-resolved drop item matches target.
func nearestSighting(ctx context.Context, e *Engine, target string, maxDistance int) (adapter.BlockSighting, bool, error) {
	sightings, err := e.agent.NearbyBlocks(ctx, maxDistance)
	if err != nil {
		return adapter.BlockSighting{}, false, err
	}

	blockName := target
	if resolved, ok := e.lookup.ResolveBlock(target); ok {
		blockName = resolved
	}

	best := adapter.BlockSighting{}
	found := false
	for _, s := range sightings {
		if s.Block != blockName {
			continue
		}
		if !found || s.Distance < best.Distance {
			best = s
			found = true
		}
	}
	return best, found, nil
}
