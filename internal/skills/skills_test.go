package skills

import (
	"context"
	"testing"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/lockmgr"
	"fleetcore.ai/internal/model"
)

type fakeAgent struct {
	state     adapter.EntityState
	sightings []adapter.BlockSighting

	digCount    int
	digDelay    time.Duration
	digErr      error
	pathfindErr error
	craftedIDs  []string
	craftErr    error
	placed      []adapter.PlaceSpec
	placeErr    error
}

func (f *fakeAgent) Events() <-chan adapter.Event { return nil }
func (f *fakeAgent) State() adapter.EntityState   { return f.state }
func (f *fakeAgent) NearbyBlocks(ctx context.Context, radius int) ([]adapter.BlockSighting, error) {
	return f.sightings, nil
}
func (f *fakeAgent) PathfindTo(ctx context.Context, target adapter.Vec3, tolerance float64) error {
	return f.pathfindErr
}
func (f *fakeAgent) LookAt(ctx context.Context, target adapter.Vec3) error       { return nil }
func (f *fakeAgent) SetControlState(ctx context.Context, state string, on bool) error {
	return nil
}
func (f *fakeAgent) ClearControlStates(ctx context.Context) error { return nil }
func (f *fakeAgent) Dig(ctx context.Context, block adapter.Vec3) error {
	f.digCount++
	if f.digDelay > 0 {
		time.Sleep(f.digDelay)
	}
	return f.digErr
}
func (f *fakeAgent) Place(ctx context.Context, spec adapter.PlaceSpec) error {
	f.placed = append(f.placed, spec)
	return f.placeErr
}
func (f *fakeAgent) Equip(ctx context.Context, item string) error { return nil }
func (f *fakeAgent) OpenContainer(ctx context.Context, target adapter.Vec3) error {
	return nil
}
func (f *fakeAgent) Craft(ctx context.Context, recipeID string, count int) error {
	f.craftedIDs = append(f.craftedIDs, recipeID)
	return f.craftErr
}
func (f *fakeAgent) Chat(ctx context.Context, channel, text string) error { return nil }
func (f *fakeAgent) Quit(ctx context.Context) error                      { return nil }

func testCatalog() *catalog.Memory {
	m := catalog.NewMemory()
	m.Blocks["OAK_LOG"] = catalog.BlockDef{ID: "OAK_LOG", Breakable: true, DropsItem: "OAK_LOG"}
	m.Items["OAK_LOG"] = catalog.ItemDef{ID: "OAK_LOG", Kind: "MATERIAL"}
	m.Recipes = []catalog.RecipeDef{
		{RecipeID: "PLANKS_FROM_LOG", Station: "INVENTORY", Inputs: []catalog.ItemCount{{Item: "OAK_LOG", Count: 1}}, Outputs: []catalog.ItemCount{{Item: "OAK_PLANKS", Count: 4}}},
		{RecipeID: "IRON_INGOT_SMELT", Station: "FURNACE", Inputs: []catalog.ItemCount{{Item: "IRON_ORE", Count: 1}}, Outputs: []catalog.ItemCount{{Item: "IRON_INGOT", Count: 1}}},
	}
	m.Blueprints["HUT"] = catalog.BlueprintDef{
		ID: "HUT",
		Blocks: []catalog.BlueprintBlock{
			{Pos: [3]int{0, 0, 0}, Block: "OAK_PLANKS"},
			{Pos: [3]int{1, 0, 0}, Block: "OAK_PLANKS"},
		},
	}
	return m
}

func TestExecuteCollectAcquiresAndReleasesLock(t *testing.T) {
	agent := &fakeAgent{
		sightings: []adapter.BlockSighting{
			{Block: "OAK_LOG", Position: adapter.Vec3{X: 3, Y: 0, Z: 0}, Distance: 3},
		},
	}
	locks := lockmgr.New(5000, nil)
	e := New("bot-1", agent, testCatalog(), locks, 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": "OAK_LOG", "count": 1}})

	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if agent.digCount != 1 {
		t.Fatalf("expected exactly one dig, got %d", agent.digCount)
	}
	if owner := locks.OwnerOf("resource:OAK_LOG"); owner != "" {
		t.Fatalf("expected the lock to be released after execution, owner=%q", owner)
	}
}

func TestExecuteCollectFailsWhenResourceLocked(t *testing.T) {
	agent := &fakeAgent{}
	locks := lockmgr.New(5000, nil)
	locks.Acquire("resource:OAK_LOG", "other-bot")

	e := New("bot-1", agent, testCatalog(), locks, 0)
	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": "OAK_LOG", "count": 1}})

	if !result.IsFailure() || result.ErrorCode != model.FailDependsOnItem || !result.Retryable {
		t.Fatalf("expected a retryable DEPENDS_ON_ITEM failure, got %+v", result)
	}
}

func TestExecuteCollectResourceNotFound(t *testing.T) {
	agent := &fakeAgent{}
	locks := lockmgr.New(5000, nil)
	e := New("bot-1", agent, testCatalog(), locks, 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": "OAK_LOG", "count": 1}})

	if !result.IsFailure() || result.ErrorCode != model.FailResourceNotFound {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %+v", result)
	}
}

func TestExecuteCraftUsesFirstMatchingRecipe(t *testing.T) {
	agent := &fakeAgent{}
	e := New("bot-1", agent, testCatalog(), lockmgr.New(5000, nil), 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalCraft, Params: model.Params{"item": "OAK_PLANKS", "count": 4}})

	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(agent.craftedIDs) != 1 || agent.craftedIDs[0] != "PLANKS_FROM_LOG" {
		t.Fatalf("expected the PLANKS_FROM_LOG recipe to be crafted, got %v", agent.craftedIDs)
	}
}

func TestExecuteSmeltFindsFurnaceRecipeByInput(t *testing.T) {
	agent := &fakeAgent{}
	e := New("bot-1", agent, testCatalog(), lockmgr.New(5000, nil), 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalSmelt, Params: model.Params{"input": "IRON_ORE", "count": 2}})

	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(agent.craftedIDs) != 1 || agent.craftedIDs[0] != "IRON_INGOT_SMELT" {
		t.Fatalf("expected the furnace recipe to be crafted, got %v", agent.craftedIDs)
	}
}

func TestExecuteBuildBlueprintPlacesEveryBlockAndLocksByAnchor(t *testing.T) {
	agent := &fakeAgent{}
	locks := lockmgr.New(5000, nil)
	e := New("bot-1", agent, testCatalog(), locks, 0)

	result := e.Execute(context.Background(), model.Subgoal{
		Name: model.SubgoalBuildBlueprint,
		Params: model.Params{
			"blueprint_id": "HUT",
			"anchor":       map[string]any{"x": 10, "y": 4, "z": -2},
		},
	})

	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(agent.placed) != 2 {
		t.Fatalf("expected 2 blocks placed, got %d", len(agent.placed))
	}
	if agent.placed[0].At != (adapter.Vec3{X: 10, Y: 4, Z: -2}) {
		t.Fatalf("expected the first block placed at the anchor, got %+v", agent.placed[0].At)
	}
	if owner := locks.OwnerOf("build:10,4,-2"); owner != "" {
		t.Fatalf("expected the build lock released after completion, owner=%q", owner)
	}
}

func TestExecuteDepositWithoutStoragePluginFails(t *testing.T) {
	agent := &fakeAgent{}
	e := New("bot-1", agent, testCatalog(), lockmgr.New(5000, nil), 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalDeposit, Params: model.Params{"strategy": "all_non_essential"}})

	if !result.IsFailure() || result.ErrorCode != model.FailDependsOnItem || result.Retryable {
		t.Fatalf("expected a non-retryable DEPENDS_ON_ITEM failure, got %+v", result)
	}
}

func TestExecuteUnknownSubgoalNameFails(t *testing.T) {
	agent := &fakeAgent{}
	e := New("bot-1", agent, testCatalog(), lockmgr.New(5000, nil), 0)

	result := e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalName("teleport"), Params: model.Params{}})

	if !result.IsFailure() || result.ErrorCode != model.FailDependsOnItem {
		t.Fatalf("expected an unknown subgoal to fail with DEPENDS_ON_ITEM, got %+v", result)
	}
}

func TestHeartbeatKeepsLockAliveDuringLongRunningHandler(t *testing.T) {
	// A handler that outlives a short lease should not lose the lock as
	// long as the heartbeat ticker is running (spec §4.8: "start a
	// heartbeat ticker at lock_heartbeat_ms").
	locks := lockmgr.New(60, nil) // 60ms lease, shorter than the handler below
	agent := &fakeAgent{
		sightings: []adapter.BlockSighting{
			{Block: "OAK_LOG", Position: adapter.Vec3{X: 1, Y: 0, Z: 0}, Distance: 1},
		},
		digDelay: 200 * time.Millisecond,
	}
	e := New("bot-1", agent, testCatalog(), locks, 20) // heartbeat every 20ms

	done := make(chan model.SkillResult, 1)
	go func() {
		done <- e.Execute(context.Background(), model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": "OAK_LOG", "count": 1}})
	}()

	time.Sleep(120 * time.Millisecond)
	if owner := locks.OwnerOf("resource:OAK_LOG"); owner != "bot-1" {
		t.Fatalf("expected the lock still held past the 60ms lease, owner=%q", owner)
	}

	select {
	case result := <-done:
		if !result.IsSuccess() {
			t.Fatalf("expected success, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collect handler did not complete in time")
	}
}

func TestLockKeyForTable(t *testing.T) {
	cases := []struct {
		subgoal model.Subgoal
		wantKey string
		wantOK  bool
	}{
		{model.Subgoal{Name: model.SubgoalCollect, Params: model.Params{"block": "OAK_LOG"}}, "resource:OAK_LOG", true},
		{model.Subgoal{Name: model.SubgoalBuildBlueprint, Params: model.Params{"anchor": map[string]any{"x": 1, "y": 2, "z": 3}}}, "build:1,2,3", true},
		{model.Subgoal{Name: model.SubgoalDeposit}, "storage:base", true},
		{model.Subgoal{Name: model.SubgoalWithdraw}, "storage:base", true},
		{model.Subgoal{Name: model.SubgoalGoto}, "", false},
		{model.Subgoal{Name: model.SubgoalCraft}, "", false},
	}
	for _, c := range cases {
		key, ok := lockKeyFor(c.subgoal)
		if ok != c.wantOK || key != c.wantKey {
			t.Fatalf("lockKeyFor(%s) = (%q, %v), want (%q, %v)", c.subgoal.Name, key, ok, c.wantKey, c.wantOK)
		}
	}
}
