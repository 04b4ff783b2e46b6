package planner

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/guard"
	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/ratelimit"
)

type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, timeoutMs int) (adapter.LLMResponse, error) {
	if s.err != nil {
		return adapter.LLMResponse{}, s.err
	}
	if s.calls >= len(s.responses) {
		return adapter.LLMResponse{}, fmt.Errorf("scriptedLLM: no more scripted responses")
	}
	resp := s.responses[s.calls]
	s.calls++
	return adapter.LLMResponse{Text: resp, TokensIn: 10, TokensOut: 20}, nil
}

func testCatalog() *catalog.Memory {
	m := catalog.NewMemory()
	m.Blocks["OAK_LOG"] = catalog.BlockDef{ID: "OAK_LOG", Breakable: true, DropsItem: "OAK_LOG"}
	m.Items["OAK_LOG"] = catalog.ItemDef{ID: "OAK_LOG", Kind: "MATERIAL"}
	m.Sources = []catalog.SourceBlock{{Block: "OAK_LOG", Item: "OAK_LOG", Distance: 4, ActionableHint: "OAK_LOG"}}
	return m
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testRequest() Request {
	return Request{
		BotID: "bot-1",
		Snapshot: model.Snapshot{
			AgentID: "bot-1",
			Player:  model.PlayerState{Health: 20, Hunger: 18},
			Inventory: model.InventorySummary{
				Tools:    map[string]int{},
				KeyItems: map[string]int{},
			},
			Task: model.TaskContext{CurrentGoal: "collect wood", ProgressCounters: map[string]int{}},
		},
		AvailableSubgoals: []model.SubgoalName{model.SubgoalGotoNearest, model.SubgoalCollect},
	}
}

func TestPlanSuccessAppliesGuardUnchanged(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"next_goal":"collect wood","subgoals":[{"name":"goto_nearest","params":{"block":"OAK_LOG"}},{"name":"collect","params":{"block":"OAK_LOG","count":3}}]}`,
	}}
	limiter := ratelimit.New(100, 1000)
	g := guard.New(testCatalog())
	svc, err := New(llm, limiter, g, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}

	result, err := svc.Plan(context.Background(), testRequest(), model.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v (notes=%v)", result.Status, result.Notes)
	}
	if len(result.Response.Subgoals) != 2 {
		t.Fatalf("expected 2 subgoals (already satisfiable), got %+v", result.Response.Subgoals)
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly one LLM call when the guard makes no changes, got %d", llm.calls)
	}
}

func TestPlanFeasibilityRepromptOnMaterialRewrite(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"next_goal":"collect wood","subgoals":[{"name":"collect","params":{"block":"STONE","count":5}}]}`,
		`{"next_goal":"collect wood","subgoals":[{"name":"goto_nearest","params":{"block":"OAK_LOG"}},{"name":"collect","params":{"block":"OAK_LOG","count":5}}]}`,
	}}
	limiter := ratelimit.New(100, 1000)

	cat := testCatalog()
	cat.Blocks["STONE"] = catalog.BlockDef{ID: "STONE", Breakable: true, DropsItem: "STONE", RequiredTool: catalog.ToolFamilyPickaxe, MinTier: catalog.MaterialWooden}
	cat.Items["STONE"] = catalog.ItemDef{ID: "STONE", Kind: "BLOCK"}
	cat.Recipes = []catalog.RecipeDef{{
		RecipeID: "wooden_pickaxe",
		Station:  "INVENTORY",
		Inputs:   []catalog.ItemCount{{Item: "OAK_LOG", Count: 3}},
		Outputs:  []catalog.ItemCount{{Item: "WOODEN_PICKAXE", Count: 1}},
		Rows:     1, Cols: 1,
	}}
	g := guard.New(cat)

	svc, err := New(llm, limiter, g, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}

	req := testRequest()
	result, err := svc.Plan(context.Background(), req, model.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v (notes=%v)", result.Status, result.Notes)
	}
	if llm.calls != 2 {
		t.Fatalf("expected the guard's material rewrite (missing pickaxe) to trigger exactly one reprompt, got %d calls", llm.calls)
	}
	if !containsNote(result.Notes, "feasibility_reprompt_resolved") {
		t.Fatalf("expected a feasibility_reprompt_resolved note once the reprompt converges, got notes=%v", result.Notes)
	}
}

func containsNote(notes []string, want string) bool {
	for _, n := range notes {
		if n == want {
			return true
		}
	}
	return false
}

func TestPlanRateLimitedSkipsLLMAndReturnsFallback(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"next_goal":"x","subgoals":[]}`}}
	limiter := ratelimit.New(1, 1000)
	limiter.Consume("bot-1") // spend the single per-agent call so Plan is denied
	g := guard.New(testCatalog())

	svc, err := New(llm, limiter, g, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}

	result, err := svc.Plan(context.Background(), testRequest(), model.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", result.Status)
	}
	if llm.calls != 0 {
		t.Fatalf("expected the LLM never to be called on a rate-limit denial, got %d calls", llm.calls)
	}
	if len(result.Response.Subgoals) == 0 {
		t.Fatalf("expected a non-empty fallback plan")
	}
}

func TestPlanFallsBackOnUnparsableLLMOutput(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json at all", "still not json", "nope"}}
	limiter := ratelimit.New(100, 1000)
	g := guard.New(testCatalog())

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	svc, err := New(llm, limiter, g, cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}

	result, err := svc.Plan(context.Background(), testRequest(), model.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected FALLBACK for unparsable output, got %v", result.Status)
	}
	if len(result.Response.Subgoals) == 0 {
		t.Fatalf("expected a non-empty fallback plan")
	}
}

func TestExtractJSONHandlesCodeFences(t *testing.T) {
	raw := "```json\n{\"a\":1}\n```"
	got, ok := extractJSON(raw)
	if !ok || got != `{"a":1}` {
		t.Fatalf("expected fenced JSON extracted cleanly, got %q (ok=%v)", got, ok)
	}
}

func TestExtractJSONBracketMatchesTrailingProse(t *testing.T) {
	raw := "Sure, here is the plan: {\"a\":1} Hope that helps!"
	got, ok := extractJSON(raw)
	if !ok || got != `{"a":1}` {
		t.Fatalf("expected bracket-matched JSON, got %q (ok=%v)", got, ok)
	}
}
