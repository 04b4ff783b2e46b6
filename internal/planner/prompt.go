package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"fleetcore.ai/internal/model"
)

// allowedSubgoalNames and the parameter-key rules below are the stable
// strings the prompt contract (spec §4.6) requires the implementer to
// reproduce so the LLM sees a consistent instruction set call to call.
var allowedSubgoalNames = []model.SubgoalName{
	model.SubgoalExplore, model.SubgoalGoto, model.SubgoalGotoNearest,
	model.SubgoalCollect, model.SubgoalCraft, model.SubgoalSmelt,
	model.SubgoalDeposit, model.SubgoalWithdraw, model.SubgoalBuildBlueprint,
	model.SubgoalCombatEngage, model.SubgoalCombatGuard,
}

const paramKeyRules = `Canonical parameter keys per subgoal name:
  collect: {block: string, count: int>=1}
  goto_nearest: {block: string, max_distance: int>0 (default 48)}
  craft: {item: string, count: int>=1}
  withdraw: {item: string, count: int>=1}
  smelt: {input: string, count: int>=1, fuel?: string}
  goto: {x: int, y: int, z: int, range: int>=1 (default 2)}
  explore: {radius: int, return_to_base?: bool, resource_hint?: string}
  deposit: {strategy: string}
  build_blueprint: {blueprint_id: string, anchor: {x,y,z}}
  combat_engage: {max_targets: int, max_distance: number}
  combat_guard: {radius: number, duration: int}`

const executionSemantics = `Subgoals execute in order. A failed subgoal may be retried by the ` +
	`executor up to a per-failure-code limit; do not plan around retries yourself. ` +
	`Resources you do not currently own must be acquired by a prior subgoal in the ` +
	`same plan — the executor will not silently substitute ingredients.`

const reasoningProtocol = `Before producing subgoals, reason through these four steps internally ` +
	`(do not include the reasoning in your output, only the final JSON):
  1. Build a projected inventory starting from the current inventory.
  2. Validate the preconditions of each subgoal you intend to emit against that projection.
  3. Prepend any missing prerequisites (tools, crafted intermediates, workbench access).
  4. Re-simulate the full sequence to confirm every subgoal's preconditions hold when it runs.`

// buildPrompt renders the initial Planner Request prompt (spec §4.6's
// "prompt contract"): allowed subgoal names, parameter key rules,
// execution semantics, the four-step reasoning protocol, then the full
// request payload as JSON.
func buildPrompt(req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal planner request: %w", err)
	}

	names := make([]string, len(allowedSubgoalNames))
	for i, n := range allowedSubgoalNames {
		names[i] = string(n)
	}

	var b strings.Builder
	b.WriteString("You control a headless game-client agent. Respond with a single JSON object ")
	b.WriteString("matching the Planner Response schema: {next_goal, subgoals, risk_flags?, constraints?}.\n\n")
	b.WriteString("Allowed subgoal names: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\n")
	b.WriteString(paramKeyRules)
	b.WriteString("\n\n")
	b.WriteString(executionSemantics)
	b.WriteString("\n\n")
	b.WriteString(reasoningProtocol)
	b.WriteString("\n\nRequest:\n")
	b.Write(payload)
	return b.String(), nil
}

// buildRepairPrompt is the reprompt variant used after the Feasibility
// Guard materially rewrites a plan (spec §4.6 step 5): it includes the
// prior subgoals, the guard-adjusted subgoals, and up to 24 guard notes.
func buildRepairPrompt(req Request, previous, guarded []model.Subgoal, notes []string) (string, error) {
	base, err := buildPrompt(req)
	if err != nil {
		return "", err
	}

	prevJSON, err := json.Marshal(previous)
	if err != nil {
		return "", fmt.Errorf("marshal previous subgoals: %w", err)
	}
	guardedJSON, err := json.Marshal(guarded)
	if err != nil {
		return "", fmt.Errorf("marshal guarded subgoals: %w", err)
	}

	if len(notes) > maxRepairNotes {
		notes = notes[:maxRepairNotes]
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nThe feasibility checker rewrote your previous plan. Your subgoals:\n")
	b.Write(prevJSON)
	b.WriteString("\n\nAfter feasibility adjustment:\n")
	b.Write(guardedJSON)
	b.WriteString("\n\nReasons for the adjustment:\n- ")
	b.WriteString(strings.Join(notes, "\n- "))
	b.WriteString("\n\nProduce a revised plan that already satisfies its own prerequisites.")
	return b.String(), nil
}

const maxRepairNotes = 24

// extractJSON implements spec §4.6 step 4's "extract JSON from raw
// text (strip fences, else bracket-match)".
func extractJSON(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	if fenced, ok := stripCodeFence(trimmed); ok {
		trimmed = strings.TrimSpace(fenced)
	}

	if json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end < start {
		return "", false
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return s, false
	}
	rest := strings.TrimPrefix(s, "```")
	if idx := strings.Index(rest, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(rest[:idx])
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			rest = rest[idx+1:]
		}
	}
	rest = strings.TrimSuffix(strings.TrimRight(rest, "\n"), "```")
	return rest, true
}
