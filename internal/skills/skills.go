// Package skills implements the Skill Engine, spec §4.8: dispatches a
// normalized, feasibility-guarded subgoal to a deterministic handler,
// wrapping it with the lock-key acquire/heartbeat/release lifecycle the
// spec's lock-key table requires.
//
// No teacher file plays this role — the teacher's bot main loop issues
// raw ACT instants/tasks with no dispatch table and no lock concept at
// all — so the dispatch-by-name shape here is grounded directly on the
// spec §4.8 table, reusing internal/lockmgr (already grounded on the
// teacher's single-mutex shared-service shape) for the lock lifecycle
// and internal/adapter's capability interfaces for every actual game
// action.
package skills

import (
	"context"
	"fmt"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/admission"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/lockmgr"
	"fleetcore.ai/internal/model"
)

// ScanRadius bounds the NearbyBlocks scan handlers issue when they need
// to resolve a target name to a concrete position (collect; goto_nearest
// scans its own max_distance instead).
const ScanRadius = 32

// Engine is the Skill Engine: execute(context, subgoal) -> SkillResult.
type Engine struct {
	agentID     string
	agent       adapter.Agent
	lookup      catalog.Lookup
	locks       *lockmgr.Manager
	heartbeatMs int64
	explorers   *admission.ExplorerLimiter
}

func New(agentID string, agent adapter.Agent, lookup catalog.Lookup, locks *lockmgr.Manager, lockHeartbeatMs int64) *Engine {
	return &Engine{
		agentID:     agentID,
		agent:       agent,
		lookup:      lookup,
		locks:       locks,
		heartbeatMs: lockHeartbeatMs,
	}
}

// SetExplorerLimiter wires the fleet-wide ExplorerLimiter (spec §4.3)
// into explore dispatch. Optional: a nil limiter (the default) leaves
// explore unthrottled, which is what every existing Engine built before
// this limiter leaves in place.
func (e *Engine) SetExplorerLimiter(l *admission.ExplorerLimiter) {
	e.explorers = l
}

// handler returns either a fully-formed SkillResult (including an
// intentional Failure), or a non-nil error for an unstructured problem
// the engine itself must wrap.
type handler func(ctx context.Context, e *Engine, s model.Subgoal) (model.SkillResult, error)

var handlers = map[model.SubgoalName]handler{
	model.SubgoalExplore:        handleExplore,
	model.SubgoalGoto:           handleGoto,
	model.SubgoalGotoNearest:    handleGotoNearest,
	model.SubgoalCollect:        handleCollect,
	model.SubgoalCraft:          handleCraft,
	model.SubgoalSmelt:          handleSmelt,
	model.SubgoalDeposit:        handleDeposit,
	model.SubgoalWithdraw:       handleWithdraw,
	model.SubgoalBuildBlueprint: handleBuildBlueprint,
	model.SubgoalCombatEngage:   handleCombatEngage,
	model.SubgoalCombatGuard:    handleCombatGuard,
}

// Execute implements spec §4.8: compute the lock key, acquire it if one
// exists, heartbeat it for the handler's duration, and always release on
// every exit path, wrapping an unstructured handler error as
// Failure(DEPENDS_ON_ITEM, ..., retryable=false).
func (e *Engine) Execute(ctx context.Context, s model.Subgoal) model.SkillResult {
	h, known := handlers[s.Name]
	if !known {
		return model.Failure(model.FailDependsOnItem, fmt.Sprintf("no skill handler for subgoal %q", s.Name), false)
	}

	if s.Name == model.SubgoalExplore && e.explorers != nil {
		if !e.explorers.TryEnter(e.agentID) {
			return model.Failure(model.FailDependsOnItem, "explorer slots full", true)
		}
		defer e.explorers.Leave(e.agentID)
	}

	key, hasLock := lockKeyFor(s)
	if hasLock {
		if !e.locks.Acquire(key, e.agentID) {
			return model.Failure(model.FailDependsOnItem, fmt.Sprintf("resource locked: %s", key), true)
		}
		defer e.locks.Release(key, e.agentID)

		stop := e.startHeartbeat(key)
		defer stop()
	}

	result, err := h(ctx, e, s)
	if err != nil {
		return model.Failure(model.FailDependsOnItem, err.Error(), false)
	}
	return result
}

// lockKeyFor implements the spec §4.8 lock-key table.
func lockKeyFor(s model.Subgoal) (string, bool) {
	switch s.Name {
	case model.SubgoalCollect:
		target, _ := s.Params.String("block")
		return fmt.Sprintf("resource:%s", target), true
	case model.SubgoalBuildBlueprint:
		x, y, z, ok := anchorXYZ(s.Params)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("build:%d,%d,%d", x, y, z), true
	case model.SubgoalDeposit, model.SubgoalWithdraw:
		return "storage:base", true
	default:
		return "", false
	}
}

func (e *Engine) startHeartbeat(key string) (stop func()) {
	if e.heartbeatMs <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(e.heartbeatMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.locks.Heartbeat(key, e.agentID)
			}
		}
	}()
	return func() { close(done) }
}

func anchorXYZ(p model.Params) (int, int, int, bool) {
	raw, ok := p["anchor"]
	if !ok {
		return 0, 0, 0, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		if mp, ok := raw.(model.Params); ok {
			m = mp
		} else {
			return 0, 0, 0, false
		}
	}
	x, okX := toInt(m["x"])
	y, okY := toInt(m["y"])
	z, okZ := toInt(m["z"])
	if !okX || !okY || !okZ {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

func toInt(v any) (int, bool) {
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
