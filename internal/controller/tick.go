package controller

import (
	"context"
	"math"

	"fleetcore.ai/internal/model"
)

// doTick runs the spec §4.9 order-of-checks. Checks 1-3 can each abort the
// tick by forcing a disconnect; step 4 always runs; steps 5-7 are an
// if/else-if chain, the first applicable one winning.
func (c *Controller) doTick(ctx context.Context) {
	if c.phase == model.PhaseDisconnected {
		return
	}

	if c.checkExecTimeout() {
		return
	}
	if c.checkIdleStall() {
		return
	}
	if c.checkStuck() {
		return
	}

	c.maybeStartPrefetch(ctx)
	c.handleInactivityAndHoist(ctx)

	if c.tryExecuteNextReady(ctx) {
		return
	}
	if c.tryRequestPlan(ctx) {
		return
	}
	c.maybeEnqueueAlwaysActiveFallback(ctx)
}

// checkExecTimeout implements step 1: a subgoal that has run past
// T_exec_timeout forces a disconnect-recover cycle rather than trusting
// the handler to ever return.
func (c *Controller) checkExecTimeout() bool {
	if !c.state.Busy {
		return false
	}
	if c.now().Sub(c.execStartedAt) < c.cfg.ExecTimeout {
		return false
	}
	c.forceDisconnect("subgoal_timeout", true)
	return true
}

// checkIdleStall implements step 2: probe progress every
// ProgressProbeInterval by position delta or inventory change; if none
// for IdleStallTimeout, force a disconnect.
func (c *Controller) checkIdleStall() bool {
	if !c.state.Busy {
		return false
	}
	if c.now().Sub(c.lastProbeAt) < c.cfg.ProgressProbeInterval {
		return false
	}
	c.lastProbeAt = c.now()

	state := c.agent.State()
	pos := toPosition(state.Position)
	load := inventoryCount(state.Inventory)

	moved := posDistance(pos, c.lastProgressPos) >= 0.15
	changed := load != c.lastProgressLoad
	if moved || changed {
		c.lastProgressAt = c.now()
		c.lastProgressPos = pos
		c.lastProgressLoad = load
		return false
	}

	if c.now().Sub(c.lastProgressAt) >= c.cfg.IdleStallTimeout {
		c.forceDisconnect("subgoal_idle_stall", true)
		return true
	}
	return false
}

// checkStuck implements step 3: honor a pending STUCK trigger from the
// Reflex Monitor once the current subgoal has run long enough to rule out
// a false positive, and not too soon after the last time this fired.
func (c *Controller) checkStuck() bool {
	if !c.state.Busy || !c.state.PendingTriggers.Has(model.TriggerStuck) {
		return false
	}
	if c.now().Sub(c.execStartedAt) < c.cfg.StuckMinElapsed {
		return false
	}
	if c.now().Sub(c.lastStuckHandledAt) < c.cfg.StuckHandlingCooldown {
		return false
	}
	c.lastStuckHandledAt = c.now()
	c.state.PendingTriggers.Remove(model.TriggerStuck)
	c.forceDisconnect("stuck_recovery", true)
	return true
}

// handleInactivityAndHoist implements step 4.
func (c *Controller) handleInactivityAndHoist(ctx context.Context) {
	if c.state.Busy {
		return
	}

	if len(c.state.Queue) == 0 {
		if c.now().Sub(c.lastActivityAt) >= c.cfg.IdleStallTimeout {
			c.enqueueLocalPlan(ctx, "autonomous_progression_inactivity")
			c.lastActivityAt = c.now()
		}
		return
	}

	nowMs := c.now().UnixMilli()
	minIdx := -1
	for i, sg := range c.state.Queue {
		if sg.NotBeforeMs <= nowMs {
			return // at least one subgoal is ready; nothing to hoist
		}
		if minIdx < 0 || sg.NotBeforeMs < c.state.Queue[minIdx].NotBeforeMs {
			minIdx = i
		}
	}
	if minIdx >= 0 {
		c.state.Queue[minIdx].NotBeforeMs = nowMs
	}
}

// tryExecuteNextReady implements step 5.
func (c *Controller) tryExecuteNextReady(ctx context.Context) bool {
	if c.state.Busy {
		return false
	}

	nowMs := c.now().UnixMilli()
	idx := -1
	for i, sg := range c.state.Queue {
		if sg.NotBeforeMs <= nowMs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	if !c.skillSlots.TryEnter(c.agentID) {
		return false
	}

	rs := c.state.Queue[idx].Clone()
	c.state.Queue = append(c.state.Queue[:idx:idx], c.state.Queue[idx+1:]...)

	_ = c.agent.ClearControlStates(ctx)

	started := c.now()
	c.execStartedAt = started
	c.lastProbeAt = started
	c.lastActivityAt = started

	agentState := c.agent.State()
	c.lastProgressPos = toPosition(agentState.Position)
	c.lastProgressLoad = inventoryCount(agentState.Inventory)
	c.lastProgressAt = started
	startHealth := agentState.Health

	c.state.CurrentSubgoal = &rs
	c.setBusy(true)

	go func() {
		result := c.skills.Execute(ctx, rs.Subgoal)
		c.resultCh <- subgoalOutcome{subgoal: rs, result: result, startedAt: started, startHealth: startHealth}
	}()
	return true
}

// tryRequestPlan implements step 6.
func (c *Controller) tryRequestPlan(ctx context.Context) bool {
	if len(c.state.Queue) != 0 {
		return false
	}
	if c.state.PendingTriggers.Len() == 0 {
		return false
	}
	if c.now().UnixMilli() < c.state.PlannerCooldownUntilMs {
		return false
	}
	if c.plannerInFlight {
		return false
	}

	c.plannerInFlight = true
	if !c.state.Busy {
		c.phase = model.PhasePlanning
	}
	c.state.PendingTriggers.Clear()

	req := c.buildPlannerRequest(ctx)
	go func() {
		result, err := c.planner.Plan(ctx, req, c.cfg.BasePosition)
		c.planCh <- planOutcome{req: req, result: result, err: err}
	}()
	return true
}

func (c *Controller) onPlanResult(res planOutcome) {
	c.plannerInFlight = false
	if !c.state.Busy {
		c.phase = model.PhaseConnectedIdle
	}
	c.store.RecordLLMCall(c.rootCtx, c.agentID, res.req, res.result, res.err)
	c.state.CurrentGoal = res.result.Response.NextGoal
	c.state.Queue = c.toRuntimeQueue(res.result.Response.Subgoals)
}

// maybeEnqueueAlwaysActiveFallback implements step 7: when nothing else
// applied, the core still needs a plan to make forward progress, so it
// asks the Fallback Planner directly rather than burning an LLM call.
func (c *Controller) maybeEnqueueAlwaysActiveFallback(ctx context.Context) {
	if !c.cfg.AlwaysActiveFallbackEnabled || c.state.Busy || len(c.state.Queue) != 0 {
		return
	}
	c.enqueueLocalPlan(ctx, "always_active")
}

func (c *Controller) enqueueLocalPlan(ctx context.Context, reason string) {
	snap, err := c.refreshSnapshot(ctx)
	if err != nil {
		c.logger.Printf("controller %s: snapshot refresh failed for local plan (%s): %v", c.agentID, reason, err)
		return
	}
	plan := c.fallback.Plan(snap, reason, c.cfg.BasePosition)
	c.state.CurrentGoal = plan.NextGoal
	c.state.Queue = c.toRuntimeQueue(plan.Subgoals)
}

func posDistance(a, b model.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
