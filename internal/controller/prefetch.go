package controller

import (
	"context"
)

// maybeStartPrefetch implements spec §4.9's speculative planning: while
// executing the last queued subgoal with nothing else pending, get a plan
// ready before SUBGOAL_COMPLETED actually fires, so the agent never idles
// waiting on an LLM round trip it could have started earlier.
func (c *Controller) maybeStartPrefetch(ctx context.Context) {
	if !c.cfg.PrefetchEnabled || c.prefetchInFlight || c.plannerInFlight {
		return
	}
	if !c.state.Busy || c.state.CurrentSubgoal == nil {
		return
	}
	if len(c.state.Queue) != 0 || c.state.PendingTriggers.Len() != 0 {
		return
	}
	if c.now().Sub(c.execStartedAt) < c.cfg.PrefetchStartAfter {
		return
	}
	if c.now().Sub(c.lastPrefetchAt) < c.cfg.PrefetchMinInterval {
		return
	}
	if !c.prefetchCapsAllow() {
		return
	}

	c.prefetchInFlight = true
	c.lastPrefetchAt = c.now()
	forID := c.state.CurrentSubgoal.ID
	req := c.buildPlannerRequest(ctx)

	go func() {
		result, err := c.planner.Plan(ctx, req, c.cfg.BasePosition)
		c.prefetchCh <- prefetchOutcome{forSubgoalID: forID, req: req, result: result, ok: err == nil, err: err}
	}()
}

// prefetchCapsAllow leaves PrefetchReserveCalls of headroom under both rate
// limiter caps, so a speculative call can never be the one that pushes a
// real trigger-driven plan request into RATE_LIMITED.
func (c *Controller) prefetchCapsAllow() bool {
	if c.limiter == nil {
		return true
	}
	reserve := c.cfg.PrefetchReserveCalls
	if c.cfg.PlannerPerAgentCap > 0 {
		if c.limiter.CallsInLastHour(c.agentID)+reserve >= c.cfg.PlannerPerAgentCap {
			return false
		}
	}
	if c.cfg.PlannerGlobalCap > 0 {
		if c.limiter.CallsInLastHour("")+reserve >= c.cfg.PlannerGlobalCap {
			return false
		}
	}
	return true
}

func (c *Controller) onPrefetchResult(res prefetchOutcome) {
	c.prefetchInFlight = false
	c.store.RecordLLMCall(c.rootCtx, c.agentID, res.req, res.result, res.err)
	if !res.ok {
		return
	}
	c.speculative = &speculativePlan{
		preparedAt:   c.now(),
		forSubgoalID: res.forSubgoalID,
		nextGoal:     res.result.Response.NextGoal,
		subgoals:     res.result.Response.Subgoals,
	}
}

// consumeSpeculativeIfFresh installs the cached plan in place of a real
// planner call when it was prepared for this exact subgoal and is still
// within PrefetchMaxAge of its preparation time.
func (c *Controller) consumeSpeculativeIfFresh(subgoalID string) bool {
	sp := c.speculative
	if sp == nil || sp.forSubgoalID != subgoalID {
		return false
	}
	c.speculative = nil
	if c.now().Sub(sp.preparedAt) > c.cfg.PrefetchMaxAge {
		return false
	}
	c.state.CurrentGoal = sp.nextGoal
	c.state.Queue = c.toRuntimeQueue(sp.subgoals)
	return true
}

func (c *Controller) invalidateSpeculative() {
	c.speculative = nil
}
