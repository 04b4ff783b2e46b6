package controller

import (
	"context"
	"fmt"
	"strings"

	"fleetcore.ai/internal/model"
)

// onSubgoalResult implements the "Executing next subgoal" return path of
// spec §4.9: history, persistence, metrics, then the retry/streak/loop
// guard decision on failure or the queue/speculative-plan handling on
// success.
func (c *Controller) onSubgoalResult(ctx context.Context, res subgoalOutcome) {
	duration := c.now().Sub(res.startedAt)
	state := c.agent.State()
	healthDelta := state.Health - res.startHealth

	entry := model.HistoryEntry{
		Timestamp:   c.now().UnixMilli(),
		SubgoalName: res.subgoal.Name,
		Params:      res.subgoal.Params,
		Outcome:     res.result.Outcome,
		HealthDelta: healthDelta,
		DurationMs:  duration.Milliseconds(),
	}
	if res.result.IsFailure() {
		entry.ErrorCode = res.result.ErrorCode
		entry.ErrorDetails = res.result.ErrorDetails()
	}
	c.appendHistory(entry)
	c.store.RecordSubgoalAttempt(ctx, c.agentID, entry)
	c.metrics.ObserveSubgoalDuration(c.agentID, res.subgoal.Name, duration)

	if res.result.IsFailure() {
		c.metrics.IncSubgoalFailure(c.agentID, res.subgoal.Name, res.result.ErrorCode)
		c.handleSubgoalFailure(res)
	} else {
		c.handleSubgoalSuccess(res)
	}

	c.state.CurrentSubgoal = nil
	c.setBusy(false)
	_ = c.agent.ClearControlStates(ctx)
	c.skillSlots.Leave(c.agentID)
	c.lastActivityAt = c.now()
}

func (c *Controller) appendHistory(entry model.HistoryEntry) {
	c.state.History = append(c.state.History, entry)
	if len(c.state.History) > c.cfg.HistoryLimit {
		c.state.History = c.state.History[len(c.state.History)-c.cfg.HistoryLimit:]
	}
}

func streakKey(name model.SubgoalName, code model.FailureCode) string {
	return fmt.Sprintf("%s:%s", name, code)
}

func (c *Controller) bumpStreak(key string) int {
	now := c.now()
	e, ok := c.streaks[key]
	if !ok || now.Sub(e.windowStart) > c.cfg.StreakWindow {
		e = streakEntry{windowStart: now}
	}
	e.count++
	c.streaks[key] = e
	return e.count
}

func (c *Controller) resetStreaksFor(name model.SubgoalName) {
	prefix := string(name) + ":"
	for k := range c.streaks {
		if strings.HasPrefix(k, prefix) {
			delete(c.streaks, k)
		}
	}
}

// handleSubgoalFailure implements spec §4.9's failure bullet list:
// retryability, the failure-streak loop guard, the per-code retry
// budget, then either a head-of-queue requeue with backoff or dropping
// the rest of the queue and pushing SUBGOAL_FAILED.
func (c *Controller) handleSubgoalFailure(res subgoalOutcome) {
	code := res.result.ErrorCode
	retryable := res.result.Retryable && model.CanRetryFailure(code)

	if count := c.bumpStreak(streakKey(res.subgoal.Name, code)); count >= c.cfg.LoopGuardRepeats {
		retryable = false
	}

	limit := c.cfg.SubgoalRetryLimit + model.ExtraRetriesForCode(code)

	if retryable && res.subgoal.RetryCount < limit {
		retry := res.subgoal.Clone()
		retry.RetryCount++
		c.subgoalSeq++
		retry.ID = fmt.Sprintf("%s-%d", c.agentID, c.subgoalSeq)
		delay := jitteredDelay(c.cfg.RetryBaseDelay, retry.RetryCount)
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
		retry.NotBeforeMs = c.now().Add(delay).UnixMilli()
		c.state.Queue = append([]model.RuntimeSubgoal{retry}, c.state.Queue...)
	} else {
		c.state.Queue = nil
		c.state.PlannerCooldownUntilMs = c.now().UnixMilli()
		c.state.LastError = res.result.ErrorDetails()
		c.state.PendingTriggers.Add(model.TriggerSubgoalFailed)
	}

	c.invalidateSpeculative()
}

// handleSubgoalSuccess implements spec §4.9's success bullet: reset the
// failure streak for this subgoal name, bump its progress counter, and
// either consume a fresh speculative plan or push SUBGOAL_COMPLETED when
// the queue has run dry.
func (c *Controller) handleSubgoalSuccess(res subgoalOutcome) {
	c.resetStreaksFor(res.subgoal.Name)

	if c.state.ProgressCounters == nil {
		c.state.ProgressCounters = make(map[string]int)
	}
	c.state.ProgressCounters[string(res.subgoal.Name)]++

	if len(c.state.Queue) == 0 {
		if c.consumeSpeculativeIfFresh(res.subgoal.ID) {
			return
		}
		c.state.PendingTriggers.Add(model.TriggerSubgoalCompleted)
	}
}
