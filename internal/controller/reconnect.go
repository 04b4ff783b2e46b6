package controller

import (
	"context"
	"math/rand"
	"time"

	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
)

// forceDisconnect implements spec §4.9's fast-recovery and general
// disconnect paths. The subgoal that was running, if any, is recorded as
// a timed-out attempt and run through the normal retry/streak decision —
// forceDisconnect only decides when to try reconnecting, never what the
// interrupted subgoal's outcome means.
func (c *Controller) forceDisconnect(reason string, fast bool) {
	if cur := c.state.CurrentSubgoal; cur != nil {
		rs := *cur
		result := model.Failure(model.FailStuckTimeout, reason, true)

		c.appendHistory(model.HistoryEntry{
			Timestamp:    c.now().UnixMilli(),
			SubgoalName:  rs.Name,
			Params:       rs.Params,
			Outcome:      result.Outcome,
			ErrorCode:    result.ErrorCode,
			ErrorDetails: result.ErrorDetails(),
			DurationMs:   c.now().Sub(c.execStartedAt).Milliseconds(),
		})
		c.metrics.IncSubgoalFailure(c.agentID, rs.Name, result.ErrorCode)

		c.state.CurrentSubgoal = nil
		c.setBusy(false)
		c.skillSlots.Leave(c.agentID)
		c.handleSubgoalFailure(subgoalOutcome{subgoal: rs, result: result})
	}

	c.invalidateSpeculative()
	c.prefetchInFlight = false
	c.plannerInFlight = false
	c.phase = model.PhaseDisconnected
	c.state.LastError = reason
	c.store.RecordIncident(c.rootCtx, c.agentID, "disconnect", reason)

	delay := c.reconnectDelay(fast, c.disconnectStreak)
	if fast {
		c.disconnectStreak = 0
	} else {
		c.disconnectStreak++
	}
	c.scheduleReconnect(delay)
}

// reconnectDelay implements spec §4.9/§4.10: fast-recovery reasons skip
// the streak penalty entirely, general reasons back off with jitter plus
// one ReconnectBaseDelay per consecutive disconnect.
func (c *Controller) reconnectDelay(fast bool, streak int) time.Duration {
	if fast {
		return c.cfg.ReconnectFastDelay
	}
	var jitter time.Duration
	if c.cfg.ReconnectJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(c.cfg.ReconnectJitter) + 1))
	}
	penalty := time.Duration(streak) * c.cfg.ReconnectBaseDelay
	return c.cfg.ReconnectBaseDelay + jitter + penalty
}

// scheduleReconnect waits out delay on its own goroutine, then hands the
// reconnect attempt's result back to the run loop over reconnectCh — the
// same request/response-channel shape as skill execution and planning.
func (c *Controller) scheduleReconnect(delay time.Duration) {
	ctx := c.rootCtx
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		err := c.reconnector.Reconnect(ctx)
		select {
		case c.reconnectCh <- reconnectOutcome{err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) onReconnectResult(res reconnectOutcome) {
	if res.err != nil {
		c.logger.Printf("controller %s: reconnect failed: %v", c.agentID, res.err)
		c.store.RecordIncident(c.rootCtx, c.agentID, "reconnect_failed", res.err.Error())
		c.disconnectStreak++
		c.scheduleReconnect(c.reconnectDelay(false, c.disconnectStreak))
		return
	}

	c.phase = model.PhaseConnectedIdle
	c.state.PendingTriggers.Remove(model.TriggerReconnect)

	now := c.now()
	c.lastActivityAt = now
	c.lastProgressAt = now
	state := c.agent.State()
	c.lastProgressPos = toPosition(state.Position)
	c.lastProgressLoad = inventoryCount(state.Inventory)
}

// refreshSnapshot asks the Snapshot Builder for a fresh view under the
// configured timeout, folding in this controller's own task context since
// the builder has no way to see it otherwise.
func (c *Controller) refreshSnapshot(ctx context.Context) (model.Snapshot, error) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SnapshotTimeout)
	defer cancel()

	task := model.TaskContext{
		CurrentGoal:      c.state.CurrentGoal,
		ProgressCounters: c.state.ProgressCounters,
		LastError:        c.state.LastError,
		HasLastError:     c.state.LastError != "",
	}
	if c.state.CurrentSubgoal != nil {
		task.CurrentSubgoal = string(c.state.CurrentSubgoal.Name)
	}

	snap, err := c.snapshots.Build(sctx, c.tick, task)
	if err != nil {
		return model.Snapshot{}, err
	}
	c.lastSnapshot = snap
	return snap, nil
}

// buildPlannerRequest implements spec §6's Planner Request payload. On a
// snapshot failure it falls back to the last good snapshot rather than
// blocking the tick loop on adapter trouble.
func (c *Controller) buildPlannerRequest(ctx context.Context) planner.Request {
	snap, err := c.refreshSnapshot(ctx)
	if err != nil {
		c.logger.Printf("controller %s: snapshot refresh failed, reusing last snapshot: %v", c.agentID, err)
		snap = c.lastSnapshot
	}
	return planner.Request{
		BotID:             c.agentID,
		Snapshot:          snap,
		History:           append([]model.HistoryEntry(nil), c.state.History...),
		AvailableSubgoals: allSubgoalNames(),
	}
}
