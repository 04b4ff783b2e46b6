package store

import (
	"context"
	"encoding/json"
	"fmt"

	"fleetcore.ai/internal/model"
)

// BotStateRow is one bot's most recently persisted snapshot, the read
// side fleetctl's `status` subcommand queries when it runs against a
// store rather than a live fleet.
type BotStateRow struct {
	AgentID string
	AtMs    int64
	Snap    model.Snapshot
}

// LatestBotStates returns the most recent bot_state row for every agent
// that has ever recorded one, ordered by agent id.
func (s *Store) LatestBotStates(ctx context.Context) ([]BotStateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, at_ms, snapshot_json FROM bot_state b
		WHERE at_ms = (SELECT MAX(at_ms) FROM bot_state WHERE agent_id = b.agent_id)
		ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("store: query bot_state: %w", err)
	}
	defer rows.Close()

	var out []BotStateRow
	for rows.Next() {
		var r BotStateRow
		var raw string
		if err := rows.Scan(&r.AgentID, &r.AtMs, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Snap); err != nil {
			return nil, fmt.Errorf("store: decode snapshot for %s: %w", r.AgentID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LockRow is one row of the locks event log.
type LockRow struct {
	AtMs        int64
	Action      model.LockAction
	ResourceKey string
	OwnerAgent  string
}

// CurrentLockOwners derives the current holder of every resource key that
// has ever seen a lock event, by taking the most recent acquire/release
// row per key — the persisted analogue of lockmgr.Manager.OwnerOf for
// fleetctl's `locks` subcommand, which has no live Manager to query.
func (s *Store) CurrentLockOwners(ctx context.Context) ([]LockRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_ms, action, resource_key, owner_agent_id FROM locks l
		WHERE at_ms = (SELECT MAX(at_ms) FROM locks WHERE resource_key = l.resource_key)
		ORDER BY resource_key`)
	if err != nil {
		return nil, fmt.Errorf("store: query locks: %w", err)
	}
	defer rows.Close()

	var out []LockRow
	for rows.Next() {
		var r LockRow
		var action string
		if err := rows.Scan(&r.AtMs, &action, &r.ResourceKey, &r.OwnerAgent); err != nil {
			return nil, err
		}
		r.Action = model.LockAction(action)
		if r.Action == model.LockActionRelease || r.Action == model.LockActionExpire {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSubgoalAttempts returns the most recent n subgoal_attempts rows
// for agentID, newest first, for fleetctl's `replay-attempts` subcommand.
func (s *Store) RecentSubgoalAttempts(ctx context.Context, agentID string, n int) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result_json FROM subgoal_attempts
		WHERE agent_id = ? ORDER BY seq DESC LIMIT ?`, agentID, n)
	if err != nil {
		return nil, fmt.Errorf("store: query subgoal_attempts: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("store: decode subgoal_attempts row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
