package planner

import "fleetcore.ai/internal/model"

// Status is the Planner Service's outer result kind (spec §4.6):
// plan(request) → {status, response, tokens_in?, tokens_out?, notes?}.
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusRateLimited Status = "RATE_LIMITED"
	StatusFallback    Status = "FALLBACK"
)

// Request is the Planner Request payload (spec §6): bot_id, snapshot,
// history, and the set of subgoal names available this call.
type Request struct {
	BotID             string               `json:"bot_id"`
	Snapshot          model.Snapshot       `json:"snapshot"`
	History           []model.HistoryEntry `json:"history"`
	AvailableSubgoals []model.SubgoalName  `json:"available_subgoals"`
}

// Result is the outer shape returned by Service.Plan.
type Result struct {
	Status    Status
	Response  model.Plan
	TokensIn  int
	TokensOut int
	Notes     []string
}
