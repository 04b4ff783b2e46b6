package model

// Trigger is an event that, when pending, causes the Agent Controller to
// call the planner (spec §3, GLOSSARY).
type Trigger string

const (
	TriggerIdle             Trigger = "IDLE"
	TriggerSubgoalCompleted Trigger = "SUBGOAL_COMPLETED"
	TriggerSubgoalFailed    Trigger = "SUBGOAL_FAILED"
	TriggerAttacked         Trigger = "ATTACKED"
	TriggerDeath            Trigger = "DEATH"
	TriggerStuck            Trigger = "STUCK"
	TriggerNightfall        Trigger = "NIGHTFALL"
	TriggerInventoryFull    Trigger = "INVENTORY_FULL"
	TriggerToolMissing      Trigger = "TOOL_MISSING"
	TriggerReconnect        Trigger = "RECONNECT"
)

// TriggerSet has set semantics: duplicates collapse. DEATH clears the queue
// — that is enforced by the controller, not here, since it touches the
// queue field of TaskState too.
type TriggerSet map[Trigger]struct{}

func NewTriggerSet() TriggerSet { return make(TriggerSet) }

func (s TriggerSet) Add(t Trigger) { s[t] = struct{}{} }

func (s TriggerSet) Has(t Trigger) bool {
	_, ok := s[t]
	return ok
}

func (s TriggerSet) Remove(t Trigger) { delete(s, t) }

func (s TriggerSet) Clear() {
	for t := range s {
		delete(s, t)
	}
}

func (s TriggerSet) Len() int { return len(s) }

func (s TriggerSet) Clone() TriggerSet {
	out := make(TriggerSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// AgentPhase names the Agent Controller's visible states (spec §4.9).
type AgentPhase string

const (
	PhaseDisconnected  AgentPhase = "DISCONNECTED"
	PhaseConnectedIdle AgentPhase = "CONNECTED_IDLE"
	PhasePlanning      AgentPhase = "PLANNING"
	PhaseExecuting     AgentPhase = "EXECUTING"
	PhaseAwaitingRetry AgentPhase = "AWAITING_RETRY"
)

// TaskState is the per-agent mutable state owned exclusively by that
// agent's controller (spec §3, §5 ownership model).
type TaskState struct {
	CurrentGoal    string
	CurrentSubgoal *RuntimeSubgoal

	Queue []RuntimeSubgoal

	ProgressCounters map[string]int
	LastError        string

	Busy bool

	PlannerCooldownUntilMs int64
	PendingTriggers        TriggerSet

	History []HistoryEntry
}

func NewTaskState() *TaskState {
	return &TaskState{
		ProgressCounters: make(map[string]int),
		PendingTriggers:  NewTriggerSet(),
	}
}

// Clone returns a deep copy, used by callers that hand the task state to
// another goroutine (e.g. the fleet orchestrator's status reporting)
// while the owning controller keeps mutating the original.
func (t *TaskState) Clone() TaskState {
	queue := make([]RuntimeSubgoal, len(t.Queue))
	for i, sg := range t.Queue {
		queue[i] = sg.Clone()
	}
	var current *RuntimeSubgoal
	if t.CurrentSubgoal != nil {
		c := t.CurrentSubgoal.Clone()
		current = &c
	}
	counters := make(map[string]int, len(t.ProgressCounters))
	for k, v := range t.ProgressCounters {
		counters[k] = v
	}
	history := make([]HistoryEntry, len(t.History))
	copy(history, t.History)
	return TaskState{
		CurrentGoal:            t.CurrentGoal,
		CurrentSubgoal:         current,
		Queue:                  queue,
		ProgressCounters:       counters,
		LastError:              t.LastError,
		Busy:                   t.Busy,
		PlannerCooldownUntilMs: t.PlannerCooldownUntilMs,
		PendingTriggers:        t.PendingTriggers.Clone(),
		History:                history,
	}
}

// CheckInvariants is used by tests to assert the §3/§8 state-machine
// invariant: busy iff current subgoal is non-nil.
func (t *TaskState) CheckInvariants() error {
	if t.Busy && t.CurrentSubgoal == nil {
		return errBusyWithoutSubgoal
	}
	if !t.Busy && t.CurrentSubgoal != nil {
		return errSubgoalWithoutBusy
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

const (
	errBusyWithoutSubgoal = invariantError("busy is true but current_subgoal is nil")
	errSubgoalWithoutBusy = invariantError("current_subgoal is set but busy is false")
)
