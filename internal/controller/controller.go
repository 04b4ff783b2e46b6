// Package controller implements the Agent Controller, spec §4.9: the
// per-agent state machine that ties the Snapshot Builder, Planner
// Service, Skill Engine and Reflex Monitor together into one tick loop.
//
// Grounded on the teacher's internal/sim/world/runtime_loop.go: a single
// goroutine owns all per-agent state and advances it by draining request
// channels plus a ticker in one select loop, never sharing that state
// across goroutines directly. This generalizes that shape from "one
// world, many agents' actions batched per tick" to "one agent, its own
// tick", and replaces the teacher's inbox-of-raw-actions with channels
// carrying the three kinds of asynchronous work this controller
// dispatches: skill execution, planner calls, and reconnect waits —
// exactly the "coroutine control flow become tasks + channels" redesign
// spec §9 calls for.
package controller

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/admission"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
	"fleetcore.ai/internal/ratelimit"
	"fleetcore.ai/internal/reflex"
	"fleetcore.ai/internal/skills"
	"fleetcore.ai/internal/snapshot"
)

// Reconnector performs the actual transport-level reconnect (re-dial, log
// back in, wait for spawn). The controller only sequences when it is
// called and with what delay; what "reconnect" means is the adapter's
// business, per spec §6 "the core never assumes any action's
// micro-steps".
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// AttemptStore persists one subgoal attempt, one planner call, and one
// incident, matching the `subgoal_attempts(result_json)`, `llm_calls`,
// and `incidents` tables in spec §6/§7. RecordIncident is the controller's
// only source for spec §7's "connection end, kicks, reconnect failures"
// category: it calls this from forceDisconnect (the disconnect reason)
// and from a failed reconnect attempt, never from anywhere else.
type AttemptStore interface {
	RecordSubgoalAttempt(ctx context.Context, agentID string, entry model.HistoryEntry)
	RecordLLMCall(ctx context.Context, agentID string, req planner.Request, result planner.Result, callErr error)
	RecordIncident(ctx context.Context, agentID, category, detail string)
}

// Metrics receives the per-subgoal observability spec §4.9 names.
type Metrics interface {
	ObserveSubgoalDuration(agentID string, name model.SubgoalName, d time.Duration)
	IncSubgoalFailure(agentID string, name model.SubgoalName, code model.FailureCode)
}

type noopStore struct{}

func (noopStore) RecordSubgoalAttempt(context.Context, string, model.HistoryEntry)              {}
func (noopStore) RecordLLMCall(context.Context, string, planner.Request, planner.Result, error) {}
func (noopStore) RecordIncident(context.Context, string, string, string)                        {}

type noopMetrics struct{}

func (noopMetrics) ObserveSubgoalDuration(string, model.SubgoalName, time.Duration)   {}
func (noopMetrics) IncSubgoalFailure(string, model.SubgoalName, model.FailureCode) {}

// Deps bundles the Controller's collaborators. Limiter and SkillSlots are
// fleet-wide shared services (spec §5); the rest are per-agent.
type Deps struct {
	Agent       adapter.Agent
	Lookup      catalog.Lookup
	Planner     *planner.Service
	Fallback    *planner.FallbackPlanner
	Skills      *skills.Engine
	Snapshots   *snapshot.Builder
	Limiter     *ratelimit.Limiter
	SkillSlots  *admission.SkillLimiter
	Reconnector Reconnector
	Store       AttemptStore
	Metrics     Metrics
	Logger      *log.Logger
}

// PublicState is the read-only view other goroutines (fleet orchestrator,
// fleetctl status) may poll without racing the controller's own loop.
type PublicState struct {
	Phase model.AgentPhase
	Task  model.TaskState
}

type speculativePlan struct {
	preparedAt   time.Time
	forSubgoalID string
	nextGoal     string
	subgoals     []model.Subgoal
}

type streakEntry struct {
	count       int
	windowStart time.Time
}

type subgoalOutcome struct {
	subgoal     model.RuntimeSubgoal
	result      model.SkillResult
	startedAt   time.Time
	startHealth int
}

type planOutcome struct {
	req    planner.Request
	result planner.Result
	err    error
}

type prefetchOutcome struct {
	forSubgoalID string
	req          planner.Request
	result       planner.Result
	ok           bool
	err          error
}

type reconnectOutcome struct {
	err error
}

// Controller is the Agent Controller for one agent. All fields below the
// dashed line are owned exclusively by the run-loop goroutine started by
// Start; nothing else may touch them, which is why no mutex guards them.
type Controller struct {
	agentID string
	agent   adapter.Agent
	lookup  catalog.Lookup
	planner *planner.Service
	fallback *planner.FallbackPlanner
	skills   *skills.Engine
	snapshots *snapshot.Builder
	limiter    *ratelimit.Limiter
	skillSlots *admission.SkillLimiter
	reconnector Reconnector
	store   AttemptStore
	metrics Metrics
	logger  *log.Logger
	cfg     Config
	now     func() time.Time

	busyFlag atomic.Bool

	triggerCh   chan model.Trigger
	resultCh    chan subgoalOutcome
	planCh      chan planOutcome
	prefetchCh  chan prefetchOutcome
	reconnectCh chan reconnectOutcome

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	publicState atomic.Value // PublicState

	// ---- run-loop-owned state ----
	phase model.AgentPhase
	state *model.TaskState

	subgoalSeq int64

	execStartedAt time.Time
	lastProbeAt   time.Time

	lastProgressAt   time.Time
	lastProgressPos  model.Position
	lastProgressLoad int

	lastStuckHandledAt time.Time
	lastActivityAt     time.Time

	plannerInFlight  bool
	prefetchInFlight bool
	lastPrefetchAt   time.Time
	speculative      *speculativePlan

	streaks          map[string]streakEntry
	disconnectStreak int

	lastSnapshot model.Snapshot
	tick         uint64

	reflex *reflex.Monitor
}

// New constructs a Controller for agentID. Start must be called before
// the agent does any work.
func New(agentID string, deps Deps, cfg Config) *Controller {
	if deps.Store == nil {
		deps.Store = noopStore{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Controller{
		agentID:     agentID,
		agent:       deps.Agent,
		lookup:      deps.Lookup,
		planner:     deps.Planner,
		fallback:    deps.Fallback,
		skills:      deps.Skills,
		snapshots:   deps.Snapshots,
		limiter:     deps.Limiter,
		skillSlots:  deps.SkillSlots,
		reconnector: deps.Reconnector,
		store:       deps.Store,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,

		triggerCh:   make(chan model.Trigger, 32),
		resultCh:    make(chan subgoalOutcome, 1),
		planCh:      make(chan planOutcome, 1),
		prefetchCh:  make(chan prefetchOutcome, 1),
		reconnectCh: make(chan reconnectOutcome, 1),

		phase:   model.PhaseDisconnected,
		state:   model.NewTaskState(),
		streaks: make(map[string]streakEntry),
	}
}

// Start attaches the Reflex Monitor and begins the tick loop. The
// Controller is considered connected the moment Start is called — a real
// deployment calls New/Start only after the fleet orchestrator has
// already driven the adapter's connect/spawn sequence (including after a
// reconnect), so there is no separate "wait for spawn" state here.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.rootCtx = ctx
	c.cancel = cancel

	c.phase = model.PhaseConnectedIdle
	now := c.now()
	c.lastActivityAt = now
	c.lastProgressAt = now

	c.reflex = reflex.New(c.agentID, c.agent, reflexSink{c}, toAdapterVec3(c.cfg.BasePosition), c.isBusy, c.cfg.Reflex)
	c.reflex.Start(ctx)

	c.publish()

	c.wg.Add(1)
	go c.runLoop(ctx)
}

// Stop cancels the tick loop, detaches the reflex monitor, forgets the
// skill slot, clears controls and quits the adapter — spec §5's shutdown
// sequence for a single controller.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.reflex != nil {
		c.reflex.Stop()
	}
	c.skillSlots.Leave(c.agentID)
	qctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.agent.ClearControlStates(qctx)
	_ = c.agent.Quit(qctx)
}

// State returns the most recently published phase + task state, safe to
// call from any goroutine.
func (c *Controller) State() PublicState {
	v := c.publicState.Load()
	if v == nil {
		return PublicState{Phase: model.PhaseDisconnected, Task: *model.NewTaskState()}
	}
	return v.(PublicState)
}

// SetClock overrides the time source, for deterministic tests. Must be
// called before Start.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Controller) isBusy() bool { return c.busyFlag.Load() }

func (c *Controller) setBusy(b bool) {
	c.state.Busy = b
	c.busyFlag.Store(b)
}

func (c *Controller) publish() {
	c.publicState.Store(PublicState{Phase: c.phase, Task: c.state.Clone()})
}

// reflexSink adapts the Controller into a reflex.Sink: a non-blocking
// send, since the reflex monitor's own goroutines must never block on the
// controller's loop being busy.
type reflexSink struct{ c *Controller }

func (s reflexSink) PushTrigger(t model.Trigger) {
	select {
	case s.c.triggerCh <- t:
	default:
	}
}

func toAdapterVec3(p model.Position) adapter.Vec3 {
	return adapter.Vec3{X: int(p.X), Y: int(p.Y), Z: int(p.Z)}
}

func toPosition(v adapter.Vec3) model.Position {
	return model.Position{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func inventoryCount(items []adapter.ItemStack) int {
	total := 0
	for _, it := range items {
		total += it.Count
	}
	return total
}

// runLoop is the single goroutine that owns every mutable field below the
// dashed line in Controller. It is the direct generalization of the
// teacher's World.Run: a ticker plus a handful of request channels, all
// handled by one goroutine so state never needs a mutex.
func (c *Controller) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.tick++
			c.doTick(ctx)
			c.publish()

		case t := <-c.triggerCh:
			c.handleTrigger(t)
			c.publish()

		case res := <-c.resultCh:
			c.onSubgoalResult(ctx, res)
			c.publish()

		case res := <-c.planCh:
			c.onPlanResult(res)
			c.publish()

		case res := <-c.prefetchCh:
			c.onPrefetchResult(res)
			c.publish()

		case res := <-c.reconnectCh:
			c.onReconnectResult(res)
			c.publish()
		}
	}
}

func (c *Controller) handleTrigger(t model.Trigger) {
	switch t {
	case model.TriggerDeath:
		c.state.Queue = nil
		c.state.CurrentSubgoal = nil
		c.setBusy(false)
		c.skillSlots.Leave(c.agentID)
		c.state.PendingTriggers.Add(t)
	case model.TriggerReconnect:
		c.forceDisconnect("adapter_reconnect", false)
	default:
		c.state.PendingTriggers.Add(t)
	}
}

// allSubgoalNames returns the closed SUBGOAL_NAMES set in a stable order,
// for the Planner Request's available_subgoals field.
func allSubgoalNames() []model.SubgoalName {
	out := make([]model.SubgoalName, 0, len(model.KnownSubgoalNames))
	for n := range model.KnownSubgoalNames {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func jitteredDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)+1))
}

func (c *Controller) toRuntimeQueue(subs []model.Subgoal) []model.RuntimeSubgoal {
	nowMs := c.now().UnixMilli()
	out := make([]model.RuntimeSubgoal, len(subs))
	for i, s := range subs {
		c.subgoalSeq++
		out[i] = model.RuntimeSubgoal{
			Subgoal:     s.Clone(),
			ID:          fmt.Sprintf("%s-%d", c.agentID, c.subgoalSeq),
			AssignedAt:  nowMs,
			NotBeforeMs: nowMs,
		}
	}
	return out
}
