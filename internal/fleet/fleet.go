// Package fleet implements the Fleet Orchestrator, spec §5's ownership
// and shutdown rules: it spawns one Agent Controller per configured bot,
// owns every fleet-wide shared service (Rate Limiter, Lock Manager,
// Skill/Explorer admission limiters, Store, Metrics), and tears all of
// it down in the order spec §5's "Shutdown" paragraph names.
//
// Grounded on the teacher's internal/sim/multiworld/manager.go: a
// mutex-protected registry keyed by a string id (there, world id; here,
// bot id), a sync.Once-guarded Close that stops every owned goroutine in
// order, and a sorted-ids accessor for deterministic listing. This
// generalizes that shape from "one manager, many concurrent worlds" to
// "one orchestrator, many concurrent agent controllers" — the worlds
// there and the controllers here are both long-lived per-entity
// goroutines the manager/orchestrator starts, tracks, and stops, never
// runs inline.
package fleet

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/admission"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/controller"
	"fleetcore.ai/internal/guard"
	"fleetcore.ai/internal/lockmgr"
	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
	"fleetcore.ai/internal/ratelimit"
	"fleetcore.ai/internal/skills"
	"fleetcore.ai/internal/snapshot"
)

// AttemptStore is the persistence seam the orchestrator hands to every
// controller it spawns — satisfied by *store.Store, but named here
// (rather than importing internal/store) so fleet never needs to depend
// on the concrete persistence package, only on what a controller needs.
type AttemptStore = controller.AttemptStore

// Metrics is the observability seam handed to every controller.
type Metrics = controller.Metrics

// LockSink is the event seam handed to the shared Lock Manager.
type LockSink = lockmgr.EventSink

// AgentFactory builds the per-bot collaborators the game-client transport
// owns: the Agent Adapter itself and a Reconnector closing over whatever
// that adapter needs to redial. Spec §1 keeps "the game-client library"
// out of the core's scope, so the orchestrator only ever sees it through
// this seam — it is the multi-bot analogue of spec §6's Agent Adapter
// contract.
type AgentFactory interface {
	NewAgent(ctx context.Context, agentID string) (adapter.Agent, controller.Reconnector, error)
}

// BotStatus is one row of Orchestrator.Status, the read side of the
// Fleet Orchestrator's "fleet gauges" responsibility (spec §2).
type BotStatus struct {
	AgentID string
	Phase   model.AgentPhase
	Task    model.TaskState
}

// Config is the fleet-wide subset of spec §6's config surface: what the
// orchestrator needs to build shared services and spawn controllers.
// Per-agent tick-loop timings live in controller.Config, which every bot
// in a fleet shares (BotConfig below), matching spec §6 naming these as
// fleet-global knobs rather than per-bot overrides.
type Config struct {
	BotIDs            []string
	BotStartStagger   time.Duration
	RateLimitPerAgent int
	RateLimitGlobal   int
	LockLeaseMs       int64
	LockHeartbeatMs   int64
	SkillConcurrency  int
	ExplorerCapacity  int
	SnapshotNearbyCacheTTL time.Duration

	BotConfig  controller.Config
	PlannerCfg planner.Config
}

// DefaultConfig mirrors the fleet-scoped defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		BotStartStagger:   500 * time.Millisecond,
		RateLimitPerAgent: 40,
		RateLimitGlobal:   300,
		LockLeaseMs:       15000,
		LockHeartbeatMs:   5000,
		SkillConcurrency:  5,
		ExplorerCapacity:  3,
		BotConfig:         controller.DefaultConfig(),
		PlannerCfg:        planner.DefaultConfig(),
	}
}

// Orchestrator is the Fleet Orchestrator (spec §2/§5). It owns the
// shared services and the registry of running controllers; it never
// mutates a controller's own TaskState directly, only starts, reads
// (via Controller.State), and stops it.
type Orchestrator struct {
	cfg     Config
	lookup  catalog.Lookup
	llm     adapter.LLM
	factory AgentFactory
	store   AttemptStore
	metrics Metrics
	logger  *log.Logger

	limiter       *ratelimit.Limiter
	locks         *lockmgr.Manager
	skillSlots    *admission.SkillLimiter
	explorerSlots *admission.ExplorerLimiter
	guardG        *guard.Guard
	fallback      *planner.FallbackPlanner

	mu          sync.RWMutex
	controllers map[string]*controller.Controller

	closeOnce sync.Once
}

// New constructs an Orchestrator and its shared services but spawns
// nothing; call Start to bring the configured bots up.
func New(cfg Config, lookup catalog.Lookup, llm adapter.LLM, factory AgentFactory, store AttemptStore, metrics Metrics, lockSink LockSink, logger *log.Logger) *Orchestrator {
	if store == nil {
		store = noopStore{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = log.Default()
	}

	g := guard.New(lookup)
	return &Orchestrator{
		cfg:           cfg,
		lookup:        lookup,
		llm:           llm,
		factory:       factory,
		store:         store,
		metrics:       metrics,
		logger:        logger,
		limiter:       ratelimit.New(cfg.RateLimitPerAgent, cfg.RateLimitGlobal),
		locks:         lockmgr.New(cfg.LockLeaseMs, lockSink),
		skillSlots:    admission.NewSkillLimiter(cfg.SkillConcurrency),
		explorerSlots: admission.NewExplorerLimiter(cfg.ExplorerCapacity),
		guardG:        g,
		fallback:      planner.NewFallbackPlanner(g),
		controllers:   make(map[string]*controller.Controller),
	}
}

// Start spawns one Agent Controller per configured bot ID, staggering
// each spawn by BotStartStagger so a fleet-wide reconnect storm never
// hits the rate limiter or the game server all at once.
func (o *Orchestrator) Start(ctx context.Context) error {
	for i, id := range o.cfg.BotIDs {
		if i > 0 && o.cfg.BotStartStagger > 0 {
			select {
			case <-time.After(o.cfg.BotStartStagger):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := o.spawn(ctx, id); err != nil {
			return fmt.Errorf("fleet: spawn %s: %w", id, err)
		}
	}
	return nil
}

func (o *Orchestrator) spawn(ctx context.Context, agentID string) error {
	agent, reconnector, err := o.factory.NewAgent(ctx, agentID)
	if err != nil {
		return err
	}

	plannerSvc, err := planner.New(o.llm, o.limiter, o.guardG, o.cfg.PlannerCfg, o.logger)
	if err != nil {
		return fmt.Errorf("build planner: %w", err)
	}

	skillEngine := skills.New(agentID, agent, o.lookup, o.locks, o.cfg.LockHeartbeatMs)
	skillEngine.SetExplorerLimiter(o.explorerSlots)

	snapBuilder := snapshot.New(agentID, agent, o.lookup)
	if o.cfg.SnapshotNearbyCacheTTL > 0 {
		snapBuilder.SetNearbyCacheTTL(o.cfg.SnapshotNearbyCacheTTL)
	}

	c := controller.New(agentID, controller.Deps{
		Agent:       agent,
		Lookup:      o.lookup,
		Planner:     plannerSvc,
		Fallback:    o.fallback,
		Skills:      skillEngine,
		Snapshots:   snapBuilder,
		Limiter:     o.limiter,
		SkillSlots:  o.skillSlots,
		Reconnector: reconnector,
		Store:       o.store,
		Metrics:     o.metrics,
		Logger:      o.logger,
	}, o.cfg.BotConfig)

	o.mu.Lock()
	o.controllers[agentID] = c
	o.mu.Unlock()

	c.Start(ctx)
	return nil
}

// Status returns a deterministically-ordered snapshot of every running
// bot's phase and task state.
func (o *Orchestrator) Status() []BotStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.controllers))
	for id := range o.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]BotStatus, 0, len(ids))
	for _, id := range ids {
		ps := o.controllers[id].State()
		out = append(out, BotStatus{AgentID: id, Phase: ps.Phase, Task: ps.Task})
	}
	return out
}

// LockOwner reports the current owner of a lock key in the fleet's live
// Lock Manager.
func (o *Orchestrator) LockOwner(key string) (string, bool) {
	owner := o.locks.OwnerOf(key)
	return owner, owner != ""
}

// Stop implements spec §5's shutdown sequence: stop every controller
// (each of which detaches its own reflex monitor, releases its skill
// slot, clears controls and quits its adapter), then close the store.
// Idempotent. No new skill dispatches can begin after this returns,
// since every controller's tick loop has already exited.
func (o *Orchestrator) Stop() {
	o.closeOnce.Do(func() {
		o.mu.RLock()
		ids := make([]string, 0, len(o.controllers))
		for id := range o.controllers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		o.mu.RUnlock()

		var wg sync.WaitGroup
		for _, id := range ids {
			o.mu.RLock()
			c := o.controllers[id]
			o.mu.RUnlock()
			wg.Add(1)
			go func(c *controller.Controller) {
				defer wg.Done()
				c.Stop()
			}(c)
		}
		wg.Wait()

		if closer, ok := o.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	})
}

type noopStore struct{}

func (noopStore) RecordSubgoalAttempt(context.Context, string, model.HistoryEntry) {}
func (noopStore) RecordLLMCall(context.Context, string, planner.Request, planner.Result, error) {
}
func (noopStore) RecordIncident(context.Context, string, string, string) {}

type noopMetrics struct{}

func (noopMetrics) ObserveSubgoalDuration(string, model.SubgoalName, time.Duration)   {}
func (noopMetrics) IncSubgoalFailure(string, model.SubgoalName, model.FailureCode)    {}
