// Package reflex implements the Reflex Monitor, spec §4.10: attached on
// spawn and detached on stop/reconnect, it turns adapter connection
// events and a periodic state probe into pending triggers the Agent
// Controller consumes on its next tick, plus the handful of reflexes
// (clear controls, flee toward base) that must happen immediately
// rather than waiting for the controller's tick.
//
// No teacher file plays this role — the teacher's bot main loop reacts
// to nothing but its own timer — so the trigger taxonomy here is built
// directly from spec §4.10, reusing model.Trigger (already defined for
// the Agent Controller) as the vocabulary both sides speak.
package reflex

import (
	"context"
	"math"
	"sync"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/model"
)

// ticksPerDay mirrors the game's day/night cycle length; time_of_day is
// reported as a 0..1 fraction of it (adapter.EntityState.TimeOfDay).
const ticksPerDay = 24000

// nightfallStartTick/nightfallEndTick bound spec §4.10's NIGHTFALL window.
const (
	nightfallStartTick = 13000
	nightfallEndTick   = 23000
)

// Sink receives pending triggers, decoupling the monitor from the
// controller's TaskState so it can be exercised without one.
type Sink interface {
	PushTrigger(model.Trigger)
}

// Config holds the Reflex Monitor's dedup windows and thresholds, all
// named directly in spec §4.10.
type Config struct {
	LowHealthThreshold  int
	NightfallDedup      time.Duration
	AttackedFleeDedup   time.Duration
	ProbeInterval       time.Duration
	InventoryFullSlack  int // empty-slot threshold that trips INVENTORY_FULL
	InventoryMaxSlots   int
	StuckMovementFloor  float64
	StuckProbeThreshold int // consecutive stalled probes before STUCK fires
}

func DefaultConfig() Config {
	return Config{
		LowHealthThreshold:  8,
		NightfallDedup:      120 * time.Second,
		AttackedFleeDedup:   12 * time.Second,
		ProbeInterval:       time.Second,
		InventoryFullSlack:  2,
		InventoryMaxSlots:   36,
		StuckMovementFloor:  0.25,
		StuckProbeThreshold: 20,
	}
}

// Monitor is the Reflex Monitor attached to one agent.
type Monitor struct {
	agentID string
	agent   adapter.Agent
	sink    Sink
	basePos adapter.Vec3
	busy    func() bool
	cfg     Config
	now     func() time.Time

	mu              sync.Mutex
	lastNightfallAt time.Time
	lastFleeAt      time.Time
	lastPosition    adapter.Vec3
	havePosition    bool
	stalledProbes   int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Monitor. busy reports whether the controller is
// currently executing a subgoal, used by the stall probe (spec §4.10:
// "while controller busy, detect stalled movement").
func New(agentID string, agent adapter.Agent, sink Sink, basePos adapter.Vec3, busy func() bool, cfg Config) *Monitor {
	return &Monitor{
		agentID: agentID,
		agent:   agent,
		sink:    sink,
		basePos: basePos,
		busy:    busy,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start attaches the monitor: an event-consuming goroutine and a
// periodic probe goroutine, both stopped by Stop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.runEvents(ctx)
	go m.runProbe(ctx)
}

// Stop detaches the monitor and blocks until both goroutines exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) runEvents(ctx context.Context) {
	defer m.wg.Done()
	events := m.agent.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Monitor) handleEvent(ctx context.Context, ev adapter.Event) {
	switch ev.Kind {
	case adapter.EventHurt:
		m.sink.PushTrigger(model.TriggerAttacked)
		_ = m.agent.ClearControlStates(ctx)

		state := m.agent.State()
		if state.Health <= m.cfg.LowHealthThreshold {
			m.mu.Lock()
			shouldFlee := m.now().Sub(m.lastFleeAt) >= m.cfg.AttackedFleeDedup
			if shouldFlee {
				m.lastFleeAt = m.now()
			}
			m.mu.Unlock()

			if shouldFlee {
				_ = m.agent.PathfindTo(ctx, m.basePos, 3)
			}
		}

	case adapter.EventDeath:
		m.sink.PushTrigger(model.TriggerDeath)

	case adapter.EventKick, adapter.EventEnd:
		m.sink.PushTrigger(model.TriggerReconnect)
	}
}

func (m *Monitor) runProbe(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce()
		}
	}
}

func (m *Monitor) probeOnce() {
	state := m.agent.State()

	m.checkNightfall(state)
	m.checkInventoryFull(state)
	m.checkStuck(state)
}

func (m *Monitor) checkNightfall(state adapter.EntityState) {
	tick := int(state.TimeOfDay * ticksPerDay)
	if tick < nightfallStartTick || tick > nightfallEndTick {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Sub(m.lastNightfallAt) < m.cfg.NightfallDedup {
		return
	}
	m.lastNightfallAt = m.now()
	m.sink.PushTrigger(model.TriggerNightfall)
}

func (m *Monitor) checkInventoryFull(state adapter.EntityState) {
	emptySlots := m.cfg.InventoryMaxSlots - len(state.Inventory)
	if emptySlots <= m.cfg.InventoryFullSlack {
		m.sink.PushTrigger(model.TriggerInventoryFull)
	}
}

func (m *Monitor) checkStuck(state adapter.EntityState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.busy() {
		m.stalledProbes = 0
		m.havePosition = false
		return
	}

	if !m.havePosition {
		m.lastPosition = state.Position
		m.havePosition = true
		return
	}

	movement := distance(m.lastPosition, state.Position)
	m.lastPosition = state.Position

	if movement < m.cfg.StuckMovementFloor {
		m.stalledProbes++
	} else {
		m.stalledProbes = 0
	}

	if m.stalledProbes >= m.cfg.StuckProbeThreshold {
		m.sink.PushTrigger(model.TriggerStuck)
		m.stalledProbes = 0
	}
}

func distance(a, b adapter.Vec3) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
