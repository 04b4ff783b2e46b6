package reflex

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/model"
)

type fakeAgent struct {
	mu     sync.Mutex
	events chan adapter.Event
	state  adapter.EntityState

	clearedControls int
	pathfindCalls   []adapter.Vec3
}

func newFakeAgent(state adapter.EntityState) *fakeAgent {
	return &fakeAgent{events: make(chan adapter.Event, 8), state: state}
}

func (f *fakeAgent) Events() <-chan adapter.Event { return f.events }
func (f *fakeAgent) State() adapter.EntityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeAgent) setState(s adapter.EntityState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}
func (f *fakeAgent) NearbyBlocks(ctx context.Context, radius int) ([]adapter.BlockSighting, error) {
	return nil, nil
}
func (f *fakeAgent) PathfindTo(ctx context.Context, target adapter.Vec3, tolerance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pathfindCalls = append(f.pathfindCalls, target)
	return nil
}
func (f *fakeAgent) LookAt(ctx context.Context, target adapter.Vec3) error { return nil }
func (f *fakeAgent) SetControlState(ctx context.Context, state string, on bool) error {
	return nil
}
func (f *fakeAgent) ClearControlStates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedControls++
	return nil
}
func (f *fakeAgent) Dig(ctx context.Context, block adapter.Vec3) error         { return nil }
func (f *fakeAgent) Place(ctx context.Context, spec adapter.PlaceSpec) error   { return nil }
func (f *fakeAgent) Equip(ctx context.Context, item string) error             { return nil }
func (f *fakeAgent) OpenContainer(ctx context.Context, target adapter.Vec3) error {
	return nil
}
func (f *fakeAgent) Craft(ctx context.Context, recipeID string, count int) error { return nil }
func (f *fakeAgent) Chat(ctx context.Context, channel, text string) error       { return nil }
func (f *fakeAgent) Quit(ctx context.Context) error                             { return nil }

type recordingSink struct {
	mu       sync.Mutex
	triggers []model.Trigger
}

func (s *recordingSink) PushTrigger(t model.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

func (s *recordingSink) has(t model.Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, got := range s.triggers {
		if got == t {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHurtEventPushesAttackedAndClearsControls(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{Health: 20})
	sink := &recordingSink{}
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return false }, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	agent.events <- adapter.Event{Kind: adapter.EventHurt}

	waitFor(t, func() bool { return sink.has(model.TriggerAttacked) })
	waitFor(t, func() bool { agent.mu.Lock(); defer agent.mu.Unlock(); return agent.clearedControls == 1 })
}

func TestLowHealthHurtTriggersFleeToBase(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{Health: 5})
	sink := &recordingSink{}
	base := adapter.Vec3{X: 100, Y: 64, Z: 100}
	m := New("bot-1", agent, sink, base, func() bool { return false }, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	agent.events <- adapter.Event{Kind: adapter.EventHurt}

	waitFor(t, func() bool {
		agent.mu.Lock()
		defer agent.mu.Unlock()
		return len(agent.pathfindCalls) == 1 && agent.pathfindCalls[0] == base
	})
}

func TestDeathAndReconnectEventsPushTriggers(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{Health: 20})
	sink := &recordingSink{}
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return false }, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	agent.events <- adapter.Event{Kind: adapter.EventDeath}
	agent.events <- adapter.Event{Kind: adapter.EventKick}

	waitFor(t, func() bool { return sink.has(model.TriggerDeath) })
	waitFor(t, func() bool { return sink.has(model.TriggerReconnect) })
}

func TestProbeEmitsNightfallOnceWithinDedupWindow(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{TimeOfDay: 18000.0 / ticksPerDay})
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.NightfallDedup = time.Hour
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return false }, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool { return sink.has(model.TriggerNightfall) })
	time.Sleep(50 * time.Millisecond)

	count := 0
	sink.mu.Lock()
	for _, tr := range sink.triggers {
		if tr == model.TriggerNightfall {
			count++
		}
	}
	sink.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one NIGHTFALL within the dedup window, got %d", count)
	}
}

func TestProbeEmitsInventoryFullWhenSlotsScarce(t *testing.T) {
	items := make([]adapter.ItemStack, 35)
	for i := range items {
		items[i] = adapter.ItemStack{Item: "COBBLESTONE", Count: 1}
	}
	agent := newFakeAgent(adapter.EntityState{Inventory: items})
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return false }, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool { return sink.has(model.TriggerInventoryFull) })
}

func TestProbeEmitsStuckAfterSustainedStallWhileBusy(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{Position: adapter.Vec3{X: 0, Y: 64, Z: 0}})
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.ProbeInterval = 5 * time.Millisecond
	cfg.StuckProbeThreshold = 3
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return true }, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool { return sink.has(model.TriggerStuck) })
}

func TestProbeDoesNotEmitStuckWhenNotBusy(t *testing.T) {
	agent := newFakeAgent(adapter.EntityState{Position: adapter.Vec3{X: 0, Y: 64, Z: 0}})
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.ProbeInterval = 5 * time.Millisecond
	cfg.StuckProbeThreshold = 3
	m := New("bot-1", agent, sink, adapter.Vec3{}, func() bool { return false }, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	time.Sleep(80 * time.Millisecond)
	if sink.has(model.TriggerStuck) {
		t.Fatal("expected no STUCK trigger while the controller is not busy")
	}
}
