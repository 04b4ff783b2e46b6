package fleet

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/controller"
	"fleetcore.ai/internal/model"
)

type fakeAgent struct {
	mu    sync.Mutex
	state adapter.EntityState
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{state: adapter.EntityState{Health: 20, Hunger: 20}}
}

func (f *fakeAgent) Events() <-chan adapter.Event { return nil }
func (f *fakeAgent) State() adapter.EntityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeAgent) NearbyBlocks(ctx context.Context, radius int) ([]adapter.BlockSighting, error) {
	return nil, nil
}
func (f *fakeAgent) PathfindTo(ctx context.Context, target adapter.Vec3, tolerance float64) error {
	return nil
}
func (f *fakeAgent) LookAt(ctx context.Context, target adapter.Vec3) error { return nil }
func (f *fakeAgent) SetControlState(ctx context.Context, state string, on bool) error {
	return nil
}
func (f *fakeAgent) ClearControlStates(ctx context.Context) error { return nil }
func (f *fakeAgent) Dig(ctx context.Context, block adapter.Vec3) error { return nil }
func (f *fakeAgent) Place(ctx context.Context, spec adapter.PlaceSpec) error { return nil }
func (f *fakeAgent) Equip(ctx context.Context, item string) error { return nil }
func (f *fakeAgent) OpenContainer(ctx context.Context, target adapter.Vec3) error {
	return nil
}
func (f *fakeAgent) Craft(ctx context.Context, recipeID string, count int) error { return nil }
func (f *fakeAgent) Chat(ctx context.Context, channel, text string) error       { return nil }
func (f *fakeAgent) Quit(ctx context.Context) error                             { return nil }

type fakeReconnector struct{}

func (fakeReconnector) Reconnect(ctx context.Context) error { return nil }

type fakeFactory struct {
	mu    sync.Mutex
	built []string
}

func (f *fakeFactory) NewAgent(ctx context.Context, agentID string) (adapter.Agent, controller.Reconnector, error) {
	f.mu.Lock()
	f.built = append(f.built, agentID)
	f.mu.Unlock()
	return newFakeAgent(), fakeReconnector{}, nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, prompt string, timeoutMs int) (adapter.LLMResponse, error) {
	return adapter.LLMResponse{Text: `{"next_goal":"idle","subgoals":[]}`}, nil
}

func testConfig(botIDs []string) Config {
	cfg := DefaultConfig()
	cfg.BotIDs = botIDs
	cfg.BotStartStagger = 0
	cfg.BotConfig.TickInterval = 10 * time.Millisecond
	cfg.BotConfig.Reflex.ProbeInterval = time.Hour
	return cfg
}

func TestStartSpawnsOneControllerPerBot(t *testing.T) {
	factory := &fakeFactory{}
	o := New(testConfig([]string{"bot-1", "bot-2", "bot-3"}), catalog.NewMemory(), fakeLLM{}, factory, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	status := o.Status()
	if len(status) != 3 {
		t.Fatalf("len(status) = %d, want 3", len(status))
	}
	wantIDs := []string{"bot-1", "bot-2", "bot-3"}
	for i, s := range status {
		if s.AgentID != wantIDs[i] {
			t.Fatalf("status[%d].AgentID = %q, want %q", i, s.AgentID, wantIDs[i])
		}
	}

	factory.mu.Lock()
	defer factory.mu.Unlock()
	if len(factory.built) != 3 {
		t.Fatalf("factory built %d agents, want 3", len(factory.built))
	}
}

func TestStatusReflectsConnectedIdlePhase(t *testing.T) {
	factory := &fakeFactory{}
	o := New(testConfig([]string{"bot-1"}), catalog.NewMemory(), fakeLLM{}, factory, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	deadline := time.After(2 * time.Second)
	for {
		status := o.Status()
		if len(status) == 1 && status[0].Phase == model.PhaseConnectedIdle {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("phase never reached CONNECTED_IDLE, last status: %+v", status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotentAndHaltsTickLoops(t *testing.T) {
	factory := &fakeFactory{}
	o := New(testConfig([]string{"bot-1", "bot-2"}), catalog.NewMemory(), fakeLLM{}, factory, nil, nil, nil, nil)

	ctx := context.Background()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	o.Stop()
	o.Stop() // must not panic or block
}

func TestLockOwnerReportsUnowned(t *testing.T) {
	factory := &fakeFactory{}
	o := New(testConfig([]string{"bot-1"}), catalog.NewMemory(), fakeLLM{}, factory, nil, nil, nil, nil)

	if _, ok := o.LockOwner("resource:OAK_LOG"); ok {
		t.Fatalf("expected no owner for a never-acquired lock")
	}
}
