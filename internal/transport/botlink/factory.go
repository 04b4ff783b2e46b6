package botlink

import (
	"context"
	"fmt"
	"log"
	"sync"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/controller"
	"fleetcore.ai/internal/fleet"
)

// Factory is the fleet.AgentFactory that backs every bot in a fleet with
// a real websocket connection to the game server. One Factory dials as
// many Clients as the orchestrator spawns controllers, each against the
// same server URL under its own agent name.
type Factory struct {
	URL    string
	Logger *log.Logger
}

var _ fleet.AgentFactory = (*Factory)(nil)

// NewAgent implements fleet.AgentFactory. The agentID the orchestrator
// assigns becomes the HELLO agent_name; the server's WELCOME then hands
// back its own agent_id, which the Client tracks internally and which
// may differ from the bot's fleet-local name.
//
// The returned adapter.Agent is a thin forwarding shim, not the Client
// itself: the Controller that owns it holds a single adapter.Agent value
// for its whole lifetime, but Reconnect swaps in a brand new *Client
// underneath. Returning the Client directly would leave the controller
// calling methods on a closed connection after every reconnect.
func (f *Factory) NewAgent(ctx context.Context, agentID string) (adapter.Agent, controller.Reconnector, error) {
	client, err := Dial(ctx, f.URL, agentID, f.Logger)
	if err != nil {
		return nil, nil, err
	}
	r := &reconnector{url: f.URL, agentName: agentID, logger: f.Logger, client: client}
	return &reconnectingAgent{r: r}, r, nil
}

// reconnector re-dials a fresh Client against the same URL/agent name on
// Reconnect, replaying any events the old connection's cursor never
// advanced past via EVENT_BATCH_REQ (spec §4.10's catch-up) before handing
// the new Client off to reconnectingAgent.
type reconnector struct {
	url       string
	agentName string
	logger    *log.Logger

	mu     sync.Mutex
	client *Client
}

var _ controller.Reconnector = (*reconnector)(nil)

func (r *reconnector) current() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

func (r *reconnector) Reconnect(ctx context.Context) error {
	old := r.current()

	var sinceCursor uint64
	if old != nil {
		sinceCursor = old.Cursor()
	}

	next, err := Dial(ctx, r.url, r.agentName, r.logger)
	if err != nil {
		return fmt.Errorf("botlink: reconnect %s: %w", r.agentName, err)
	}

	if old != nil {
		events, nextCursor, err := next.FetchMissedEvents(ctx, sinceCursor)
		if err != nil {
			if r.logger != nil {
				r.logger.Printf("botlink %s: catch-up fetch failed: %v", r.agentName, err)
			}
		} else {
			next.mu.Lock()
			next.cursor = nextCursor
			next.mu.Unlock()
			for _, item := range events {
				next.emitEvent(adapter.EventEnd, fmt.Sprintf("missed event cursor=%d", item.Cursor))
			}
		}
		_ = old.Close()
	}

	r.mu.Lock()
	r.client = next
	r.mu.Unlock()
	return nil
}

// reconnectingAgent implements adapter.Agent by forwarding every call to
// whichever *Client the reconnector currently holds, so callers never
// need to re-fetch the Agent after a Reconnect.
type reconnectingAgent struct {
	r *reconnector
}

var _ adapter.Agent = (*reconnectingAgent)(nil)

func (a *reconnectingAgent) Events() <-chan adapter.Event { return a.r.current().Events() }
func (a *reconnectingAgent) State() adapter.EntityState   { return a.r.current().State() }

func (a *reconnectingAgent) NearbyBlocks(ctx context.Context, radius int) ([]adapter.BlockSighting, error) {
	return a.r.current().NearbyBlocks(ctx, radius)
}

func (a *reconnectingAgent) PathfindTo(ctx context.Context, target adapter.Vec3, tolerance float64) error {
	return a.r.current().PathfindTo(ctx, target, tolerance)
}

func (a *reconnectingAgent) LookAt(ctx context.Context, target adapter.Vec3) error {
	return a.r.current().LookAt(ctx, target)
}

func (a *reconnectingAgent) SetControlState(ctx context.Context, state string, on bool) error {
	return a.r.current().SetControlState(ctx, state, on)
}

func (a *reconnectingAgent) ClearControlStates(ctx context.Context) error {
	return a.r.current().ClearControlStates(ctx)
}

func (a *reconnectingAgent) Dig(ctx context.Context, block adapter.Vec3) error {
	return a.r.current().Dig(ctx, block)
}

func (a *reconnectingAgent) Place(ctx context.Context, spec adapter.PlaceSpec) error {
	return a.r.current().Place(ctx, spec)
}

func (a *reconnectingAgent) Equip(ctx context.Context, item string) error {
	return a.r.current().Equip(ctx, item)
}

func (a *reconnectingAgent) OpenContainer(ctx context.Context, target adapter.Vec3) error {
	return a.r.current().OpenContainer(ctx, target)
}

func (a *reconnectingAgent) Craft(ctx context.Context, recipeID string, count int) error {
	return a.r.current().Craft(ctx, recipeID, count)
}

func (a *reconnectingAgent) Chat(ctx context.Context, channel, text string) error {
	return a.r.current().Chat(ctx, channel, text)
}

func (a *reconnectingAgent) Quit(ctx context.Context) error {
	return a.r.current().Quit(ctx)
}
