// Package adapter defines the narrow capability interfaces the control
// core consumes instead of a concrete game-client library: the Agent
// Adapter (connection lifecycle, entity state, actions, optional
// plugins) and the LLM Client. The core never assumes any action's
// micro-steps — it only calls these interfaces and reacts to the
// events/results they produce.
//
// Grounded on the teacher's wire shapes in internal/protocol/obs_act.go
// (ObsMsg/SelfObs/ItemStack/EntityObs informed the EntityState/ItemStack
// fields below) and on cmd/bot/main.go's read-obs/write-act loop, which
// is the concrete thing a real Agent implementation drives. The teacher
// itself has no adapter interface — its bot main loop talks directly to
// a *websocket.Conn — so the interface boundary here is new, built
// directly from spec §6's "Agent Adapter (consumed by core)" capability
// list; transport/botlink is the concrete implementation grounded on
// that same bot main loop.
package adapter

import "context"

// ConnectionEvent is one of the lifecycle events the adapter reports
// asynchronously (spec §4.10 "adapter events").
type ConnectionEvent string

const (
	EventSpawn ConnectionEvent = "spawn"
	EventError ConnectionEvent = "error"
	EventKick  ConnectionEvent = "kick"
	EventEnd   ConnectionEvent = "end"
	EventDeath ConnectionEvent = "death"
	EventHurt  ConnectionEvent = "hurt"
)

// Event is a single adapter-reported occurrence, delivered to whatever
// consumes Agent.Events().
type Event struct {
	Kind    ConnectionEvent
	Detail  string
	AtMs    int64
}

// ItemStack mirrors protocol.ItemStack: an item id and a count.
type ItemStack struct {
	Item  string
	Count int
}

// Vec3 is an integer world position, mirroring protocol's [3]int pos
// fields.
type Vec3 struct {
	X, Y, Z int
}

// NearbyEntity is a minimal view of another entity near the agent.
type NearbyEntity struct {
	ID       string
	Type     string
	Position Vec3
	Distance float64
}

// EntityState is the agent's own observable state, the adapter-side
// analogue of protocol.SelfObs plus inventory/time/dimension fields the
// Snapshot Builder needs.
type EntityState struct {
	Position    Vec3
	Dimension   string
	Health      int
	Hunger      int
	Effects     []string
	TimeOfDay   float64 // 0..1, mirrors protocol.WorldObs.TimeOfDay
	Inventory   []ItemStack
	Nearby      []NearbyEntity
}

// PlaceSpec names a block placement target.
type PlaceSpec struct {
	At    Vec3
	Block string
}

// BlockSighting is one block the adapter observed within scan range,
// the raw material the Snapshot Builder classifies into resources vs.
// points of interest using the game-data catalog.
type BlockSighting struct {
	Block    string
	Position Vec3
	Distance float64
}

// Agent is the capability set the control core consumes from a
// concrete game client (spec §6). Implementations may additionally
// satisfy the optional plugin interfaces below; the core probes for
// them with a type assertion and degrades gracefully if absent.
type Agent interface {
	// Events returns a channel of connection-lifecycle events
	// (spawn/error/kick/end/death/hurt). The channel is closed when the
	// adapter is torn down.
	Events() <-chan Event

	// State returns the most recently observed entity state. It never
	// blocks on the network; it returns the last value the adapter's
	// read loop delivered.
	State() EntityState

	// NearbyBlocks performs a single bulk scan within radius and returns
	// every sighted block, unfiltered. The source this was generalized
	// from had two divergent scan paths — a single-name findBlock and a
	// predicate-based findBlocks — whose contracts disagreed on what
	// "found" meant; this interface fixes on one bulk scan and pushes
	// all filtering (which blocks count as resources vs points of
	// interest) into the Snapshot Builder, which already owns the
	// catalog lookup needed to classify them.
	NearbyBlocks(ctx context.Context, radius int) ([]BlockSighting, error)

	PathfindTo(ctx context.Context, target Vec3, tolerance float64) error
	LookAt(ctx context.Context, target Vec3) error
	SetControlState(ctx context.Context, state string, on bool) error
	ClearControlStates(ctx context.Context) error
	Dig(ctx context.Context, block Vec3) error
	Place(ctx context.Context, spec PlaceSpec) error
	Equip(ctx context.Context, item string) error
	OpenContainer(ctx context.Context, target Vec3) error
	Craft(ctx context.Context, recipeID string, count int) error
	Chat(ctx context.Context, channel, text string) error
	Quit(ctx context.Context) error
}

// PvPPlugin is the optional combat capability (spec §6 "optional
// plugins").
type PvPPlugin interface {
	Attack(ctx context.Context, targetID string) error
	Flee(ctx context.Context, fromPos Vec3) error
}

// CollectBlockPlugin lets an adapter implement a higher-level
// dig-until-collected primitive instead of the core stepping through
// raw Dig calls.
type CollectBlockPlugin interface {
	CollectBlock(ctx context.Context, block string, count int) error
}

// ToolSelectionPlugin lets an adapter pick and equip the best-available
// tool for a block itself, rather than the core issuing a bare Equip.
type ToolSelectionPlugin interface {
	SelectToolFor(ctx context.Context, block string) (item string, ok bool)
}

// StoragePlugin is the optional deposit/withdraw capability. Most
// adapters implement it by opening the nearest container at pos and
// transferring items client-side; the core only asks for the outcome.
type StoragePlugin interface {
	Deposit(ctx context.Context, pos Vec3, strategy string) error
	Withdraw(ctx context.Context, pos Vec3, item string, count int) error
}

// LLM is the LLM Client capability the Planner Service consumes (spec
// §6): generate(prompt, timeout_ms) → {text, tokens_in?, tokens_out?}.
type LLM interface {
	Generate(ctx context.Context, prompt string, timeoutMs int) (LLMResponse, error)
}

// LLMResponse is the LLM Client's result shape.
type LLMResponse struct {
	Text     string
	TokensIn int
	TokensOut int
}
