// Package snapshot implements the Snapshot Builder (spec §3/§9): it
// derives a compact, immutable model.Snapshot from the Agent Adapter and
// the per-agent TaskState, classifying raw adapter sightings into
// hostiles/resources/points-of-interest via the game-data catalog.
//
// Grounded on the teacher's ObsMsg shape (internal/protocol/obs_act.go)
// for what fields a world view needs (self state, inventory, nearby
// entities, time of day) — the teacher hands that shape straight to the
// bot's decision code, where this package instead produces a bounded,
// sorted, classified view for the Planner Service.
package snapshot

import (
	"context"
	"math"
	"sort"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/catalog"
	"fleetcore.ai/internal/model"
)

// ScanRadius is the bulk nearby-block scan radius the builder requests
// from the adapter on every build.
const ScanRadius = 24

// Builder derives Snapshots for one agent from its Agent Adapter handle
// and the game-data catalog used to classify sightings. The bulk block
// scan is the expensive half of a build, so it is cached for
// nearbyCacheTTL (spec §6's snapshot_nearby_cache_ms) and reused across
// builds that land inside that window; player/inventory state is always
// read fresh since the adapter already holds it in memory.
type Builder struct {
	agentID string
	agent   adapter.Agent
	lookup  catalog.Lookup

	nearbyCacheTTL time.Duration
	now            func() time.Time

	cachedAt        time.Time
	cachedSightings []adapter.BlockSighting
	haveCached      bool
}

func New(agentID string, agent adapter.Agent, lookup catalog.Lookup) *Builder {
	return &Builder{agentID: agentID, agent: agent, lookup: lookup, now: time.Now}
}

// SetNearbyCacheTTL sets how long a nearby-block scan may be reused
// across builds. Zero (the default) disables caching, rescanning every
// build.
func (b *Builder) SetNearbyCacheTTL(ttl time.Duration) {
	b.nearbyCacheTTL = ttl
}

// Build derives a Snapshot from the adapter's current state plus a bulk
// nearby-block scan, folding in the caller's task context (spec §3:
// task_context is per-agent controller state, not adapter-observed).
func (b *Builder) Build(ctx context.Context, tick uint64, task model.TaskContext) (model.Snapshot, error) {
	state := b.agent.State()

	sightings, err := b.nearbySightings(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}

	resources, pois := classify(sightings, b.lookup)
	hostiles := classifyHostiles(state.Nearby)

	return model.Snapshot{
		AgentID: b.agentID,
		Time: model.SnapshotTime{
			Tick:  tick,
			Phase: phaseFor(state.TimeOfDay),
		},
		Player: model.PlayerState{
			Position:  toModelPosition(state.Position),
			Dimension: state.Dimension,
			Health:    state.Health,
			Hunger:    state.Hunger,
			Effects:   append([]string(nil), state.Effects...),
		},
		Inventory: inventorySummary(state.Inventory, b.lookup),
		Nearby: model.NearbySummary{
			Hostiles:         boundSorted(hostiles, model.MaxNearbyHostiles),
			Resources:        boundSorted(resources, model.MaxNearbyResources),
			PointsOfInterest: boundSorted(pois, model.MaxNearbyPOI),
		},
		Task: task,
	}, nil
}

// nearbySightings returns the cached block scan if it is still fresh,
// rescanning and refreshing the cache otherwise.
func (b *Builder) nearbySightings(ctx context.Context) ([]adapter.BlockSighting, error) {
	if b.nearbyCacheTTL > 0 && b.haveCached && b.now().Sub(b.cachedAt) < b.nearbyCacheTTL {
		return b.cachedSightings, nil
	}

	sightings, err := b.agent.NearbyBlocks(ctx, ScanRadius)
	if err != nil {
		return nil, err
	}
	b.cachedSightings = sightings
	b.cachedAt = b.now()
	b.haveCached = true
	return sightings, nil
}

// phaseFor buckets the adapter's 0..1 time-of-day fraction into the
// Reflex Monitor's NIGHTFALL-relevant phases.
func phaseFor(timeOfDay float64) model.Phase {
	switch {
	case timeOfDay < 0.25:
		return model.PhaseDawn
	case timeOfDay < 0.5:
		return model.PhaseDay
	case timeOfDay < 0.55:
		return model.PhaseDusk
	default:
		if timeOfDay < 0.75 {
			return model.PhaseNight
		}
		return model.PhaseDawn
	}
}

func toModelPosition(v adapter.Vec3) model.Position {
	return model.Position{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// classify splits raw block sightings into resources (breakable blocks
// that drop an item) and points of interest (non-breakable structures
// like a crafting table or a storage chest). This single bulk-scan plus
// downstream classification is the chosen resolution of the Open
// Question about divergent findBlock/findBlocks adapter contracts: one
// scan, classified here rather than in the adapter.
func classify(sightings []adapter.BlockSighting, lookup catalog.Lookup) (resources, pois []model.NearbyEntity) {
	for _, s := range sightings {
		def, ok := lookup.Block(s.Block)
		if !ok {
			continue
		}
		entity := model.NearbyEntity{
			Type:     s.Block,
			Distance: math.Max(0, s.Distance),
			Position: toModelPosition(s.Position),
		}
		if def.Breakable && def.DropsItem != "" {
			resources = append(resources, entity)
		} else {
			pois = append(pois, entity)
		}
	}
	return resources, pois
}

func classifyHostiles(entities []adapter.NearbyEntity) []model.NearbyEntity {
	out := make([]model.NearbyEntity, 0, len(entities))
	for _, e := range entities {
		if e.Type != "HOSTILE" {
			continue
		}
		out = append(out, model.NearbyEntity{
			Type:     e.Type,
			Distance: math.Max(0, e.Distance),
			Position: toModelPosition(e.Position),
		})
	}
	return out
}

// boundSorted sorts ascending by distance and truncates to max, the
// invariant spec §3 requires of every nearby list.
func boundSorted(in []model.NearbyEntity, max int) []model.NearbyEntity {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Distance < in[j].Distance })
	if len(in) > max {
		in = in[:max]
	}
	return in
}

func inventorySummary(items []adapter.ItemStack, lookup catalog.Lookup) model.InventorySummary {
	out := model.InventorySummary{
		Tools:    map[string]int{},
		KeyItems: map[string]int{},
	}
	for _, it := range items {
		def, ok := lookup.Item(it.Item)
		if !ok {
			out.KeyItems[it.Item] += it.Count
			continue
		}
		switch def.Kind {
		case "TOOL":
			out.Tools[it.Item] += it.Count
		case "FOOD":
			out.FoodTotal += it.Count
		case "BLOCK":
			out.Blocks += it.Count
		default:
			out.KeyItems[it.Item] += it.Count
		}
	}
	return out
}
