package catalog

import "sort"

// Memory is a simple in-memory Lookup, used in tests and as the default
// wiring target when a deployment has no richer catalog source. It is not
// a loader (spec §1 keeps catalog loading out of scope) — callers populate
// it directly or via a deployment-specific adapter.
type Memory struct {
	Blocks     map[string]BlockDef
	Items      map[string]ItemDef
	Recipes    []RecipeDef
	Blueprints map[string]BlueprintDef
	Sources    []SourceBlock
}

func NewMemory() *Memory {
	return &Memory{
		Blocks:     make(map[string]BlockDef),
		Items:      make(map[string]ItemDef),
		Blueprints: make(map[string]BlueprintDef),
	}
}

func (m *Memory) Block(name string) (BlockDef, bool) {
	b, ok := m.Blocks[name]
	return b, ok
}

func (m *Memory) Item(name string) (ItemDef, bool) {
	i, ok := m.Items[name]
	return i, ok
}

func (m *Memory) RecipesProducing(item string) []RecipeDef {
	var out []RecipeDef
	for _, r := range m.Recipes {
		if r.ResultCount(item) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) RecipesConsuming(item, station string) []RecipeDef {
	var out []RecipeDef
	for _, r := range m.Recipes {
		if station != "" && r.Station != station {
			continue
		}
		for _, in := range r.Inputs {
			if in.Item == item {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (m *Memory) Blueprint(id string) (BlueprintDef, bool) {
	b, ok := m.Blueprints[id]
	return b, ok
}

func (m *Memory) SourcesForItem(item string, pos [3]float64) []SourceBlock {
	var out []SourceBlock
	for _, s := range m.Sources {
		if s.Item == item {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ActionableHint < out[j].ActionableHint
	})
	return out
}

func (m *Memory) KnownResources(pos [3]float64) []SourceBlock {
	out := append([]SourceBlock(nil), m.Sources...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ActionableHint < out[j].ActionableHint
	})
	return out
}

func (m *Memory) ResolveBlock(target string) (string, bool) {
	if _, ok := m.Blocks[target]; ok {
		return target, true
	}
	if item, ok := m.Items[target]; ok && item.PlaceAs != "" {
		return item.PlaceAs, true
	}
	return "", false
}
