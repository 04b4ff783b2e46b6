// Package normalizer implements the Subgoal Normalizer, spec §4.4: it
// canonicalizes LLM-emitted parameter aliases to the closed shapes the
// rest of the core expects, dropping entries with invalid mandatory
// fields and passing unrecognized subgoal names through unchanged.
//
// No teacher file normalizes parameters — the teacher's ACT messages are
// already strongly typed Go structs produced by game logic, never by an
// LLM — so this package is built directly from the alias table in spec
// §4.4.
package normalizer

import (
	"fmt"
	"math"

	"fleetcore.ai/internal/model"
)

type rule struct {
	required []requiredField
}

type requiredField struct {
	canonical string
	aliases   []string
	kind      fieldKind
	// defaultValue is used when the field is absent and a default is
	// permitted (goto_nearest's max_distance, goto's range).
	hasDefault   bool
	defaultValue any
	minInt       int
	hasMinInt    bool
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindIntAtLeast
	kindRoundedInt
)

var rules = map[model.SubgoalName]rule{
	model.SubgoalCollect: {required: []requiredField{
		{canonical: "block", aliases: []string{"block", "item", "resource", "resource_type", "type"}, kind: kindString},
		{canonical: "count", aliases: []string{"count", "amount", "qty"}, kind: kindIntAtLeast, minInt: 1, hasMinInt: true},
	}},
	model.SubgoalGotoNearest: {required: []requiredField{
		{canonical: "block", aliases: []string{"block", "resource", "resource_type", "type"}, kind: kindString},
		{canonical: "max_distance", aliases: []string{"max_distance"}, kind: kindIntAtLeast, minInt: 1, hasMinInt: true, hasDefault: true, defaultValue: 48},
	}},
	model.SubgoalCraft: {required: []requiredField{
		{canonical: "item", aliases: []string{"item", "resource", "type"}, kind: kindString},
		{canonical: "count", aliases: []string{"count", "amount", "qty"}, kind: kindIntAtLeast, minInt: 1, hasMinInt: true},
	}},
	model.SubgoalWithdraw: {required: []requiredField{
		{canonical: "item", aliases: []string{"item", "resource", "type"}, kind: kindString},
		{canonical: "count", aliases: []string{"count", "amount", "qty"}, kind: kindIntAtLeast, minInt: 1, hasMinInt: true},
	}},
	model.SubgoalSmelt: {required: []requiredField{
		{canonical: "input", aliases: []string{"input", "item", "resource"}, kind: kindString},
		{canonical: "count", aliases: []string{"count", "amount", "qty"}, kind: kindIntAtLeast, minInt: 1, hasMinInt: true},
	}},
}

// Normalize canonicalizes each subgoal in plan, dropping any that fail a
// mandatory-field check, and returns the rewritten subgoals plus
// human-readable notes identifying drops/rewrites (spec §4.4).
func Normalize(subgoals []model.Subgoal) ([]model.Subgoal, []string) {
	var out []model.Subgoal
	var notes []string

	for i, s := range subgoals {
		switch s.Name {
		case model.SubgoalGoto:
			normalized, ok, note := normalizeGoto(s)
			if note != "" {
				notes = append(notes, fmt.Sprintf("normalized_subgoal_%d_%s: %s", i, s.Name, note))
			}
			if ok {
				out = append(out, normalized)
			} else {
				notes = append(notes, fmt.Sprintf("dropped_subgoal_%d_%s: missing mandatory field", i, s.Name))
			}
			continue
		}

		r, known := rules[s.Name]
		if !known {
			// Unrecognized subgoal name passes through unchanged.
			out = append(out, s)
			continue
		}

		normalized, ok, rewrote := applyRule(s, r)
		if !ok {
			notes = append(notes, fmt.Sprintf("dropped_subgoal_%d_%s: missing mandatory field", i, s.Name))
			continue
		}
		if rewrote {
			notes = append(notes, fmt.Sprintf("normalized_subgoal_%d_%s", i, s.Name))
		}
		out = append(out, normalized)
	}

	return out, notes
}

func applyRule(s model.Subgoal, r rule) (model.Subgoal, bool, bool) {
	out := s.Clone()
	if out.Params == nil {
		out.Params = model.Params{}
	}
	rewrote := false

	for _, f := range r.required {
		val, foundAlias, usedCanonical := resolveAlias(out.Params, f)
		if !foundAlias {
			if f.hasDefault {
				out.Params[f.canonical] = f.defaultValue
				rewrote = true
				continue
			}
			return model.Subgoal{}, false, false
		}
		if !usedCanonical {
			rewrote = true
		}

		switch f.kind {
		case kindString:
			sv, ok := val.(string)
			if !ok || sv == "" {
				return model.Subgoal{}, false, false
			}
			out.Params[f.canonical] = sv
		case kindIntAtLeast:
			iv, ok := toInt(val)
			if !ok {
				return model.Subgoal{}, false, false
			}
			if f.hasMinInt && iv < f.minInt {
				return model.Subgoal{}, false, false
			}
			out.Params[f.canonical] = iv
		case kindRoundedInt:
			fv, ok := toFloat(val)
			if !ok {
				return model.Subgoal{}, false, false
			}
			out.Params[f.canonical] = int(math.Round(fv))
		}

		// Strip non-canonical alias keys so only the canonical shape remains.
		for _, alias := range f.aliases {
			if alias != f.canonical {
				delete(out.Params, alias)
			}
		}
	}

	return out, true, rewrote
}

// resolveAlias looks up the first present alias key (canonical first),
// returning the raw value, whether any alias was found, and whether the
// canonical key itself was the one present.
func resolveAlias(p model.Params, f requiredField) (any, bool, bool) {
	if v, ok := p[f.canonical]; ok {
		return v, true, true
	}
	for _, a := range f.aliases {
		if a == f.canonical {
			continue
		}
		if v, ok := p[a]; ok {
			return v, true, false
		}
	}
	return nil, false, false
}

// normalizeGoto handles goto's {x,y,z,range} shape, including the nested
// location:{x,y,z} alias (spec §4.4).
func normalizeGoto(s model.Subgoal) (model.Subgoal, bool, string) {
	out := s.Clone()
	if out.Params == nil {
		out.Params = model.Params{}
	}

	x, y, z, ok := extractXYZ(out.Params)
	if !ok {
		return model.Subgoal{}, false, ""
	}

	note := ""
	if _, hadDirect := out.Params["x"]; !hadDirect {
		note = "rewrote location.{x,y,z} to x,y,z"
	}

	out.Params = model.Params{"x": x, "y": y, "z": z}
	s2Range, ok := s.Params.Int("range")
	if ok && s2Range >= 1 {
		out.Params["range"] = s2Range
	} else {
		out.Params["range"] = 2
		if note == "" {
			note = "defaulted range to 2"
		}
	}
	return out, true, note
}

func extractXYZ(p model.Params) (int, int, int, bool) {
	if loc, ok := p["location"]; ok {
		if m, ok := loc.(map[string]any); ok {
			return extractXYZFromMap(model.Params(m))
		}
	}
	return extractXYZFromMap(p)
}

func extractXYZFromMap(p model.Params) (int, int, int, bool) {
	x, okX := toRoundedInt(p["x"])
	y, okY := toRoundedInt(p["y"])
	z, okZ := toRoundedInt(p["z"])
	if !okX || !okY || !okZ {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

func toRoundedInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
