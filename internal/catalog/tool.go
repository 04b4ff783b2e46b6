package catalog

// ToolFamily and the tier ordering below are grounded on the teacher's
// internal/sim/world/feature/work/mining.ToolFamily/BestToolTier, extended
// from the teacher's 3 materials (wood/stone/iron) to the 5 the spec names
// explicitly in §4.5: "material ordering: wooden<stone<iron<diamond<
// netherite; golden ranked last".
type ToolFamily int

const (
	ToolFamilyNone ToolFamily = iota
	ToolFamilyPickaxe
	ToolFamilyAxe
	ToolFamilyShovel
)

// ToolFamilyForBlock mirrors the teacher's MineToolFamilyForBlock switch.
func ToolFamilyForBlock(blockName string) ToolFamily {
	switch blockName {
	case "DIRT", "GRASS", "SAND", "GRAVEL":
		return ToolFamilyShovel
	case "LOG", "OAK_LOG", "PLANK", "OAK_PLANKS":
		return ToolFamilyAxe
	default:
		return ToolFamilyPickaxe
	}
}

// ToolMaterial is a tier in the material ordering spec §4.5 names.
// Golden is deliberately ranked last despite having a numerically mediocre
// mining speed in-game, because the spec calls that out explicitly as an
// exception to the natural tier order.
type ToolMaterial string

const (
	MaterialWooden    ToolMaterial = "WOODEN"
	MaterialStone     ToolMaterial = "STONE"
	MaterialIron      ToolMaterial = "IRON"
	MaterialDiamond   ToolMaterial = "DIAMOND"
	MaterialNetherite ToolMaterial = "NETHERITE"
	MaterialGolden    ToolMaterial = "GOLDEN"
)

// materialRank defines the ordering the guard walks when it looks for the
// "lowest-tier matching tool" the agent lacks (spec §4.5 rule 2). Golden
// sorts after netherite, i.e. last.
var materialRank = map[ToolMaterial]int{
	MaterialWooden:    0,
	MaterialStone:     1,
	MaterialIron:      2,
	MaterialDiamond:   3,
	MaterialNetherite: 4,
	MaterialGolden:    5,
}

func MaterialRank(m ToolMaterial) int {
	if r, ok := materialRank[m]; ok {
		return r
	}
	return len(materialRank)
}

// ToolItemName builds the catalog item name for a (material, family) pair,
// e.g. "WOODEN_PICKAXE". This mirrors the teacher's inventory key
// convention (inv["WOOD_PICKAXE"], inv["IRON_AXE"], ...) generalized across
// all five materials and all three families.
func ToolItemName(material ToolMaterial, family ToolFamily) string {
	var famName string
	switch family {
	case ToolFamilyPickaxe:
		famName = "PICKAXE"
	case ToolFamilyAxe:
		famName = "AXE"
	case ToolFamilyShovel:
		famName = "SHOVEL"
	default:
		return ""
	}
	return string(material) + "_" + famName
}

var materialOrder = []ToolMaterial{
	MaterialWooden, MaterialStone, MaterialIron, MaterialDiamond, MaterialNetherite, MaterialGolden,
}

// BestOwnedTier returns the highest-ranked material the projected
// inventory already owns a tool of in the given family, or ("", false) if
// none. Mirrors the teacher's BestToolTier but keyed by material name
// instead of a numeric tier, and extended to all five materials.
func BestOwnedTier(projected map[string]int, family ToolFamily) (ToolMaterial, bool) {
	best := ToolMaterial("")
	found := false
	for _, m := range materialOrder {
		name := ToolItemName(m, family)
		if name == "" {
			continue
		}
		if projected[name] > 0 {
			if !found || MaterialRank(m) > MaterialRank(best) {
				best = m
				found = true
			}
		}
	}
	return best, found
}

// LowestMissingTierFor returns the lowest-tier tool of family that the
// agent does not yet own, for a block that requires at least minTier. If
// the agent already owns a tool of minTier or better, ok is false — no
// acquisition is needed.
func LowestMissingTierFor(projected map[string]int, family ToolFamily, minTier ToolMaterial) (ToolMaterial, bool) {
	owned, found := BestOwnedTier(projected, family)
	if found && MaterialRank(owned) >= MaterialRank(minTier) {
		return "", false
	}
	return minTier, true
}
