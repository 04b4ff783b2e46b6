package main

import (
	"encoding/json"
	"fmt"
	"os"

	"fleetcore.ai/internal/catalog"
)

// catalogFile is the on-disk shape fleetctl reads with --catalog. It is
// deliberately kept out of internal/catalog, whose package doc states
// catalog loading is out of the core's scope; this is the deployment-side
// adapter that package leaves for callers to write.
type catalogFile struct {
	Blocks []struct {
		ID           string `json:"id"`
		Solid        bool   `json:"solid"`
		Breakable    bool   `json:"breakable"`
		DropsItem    string `json:"drops_item"`
		RequiredTool string `json:"required_tool"`
		MinTier      string `json:"min_tier"`
	} `json:"blocks"`
	Items []struct {
		ID      string `json:"id"`
		Kind    string `json:"kind"`
		PlaceAs string `json:"place_as"`
	} `json:"items"`
	Recipes []struct {
		RecipeID string `json:"recipe_id"`
		Station  string `json:"station"`
		Inputs   []struct {
			Item  string `json:"item"`
			Count int    `json:"count"`
		} `json:"inputs"`
		Outputs []struct {
			Item  string `json:"item"`
			Count int    `json:"count"`
		} `json:"outputs"`
		Rows int `json:"rows"`
		Cols int `json:"cols"`
	} `json:"recipes"`
	Sources []struct {
		Block          string  `json:"block"`
		Item           string  `json:"item"`
		Distance       float64 `json:"distance"`
		RequiredTool   string  `json:"required_tool"`
		MinTier        string  `json:"min_tier"`
		ActionableHint string  `json:"actionable_hint"`
	} `json:"sources"`
}

// loadCatalog reads path (a JSON file matching catalogFile's shape) into
// a catalog.Memory. An empty path returns an empty Memory so a fleet can
// still start against a catalog-less deployment (craft, smelt and
// build_blueprint then report DEPENDS_ON_ITEM, finding no recipe or
// blueprint).
func loadCatalog(path string) (*catalog.Memory, error) {
	m := catalog.NewMemory()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fleetctl: read catalog %s: %w", path, err)
	}
	var cf catalogFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("fleetctl: parse catalog %s: %w", path, err)
	}

	for _, b := range cf.Blocks {
		m.Blocks[b.ID] = catalog.BlockDef{
			ID:           b.ID,
			Solid:        b.Solid,
			Breakable:    b.Breakable,
			DropsItem:    b.DropsItem,
			RequiredTool: parseToolFamily(b.RequiredTool),
			MinTier:      catalog.ToolMaterial(b.MinTier),
		}
	}
	for _, i := range cf.Items {
		m.Items[i.ID] = catalog.ItemDef{ID: i.ID, Kind: i.Kind, PlaceAs: i.PlaceAs}
	}
	for _, r := range cf.Recipes {
		rd := catalog.RecipeDef{RecipeID: r.RecipeID, Station: r.Station, Rows: r.Rows, Cols: r.Cols}
		for _, in := range r.Inputs {
			rd.Inputs = append(rd.Inputs, catalog.ItemCount{Item: in.Item, Count: in.Count})
		}
		for _, out := range r.Outputs {
			rd.Outputs = append(rd.Outputs, catalog.ItemCount{Item: out.Item, Count: out.Count})
		}
		m.Recipes = append(m.Recipes, rd)
	}
	for _, s := range cf.Sources {
		m.Sources = append(m.Sources, catalog.SourceBlock{
			Block:          s.Block,
			Item:           s.Item,
			Distance:       s.Distance,
			RequiredTool:   parseToolFamily(s.RequiredTool),
			MinTier:        catalog.ToolMaterial(s.MinTier),
			ActionableHint: s.ActionableHint,
		})
	}
	return m, nil
}

func parseToolFamily(s string) catalog.ToolFamily {
	switch s {
	case "PICKAXE":
		return catalog.ToolFamilyPickaxe
	case "AXE":
		return catalog.ToolFamilyAxe
	case "SHOVEL":
		return catalog.ToolFamilyShovel
	default:
		return catalog.ToolFamilyNone
	}
}
