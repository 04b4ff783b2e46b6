package main

import (
	"os"
	"path/filepath"
	"testing"

	"fleetcore.ai/internal/catalog"
)

func writeCatalogFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog fixture: %v", err)
	}
	return path
}

func TestLoadCatalogEmptyPathReturnsEmptyMemory(t *testing.T) {
	m, err := loadCatalog("")
	if err != nil {
		t.Fatalf("loadCatalog(\"\"): %v", err)
	}
	if len(m.Blocks) != 0 || len(m.Items) != 0 || len(m.Recipes) != 0 || len(m.Sources) != 0 {
		t.Fatalf("expected empty Memory, got %+v", m)
	}
}

func TestLoadCatalogPopulatesAllFields(t *testing.T) {
	body := `{
		"blocks": [{"id": "STONE", "solid": true, "breakable": true, "drops_item": "STONE", "required_tool": "PICKAXE", "min_tier": "WOODEN"}],
		"items": [{"id": "STONE_PICKAXE", "kind": "TOOL", "place_as": ""}],
		"recipes": [{"recipe_id": "r_stick", "station": "", "inputs": [{"item": "PLANK", "count": 2}], "outputs": [{"item": "STICK", "count": 4}], "rows": 2, "cols": 1}],
		"sources": [{"block": "OAK_LOG", "item": "OAK_LOG", "distance": 5, "required_tool": "AXE", "min_tier": "WOODEN", "actionable_hint": "chop oak log"}]
	}`
	path := writeCatalogFile(t, body)

	m, err := loadCatalog(path)
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}

	b, ok := m.Block("STONE")
	if !ok {
		t.Fatal("expected STONE block")
	}
	if b.RequiredTool != catalog.ToolFamilyPickaxe || b.MinTier != catalog.MaterialWooden {
		t.Fatalf("unexpected block def: %+v", b)
	}

	if _, ok := m.Item("STONE_PICKAXE"); !ok {
		t.Fatal("expected STONE_PICKAXE item")
	}

	recipes := m.RecipesProducing("STICK")
	if len(recipes) != 1 || recipes[0].RecipeID != "r_stick" {
		t.Fatalf("expected r_stick to produce STICK, got %+v", recipes)
	}

	sources := m.SourcesForItem("OAK_LOG", [3]float64{0, 0, 0})
	if len(sources) != 1 || sources[0].RequiredTool != catalog.ToolFamilyAxe {
		t.Fatalf("unexpected sources: %+v", sources)
	}
}

func TestLoadCatalogUnknownToolFamilyDefaultsToNone(t *testing.T) {
	path := writeCatalogFile(t, `{"blocks": [{"id": "DIRT", "solid": true, "breakable": true, "drops_item": "DIRT"}]}`)

	m, err := loadCatalog(path)
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	b, _ := m.Block("DIRT")
	if b.RequiredTool != catalog.ToolFamilyNone {
		t.Fatalf("expected ToolFamilyNone for an unset required_tool, got %v", b.RequiredTool)
	}
}

func TestLoadCatalogMissingFileErrors(t *testing.T) {
	if _, err := loadCatalog(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing catalog file")
	}
}

func TestLoadCatalogInvalidJSONErrors(t *testing.T) {
	path := writeCatalogFile(t, "{not json")
	if _, err := loadCatalog(path); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
