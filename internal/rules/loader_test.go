package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const baseMaterials = `[
  {"id": 1, "name": "stone", "phase": "solid", "density": 2500, "color": [0.5, 0.5, 0.5], "structural_integrity": 40},
  {"id": 2, "name": "sand", "phase": "powder", "density": 1600, "color": [0.76, 0.7, 0.5]},
  {"id": 3, "name": "water", "phase": "liquid", "density": 1000, "color": [0.2, 0.4, 0.9], "absorption_rate": 0.15}
]`

const baseRules = `[
  {"name": "erode", "input_a": 3, "input_b": 2, "output_a": 3, "output_b": 3, "probability": 0.01}
]`

func writeBase(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "materials", "naturals.json"), baseMaterials)
	writeFile(t, filepath.Join(dir, "rules", "displacement.json"), baseRules)
	return dir
}

func TestLoadBase(t *testing.T) {
	dir := writeBase(t)
	res, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Set.Materials) != 3 || len(res.Set.Rules) != 1 {
		t.Fatalf("loaded %d materials, %d rules", len(res.Set.Materials), len(res.Set.Rules))
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := writeBase(t)
	writeFile(t, filepath.Join(dir, "materials", "bad.json"),
		`[{"id": 4, "name": "x", "phase": "plasma", "density": 1, "color": [0,0,0]}]`)
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), ErrConfigInvalid) {
		t.Fatalf("schema violation accepted: %v", err)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := writeBase(t)
	writeFile(t, filepath.Join(dir, "materials", "bad.json"),
		`[{"id": 4, "name": "x", "phase": "solid", "density": 1, "color": [0,0,0], "bounciness": 3}]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestLoadModRemapsIDs(t *testing.T) {
	dir := writeBase(t)
	writeFile(t, filepath.Join(dir, "mods", "alloys", "mod.json"),
		`{"name": "alloys", "version": "1.0.0", "load_order_hint": 5}`)
	writeFile(t, filepath.Join(dir, "mods", "alloys", "materials.json"),
		`[{"id": 10000, "name": "mithril", "phase": "solid", "density": 9000, "color": [0.8, 0.9, 1.0]}]`)
	writeFile(t, filepath.Join(dir, "mods", "alloys", "rules.json"),
		`[{"name": "mithril_melt", "input_a": 10000, "input_b": 3, "output_a": 10000, "output_b": 3, "probability": 0.5, "temp_delta": -10}]`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	internal, ok := res.Remap.Internal(10000)
	if !ok {
		t.Fatalf("mod id not remapped")
	}
	if internal != 4 {
		t.Fatalf("internal id = %d, want 4 (contiguous after base max 3)", internal)
	}
	if res.Remap.Authored(internal) != 10000 {
		t.Fatalf("authored id lost")
	}

	var modRule *InteractionRule
	for i := range res.Set.Rules {
		if res.Set.Rules[i].Name == "mithril_melt" {
			modRule = &res.Set.Rules[i]
		}
	}
	if modRule == nil || modRule.InputA != internal {
		t.Fatalf("mod rule not remapped: %+v", modRule)
	}
}

func TestLoadRejectsModBelowIDBase(t *testing.T) {
	dir := writeBase(t)
	writeFile(t, filepath.Join(dir, "mods", "bad", "mod.json"),
		`{"name": "bad", "version": "1.0.0", "load_order_hint": 1}`)
	writeFile(t, filepath.Join(dir, "mods", "bad", "materials.json"),
		`[{"id": 7, "name": "rogue", "phase": "solid", "density": 1, "color": [0,0,0]}]`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// The bad mod is skipped with a warning naming the range violation.
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w.Message, ErrModIDRange) {
			found = true
		}
	}
	if !found {
		t.Fatalf("mod id range violation not reported: %v", res.Warnings)
	}
	if len(res.Set.Materials) != 3 {
		t.Fatalf("rogue mod material merged anyway")
	}
}

func TestLoadModConflictLastWins(t *testing.T) {
	dir := writeBase(t)
	for i, name := range []string{"first", "second"} {
		writeFile(t, filepath.Join(dir, "mods", name, "mod.json"),
			`{"name": "`+name+`", "version": "1.0.0", "load_order_hint": `+string(rune('1'+i))+`}`)
		writeFile(t, filepath.Join(dir, "mods", name, "rules.json"),
			`[{"name": "`+name+`_erode", "input_a": 3, "input_b": 2, "output_a": 3, "output_b": 3, "probability": 0.5}]`)
	}

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := len(res.Set.Rules); n != 1 {
		t.Fatalf("conflicting pair produced %d rules", n)
	}
	if res.Set.Rules[0].Name != "second_erode" {
		t.Fatalf("last-loaded rule did not win: %s", res.Set.Rules[0].Name)
	}
	conflictWarned := false
	for _, w := range res.Warnings {
		if strings.Contains(w.Message, "replaces") {
			conflictWarned = true
		}
	}
	if !conflictWarned {
		t.Fatalf("conflict not warned: %v", res.Warnings)
	}
}

func TestLoadAndCompileEndToEnd(t *testing.T) {
	dir := writeBase(t)
	c, _, err := LoadAndCompile(dir)
	if err != nil {
		t.Fatalf("load+compile: %v", err)
	}
	if c.MaterialCount != 4 {
		t.Fatalf("material count = %d", c.MaterialCount)
	}
	if !c.HasRule(3, 2) || !c.HasRule(2, 3) {
		t.Fatalf("compiled rule missing a direction")
	}
	if c.Digest() == "" {
		t.Fatalf("empty digest")
	}
}
