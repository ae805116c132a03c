package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	materialSchema = mustCompileSchema("schemas/material.schema.json")
	ruleSchema     = mustCompileSchema("schemas/rule.schema.json")
	modSchema      = mustCompileSchema("schemas/mod.schema.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("embedded schema %s: %v", name, err))
	}
	s, err := jsonschema.CompileString(name, string(raw))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return s
}

// Warning is a non-fatal loader observation (mod conflicts, clamps).
type Warning struct {
	Source  string
	Message string
}

func (w Warning) String() string { return w.Source + ": " + w.Message }

// LoadResult is the merged, remapped, not-yet-compiled content.
type LoadResult struct {
	Set      MaterialSet
	Remap    *IDRemap
	Warnings []Warning
}

// Load reads base content from dir (materials/*.json, rules/*.json) plus any
// mod directories under dir/mods, validates every record file against its
// schema, remaps mod ids, and returns the merged set. Records that fail
// validation reject the whole file with a named error carrying the source
// path; a broken mod directory is skipped with a warning so other mods
// still load.
func Load(dir string) (*LoadResult, error) {
	res := &LoadResult{}

	mats, err := loadMaterialFiles(filepath.Join(dir, "materials"))
	if err != nil {
		return nil, err
	}
	res.Set.Materials = mats

	ruleRecs, err := loadRuleFiles(filepath.Join(dir, "rules"))
	if err != nil {
		return nil, err
	}
	res.Set.Rules = ruleRecs

	res.Remap = NewIDRemap(res.Set.MaxID())

	mods, warns, err := discoverMods(filepath.Join(dir, "mods"))
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, warns...)
	for _, m := range mods {
		w := mergeMod(&res.Set, res.Remap, m)
		res.Warnings = append(res.Warnings, w...)
	}

	return res, nil
}

func loadMaterialFiles(dir string) ([]MaterialDef, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []MaterialDef
	for _, p := range paths {
		recs, err := decodeMaterialFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func loadRuleFiles(dir string) ([]InteractionRule, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []InteractionRule
	for _, p := range paths {
		recs, err := decodeRuleFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func decodeMaterialFile(path string) ([]MaterialDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(materialSchema, raw); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", ErrConfigInvalid, path, err)
	}
	var recs []MaterialDef
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", ErrConfigInvalid, path, err)
	}
	return recs, nil
}

func decodeRuleFile(path string) ([]InteractionRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(ruleSchema, raw); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", ErrConfigInvalid, path, err)
	}
	var recs []InteractionRule
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", ErrConfigInvalid, path, err)
	}
	return recs, nil
}

func validateAgainst(s *jsonschema.Schema, raw []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Mod is one loaded mod directory, pre-merge.
type Mod struct {
	Dir       string
	Manifest  ModManifest
	Materials []MaterialDef
	Rules     []InteractionRule
}

func discoverMods(dir string) ([]Mod, []Warning, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var mods []Mod
	var warns []Warning
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		modDir := filepath.Join(dir, e.Name())
		m, err := loadMod(modDir)
		if err != nil {
			// A malformed mod must not take down the rest of the load.
			warns = append(warns, Warning{Source: modDir, Message: fmt.Sprintf("skipped: %v", err)})
			continue
		}
		mods = append(mods, m)
	}

	// load_order_hint ascending; directory name breaks ties for stability.
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Manifest.LoadOrderHint != mods[j].Manifest.LoadOrderHint {
			return mods[i].Manifest.LoadOrderHint < mods[j].Manifest.LoadOrderHint
		}
		return mods[i].Dir < mods[j].Dir
	})
	return mods, warns, nil
}

func loadMod(dir string) (Mod, error) {
	m := Mod{Dir: dir}

	raw, err := os.ReadFile(filepath.Join(dir, "mod.json"))
	if err != nil {
		return m, err
	}
	if err := validateAgainst(modSchema, raw); err != nil {
		return m, fmt.Errorf("mod.json: %w", err)
	}
	if err := json.Unmarshal(raw, &m.Manifest); err != nil {
		return m, fmt.Errorf("mod.json: %w", err)
	}

	matPath := filepath.Join(dir, "materials.json")
	if _, err := os.Stat(matPath); err == nil {
		m.Materials, err = decodeMaterialFile(matPath)
		if err != nil {
			return m, err
		}
	}
	rulePath := filepath.Join(dir, "rules.json")
	if _, err := os.Stat(rulePath); err == nil {
		m.Rules, err = decodeRuleFile(rulePath)
		if err != nil {
			return m, err
		}
	}

	// Mod materials must live in the mod id range; this is checked here
	// rather than in the validator so the offending mod is named.
	for i := range m.Materials {
		if m.Materials[i].ID < modIDBase {
			return m, fmt.Errorf("%s: material %q id %d below mod id base %d",
				ErrModIDRange, m.Materials[i].Name, m.Materials[i].ID, modIDBase)
		}
	}
	return m, nil
}
