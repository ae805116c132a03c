package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alkahest/internal/core"
	"alkahest/internal/persistence/snapshot"
	"alkahest/internal/sim"
	"alkahest/internal/sim/kernels"
)

func eventFor(pos core.Vec3i) kernels.Event {
	return kernels.Event{Chunk: core.WorldToChunk(pos), Local: core.WorldToLocal(pos), Material: matStone}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TickRateHz != 30 || len(cfg.Grid) != 3 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.PoolSlots != 2*8*4*8 {
		t.Fatalf("pool slots derived wrong: %d", cfg.PoolSlots)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 60\ngrid: [2, 2, 2]\nseed: 99\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRateHz != 60 || cfg.Seed != 99 || cfg.Grid[0] != 2 {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
}

func TestConfigRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid = []int{0, 4, 8}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero grid accepted")
	}
	cfg = DefaultConfig()
	cfg.OuterRadius = 1
	cfg.StreamRadius = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("outer < stream accepted")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	place(t, e, core.Vec3i{X: 5, Y: 5, Z: 5}, matStone, 500)
	place(t, e, core.Vec3i{X: 6, Y: 5, Z: 5}, matWater, core.AmbientQ)
	run(t, e, 3)

	path := filepath.Join(t.TempDir(), "world.snap.zst")
	if err := e.SaveSnapshot(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	digest := e.WorldDigest()

	restored := testEngine(t, tables)
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.WorldDigest(); got != digest {
		t.Fatalf("restore digest mismatch: %s vs %s", got, digest)
	}
	if got := restored.World().VoxelAt(core.Vec3i{X: 5, Y: 5, Z: 5}).Material(); got != matStone {
		t.Fatalf("restored voxel material %d", got)
	}
}

func TestSnapshotHeaderRecordsRuleDigest(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)
	s := e.Snapshot()
	if s.Header.RulesDigest != tables.Digest() {
		t.Fatalf("header digest mismatch")
	}
	if s.Header.Version != snapshot.Version {
		t.Fatalf("header version %d", s.Header.Version)
	}
}

func TestRestoreRejectsGridMismatch(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)
	s := e.Snapshot()
	s.Header.Grid = [3]int{2, 2, 2}
	if err := e.Restore(s); err == nil || !strings.Contains(err.Error(), "grid") {
		t.Fatalf("grid mismatch accepted: %v", err)
	}
}

func TestPushCommandActivatesChunk(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	if !e.PushCommand(sim.Command{Tool: core.ToolPlace, Pos: core.Vec3i{X: 3, Y: 3, Z: 3}, Material: matStone}) {
		t.Fatalf("command rejected")
	}
	run(t, e, 1)
	if got := e.World().VoxelAt(core.Vec3i{X: 3, Y: 3, Z: 3}).Material(); got != matStone {
		t.Fatalf("placed material %d", got)
	}
}

func TestStructuralCollapseEndToEnd(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	// A stone pillar on the floor; removing its base disconnects the top.
	for y := 0; y < 5; y++ {
		place(t, e, core.Vec3i{X: 10, Y: y, Z: 10}, matStone, core.AmbientQ)
	}
	run(t, e, 1)

	// Simulate the destruction event the pressure pass would emit.
	e.Pipeline().PushCommand(sim.Command{Tool: core.ToolRemove, Pos: core.Vec3i{X: 10, Y: 0, Z: 10}})
	run(t, e, 1)
	e.Pipeline().Events().Push(eventFor(core.Vec3i{X: 10, Y: 0, Z: 10}))

	e.SolveOnce()
	run(t, e, 1)

	// The fall command cleared the bond and injected downward velocity.
	f := core.Unpack(e.World().VoxelAt(core.Vec3i{X: 10, Y: 1, Z: 10}))
	if f.Material != matStone {
		t.Fatalf("pillar voxel is material %d", f.Material)
	}
	if f.VelY >= 0 {
		t.Fatalf("flagged voxel velocity_y = %d, want negative", f.VelY)
	}
	if f.Flags&core.FlagBonded != 0 {
		t.Fatalf("bond flag not cleared")
	}
}
