package engine

import (
	"testing"

	"alkahest/internal/core"
	"alkahest/internal/rules"
	"alkahest/internal/sim"
)

// loadTables compiles the repository's shipped content once per test run.
func loadTables(t *testing.T) *rules.Compiled {
	t.Helper()
	tables, _, err := rules.LoadAndCompile("../../configs")
	if err != nil {
		t.Fatalf("load configs: %v", err)
	}
	return tables
}

const (
	matStone     = 1
	matSand      = 2
	matWater     = 3
	matSteam     = 4
	matFire      = 5
	matSmoke     = 6
	matAsh       = 7
	matWood      = 8
	matEmber     = 9
	matLava      = 10
	matGunpowder = 11
	matGas       = 12
	matMetal     = 13
	matRock      = 14
	matWire      = 15
	matPower     = 16
	matSignal    = 17
	matLED       = 18
	matGroundP   = 19
)

// testEngine is a single-chunk 32^3 air world over the shipped rule set.
func testEngine(t *testing.T, tables *rules.Compiled) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Grid = []int{1, 1, 1}
	cfg.PoolSlots = 2
	cfg.Terrain = false
	e, err := New(cfg, tables, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func place(t *testing.T, e *Engine, pos core.Vec3i, mat uint16, tempQ uint16) {
	t.Helper()
	var flags uint8
	if e.Tables().Prop(mat).Phase == core.PhaseSolid {
		flags = core.FlagBonded
	}
	if err := e.World().SetVoxel(pos, core.Pack(core.Fields{Material: mat, Temp: tempQ, Flags: flags})); err != nil {
		t.Fatalf("set voxel at %v: %v", pos, err)
	}
}

func run(t *testing.T, e *Engine, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		if err := e.StepFrame(core.Vec3i{}); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func materialAt(e *Engine, pos core.Vec3i) uint16 {
	return e.World().VoxelAt(pos).Material()
}

func TestScenarioSandFalls(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	for z := 0; z < 32; z++ {
		for x := 0; x < 32; x++ {
			place(t, e, core.Vec3i{X: x, Y: 0, Z: z}, matStone, core.AmbientQ)
		}
	}
	place(t, e, core.Vec3i{X: 16, Y: 31, Z: 16}, matSand, core.AmbientQ)

	run(t, e, 35)

	if got := materialAt(e, core.Vec3i{X: 16, Y: 1, Z: 16}); got != matSand {
		t.Fatalf("sand ended as material %d at (16,1,16)", got)
	}
	for z := 0; z < 32; z++ {
		for y := 1; y < 32; y++ {
			for x := 0; x < 32; x++ {
				if x == 16 && y == 1 && z == 16 {
					continue
				}
				if got := materialAt(e, core.Vec3i{X: x, Y: y, Z: z}); got != 0 {
					t.Fatalf("unexpected material %d at (%d,%d,%d)", got, x, y, z)
				}
			}
		}
	}
}

func TestScenarioCompetingSandDeterminism(t *testing.T) {
	tables := loadTables(t)

	build := func() *Engine {
		e := testEngine(t, tables)
		for z := 0; z < 32; z++ {
			for x := 0; x < 32; x++ {
				place(t, e, core.Vec3i{X: x, Y: 0, Z: z}, matStone, core.AmbientQ)
			}
		}
		place(t, e, core.Vec3i{X: 16, Y: 2, Z: 16}, matSand, core.AmbientQ)
		place(t, e, core.Vec3i{X: 17, Y: 2, Z: 16}, matSand, core.AmbientQ)
		place(t, e, core.Vec3i{X: 16, Y: 2, Z: 17}, matSand, core.AmbientQ)
		return e
	}

	a, b := build(), build()
	for tick := 0; tick < 5; tick++ {
		run(t, a, 1)
		run(t, b, 1)
		if da, db := a.WorldDigest(), b.WorldDigest(); da != db {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, da, db)
		}
	}
}

func TestScenarioWoodFire(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	for y := 1; y <= 4; y++ {
		place(t, e, core.Vec3i{X: 16, Y: y, Z: 16}, matWood, core.AmbientQ)
	}
	if !e.PushCommand(sim.Command{Tool: core.ToolPlace, Pos: core.Vec3i{X: 16, Y: 5, Z: 16}, Material: matFire}) {
		t.Fatalf("fire command rejected")
	}

	run(t, e, 200)

	wood, fire, ashBelow, smokeAbove := 0, 0, 0, 0
	for z := 0; z < 32; z++ {
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				switch materialAt(e, core.Vec3i{X: x, Y: y, Z: z}) {
				case matWood:
					wood++
				case matFire:
					fire++
				case matAsh:
					if y < 1 {
						ashBelow++
					}
				case matSmoke:
					if y > 4 {
						smokeAbove++
					}
				}
			}
		}
	}
	if wood != 0 {
		t.Fatalf("%d wood voxels remain", wood)
	}
	if fire != 0 {
		t.Fatalf("%d fire voxels remain (not extinguished)", fire)
	}
	if ashBelow == 0 {
		t.Fatalf("no ash below the column base")
	}
	if smokeAbove == 0 {
		t.Fatalf("no smoke above the column top")
	}
}

func TestScenarioLavaWater(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	// A stone well keeps the liquids in place until they react. The floor
	// plate covers the down-diagonal escapes, not just straight down.
	lavaPos := core.Vec3i{X: 16, Y: 4, Z: 16}
	waterPos := core.Vec3i{X: 16, Y: 5, Z: 16}
	for _, d := range [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		place(t, e, core.Vec3i{X: 16 + d[0], Y: 3, Z: 16 + d[1]}, matStone, core.AmbientQ)
	}
	for _, y := range []int{4, 5} {
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			place(t, e, core.Vec3i{X: 16 + d[0], Y: y, Z: 16 + d[1]}, matStone, core.AmbientQ)
		}
	}
	place(t, e, lavaPos, matLava, core.QuantizeTemp(2000))
	place(t, e, waterPos, matWater, core.AmbientQ)

	run(t, e, 10)

	if got := materialAt(e, lavaPos); got != matRock {
		t.Fatalf("lava cell is material %d, want volcanic rock", got)
	}
	if got := materialAt(e, waterPos); got != matSteam {
		t.Fatalf("water cell is material %d, want steam", got)
	}
	f := core.Unpack(e.World().VoxelAt(waterPos))
	if int(f.Temp) <= core.AmbientQ+core.ConvectionThreshold {
		t.Fatalf("steam temp %d not above convection threshold", f.Temp)
	}
	if f.VelY != 1 {
		t.Fatalf("steam velocity_y = %d, want +1 from convection", f.VelY)
	}
}

func TestScenarioGunpowderRupture(t *testing.T) {
	tables := loadTables(t)
	e := testEngine(t, tables)

	// 5^3 sealed-metal shell around a 3^3 gunpowder core, centered at 16.
	lo, hi := 14, 18
	inShell := func(x, y, z int) bool {
		return x == lo || x == hi || y == lo || y == hi || z == lo || z == hi
	}
	for z := lo; z <= hi; z++ {
		for y := lo; y <= hi; y++ {
			for x := lo; x <= hi; x++ {
				if inShell(x, y, z) {
					place(t, e, core.Vec3i{X: x, Y: y, Z: z}, matMetal, core.AmbientQ)
				} else {
					place(t, e, core.Vec3i{X: x, Y: y, Z: z}, matGunpowder, core.AmbientQ)
				}
			}
		}
	}
	if !e.PushCommand(sim.Command{Tool: core.ToolPlace, Pos: core.Vec3i{X: 16, Y: 16, Z: 16}, Material: matFire}) {
		t.Fatalf("fire command rejected")
	}

	ruptured := false
	for tick := 0; tick < 500; tick++ {
		run(t, e, 1)
		if !ruptured {
			for z := lo; z <= hi && !ruptured; z++ {
				for y := lo; y <= hi && !ruptured; y++ {
					for x := lo; x <= hi && !ruptured; x++ {
						if inShell(x, y, z) && materialAt(e, core.Vec3i{X: x, Y: y, Z: z}) == 0 {
							ruptured = true
						}
					}
				}
			}
		}
	}
	if !ruptured {
		t.Fatalf("no shell voxel ruptured within 500 ticks")
	}

	// Escaped hot gas carries velocity outside the shell bounds.
	loose := false
	for z := 0; z < 32 && !loose; z++ {
		for y := 0; y < 32 && !loose; y++ {
			for x := 0; x < 32 && !loose; x++ {
				if x >= lo && x <= hi && y >= lo && y <= hi && z >= lo && z <= hi {
					continue
				}
				v := e.World().VoxelAt(core.Vec3i{X: x, Y: y, Z: z})
				if v.IsAir() {
					continue
				}
				f := core.Unpack(v)
				if f.VelX != 0 || f.VelY != 0 || f.VelZ != 0 {
					loose = true
				}
			}
		}
	}
	if !loose {
		t.Fatalf("no moving material outside the shell after rupture")
	}
}

func TestScenarioANDGate(t *testing.T) {
	tables := loadTables(t)

	gate := core.Vec3i{X: 11, Y: 5, Z: 11}
	led := core.Vec3i{X: 12, Y: 5, Z: 11}
	srcA := core.Vec3i{X: 8, Y: 5, Z: 11}
	srcB := core.Vec3i{X: 11, Y: 5, Z: 8}

	build := func(withB bool) *Engine {
		e := testEngine(t, tables)
		place(t, e, srcA, matPower, core.AmbientQ)
		place(t, e, core.Vec3i{X: 9, Y: 5, Z: 11}, matWire, core.AmbientQ)
		place(t, e, core.Vec3i{X: 10, Y: 5, Z: 11}, matWire, core.AmbientQ)
		if withB {
			place(t, e, srcB, matPower, core.AmbientQ)
		}
		place(t, e, core.Vec3i{X: 11, Y: 5, Z: 9}, matWire, core.AmbientQ)
		place(t, e, core.Vec3i{X: 11, Y: 5, Z: 10}, matWire, core.AmbientQ)
		place(t, e, gate, matSignal, core.AmbientQ)
		place(t, e, led, matLED, core.AmbientQ)
		place(t, e, core.Vec3i{X: 13, Y: 5, Z: 11}, matGroundP, core.AmbientQ)
		return e
	}

	both := build(true)
	run(t, both, 30)
	if c := both.World().ChargeAt(led); c == 0 {
		t.Fatalf("LED uncharged with both power sources")
	}

	single := build(false)
	run(t, single, 30)
	if c := single.World().ChargeAt(led); c != 0 {
		t.Fatalf("LED charge %d with one source; threshold-2 gate must stay closed", c)
	}
}

func TestDeterminismTenRuns(t *testing.T) {
	tables := loadTables(t)

	digest := func() string {
		e := testEngine(t, tables)
		for z := 10; z < 22; z++ {
			for x := 10; x < 22; x++ {
				place(t, e, core.Vec3i{X: x, Y: 0, Z: z}, matStone, core.AmbientQ)
				place(t, e, core.Vec3i{X: x, Y: 8, Z: z}, matSand, core.AmbientQ)
				place(t, e, core.Vec3i{X: x, Y: 12, Z: z}, matWater, core.AmbientQ)
			}
		}
		place(t, e, core.Vec3i{X: 16, Y: 14, Z: 16}, matFire, 1800)
		run(t, e, 20)
		return e.WorldDigest()
	}

	first := digest()
	for i := 1; i < 10; i++ {
		if d := digest(); d != first {
			t.Fatalf("run %d diverged: %s vs %s", i, d, first)
		}
	}
}
