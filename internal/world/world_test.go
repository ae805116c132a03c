package world

import (
	"testing"

	"alkahest/internal/core"
	"alkahest/internal/sim"
)

func testWorld(t *testing.T, slots int) *World {
	t.Helper()
	cfg := Config{
		GridX: 4, GridY: 2, GridZ: 4,
		StreamRadius: 1, OuterRadius: 2,
		Seed: 7, SeaLevel: 8,
		Terrain:     TerrainIDs{Stone: 1, Sand: 2, Water: 3},
		SeedTerrain: false,
	}
	return New(cfg, sim.NewPool(slots), nil)
}

func TestEnsureAllocatesStatic(t *testing.T) {
	w := testWorld(t, 8)
	ch, err := w.Ensure(core.Vec3i{X: 1, Y: 0, Z: 1})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if ch.State != Static {
		t.Fatalf("fresh chunk state %v", ch.State)
	}
	if ch.ReadOffset() == ch.WriteOffset() {
		t.Fatalf("chunk slots not distinct")
	}
	if _, err := w.Ensure(core.Vec3i{X: 9, Y: 0, Z: 0}); err == nil {
		t.Fatalf("out-of-grid ensure accepted")
	}
}

func TestActivatePromotesNeighbors(t *testing.T) {
	w := testWorld(t, 64)
	center := core.Vec3i{X: 1, Y: 1, Z: 1}
	if err := w.Activate(center); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if w.Get(center).State != Active {
		t.Fatalf("center not active")
	}
	for d := core.Direction(0); d < core.DirectionCount; d++ {
		nc := center.Add(d.Offset())
		if !w.InBounds(nc) {
			continue
		}
		nch := w.Get(nc)
		if nch == nil {
			t.Fatalf("neighbor %v not loaded", nc)
		}
		if nch.State != Boundary && nch.State != Active {
			t.Fatalf("neighbor %v state %v", nc, nch.State)
		}
	}
}

func TestSettleAfterCleanTicks(t *testing.T) {
	w := testWorld(t, 64)
	center := core.Vec3i{X: 1, Y: 1, Z: 1}
	if err := w.Activate(center); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clean := &sim.Readback{Coords: []core.Vec3i{center}, Flags: []uint32{0}}
	for i := 0; i < core.SettleTicks-1; i++ {
		w.consumeReadback(clean)
		if w.Get(center).State != Active {
			t.Fatalf("settled too early at tick %d", i)
		}
	}
	w.consumeReadback(clean)
	if w.Get(center).State != Static {
		t.Fatalf("chunk did not settle after %d clean ticks", core.SettleTicks)
	}
}

func TestDirtyResetsIdleCounter(t *testing.T) {
	w := testWorld(t, 64)
	center := core.Vec3i{X: 1, Y: 1, Z: 1}
	if err := w.Activate(center); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clean := &sim.Readback{Coords: []core.Vec3i{center}, Flags: []uint32{0}}
	dirty := &sim.Readback{Coords: []core.Vec3i{center}, Flags: []uint32{1}}
	for i := 0; i < core.SettleTicks-1; i++ {
		w.consumeReadback(clean)
	}
	w.consumeReadback(dirty)
	for i := 0; i < core.SettleTicks-1; i++ {
		w.consumeReadback(clean)
		if w.Get(center).State != Active {
			t.Fatalf("idle counter not reset by dirty flag")
		}
	}
}

func TestDispatchListDescriptors(t *testing.T) {
	w := testWorld(t, 64)
	a := core.Vec3i{X: 1, Y: 0, Z: 1}
	b := core.Vec3i{X: 2, Y: 0, Z: 1}
	if err := w.Activate(a); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := w.Activate(b); err != nil {
		t.Fatalf("activate: %v", err)
	}

	entries := w.DispatchList()
	if len(entries) != 2 {
		t.Fatalf("dispatch list has %d entries", len(entries))
	}
	// Stable lexicographic order.
	if entries[0].Coord != a || entries[1].Coord != b {
		t.Fatalf("dispatch order %v, %v", entries[0].Coord, entries[1].Coord)
	}

	// +X neighbor of a is b's read slot.
	di := core.DescriptorIndex(1, 0, 0)
	if entries[0].Neighbors[di] != w.Get(b).ReadOffset() {
		t.Fatalf("+X neighbor offset wrong")
	}
	// Out-of-grid neighbor below y=0 is the sentinel.
	belowIdx := core.DescriptorIndex(0, -1, 0)
	cornerA := core.Vec3i{X: 0, Y: 0, Z: 0}
	if err := w.Activate(cornerA); err != nil {
		t.Fatalf("activate corner: %v", err)
	}
	for _, e := range w.DispatchList() {
		if e.Coord == cornerA && e.Neighbors[belowIdx] != core.SentinelSlot {
			t.Fatalf("missing sentinel for out-of-grid neighbor")
		}
	}
}

func TestSwapDispatchedFlipsRoles(t *testing.T) {
	w := testWorld(t, 64)
	c := core.Vec3i{X: 1, Y: 0, Z: 1}
	if err := w.Activate(c); err != nil {
		t.Fatalf("activate: %v", err)
	}
	entries := w.DispatchList()
	before := w.Get(c).ReadOffset()
	w.SwapDispatched(entries)
	after := w.Get(c).ReadOffset()
	if before == after {
		t.Fatalf("swap did not flip slot roles")
	}
}

func TestStreamingLoadsAndEvicts(t *testing.T) {
	w := testWorld(t, 128)
	camera := core.Vec3i{X: 1, Y: 0, Z: 1}
	w.Update(camera, nil)
	if w.Get(camera) == nil {
		t.Fatalf("camera chunk not streamed in")
	}
	if w.Get(core.Vec3i{X: 2, Y: 1, Z: 2}) == nil {
		t.Fatalf("in-radius chunk not streamed in")
	}

	// Move the camera far away; the old neighborhood unloads.
	far := core.Vec3i{X: 3, Y: 1, Z: 3}
	loadedBefore := w.LoadedCount()
	w.Update(far, nil)
	if w.Get(core.Vec3i{X: 0, Y: 0, Z: 0}) != nil {
		t.Fatalf("distant chunk not evicted")
	}
	if w.LoadedCount() >= loadedBefore+27 {
		t.Fatalf("eviction did not bound the loaded set")
	}
}

func TestTerrainSeederDeterministic(t *testing.T) {
	ids := TerrainIDs{Stone: 1, Sand: 2, Water: 3}
	a := NewTerrain(42, 8, ids)
	b := NewTerrain(42, 8, ids)
	other := NewTerrain(43, 8, ids)

	same, diff := true, false
	for x := -40; x < 40; x += 3 {
		for z := -40; z < 40; z += 3 {
			if a.Height(x, z) != b.Height(x, z) {
				same = false
			}
			if a.Height(x, z) != other.Height(x, z) {
				diff = true
			}
		}
	}
	if !same {
		t.Fatalf("same seed produced different terrain")
	}
	if !diff {
		t.Fatalf("different seeds produced identical terrain")
	}

	// Layering: below surface is stone, surface capped with sand, water
	// fills low ground to sea level.
	foundStone, foundWater := false, false
	for x := -64; x < 64; x += 2 {
		for z := -64; z < 64; z += 2 {
			h := a.Height(x, z)
			if a.MaterialAt(x, h-2, z) == ids.Stone {
				foundStone = true
			}
			if h < 8 && a.MaterialAt(x, 8, z) == ids.Water {
				foundWater = true
			}
		}
	}
	if !foundStone || !foundWater {
		t.Fatalf("terrain layers missing: stone=%v water=%v", foundStone, foundWater)
	}
}
