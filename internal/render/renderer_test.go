package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"alkahest/internal/core"
	"alkahest/internal/rules"
)

// flatView is a sparse, always-loaded world view for renderer tests.
type flatView map[core.Vec3i]core.Voxel

func (v flatView) VoxelAt(pos core.Vec3i) core.Voxel { return v[pos] }
func (v flatView) Loaded(core.Vec3i) bool            { return true }

func renderTables(t *testing.T) *rules.Compiled {
	t.Helper()
	opaque := 1.0
	c, err := rules.CompileSet(rules.MaterialSet{
		Materials: []rules.MaterialDef{
			{ID: 1, Name: "stone", Phase: "solid", Density: 2600, Color: [3]float64{1, 0, 0}, Opacity: &opaque},
			{ID: 3, Name: "water", Phase: "liquid", Density: 1000, Color: [3]float64{0, 0, 1}, AbsorptionRate: 0.3},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c
}

func occupyAll(r *Renderer) {
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			for z := -2; z <= 2; z++ {
				r.NoteOccupancy(core.Vec3i{X: x, Y: y, Z: z}, true)
			}
		}
	}
}

func lookAtZ() Camera {
	return Camera{
		Pos: mgl32.Vec3{16.5, 16.5, -10},
		Dir: mgl32.Vec3{0, 0, 1},
		Up:  mgl32.Vec3{0, 1, 0},
		FOV: 1.0,
	}
}

func TestPickBufferHit(t *testing.T) {
	view := flatView{}
	target := core.Vec3i{X: 16, Y: 16, Z: 16}
	view[target] = core.Pack(core.Fields{Material: 1, Temp: 700, Pressure: 3})

	r := New(view, renderTables(t))
	occupyAll(r)

	r.Frame(9, 9, lookAtZ(), nil, 4, 4)
	pick := r.Pick()
	if pick[3] != 1 {
		t.Fatalf("pick material = %d, want 1", pick[3])
	}
	if pick[0] != 16 || pick[1] != 16 || pick[2] != 16 {
		t.Fatalf("pick position = (%d,%d,%d)", pick[0], pick[1], pick[2])
	}
	if pick[4] != 700 || pick[5] != 3 {
		t.Fatalf("pick temp/pressure = %d/%d", pick[4], pick[5])
	}
}

func TestPickBufferMiss(t *testing.T) {
	r := New(flatView{}, renderTables(t))
	r.Frame(9, 9, lookAtZ(), nil, 4, 4)
	if got := r.Pick()[3]; got != 0 {
		t.Fatalf("empty scene picked material %d", got)
	}
}

func TestOpaqueHitTintsPixel(t *testing.T) {
	view := flatView{}
	// A red wall in front of the camera.
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			view[core.Vec3i{X: x, Y: y, Z: 16}] = core.Pack(core.Fields{Material: 1})
		}
	}
	r := New(view, renderTables(t))
	occupyAll(r)

	img := r.Frame(5, 5, lookAtZ(), nil, -1, -1)
	center := (2*5 + 2) * 4
	if img[center] == 0 {
		t.Fatalf("red wall rendered without red component")
	}
	if img[center+2] >= img[center] {
		t.Fatalf("red wall rendered blue-dominant: r=%d b=%d", img[center], img[center+2])
	}
}

func TestUnoccupiedChunksSkipToSky(t *testing.T) {
	view := flatView{}
	view[core.Vec3i{X: 16, Y: 16, Z: 16}] = core.Pack(core.Fields{Material: 1})
	r := New(view, renderTables(t))
	// Occupancy never noted: the outer DDA must skip every chunk and land
	// on sky, without consulting voxels.
	img := r.Frame(3, 3, lookAtZ(), nil, -1, -1)
	center := (1*3 + 1) * 4
	if img[center] == 0 && img[center+2] == 0 {
		t.Fatalf("sky not rendered")
	}
	if r.Pick()[3] != 0 {
		t.Fatalf("skipped chunk produced a pick")
	}
}

func TestRescanChunkTracksOccupancy(t *testing.T) {
	view := flatView{}
	r := New(view, renderTables(t))
	c := core.Vec3i{X: 0, Y: 0, Z: 0}

	r.RescanChunk(c)
	if r.occupancy[c] {
		t.Fatalf("empty chunk marked occupied")
	}
	view[core.Vec3i{X: 1, Y: 2, Z: 3}] = core.Pack(core.Fields{Material: 1})
	r.RescanChunk(c)
	if !r.occupancy[c] {
		t.Fatalf("occupied chunk not detected")
	}
}
