// Package render implements the read-side of the engine: a two-level DDA
// raymarcher over the chunk map and the current voxel slots. It reads the
// pool and the compiled material table, and writes exactly one shared
// resource: the single-voxel pick buffer.
package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"alkahest/internal/core"
	"alkahest/internal/rules"
)

// MaxTransparentSteps bounds front-to-back compositing depth.
const MaxTransparentSteps = 8

// ShadowRayBudget is the number of nearest lights that get shadow rays.
const ShadowRayBudget = 2

// aoFactor scales the 6-face occupancy ambient occlusion.
const aoFactor = 0.1

// WorldView is the read contract the renderer holds on the engine: voxel
// reads from the latest settled slots plus chunk-level occupancy.
type WorldView interface {
	VoxelAt(pos core.Vec3i) core.Voxel
	Loaded(c core.Vec3i) bool
}

// Camera is a pinhole camera in voxel space.
type Camera struct {
	Pos  mgl32.Vec3
	Dir  mgl32.Vec3
	Up   mgl32.Vec3
	FOV  float32 // vertical, radians
}

// Light is a point light passed to the shader as a small array.
type Light struct {
	Pos       mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// Pick is the 8-word pick buffer layout: x, y, z, material, temperature,
// pressure, packed velocity, flags. Material 0 means no hit this frame.
type Pick [8]uint32

// Renderer holds the immutable tables plus the incrementally maintained
// chunk occupancy summary.
type Renderer struct {
	view   WorldView
	tables *rules.Compiled

	// occupancy: chunk coord -> has any non-air voxel. Maintained from
	// activity-scan output rather than rescanned per frame.
	occupancy map[core.Vec3i]bool

	pick Pick
}

// New builds a renderer over a world view and compiled tables.
func New(view WorldView, tables *rules.Compiled) *Renderer {
	return &Renderer{view: view, tables: tables, occupancy: map[core.Vec3i]bool{}}
}

// Pick returns the last frame's pick buffer.
func (r *Renderer) Pick() Pick { return r.pick }

// NoteOccupancy sets or clears a chunk's occupancy directly, without
// scanning its voxels; the engine uses RescanChunk instead.
func (r *Renderer) NoteOccupancy(c core.Vec3i, occupied bool) {
	if occupied {
		r.occupancy[c] = true
	} else {
		delete(r.occupancy, c)
	}
}

// RescanChunk recomputes one chunk's occupancy from the pool; used after
// activity readback marks it changed.
func (r *Renderer) RescanChunk(c core.Vec3i) {
	base := core.Vec3i{X: c.X * core.ChunkSize, Y: c.Y * core.ChunkSize, Z: c.Z * core.ChunkSize}
	for z := 0; z < core.ChunkSize; z++ {
		for y := 0; y < core.ChunkSize; y++ {
			for x := 0; x < core.ChunkSize; x++ {
				if !r.view.VoxelAt(core.Vec3i{X: base.X + x, Y: base.Y + y, Z: base.Z + z}).IsAir() {
					r.occupancy[c] = true
					return
				}
			}
		}
	}
	delete(r.occupancy, c)
}

// Frame renders width x height RGBA bytes. The pick buffer is populated
// from the primary ray through (cursorX, cursorY); pass -1,-1 to skip.
func (r *Renderer) Frame(width, height int, cam Camera, lights []Light, cursorX, cursorY int) []byte {
	img := make([]byte, width*height*4)
	r.pick = Pick{}

	right := cam.Dir.Cross(cam.Up).Normalize()
	up := right.Cross(cam.Dir).Normalize()
	halfH := float32(math.Tan(float64(cam.FOV) / 2))
	halfW := halfH * float32(width) / float32(height)

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			u := (2*(float32(px)+0.5)/float32(width) - 1) * halfW
			v := (1 - 2*(float32(py)+0.5)/float32(height)) * halfH
			dir := cam.Dir.Add(right.Mul(u)).Add(up.Mul(v)).Normalize()

			color, _ := r.trace(cam.Pos, dir, lights, px == cursorX && py == cursorY)
			o := (py*width + px) * 4
			img[o] = toByte(color[0])
			img[o+1] = toByte(color[1])
			img[o+2] = toByte(color[2])
			img[o+3] = 255
		}
	}
	return img
}

func toByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v * 255)
}
