// Package kernels implements the per-voxel compute kernels of the seven
// simulation passes as pure functions over pool memory. The CPU executor
// runs them directly; the WebGPU backend runs the WGSL mirrors of the same
// kernels against the same buffer layouts. Iteration order inside every
// pass is fixed, so a tick is a pure function of (pool bytes, tick number).
package kernels

import (
	"alkahest/internal/core"
	"alkahest/internal/rules"
)

// Chunk is one dispatched chunk: word bases into the voxel pool plus the
// 26 neighbor read bases in canonical descriptor order. A Sentinel
// neighbor reads as air.
type Chunk struct {
	Coord core.Vec3i

	// ReadBase/WriteBase index u32 words in TickJob.Vox.
	ReadBase  uint32
	WriteBase uint32

	// Neighbors holds the read-slot word base of each of the 26 neighbors,
	// or core.SentinelSlot when unloaded.
	Neighbors [26]uint32
}

// Command is a resolved single-edit request: the pipeline has already
// mapped the world position onto a dispatched chunk.
type Command struct {
	Tool     uint32
	Chunk    int
	Local    core.Vec3i
	Material uint16
	Delta    int32
	Dir      [3]int8
	Radius   int
	Shape    uint8
}

// Event records a destroyed structural voxel for the collapse solver.
type Event struct {
	Chunk    core.Vec3i
	Local    core.Vec3i
	Material uint16
}

// DiagWords is the diagnostic buffer size in u32 words (4 KiB).
const DiagWords = 1024

// Diagnostic buffer slots written by the kernels in debug builds.
const (
	DiagMoves = iota
	DiagSwaps
	DiagReactions
	DiagDecays
	DiagPhaseChanges
	DiagRuptures
	DiagCommandWrites
	DiagConvections
)

// TickJob carries everything one tick needs. The voxel pool and charge
// pool are the only cross-pass communication media.
type TickJob struct {
	Tick uint32

	// Vox is the whole voxel pool as u32 words (2 per voxel).
	Vox []uint32
	// Charge is the whole charge pool as one u32 per voxel.
	Charge []uint32

	Chunks   []Chunk
	Commands []Command
	Tables   *rules.Compiled

	// Activity receives one dirty flag per chunk, same order as Chunks.
	Activity []uint32
	// Events accumulates destruction events for the structural solver.
	Events []Event
	// Diag is the shared diagnostic scratch; nil in release builds.
	Diag []uint32
}

func (j *TickJob) diagAdd(slot int, n uint32) {
	if j.Diag != nil && slot < len(j.Diag) {
		j.Diag[slot] += n
	}
}

// voxAt reads a voxel from a slot word base.
func (j *TickJob) voxAt(base uint32, idx int) core.Voxel {
	o := base + uint32(idx)*core.VoxelWords
	return core.Voxel{Lo: j.Vox[o], Hi: j.Vox[o+1]}
}

func (j *TickJob) setVoxAt(base uint32, idx int, v core.Voxel) {
	o := base + uint32(idx)*core.VoxelWords
	j.Vox[o] = v.Lo
	j.Vox[o+1] = v.Hi
}

// chargeBase derives a charge index base from a voxel word base: the charge
// pool has one word per voxel where the voxel pool has two.
func chargeBase(voxBase uint32) uint32 { return voxBase / core.VoxelWords }

// readNeighbor resolves a possibly out-of-bounds local position against the
// chunk's read slot or one of its neighbor read slots. Unloaded neighbors
// read as air. This is the only cross-chunk access in the pipeline, and it
// is read-only by construction.
func (j *TickJob) readNeighbor(c *Chunk, p core.Vec3i) core.Voxel {
	if core.InChunkBounds(p) {
		return j.voxAt(c.ReadBase, core.LocalIndex(p.X, p.Y, p.Z))
	}
	base, lp, ok := j.resolveNeighbor(c, p)
	if !ok {
		return core.Voxel{}
	}
	return j.voxAt(base, core.LocalIndex(lp.X, lp.Y, lp.Z))
}

// readNeighborCharge is the charge-pool analog of readNeighbor.
func (j *TickJob) readNeighborCharge(c *Chunk, p core.Vec3i) uint32 {
	if core.InChunkBounds(p) {
		return j.Charge[chargeBase(c.ReadBase)+uint32(core.LocalIndex(p.X, p.Y, p.Z))]
	}
	base, lp, ok := j.resolveNeighbor(c, p)
	if !ok {
		return 0
	}
	return j.Charge[chargeBase(base)+uint32(core.LocalIndex(lp.X, lp.Y, lp.Z))]
}

func (j *TickJob) resolveNeighbor(c *Chunk, p core.Vec3i) (uint32, core.Vec3i, bool) {
	dx, dy, dz := 0, 0, 0
	switch {
	case p.X < 0:
		dx = -1
	case p.X >= core.ChunkSize:
		dx = 1
	}
	switch {
	case p.Y < 0:
		dy = -1
	case p.Y >= core.ChunkSize:
		dy = 1
	}
	switch {
	case p.Z < 0:
		dz = -1
	case p.Z >= core.ChunkSize:
		dz = 1
	}
	di := core.DescriptorIndex(dx, dy, dz)
	if di < 0 {
		// Unreachable: in-bounds positions are handled by the callers.
		return 0, core.Vec3i{}, false
	}
	base := c.Neighbors[di]
	if base == core.SentinelSlot {
		return 0, core.Vec3i{}, false
	}
	lp := core.Vec3i{
		X: core.Mod(p.X, core.ChunkSize),
		Y: core.Mod(p.Y, core.ChunkSize),
		Z: core.Mod(p.Z, core.ChunkSize),
	}
	return base, lp, true
}

// worldPos maps a chunk-local position onto world voxel space; the PRNG is
// keyed on world coordinates so behavior does not depend on slot layout.
func worldPos(c *Chunk, local core.Vec3i) core.Vec3i {
	return core.ChunkLocalToWorld(c.Coord, local)
}
