package kernels

import "alkahest/internal/core"

// SubPass is one (direction, parity) step of the movement schedule.
type SubPass struct {
	Dir    core.Vec3i
	Parity int
}

// MovementSchedule is the fixed sub-pass order of the movement pass. It
// never varies by tick or device: straight down at both parities, the four
// down-diagonals, the four laterals, then straight up. Parity is
// (x + z) mod 2, which serializes conflicting horizontal targets; within a
// column, down sub-passes scan bottom-up and up sub-passes top-down.
var MovementSchedule = buildSchedule()

func buildSchedule() []SubPass {
	dirs := []core.Vec3i{
		{X: 0, Y: -1, Z: 0},                       // down
		{X: -1, Y: -1, Z: 0}, {X: 1, Y: -1, Z: 0}, // down-west, down-east
		{X: 0, Y: -1, Z: -1}, {X: 0, Y: -1, Z: 1}, // down-north, down-south
		{X: -1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, // west, east
		{X: 0, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}, // north, south
		{X: 0, Y: 1, Z: 0}, // up
	}
	sched := make([]SubPass, 0, len(dirs)*2)
	for _, d := range dirs {
		sched = append(sched, SubPass{Dir: d, Parity: 0}, SubPass{Dir: d, Parity: 1})
	}
	return sched
}

// passMovement runs density-driven displacement. All reads and writes stay
// inside the chunk's own write slot; a destination in another chunk is
// skipped and handled by that chunk's own sub-pass from its side.
func passMovement(j *TickJob) {
	for _, sp := range MovementSchedule {
		for ci := range j.Chunks {
			j.movementSubPass(&j.Chunks[ci], sp)
		}
	}
}

func (j *TickJob) movementSubPass(c *Chunk, sp SubPass) {
	down := sp.Dir.Y < 0
	up := sp.Dir.Y > 0

	yStart, yEnd, yStep := 0, core.ChunkSize, 1
	if up {
		// Top-down so a rising column compacts within one sub-pass the same
		// way a falling one does bottom-up.
		yStart, yEnd, yStep = core.ChunkSize-1, -1, -1
	}

	for z := 0; z < core.ChunkSize; z++ {
		for x := 0; x < core.ChunkSize; x++ {
			if (x+z)%2 != sp.Parity {
				continue
			}
			for y := yStart; y != yEnd; y += yStep {
				j.moveVoxel(c, core.Vec3i{X: x, Y: y, Z: z}, sp.Dir, down, up)
			}
		}
	}
}

func (j *TickJob) moveVoxel(c *Chunk, p, dir core.Vec3i, down, up bool) {
	srcIdx := core.LocalIndex(p.X, p.Y, p.Z)
	src := j.voxAt(c.WriteBase, srcIdx)
	if src.IsAir() {
		return
	}
	srcFields := core.Unpack(src)
	if srcFields.Flags&core.FlagUpdated != 0 {
		return
	}

	props := j.Tables.Prop(srcFields.Material)
	switch {
	case down:
		// Solids are placed bonded; the collapse solver clears the bond
		// to let a disconnected solid fall like a powder.
		loose := props.Phase == core.PhaseSolid && srcFields.Flags&core.FlagBonded == 0
		if props.Phase != core.PhasePowder && props.Phase != core.PhaseLiquid && !loose {
			return
		}
	case up:
		if props.Phase != core.PhaseGas || props.Density <= 0 {
			return
		}
	default: // lateral
		if props.Phase != core.PhaseLiquid {
			return
		}
		if props.Viscosity > 0 {
			w := worldPos(c, p)
			u := core.HashUnit(core.SimHash(int32(w.X), int32(w.Y), int32(w.Z), j.Tick))
			if u < float64(props.Viscosity) {
				return
			}
		}
	}

	dst := p.Add(dir)
	if !core.InChunkBounds(dst) {
		return
	}
	dstIdx := core.LocalIndex(dst.X, dst.Y, dst.Z)
	dstVox := j.voxAt(c.WriteBase, dstIdx)

	if dstVox.IsAir() {
		srcFields.Flags |= core.FlagUpdated
		j.setVoxAt(c.WriteBase, dstIdx, core.Pack(srcFields))
		j.setVoxAt(c.WriteBase, srcIdx, core.Voxel{})
		j.diagAdd(DiagMoves, 1)
		return
	}

	dstProps := j.Tables.Prop(dstVox.Material())
	if dstProps.Phase == core.PhaseSolid {
		return
	}
	if props.Density > dstProps.Density {
		dstFields := core.Unpack(dstVox)
		srcFields.Flags |= core.FlagUpdated
		dstFields.Flags |= core.FlagUpdated
		j.setVoxAt(c.WriteBase, dstIdx, core.Pack(srcFields))
		j.setVoxAt(c.WriteBase, srcIdx, core.Pack(dstFields))
		j.diagAdd(DiagSwaps, 1)
	}
}
