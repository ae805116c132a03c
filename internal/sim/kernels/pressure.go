package kernels

import (
	"math"

	"alkahest/internal/core"
)

// passPressure detects enclosure, generates thermal pressure in trapped hot
// fluids, diffuses pressure, and ruptures over-pressured structural voxels.
func passPressure(j *TickJob) {
	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		for z := 0; z < core.ChunkSize; z++ {
			for y := 0; y < core.ChunkSize; y++ {
				for x := 0; x < core.ChunkSize; x++ {
					j.pressureVoxel(c, core.Vec3i{X: x, Y: y, Z: z})
				}
			}
		}
	}
}

func (j *TickJob) pressureVoxel(c *Chunk, p core.Vec3i) {
	idx := core.LocalIndex(p.X, p.Y, p.Z)
	v := j.voxAt(c.WriteBase, idx)
	if v.IsAir() {
		// Blast-wave remnants: air left behind by a rupture keeps its
		// pressure and bleeds it off over the following ticks.
		if f := core.Unpack(v); f.Pressure > 0 {
			f.Pressure--
			j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		}
		return
	}
	f := core.Unpack(v)
	props := j.Tables.Prop(f.Material)

	// Enclosure is the local 6-face heuristic: all face neighbors non-air.
	nonAir := 0
	var neighborP int32
	for _, off := range faceOffsets {
		nb := j.readNeighbor(c, p.Add(off))
		if !nb.IsAir() {
			nonAir++
			neighborP += int32(core.Unpack(nb).Pressure)
		}
	}
	pressure := int32(f.Pressure)

	if nonAir == core.FaceCount &&
		(props.Phase == core.PhaseGas || props.Phase == core.PhaseLiquid) &&
		f.Temp > core.AmbientQ {
		pressure += core.ThermalPressureFactor
	}

	// Diffuse toward the non-air neighbor average. The delta rounds away
	// from zero so equalization converges all the way instead of stalling
	// one or two units below the neighborhood average.
	if nonAir > 0 {
		avg := float64(neighborP) / float64(nonAir)
		d := core.PressureDiffusionRate * (avg - float64(pressure))
		if d > 0 {
			pressure += int32(math.Ceil(d))
		} else {
			pressure += int32(math.Floor(d))
		}
	}
	f.Pressure = core.ClampPressure(pressure)

	// Rupture.
	if props.StructuralIntegrity > 0 && f.Pressure > props.StructuralIntegrity {
		w := worldPos(c, p)
		h := core.SimHash(int32(w.X), int32(w.Y), int32(w.Z), j.Tick)
		dir := faceOffsets[h%core.FaceCount]
		speed := int32(f.Pressure) / 8
		if speed < 1 {
			speed = 1
		}
		if speed > 4 {
			speed = 4
		}
		j.Events = append(j.Events, Event{Chunk: c.Coord, Local: p, Material: f.Material})
		// The voxel becomes air but keeps its pressure so the blast wave
		// decays through diffusion instead of vanishing.
		j.setVoxAt(c.WriteBase, idx, core.Pack(core.Fields{
			Pressure: f.Pressure,
			VelX:     core.ClampVel(int32(dir.X) * speed),
			VelY:     core.ClampVel(int32(dir.Y) * speed),
			VelZ:     core.ClampVel(int32(dir.Z) * speed),
		}))
		j.diagAdd(DiagRuptures, 1)
		return
	}

	j.setVoxAt(c.WriteBase, idx, core.Pack(f))
}
