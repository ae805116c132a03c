package kernels

import (
	"math"

	"alkahest/internal/core"
)

// passThermal diffuses temperature over the 26-neighborhood, applies the
// ambient entropy drain, and sets the convection bias on hot fluids.
// Diffusion deltas are floats internally but land as floored integers in
// quantized space; decision points stay integer.
func passThermal(j *TickJob) {
	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		for z := 0; z < core.ChunkSize; z++ {
			for y := 0; y < core.ChunkSize; y++ {
				for x := 0; x < core.ChunkSize; x++ {
					j.thermalVoxel(c, core.Vec3i{X: x, Y: y, Z: z})
				}
			}
		}
	}
}

func (j *TickJob) thermalVoxel(c *Chunk, p core.Vec3i) {
	idx := core.LocalIndex(p.X, p.Y, p.Z)
	v := j.voxAt(c.WriteBase, idx)
	if v.IsAir() {
		return
	}
	f := core.Unpack(v)
	props := j.Tables.Prop(f.Material)
	myK := float64(props.ThermalConductivity)

	sum := 0.0
	for d := core.Direction(0); d < core.DirectionCount; d++ {
		nb := j.readNeighbor(c, p.Add(d.Offset()))
		nbProps := j.Tables.Prop(nb.Material())
		kAvg := (myK + float64(nbProps.ThermalConductivity)) / 2
		if kAvg == 0 {
			continue
		}
		// Air neighbors couple at ambient temperature; their packed
		// temperature word is zero, which is 0 K, not room temperature.
		nbTemp := int32(nb.Temp())
		if nb.IsAir() {
			nbTemp = core.AmbientQ
		}
		sum += d.Weight() * kAvg * float64(nbTemp-int32(f.Temp))
	}

	t := int32(f.Temp) + int32(math.Floor(core.DiffusionRate*sum/core.DirectionCount))

	// Entropy drain toward ambient.
	switch {
	case t > core.AmbientQ:
		t -= core.EntropyStep
		if t < core.AmbientQ {
			t = core.AmbientQ
		}
	case t < core.AmbientQ:
		t += core.EntropyStep
		if t > core.AmbientQ {
			t = core.AmbientQ
		}
	}
	f.Temp = core.ClampQ(t)

	// Convection bias on hot fluids.
	if (props.Phase == core.PhaseLiquid || props.Phase == core.PhaseGas) &&
		f.Temp > core.AmbientQ+core.ConvectionThreshold {
		f.VelY = 1
		j.diagAdd(DiagConvections, 1)
	}

	j.setVoxAt(c.WriteBase, idx, core.Pack(f))
}
