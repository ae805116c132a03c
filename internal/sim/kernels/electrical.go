package kernels

import "alkahest/internal/core"

// passElectrical advances the parallel charge buffer: emission, decay,
// grounding, conduction with activation thresholds, and joule heating.
// Neighbor charge comes from the read slots, so conduction propagates one
// face-adjacent cell per tick.
func passElectrical(j *TickJob) {
	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		for z := 0; z < core.ChunkSize; z++ {
			for y := 0; y < core.ChunkSize; y++ {
				for x := 0; x < core.ChunkSize; x++ {
					j.electricalVoxel(c, core.Vec3i{X: x, Y: y, Z: z})
				}
			}
		}
	}
}

func (j *TickJob) electricalVoxel(c *Chunk, p core.Vec3i) {
	idx := core.LocalIndex(p.X, p.Y, p.Z)
	v := j.voxAt(c.WriteBase, idx)
	writeCharge := chargeBase(c.WriteBase) + uint32(idx)

	if v.IsAir() {
		j.Charge[writeCharge] = 0
		return
	}
	props := j.Tables.Prop(v.Material())
	current := j.Charge[writeCharge]

	var next uint32
	switch {
	case props.ChargeEmission > 0:
		// Power source: emits its constant charge unconditionally.
		next = props.ChargeEmission

	case props.Conductivity == 0:
		next = decayCharge(current)

	case props.Conductivity >= 0.999 && props.Resistance == 0:
		// Ground: sinks everything.
		next = 0

	default:
		charged := 0
		var sum uint32
		for _, off := range faceOffsets {
			nc := j.readNeighborCharge(c, p.Add(off))
			if nc > 0 {
				charged++
				sum += nc
			}
		}
		if charged >= int(props.ActivationThreshold) {
			conducted := uint32(float64(sum) * float64(props.Conductivity) * core.ElectricalDiffusionRate)
			if conducted > core.ChargeMax {
				conducted = core.ChargeMax
			}
			floor := decayCharge(current)
			if conducted < floor {
				conducted = floor
			}
			next = conducted
		} else {
			next = decayCharge(current)
		}
	}

	j.Charge[writeCharge] = next

	// Joule heating on resistive conductors.
	if next > 0 && props.Resistance > 0 {
		heat := int32(float64(next) * float64(next) * float64(props.Resistance) / core.JouleDivisor)
		if heat > 0 {
			f := core.Unpack(v)
			f.Temp = core.ClampQ(int32(f.Temp) + heat)
			j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		}
	}
}

func decayCharge(current uint32) uint32 {
	if current <= core.ChargeDecayRate {
		return 0
	}
	return current - core.ChargeDecayRate
}
