package kernels

import "alkahest/internal/core"

// faceOffsets is the fixed neighbor evaluation order of the reactions pass:
// Down, Up, North, South, East, West.
var faceOffsets = [core.FaceCount]core.Vec3i{
	{X: 0, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: -1, Y: 0, Z: 0},
}

// passReactions runs self-decay, upward phase change, and the pairwise
// interaction matrix. Own state comes from the write slot, neighbor state
// from the read slots; no kernel invocation writes anything but its own
// voxel, so pair symmetry falls out of the mirrored rule entries.
func passReactions(j *TickJob) {
	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		for z := 0; z < core.ChunkSize; z++ {
			for y := 0; y < core.ChunkSize; y++ {
				for x := 0; x < core.ChunkSize; x++ {
					j.reactVoxel(c, core.Vec3i{X: x, Y: y, Z: z})
				}
			}
		}
	}
}

func (j *TickJob) reactVoxel(c *Chunk, p core.Vec3i) {
	idx := core.LocalIndex(p.X, p.Y, p.Z)
	v := j.voxAt(c.WriteBase, idx)
	if v.IsAir() {
		return
	}
	f := core.Unpack(v)
	props := j.Tables.Prop(f.Material)

	// Self-decay: cooling below the threshold replaces the material.
	if props.DecayRate > 0 {
		t := int32(f.Temp) - int32(props.DecayRate)
		if t < 0 {
			t = 0
		}
		f.Temp = uint16(t)
		if f.Temp < props.DecayThreshold {
			j.recordDestruction(c, p, f.Material, props.DecayProduct)
			f.Material = props.DecayProduct
			j.rebond(&f)
			j.setVoxAt(c.WriteBase, idx, core.Pack(f))
			j.diagAdd(DiagDecays, 1)
			return
		}
		j.setVoxAt(c.WriteBase, idx, core.Pack(f))
	}

	// Upward phase change preserves temperature and velocity.
	if props.PhaseChangeQ > 0 && f.Temp >= props.PhaseChangeQ {
		j.recordDestruction(c, p, f.Material, props.PhaseChangeProduct)
		f.Material = props.PhaseChangeProduct
		j.rebond(&f)
		j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		j.diagAdd(DiagPhaseChanges, 1)
		return
	}

	// Pairwise rules: first matching neighbor wins.
	w := worldPos(c, p)
	charge := j.Charge[chargeBase(c.ReadBase)+uint32(idx)]
	for ni, off := range faceOffsets {
		nb := j.readNeighbor(c, p.Add(off))
		rule, ok := j.Tables.RuleFor(f.Material, nb.Material())
		if !ok {
			continue
		}
		if rule.MinTemp > 0 && uint32(f.Temp) < rule.MinTemp {
			continue
		}
		if rule.MaxTemp > 0 && uint32(f.Temp) > rule.MaxTemp {
			continue
		}
		if rule.MinCharge > 0 && charge < rule.MinCharge {
			continue
		}
		if rule.MaxCharge > 0 && charge > rule.MaxCharge {
			continue
		}
		u := core.HashUnit(core.SimHash(int32(w.X+ni), int32(w.Y), int32(w.Z), j.Tick))
		if u >= float64(rule.Probability)/4294967295.0 {
			continue
		}

		j.recordDestruction(c, p, f.Material, rule.Output)
		f.Material = rule.Output
		f.Temp = core.ClampQ(int32(f.Temp) + rule.TempDelta)
		f.Pressure = core.ClampPressure(int32(f.Pressure) + rule.PressureDelta)
		j.rebond(&f)
		j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		j.diagAdd(DiagReactions, 1)
		return
	}
}

// rebond re-derives the bonded bit from the current material: a voxel that
// just transformed into a solid bonds in place, anything else sheds the bit.
func (j *TickJob) rebond(f *core.Fields) {
	if j.Tables.Prop(f.Material).Phase == core.PhaseSolid {
		f.Flags |= core.FlagBonded
	} else {
		f.Flags &^= core.FlagBonded
	}
}

// recordDestruction appends a collapse-solver event when a structural solid
// is transformed into something that can no longer bear load.
func (j *TickJob) recordDestruction(c *Chunk, p core.Vec3i, oldMat, newMat uint16) {
	oldProps := j.Tables.Prop(oldMat)
	if oldProps.Phase != core.PhaseSolid || oldProps.StructuralIntegrity == 0 {
		return
	}
	newProps := j.Tables.Prop(newMat)
	if newMat != 0 && newProps.Phase == core.PhaseSolid && newProps.StructuralIntegrity > 0 {
		return
	}
	j.Events = append(j.Events, Event{Chunk: c.Coord, Local: p, Material: oldMat})
}
