package kernels

import "alkahest/internal/core"

// passCommands applies the tick's queued edits to the write slots. Brushed
// commands expand over a bounded volume clipped to the target chunk, so a
// command never writes another chunk's slot.
func passCommands(j *TickJob) {
	for i := range j.Commands {
		cmd := &j.Commands[i]
		if cmd.Chunk < 0 || cmd.Chunk >= len(j.Chunks) {
			continue
		}
		c := &j.Chunks[cmd.Chunk]

		r := cmd.Radius
		if cmd.Shape == core.BrushSingle {
			r = 0
		}
		if r > core.MaxBrushRadius {
			r = core.MaxBrushRadius
		}

		for dz := -r; dz <= r; dz++ {
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if cmd.Shape == core.BrushSphere && dx*dx+dy*dy+dz*dz > r*r {
						continue
					}
					p := core.Vec3i{X: cmd.Local.X + dx, Y: cmd.Local.Y + dy, Z: cmd.Local.Z + dz}
					if !core.InChunkBounds(p) {
						continue
					}
					applyTool(j, c, cmd, p)
				}
			}
		}
	}
}

func applyTool(j *TickJob, c *Chunk, cmd *Command, p core.Vec3i) {
	idx := core.LocalIndex(p.X, p.Y, p.Z)

	switch cmd.Tool {
	case core.ToolPlace:
		props := j.Tables.Prop(cmd.Material)
		temp := uint16(core.AmbientQ)
		if props.DecayRate > 0 {
			// Seed decaying materials hot enough that they do not
			// self-destruct on the next tick.
			temp = core.ClampQ(int32(props.DecayThreshold) * 3)
		}
		flags := uint8(core.FlagActive)
		if props.Phase == core.PhaseSolid {
			flags |= core.FlagBonded
		}
		j.setVoxAt(c.WriteBase, idx, core.Pack(core.Fields{
			Material: cmd.Material,
			Temp:     temp,
			Flags:    flags,
		}))
		j.diagAdd(DiagCommandWrites, 1)

	case core.ToolRemove:
		j.setVoxAt(c.WriteBase, idx, core.Voxel{})
		j.Charge[chargeBase(c.WriteBase)+uint32(idx)] = 0
		j.diagAdd(DiagCommandWrites, 1)

	case core.ToolHeat:
		v := j.voxAt(c.WriteBase, idx)
		f := core.Unpack(v)
		f.Temp = core.ClampQ(int32(f.Temp) + cmd.Delta)
		j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		j.diagAdd(DiagCommandWrites, 1)

	case core.ToolPush:
		v := j.voxAt(c.WriteBase, idx)
		if v.IsAir() {
			return
		}
		f := core.Unpack(v)
		f.VelX = core.ClampVel(int32(f.VelX) + int32(cmd.Dir[0]))
		f.VelY = core.ClampVel(int32(f.VelY) + int32(cmd.Dir[1]))
		f.VelZ = core.ClampVel(int32(f.VelZ) + int32(cmd.Dir[2]))
		// A push breaks any structural bond; the collapse solver relies on
		// this to start a flagged component falling.
		f.Flags &^= core.FlagBonded
		j.setVoxAt(c.WriteBase, idx, core.Pack(f))
		j.diagAdd(DiagCommandWrites, 1)
	}
}
