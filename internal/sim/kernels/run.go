package kernels

import "alkahest/internal/core"

// Run executes one full tick: propagate, then the seven passes in their
// fixed order, the last being the activity scan. The caller swaps slot roles
// afterwards.
func Run(j *TickJob) {
	propagate(j)
	passCommands(j)
	passMovement(j)
	passReactions(j)
	passThermal(j)
	passElectrical(j)
	passPressure(j)
	passActivity(j)
}

// propagate copies each dispatched chunk's read slot onto its write slot so
// the in-place passes start from the previous tick's state. The
// updated-this-tick flag is cleared in the copy.
func propagate(j *TickJob) {
	const words = core.VoxelsPerChunk * core.VoxelWords
	clearMask := ^uint32(core.FlagUpdated << 26)

	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		src := j.Vox[c.ReadBase : c.ReadBase+words]
		dst := j.Vox[c.WriteBase : c.WriteBase+words]
		copy(dst, src)
		for i := 1; i < words; i += 2 {
			dst[i] &= clearMask
		}

		csrc := j.Charge[chargeBase(c.ReadBase) : chargeBase(c.ReadBase)+core.VoxelsPerChunk]
		cdst := j.Charge[chargeBase(c.WriteBase) : chargeBase(c.WriteBase)+core.VoxelsPerChunk]
		copy(cdst, csrc)
	}
}

// passActivity compares every dispatched chunk's read slot against its
// write slot, voxel words and charge words alike, and raises the chunk's
// dirty flag on any difference. The comparison is exact: a changed chunk is
// never reported idle.
func passActivity(j *TickJob) {
	const words = core.VoxelsPerChunk * core.VoxelWords

	for ci := range j.Chunks {
		c := &j.Chunks[ci]
		dirty := uint32(0)

		r := j.Vox[c.ReadBase : c.ReadBase+words]
		w := j.Vox[c.WriteBase : c.WriteBase+words]
		for i := 0; i < words; i++ {
			if r[i] != w[i] {
				dirty = 1
				break
			}
		}
		if dirty == 0 {
			cr := j.Charge[chargeBase(c.ReadBase) : chargeBase(c.ReadBase)+core.VoxelsPerChunk]
			cw := j.Charge[chargeBase(c.WriteBase) : chargeBase(c.WriteBase)+core.VoxelsPerChunk]
			for i := 0; i < core.VoxelsPerChunk; i++ {
				if cr[i] != cw[i] {
					dirty = 1
					break
				}
			}
		}
		j.Activity[ci] = dirty
	}
}
