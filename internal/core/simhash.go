package core

// SimHash is the per-voxel deterministic PRNG: a pure function of position
// and tick with no state. The WGSL mirror (sim_hash in shaders/common.wgsl)
// implements the identical mixing; no automated test compares the two.
func SimHash(x, y, z int32, tick uint32) uint32 {
	state := uint32(x)*0x9E3779B9 +
		uint32(y)*0x517CC1B7 +
		uint32(z)*0x6C62272E +
		tick*0x2545F491

	state ^= state >> 16
	state *= 0x45D9F3B
	state ^= state >> 16
	state *= 0x45D9F3B
	state ^= state >> 16
	return state
}

// HashUnit maps a hash value onto [0, 1) with 24 bits of precision.
func HashUnit(h uint32) float64 {
	return float64(h>>8) / 16777216.0
}
