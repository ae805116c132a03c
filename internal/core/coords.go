package core

// FloorDiv divides rounding toward negative infinity. b > 0.
func FloorDiv(a, b int) int {
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Mod reduces a into [0, b). b > 0.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// WorldToChunk maps a world-space voxel coordinate to its chunk coordinate.
func WorldToChunk(w Vec3i) Vec3i {
	return Vec3i{FloorDiv(w.X, ChunkSize), FloorDiv(w.Y, ChunkSize), FloorDiv(w.Z, ChunkSize)}
}

// WorldToLocal maps a world-space voxel coordinate to its offset within its chunk.
func WorldToLocal(w Vec3i) Vec3i {
	return Vec3i{Mod(w.X, ChunkSize), Mod(w.Y, ChunkSize), Mod(w.Z, ChunkSize)}
}

// ChunkLocalToWorld recombines a chunk coordinate and local offset.
func ChunkLocalToWorld(c, local Vec3i) Vec3i {
	return Vec3i{c.X*ChunkSize + local.X, c.Y*ChunkSize + local.Y, c.Z*ChunkSize + local.Z}
}

// LocalIndex flattens a local position to its linear voxel index:
// x fastest, then y, then z.
func LocalIndex(x, y, z int) int {
	return x + y*ChunkSize + z*ChunkSize*ChunkSize
}

// IndexToLocal inverts LocalIndex.
func IndexToLocal(idx int) Vec3i {
	return Vec3i{
		X: idx % ChunkSize,
		Y: (idx / ChunkSize) % ChunkSize,
		Z: idx / (ChunkSize * ChunkSize),
	}
}

// InChunkBounds reports whether a local position lies inside [0, ChunkSize)^3.
func InChunkBounds(p Vec3i) bool {
	return p.X >= 0 && p.X < ChunkSize &&
		p.Y >= 0 && p.Y < ChunkSize &&
		p.Z >= 0 && p.Z < ChunkSize
}
