package world

import (
	"sort"

	"alkahest/internal/core"
)

// Loaded reports whether a chunk coordinate has pool slots; the renderer's
// outer DDA skips unloaded chunks.
func (w *World) Loaded(c core.Vec3i) bool {
	_, ok := w.chunks[c]
	return ok
}

// VoxelAt reads the latest settled voxel at a world position. Unloaded
// space reads as air.
func (w *World) VoxelAt(pos core.Vec3i) core.Voxel {
	ch, ok := w.chunks[core.WorldToChunk(pos)]
	if !ok {
		return core.Voxel{}
	}
	l := core.WorldToLocal(pos)
	return w.pool.VoxelAt(ch.ReadOffset(), core.LocalIndex(l.X, l.Y, l.Z))
}

// ChargeAt reads the charge word at a world position.
func (w *World) ChargeAt(pos core.Vec3i) uint32 {
	ch, ok := w.chunks[core.WorldToChunk(pos)]
	if !ok {
		return 0
	}
	l := core.WorldToLocal(pos)
	return w.pool.ChargeAt(ch.ReadOffset(), core.LocalIndex(l.X, l.Y, l.Z))
}

// SetVoxel writes a voxel into both slots of the containing chunk and
// activates it. This is the direct-edit path used by scenario seeding and
// by restore; live gameplay edits go through the command queue instead.
func (w *World) SetVoxel(pos core.Vec3i, v core.Voxel) error {
	if err := w.Touch(pos); err != nil {
		return err
	}
	ch := w.chunks[core.WorldToChunk(pos)]
	l := core.WorldToLocal(pos)
	idx := core.LocalIndex(l.X, l.Y, l.Z)
	w.pool.SetVoxelAt(ch.slots[0], idx, v)
	w.pool.SetVoxelAt(ch.slots[1], idx, v)
	return nil
}

// Chunks iterates all loaded chunk records in lexicographic coordinate
// order; used by snapshotting and the renderer's chunk-level DDA.
func (w *World) Chunks(fn func(*Chunk)) {
	coords := make([]core.Vec3i, 0, len(w.chunks))
	for c := range w.chunks {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return lexLess(coords[i], coords[j]) })
	for _, c := range coords {
		fn(w.chunks[c])
	}
}
