package world

import (
	"sort"

	"alkahest/internal/core"
	"alkahest/internal/sim"
)

// DispatchList assembles this tick's work: every Active chunk in stable
// chunk-coord lexicographic order, each with its own read/write offsets
// and the 26 neighbor read offsets in canonical descriptor order.
// Unloaded or out-of-bounds neighbors hold the sentinel.
func (w *World) DispatchList() []sim.DispatchEntry {
	coords := make([]core.Vec3i, 0, len(w.chunks))
	for coord, ch := range w.chunks {
		if ch.State == Active {
			coords = append(coords, coord)
		}
	}
	sort.Slice(coords, func(i, j int) bool { return lexLess(coords[i], coords[j]) })

	entries := make([]sim.DispatchEntry, 0, len(coords))
	for _, coord := range coords {
		ch := w.chunks[coord]
		e := sim.DispatchEntry{
			Coord:     coord,
			ReadSlot:  ch.ReadOffset(),
			WriteSlot: ch.WriteOffset(),
		}
		for dz := -1; dz <= 1; dz++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					di := core.DescriptorIndex(dx, dy, dz)
					if di < 0 {
						continue
					}
					nc := core.Vec3i{X: coord.X + dx, Y: coord.Y + dy, Z: coord.Z + dz}
					if nch, ok := w.chunks[nc]; ok {
						e.Neighbors[di] = nch.ReadOffset()
					} else {
						e.Neighbors[di] = core.SentinelSlot
					}
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// ActiveCoords lists Active chunk coordinates in stable order.
func (w *World) ActiveCoords() []core.Vec3i {
	var coords []core.Vec3i
	for coord, ch := range w.chunks {
		if ch.State == Active {
			coords = append(coords, coord)
		}
	}
	sort.Slice(coords, func(i, j int) bool { return lexLess(coords[i], coords[j]) })
	return coords
}

// SwapDispatched flips the slot roles of every chunk in the dispatch list;
// called once after the tick completes.
func (w *World) SwapDispatched(entries []sim.DispatchEntry) {
	for i := range entries {
		if ch, ok := w.chunks[entries[i].Coord]; ok {
			ch.Swap()
		}
	}
}
