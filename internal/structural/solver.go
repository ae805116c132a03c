// Package structural detects disconnected solid components after
// destruction events and flags them as falling. It runs on the
// orchestration loop between frames, not on a background goroutine; its
// fall commands land one or two ticks after the destroying tick.
package structural

import (
	"alkahest/internal/core"
	"alkahest/internal/rules"
	"alkahest/internal/sim/kernels"
)

// VoxelReader is the read-only world view the flood fill walks.
type VoxelReader interface {
	VoxelAt(pos core.Vec3i) core.Voxel
}

// Submit queues one fall command; it reports false when the command queue
// is saturated, in which case the remainder of the component falls on a
// later event.
type Submit func(pos core.Vec3i) bool

var faceOffsets = [core.FaceCount]core.Vec3i{
	{X: 0, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: -1, Y: 0, Z: 0},
}

// Solver holds the structural material set and bounds.
type Solver struct {
	reader     VoxelReader
	structural map[uint16]bool
	submit     Submit
	limit      int
}

// NewSolver builds a solver over a world view. The structural id set comes
// from the compiled tables: solids with nonzero integrity.
func NewSolver(reader VoxelReader, tables *rules.Compiled, submit Submit) *Solver {
	set := map[uint16]bool{}
	for _, id := range tables.StructuralIDs() {
		set[id] = true
	}
	return &Solver{
		reader:     reader,
		structural: set,
		submit:     submit,
		limit:      core.StructuralFloodLimit,
	}
}

// Process handles a batch of destruction events: for each, a bounded
// flood fill over structural solids adjacent to the destroyed site; any
// component not reachable from ground is flagged falling through the
// command queue.
func (s *Solver) Process(events []kernels.Event) {
	for _, ev := range events {
		origin := core.ChunkLocalToWorld(ev.Chunk, ev.Local)
		for _, off := range faceOffsets {
			start := origin.Add(off)
			v := s.reader.VoxelAt(start)
			if !s.structural[v.Material()] {
				continue
			}
			component, grounded := s.flood(start)
			if grounded {
				continue
			}
			for _, pos := range component {
				if !s.submit(pos) {
					return
				}
			}
		}
	}
}

// flood walks face-adjacent structural voxels from start, bounded by the
// flood limit. A component is grounded when it touches the world floor
// (y = 0) or when it overruns the bound: an oversized component is treated
// as stable this round and re-examined by later events.
func (s *Solver) flood(start core.Vec3i) ([]core.Vec3i, bool) {
	visited := map[core.Vec3i]bool{start: true}
	queue := []core.Vec3i{start}
	var component []core.Vec3i
	grounded := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		component = append(component, cur)

		if cur.Y == 0 {
			grounded = true
		}
		if len(component) >= s.limit {
			return component, true
		}

		for _, off := range faceOffsets {
			nb := cur.Add(off)
			if visited[nb] {
				continue
			}
			v := s.reader.VoxelAt(nb)
			if !s.structural[v.Material()] {
				continue
			}
			visited[nb] = true
			queue = append(queue, nb)
		}
	}
	return component, grounded
}
