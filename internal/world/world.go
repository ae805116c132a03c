package world

import (
	"fmt"
	"log"
	"sort"

	"alkahest/internal/core"
	"alkahest/internal/sim"
)

// Config sizes the chunk grid and the streaming policy. Grid dimensions
// are fixed for a run but parameterizable per world.
type Config struct {
	// GridX/Y/Z bound the addressable chunk grid: coords in [0, Grid*).
	GridX, GridY, GridZ int

	// StreamRadius is the chunk-space radius around the camera kept
	// loaded; OuterRadius is the eviction distance. Outer must exceed
	// stream so chunks do not thrash at the edge.
	StreamRadius int
	OuterRadius  int

	Seed     int64
	SeaLevel int
	Terrain  TerrainIDs

	// SeedTerrain disables the terrain seeder when false (test worlds
	// start as air).
	SeedTerrain bool
}

// DefaultConfig is the stock 8x4x8 grid.
func DefaultConfig(seed int64, ids TerrainIDs) Config {
	return Config{
		GridX: 8, GridY: 4, GridZ: 8,
		StreamRadius: 3, OuterRadius: 5,
		Seed: seed, SeaLevel: 8, Terrain: ids, SeedTerrain: true,
	}
}

// World owns the chunk map and the state machine. It is mutated only on
// the main thread between ticks.
type World struct {
	cfg     Config
	pool    *sim.Pool
	terrain *Terrain
	chunks  map[core.Vec3i]*Chunk
	logger  *log.Logger
}

// New builds a world over a pool. No chunks are loaded until the first
// Update or an explicit Ensure call.
func New(cfg Config, pool *sim.Pool, logger *log.Logger) *World {
	return &World{
		cfg:     cfg,
		pool:    pool,
		terrain: NewTerrain(cfg.Seed, cfg.SeaLevel, cfg.Terrain),
		chunks:  map[core.Vec3i]*Chunk{},
		logger:  logger,
	}
}

// InBounds reports whether a chunk coordinate is inside the grid.
func (w *World) InBounds(c core.Vec3i) bool {
	return c.X >= 0 && c.X < w.cfg.GridX &&
		c.Y >= 0 && c.Y < w.cfg.GridY &&
		c.Z >= 0 && c.Z < w.cfg.GridZ
}

// Get returns the loaded chunk record at a coordinate, if any.
func (w *World) Get(c core.Vec3i) *Chunk { return w.chunks[c] }

// LoadedCount is the number of loaded chunks.
func (w *World) LoadedCount() int { return len(w.chunks) }

// Ensure loads a chunk as Static, seeding terrain, and returns it. Already
// loaded chunks are returned as-is.
func (w *World) Ensure(c core.Vec3i) (*Chunk, error) {
	if !w.InBounds(c) {
		return nil, fmt.Errorf("chunk %v outside grid", c)
	}
	if ch, ok := w.chunks[c]; ok {
		return ch, nil
	}
	a, b, err := w.pool.AllocPair()
	if err != nil {
		return nil, err
	}
	ch := &Chunk{Coord: c, State: Static, slots: [2]uint32{a, b}}
	if w.cfg.SeedTerrain {
		w.terrain.SeedChunk(w.pool, c, a, b)
	}
	w.chunks[c] = ch
	return ch, nil
}

// Activate marks a chunk Active and promotes its 26 neighbors to at least
// Boundary, loading them if needed.
func (w *World) Activate(c core.Vec3i) error {
	ch, err := w.Ensure(c)
	if err != nil {
		return err
	}
	ch.State = Active
	ch.markDirty()

	for d := core.Direction(0); d < core.DirectionCount; d++ {
		nc := c.Add(d.Offset())
		if !w.InBounds(nc) {
			continue
		}
		nch, err := w.Ensure(nc)
		if err != nil {
			return err
		}
		if nch.State == Static {
			nch.State = Boundary
		}
	}
	return nil
}

// Touch activates the chunk containing a world position; used before
// queuing a command against it.
func (w *World) Touch(pos core.Vec3i) error {
	return w.Activate(core.WorldToChunk(pos))
}

// Update runs the per-frame world maintenance: consume the (stale)
// activity readback, then stream chunks around the camera.
func (w *World) Update(cameraChunk core.Vec3i, rb *sim.Readback) {
	if rb != nil {
		w.consumeReadback(rb)
	}
	w.stream(cameraChunk)
}

// consumeReadback applies activity flags that are one or two ticks old.
// Dirty chunks reset their idle counters and wake their face neighbors;
// chunks clean for SettleTicks demote to Static.
func (w *World) consumeReadback(rb *sim.Readback) {
	for i, coord := range rb.Coords {
		ch, ok := w.chunks[coord]
		if !ok || ch.State != Active {
			continue
		}
		if i < len(rb.Flags) && rb.Flags[i] != 0 {
			ch.markDirty()
			// Cross-boundary effects: a dirty chunk may have produced
			// reactions visible from its neighbors, so they must simulate.
			for f := core.Direction(0); f < core.FaceCount; f++ {
				nc := coord.Add(f.Offset())
				if nch, ok := w.chunks[nc]; ok && (nch.State == Static || nch.State == Boundary) {
					if err := w.Activate(nc); err != nil && w.logger != nil {
						w.logger.Printf("activate neighbor %v: %v", nc, err)
					}
				}
			}
			continue
		}
		if ch.markClean() {
			ch.State = Static
			w.demoteOrphanBoundaries(coord)
		}
	}
}

// demoteOrphanBoundaries rechecks the neighbors of a settled chunk: a
// Boundary chunk with no remaining Active neighbor returns to Static.
func (w *World) demoteOrphanBoundaries(c core.Vec3i) {
	for d := core.Direction(0); d < core.DirectionCount; d++ {
		nc := c.Add(d.Offset())
		nch, ok := w.chunks[nc]
		if !ok || nch.State != Boundary {
			continue
		}
		if !w.hasActiveNeighbor(nc) {
			nch.State = Static
		}
	}
}

func (w *World) hasActiveNeighbor(c core.Vec3i) bool {
	for d := core.Direction(0); d < core.DirectionCount; d++ {
		if nch, ok := w.chunks[c.Add(d.Offset())]; ok && nch.State == Active {
			return true
		}
	}
	return false
}

// stream loads chunks within StreamRadius of the camera and unloads loaded
// chunks beyond OuterRadius that have no Active neighbor.
func (w *World) stream(camera core.Vec3i) {
	r := w.cfg.StreamRadius
	for dz := -r; dz <= r; dz++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				c := core.Vec3i{X: camera.X + dx, Y: camera.Y + dy, Z: camera.Z + dz}
				if !w.InBounds(c) {
					continue
				}
				if _, err := w.Ensure(c); err != nil {
					if w.logger != nil {
						w.logger.Printf("stream in %v: %v", c, err)
					}
					return
				}
			}
		}
	}

	var evict []core.Vec3i
	for coord, ch := range w.chunks {
		if ch.State == Active {
			continue
		}
		if chebyshev(coord, camera) <= w.cfg.OuterRadius {
			continue
		}
		if w.hasActiveNeighbor(coord) {
			continue
		}
		evict = append(evict, coord)
	}
	// Deterministic eviction order.
	sort.Slice(evict, func(i, j int) bool { return lexLess(evict[i], evict[j]) })
	for _, coord := range evict {
		ch := w.chunks[coord]
		w.pool.FreePair(ch.slots[0], ch.slots[1])
		delete(w.chunks, coord)
	}
}

func chebyshev(a, b core.Vec3i) int {
	d := func(x, y int) int {
		if x > y {
			return x - y
		}
		return y - x
	}
	m := d(a.X, b.X)
	if v := d(a.Y, b.Y); v > m {
		m = v
	}
	if v := d(a.Z, b.Z); v > m {
		m = v
	}
	return m
}

func lexLess(a, b core.Vec3i) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
