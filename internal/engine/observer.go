package engine

import (
	"alkahest/internal/transport/observer"
	"alkahest/internal/world"
)

// ObserverStats implements observer.StatsSource: a between-frames read of
// the engine state for the debug endpoint.
func (e *Engine) ObserverStats() observer.Stats {
	active := 0
	loaded := 0
	e.world.Chunks(func(ch *world.Chunk) {
		loaded++
		if ch.State == world.Active {
			active++
		}
	})
	return observer.Stats{
		Tick:         e.pipeline.Tick(),
		ActiveChunks: active,
		LoadedChunks: loaded,
		FreeSlots:    e.pool.FreeSlots(),
		DroppedCmds:  e.pipeline.DroppedCommands(),
		Pick:         [8]uint32(e.renderer.Pick()),
	}
}
