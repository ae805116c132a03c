package sim

import (
	"fmt"
	"log"
	"sync"

	"alkahest/internal/core"
	"alkahest/internal/rules"
	"alkahest/internal/sim/kernels"
)

// Command is a single-voxel-scope edit request in world coordinates.
type Command struct {
	Tool     uint8
	Pos      core.Vec3i
	Material uint16
	Delta    int32
	Dir      [3]int8
	Radius   uint8
	Shape    uint8
}

// DispatchEntry describes one chunk to simulate this tick: its own
// read/write slot byte offsets and the 26 neighbor read offsets in
// canonical descriptor order (core.DescriptorIndex). Unloaded neighbors
// hold core.SentinelSlot.
type DispatchEntry struct {
	Coord     core.Vec3i
	ReadSlot  uint32
	WriteSlot uint32
	Neighbors [26]uint32
}

// Readback is the activity-scan result handed back asynchronously. The
// world consumes it one or two frames after the tick that produced it.
type Readback struct {
	Tick   uint64
	Coords []core.Vec3i
	Flags  []uint32
}

// Executor runs a tick job against some compute device. The CPU executor
// is the reference; the WebGPU backend mirrors it shader-side.
type Executor interface {
	Name() string
	Run(job *kernels.TickJob) error
}

// Pipeline owns the pool, the command queue, compiled rule tables, the
// diagnostic scratch, and the destruction ring. It encodes and runs one
// tick at a time; all cross-tick state lives in the pool.
type Pipeline struct {
	pool   *Pool
	tables *rules.Compiled
	exec   Executor
	logger *log.Logger

	// The queue has two producers (input drain on the main thread, fall
	// commands from the structural solver task) and one consumer (Step).
	queueMu sync.Mutex
	queue   []Command
	dropped uint64

	events *EventRing
	diag   []uint32

	tick uint64
}

// NewPipeline wires a pipeline over an existing pool. With debug set, the
// kernels populate the diagnostic buffer for DrainDiag; release builds
// leave it nil and the kernels skip every diagnostic write.
func NewPipeline(pool *Pool, tables *rules.Compiled, exec Executor, logger *log.Logger, debug bool) *Pipeline {
	pl := &Pipeline{
		pool:   pool,
		tables: tables,
		exec:   exec,
		logger: logger,
		events: NewEventRing(core.DestructionRingCap),
	}
	if debug {
		pl.diag = make([]uint32, kernels.DiagWords)
	}
	return pl
}

// Pool exposes the slot pool to the world (allocation) and the renderer
// (read-only voxel access).
func (pl *Pipeline) Pool() *Pool { return pl.pool }

// Tables exposes the compiled rule set.
func (pl *Pipeline) Tables() *rules.Compiled { return pl.tables }

// Events is the destruction ring consumed by the structural solver.
func (pl *Pipeline) Events() *EventRing { return pl.events }

// Tick is the current tick counter.
func (pl *Pipeline) Tick() uint64 { return pl.tick }

// PushCommand queues an edit. The queue is bounded at core.MaxCommands;
// past that the oldest queued command is dropped and false is returned so
// the caller can decide to retry.
func (pl *Pipeline) PushCommand(cmd Command) bool {
	pl.queueMu.Lock()
	defer pl.queueMu.Unlock()
	if len(pl.queue) >= core.MaxCommands {
		pl.queue = pl.queue[1:]
		pl.dropped++
		pl.queue = append(pl.queue, cmd)
		return false
	}
	pl.queue = append(pl.queue, cmd)
	return true
}

// DroppedCommands counts queue overflow drops over the pipeline lifetime.
func (pl *Pipeline) DroppedCommands() uint64 { return pl.dropped }

// Step runs one full tick over the dispatch list: resolve commands, run the
// seven passes on the executor, collect destruction events, and return the
// activity readback handle. The caller swaps chunk slot roles afterwards.
func (pl *Pipeline) Step(entries []DispatchEntry) (*Readback, error) {
	job := &kernels.TickJob{
		Tick:     uint32(pl.tick),
		Vox:      pl.pool.vox,
		Charge:   pl.pool.charge,
		Tables:   pl.tables,
		Activity: make([]uint32, len(entries)),
		Diag:     pl.diag,
	}

	job.Chunks = make([]kernels.Chunk, len(entries))
	for i := range entries {
		e := &entries[i]
		kc := kernels.Chunk{
			Coord:     e.Coord,
			ReadBase:  wordBase(e.ReadSlot),
			WriteBase: wordBase(e.WriteSlot),
		}
		for n, off := range e.Neighbors {
			if off == core.SentinelSlot {
				kc.Neighbors[n] = core.SentinelSlot
			} else {
				kc.Neighbors[n] = wordBase(off)
			}
		}
		job.Chunks[i] = kc
	}

	pl.queueMu.Lock()
	job.Commands = pl.resolveCommands(entries)
	pl.queue = pl.queue[:0]
	pl.queueMu.Unlock()

	if err := pl.exec.Run(job); err != nil {
		return nil, fmt.Errorf("executor %s: tick %d: %w", pl.exec.Name(), pl.tick, err)
	}

	pl.events.Push(job.Events...)

	rb := &Readback{Tick: pl.tick, Flags: job.Activity}
	rb.Coords = make([]core.Vec3i, len(entries))
	for i := range entries {
		rb.Coords[i] = entries[i].Coord
	}

	pl.tick++
	return rb, nil
}

// resolveCommands maps queued world-space commands onto dispatched chunks.
// Commands aimed at chunks absent from this tick's dispatch list are
// dropped; the world activates a chunk before queuing edits against it.
func (pl *Pipeline) resolveCommands(entries []DispatchEntry) []kernels.Command {
	if len(pl.queue) == 0 {
		return nil
	}
	index := make(map[core.Vec3i]int, len(entries))
	for i := range entries {
		index[entries[i].Coord] = i
	}

	out := make([]kernels.Command, 0, len(pl.queue))
	for _, cmd := range pl.queue {
		ci, ok := index[core.WorldToChunk(cmd.Pos)]
		if !ok {
			if pl.logger != nil {
				pl.logger.Printf("drop command tool=%d at %v: chunk not dispatched", cmd.Tool, cmd.Pos)
			}
			continue
		}
		out = append(out, kernels.Command{
			Tool:     uint32(cmd.Tool),
			Chunk:    ci,
			Local:    core.WorldToLocal(cmd.Pos),
			Material: cmd.Material,
			Delta:    cmd.Delta,
			Dir:      cmd.Dir,
			Radius:   int(cmd.Radius),
			Shape:    cmd.Shape,
		})
	}
	return out
}

// DrainDiag returns a copy of the diagnostic buffer and zeroes it; debug
// builds drain it once per frame into the diag log. Returns nil when the
// pipeline was built without debug.
func (pl *Pipeline) DrainDiag() []uint32 {
	if pl.diag == nil {
		return nil
	}
	out := make([]uint32, len(pl.diag))
	copy(out, pl.diag)
	for i := range pl.diag {
		pl.diag[i] = 0
	}
	return out
}
