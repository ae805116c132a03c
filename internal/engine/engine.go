// Package engine is the orchestration layer: it wires the pool, the world,
// the pipeline, the renderer, and the structural solver, and sequences the
// per-frame loop.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"alkahest/internal/core"
	"alkahest/internal/render"
	"alkahest/internal/rules"
	"alkahest/internal/sim"
	"alkahest/internal/structural"
	"alkahest/internal/world"
)

// Engine owns one simulated world and its pipeline.
type Engine struct {
	cfg    Config
	tables *rules.Compiled
	logger *log.Logger

	pool     *sim.Pool
	pipeline *sim.Pipeline
	world    *world.World
	renderer *render.Renderer
	solver   *structural.Worker

	// pendingRB is the previous tick's activity readback; it reaches the
	// world one frame late, matching the async readback contract.
	pendingRB *sim.Readback

	lastFrame time.Time
}

// New assembles an engine on the CPU reference executor.
func New(cfg Config, tables *rules.Compiled, logger *log.Logger) (*Engine, error) {
	return NewWithExecutor(cfg, tables, sim.NewCPUExecutor(), logger)
}

// NewWithExecutor assembles an engine on a specific compute backend.
func NewWithExecutor(cfg Config, tables *rules.Compiled, exec sim.Executor, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool := sim.NewPool(cfg.PoolSlots)
	pipeline := sim.NewPipeline(pool, tables, exec, logger, cfg.Debug)

	wcfg := world.Config{
		GridX: cfg.Grid[0], GridY: cfg.Grid[1], GridZ: cfg.Grid[2],
		StreamRadius: cfg.StreamRadius, OuterRadius: cfg.OuterRadius,
		Seed: cfg.Seed, SeaLevel: cfg.SeaLevel,
		Terrain: world.TerrainIDs{
			Stone: cfg.TerrainMaterials.Stone,
			Sand:  cfg.TerrainMaterials.Sand,
			Water: cfg.TerrainMaterials.Water,
		},
		SeedTerrain: cfg.Terrain,
	}
	w := world.New(wcfg, pool, logger)

	e := &Engine{
		cfg:      cfg,
		tables:   tables,
		logger:   logger,
		pool:     pool,
		pipeline: pipeline,
		world:    w,
		renderer: render.New(w, tables),
	}

	solver := structural.NewSolver(w, tables, func(pos core.Vec3i) bool {
		return pipeline.PushCommand(sim.Command{
			Tool: core.ToolPush,
			Pos:  pos,
			Dir:  [3]int8{0, -1, 0},
		})
	})
	e.solver = structural.NewWorker(solver, pipeline.Events(), logger)
	return e, nil
}

// World exposes the chunk map for tooling and tests.
func (e *Engine) World() *world.World { return e.world }

// Pipeline exposes the simulation pipeline.
func (e *Engine) Pipeline() *sim.Pipeline { return e.pipeline }

// Renderer exposes the read-side renderer.
func (e *Engine) Renderer() *render.Renderer { return e.renderer }

// Tables exposes the compiled rule set.
func (e *Engine) Tables() *rules.Compiled { return e.tables }

// PushCommand activates the target chunk and queues the edit. It reports
// whether the queue accepted without dropping.
func (e *Engine) PushCommand(cmd sim.Command) bool {
	if err := e.world.Touch(cmd.Pos); err != nil {
		if e.logger != nil {
			e.logger.Printf("command at %v rejected: %v", cmd.Pos, err)
		}
		return false
	}
	return e.pipeline.PushCommand(cmd)
}

// StepFrame runs one frame's fixed sequence: world maintenance with the
// stale readback, dispatch assembly, the sim tick, and the slot swap.
func (e *Engine) StepFrame(cameraChunk core.Vec3i) error {
	e.world.Update(cameraChunk, e.pendingRB)
	if e.pendingRB != nil {
		for i, coord := range e.pendingRB.Coords {
			if i < len(e.pendingRB.Flags) && e.pendingRB.Flags[i] != 0 {
				e.renderer.RescanChunk(coord)
			}
		}
	}
	e.pendingRB = nil

	entries := e.world.DispatchList()
	rb, err := e.pipeline.Step(entries)
	if err != nil {
		return err
	}
	e.world.SwapDispatched(entries)
	e.pendingRB = rb
	return nil
}

// Run drives frames at the configured tick rate until the context ends.
// The structural solver drains its ring between frames: the ring and the
// command queue give it a tick or two of latency without letting it read
// pool memory while a tick is in flight. When the wall-clock delta between
// frames exceeds the frame budget (a hidden tab, a suspended process), the
// lost time is skipped rather than caught up.
func (e *Engine) Run(ctx context.Context, camera func() core.Vec3i) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	maxDelta := time.Duration(e.cfg.MaxFrameDeltaMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.lastFrame = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if delta := now.Sub(e.lastFrame); delta > maxDelta && e.logger != nil {
				// Lost time is not replayed.
				e.logger.Printf("frame delta %v over budget, skipping catch-up", delta)
			}
			e.lastFrame = now
			if err := e.StepFrame(camera()); err != nil {
				return fmt.Errorf("frame at tick %d: %w", e.pipeline.Tick(), err)
			}
			e.solver.RunOnce()
		}
	}
}

// SolveOnce drains the destruction ring through the structural solver;
// called between frames, never during a tick.
func (e *Engine) SolveOnce() {
	e.solver.RunOnce()
}

// WorldDigest hashes every loaded chunk's settled voxel bytes in
// lexicographic chunk order; two runs of the same seed and inputs must
// produce equal digests at equal ticks.
func (e *Engine) WorldDigest() string {
	h := sha256.New()
	buf := make([]byte, core.ChunkVoxelBytes)
	e.world.Chunks(func(ch *world.Chunk) {
		_ = e.pool.ReadChunk(ch.ReadOffset(), buf)
		h.Write(buf)
	})
	return hex.EncodeToString(h.Sum(nil))
}
