// Command engine runs the Alkahest simulation headless: load and compile
// the rule set, build or restore a world, and tick it at the configured
// rate. A loopback observer endpoint exposes per-frame stats; snapshots
// and world digests land in the data directory and its sqlite index.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"alkahest/internal/core"
	"alkahest/internal/engine"
	persistlog "alkahest/internal/persistence/log"
	"alkahest/internal/persistence/indexdb"
	"alkahest/internal/rules"
	"alkahest/internal/sim"
	"alkahest/internal/sim/device/webgpu"
	"alkahest/internal/sim/kernels"
	"alkahest/internal/transport/observer"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory (materials, rules, mods, engine.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		device     = flag.String("device", "cpu", "compute backend (cpu, webgpu)")
		snapPath   = flag.String("snapshot", "", "snapshot to restore (default: latest indexed)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "restore the latest indexed snapshot when -snapshot is empty")
		obsAddr    = flag.String("obs_listen", "127.0.0.1:8085", "observer http listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
		seed       = flag.Int64("seed", 0, "seed override (0 keeps engine.yaml)")
		ticks      = flag.Uint64("ticks", 0, "stop after N ticks (0 runs until signalled)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := engine.LoadConfig(filepath.Join(*configDir, "engine.yaml"))
	if err != nil {
		logger.Fatalf("load engine.yaml: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	tables, warns, err := rules.LoadAndCompile(*configDir)
	if err != nil {
		logger.Fatalf("load rules: %v", err)
	}
	for _, w := range warns {
		logger.Printf("rules: %s", w)
	}
	logger.Printf("compiled %d materials, %d rule entries, digest %.12s",
		tables.MaterialCount, len(tables.Rules), tables.Digest())

	var exec sim.Executor
	switch strings.TrimSpace(*device) {
	case "", "cpu":
		exec = sim.NewCPUExecutor()
	case "webgpu":
		gpu, err := webgpu.New()
		if err != nil {
			// Device errors are fatal; there is no silent software fallback.
			logger.Fatalf("webgpu backend: %v", err)
		}
		defer gpu.Release()
		exec = gpu
	default:
		logger.Fatalf("unknown device %q", *device)
	}

	eng, err := engine.NewWithExecutor(cfg, tables, exec, logger)
	if err != nil {
		logger.Fatalf("build engine: %v", err)
	}
	logger.Printf("engine up: grid %v, pool %d slots, device %s", cfg.Grid, cfg.PoolSlots, exec.Name())

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open run index: %v", err)
		}
		defer idx.Close()
	}

	restore := strings.TrimSpace(*snapPath)
	if restore == "" && *loadLatest && idx != nil {
		if row, ok, err := idx.LatestSnapshot(); err == nil && ok {
			restore = row.Path
		}
	}
	if restore != "" {
		if err := eng.LoadSnapshot(restore); err != nil {
			logger.Fatalf("restore %s: %v", restore, err)
		}
		logger.Printf("restored snapshot %s at tick %d", restore, eng.Pipeline().Tick())
	}

	var diagLog *persistlog.DiagLogger
	if cfg.Debug {
		diagLog = persistlog.NewDiagLogger(*dataDir)
		defer diagLog.Close()
	}
	drainDiag := func() {
		if diagLog == nil {
			return
		}
		d := eng.Pipeline().DrainDiag()
		if d == nil {
			return
		}
		_ = diagLog.WriteDiag(persistlog.DiagEntry{
			Tick:      eng.Pipeline().Tick(),
			Moves:     d[kernels.DiagMoves],
			Swaps:     d[kernels.DiagSwaps],
			Reactions: d[kernels.DiagReactions],
			Decays:    d[kernels.DiagDecays],
			Ruptures:  d[kernels.DiagRuptures],
			Commands:  d[kernels.DiagCommandWrites],
		})
	}

	obs := observer.NewServer(eng, logger)
	if *obsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/stats", obs.StatsHandler())
		mux.HandleFunc("/v1/ws", obs.WSHandler())
		srv := &http.Server{Addr: *obsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer: %v", err)
			}
		}()
		defer srv.Close()
		logger.Printf("observer on http://%s/v1/stats", *obsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Headless camera: park over the grid center.
	center := core.Vec3i{X: cfg.Grid[0] / 2, Y: cfg.Grid[1] / 2, Z: cfg.Grid[2] / 2}
	camera := func() core.Vec3i { return center }

	runErr := runLoop(ctx, eng, obs, idx, cfg, camera, *ticks, *dataDir, drainDiag, logger)
	if runErr != nil && runErr != context.Canceled {
		logger.Fatalf("run: %v", runErr)
	}

	final := filepath.Join(*dataDir, "snapshots", "final.snap.zst")
	if err := eng.SaveSnapshot(final); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else if idx != nil {
		idx.RecordSnapshot(indexdb.SnapshotRow{
			Tick: eng.Pipeline().Tick(), Path: final, Seed: cfg.Seed,
			Chunks: eng.World().LoadedCount(), RulesDigest: tables.Digest(),
		})
		logger.Printf("final snapshot written: %s (tick %d)", final, eng.Pipeline().Tick())
	}
}

// runLoop is the orchestrator: one frame per tick interval, observer
// publish after every frame, periodic digests and snapshots.
func runLoop(ctx context.Context, eng *engine.Engine, obs *observer.Server, idx *indexdb.SQLiteIndex,
	cfg engine.Config, camera func() core.Vec3i, maxTicks uint64, dataDir string,
	drainDiag func(), logger *log.Logger) error {

	interval := time.Second / time.Duration(cfg.TickRateHz)
	maxDelta := time.Duration(cfg.MaxFrameDeltaMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Sub(last) > maxDelta {
				// A stalled process does not replay lost ticks.
				logger.Printf("frame delta %v exceeded budget, skipping catch-up", now.Sub(last))
			}
			last = now

			if err := eng.StepFrame(camera()); err != nil {
				return err
			}
			eng.SolveOnce()
			drainDiag()
			obs.Publish()

			tick := eng.Pipeline().Tick()
			if idx != nil && cfg.DigestEveryTicks > 0 && tick%uint64(cfg.DigestEveryTicks) == 0 {
				idx.RecordDigest(indexdb.DigestRow{
					Tick: tick, Digest: eng.WorldDigest(), ActiveChunks: len(eng.World().ActiveCoords()),
				})
			}
			if cfg.SnapshotEveryTicks > 0 && tick%uint64(cfg.SnapshotEveryTicks) == 0 {
				path := filepath.Join(dataDir, "snapshots", "auto.snap.zst")
				if err := eng.SaveSnapshot(path); err != nil {
					logger.Printf("snapshot: %v", err)
				} else if idx != nil {
					idx.RecordSnapshot(indexdb.SnapshotRow{
						Tick: tick, Path: path, Seed: cfg.Seed,
						Chunks: eng.World().LoadedCount(), RulesDigest: eng.Tables().Digest(),
					})
				}
			}
			if maxTicks > 0 && tick >= maxTicks {
				return nil
			}
		}
	}
}
