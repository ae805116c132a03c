package engine

import (
	"encoding/binary"
	"fmt"

	"alkahest/internal/core"
	"alkahest/internal/encoding"
	"alkahest/internal/persistence/snapshot"
	"alkahest/internal/world"
)

// Snapshot captures every loaded chunk's settled voxel state. Material
// ids are rewritten from internal to authored ids so saves survive a mod
// list change; the header records the compiled rule-set digest.
func (e *Engine) Snapshot() *snapshot.SnapshotV1 {
	s := &snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     snapshot.Version,
			Tick:        e.pipeline.Tick(),
			Seed:        e.cfg.Seed,
			RulesDigest: e.tables.Digest(),
			Grid:        [3]int{e.cfg.Grid[0], e.cfg.Grid[1], e.cfg.Grid[2]},
		},
	}

	buf := make([]byte, core.ChunkVoxelBytes)
	words := make([]uint32, core.VoxelsPerChunk*core.VoxelWords)
	e.world.Chunks(func(ch *world.Chunk) {
		if err := e.pool.ReadChunk(ch.ReadOffset(), buf); err != nil {
			return
		}
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
		// Low word of every voxel carries the material id.
		for i := 0; i < len(words); i += core.VoxelWords {
			internal := uint16(words[i] & 0xFFFF)
			authored := e.tables.Remap.Authored(internal)
			words[i] = words[i]&^uint32(0xFFFF) | uint32(authored)
		}
		s.Chunks = append(s.Chunks, snapshot.ChunkV1{
			Coord:  [3]int{ch.Coord.X, ch.Coord.Y, ch.Coord.Z},
			Voxels: encoding.EncodeRLE(words),
		})
	})
	return s
}

// Restore replaces the world's loaded chunks with a snapshot's contents.
// A rule-set digest mismatch is a warning, not an error: the snapshot
// still loads, with unknown authored materials degraded to air.
func (e *Engine) Restore(s *snapshot.SnapshotV1) error {
	if g := s.Header.Grid; g != [3]int{e.cfg.Grid[0], e.cfg.Grid[1], e.cfg.Grid[2]} {
		return fmt.Errorf("snapshot grid %v does not match engine grid %v", g, e.cfg.Grid)
	}
	if s.Header.RulesDigest != e.tables.Digest() && e.logger != nil {
		e.logger.Printf("warning: snapshot rule digest %.12s differs from loaded %.12s",
			s.Header.RulesDigest, e.tables.Digest())
	}

	buf := make([]byte, core.ChunkVoxelBytes)
	for _, cr := range s.Chunks {
		coord := core.Vec3i{X: cr.Coord[0], Y: cr.Coord[1], Z: cr.Coord[2]}
		ch, err := e.world.Ensure(coord)
		if err != nil {
			return fmt.Errorf("restore chunk %v: %w", coord, err)
		}

		words, err := encoding.DecodeRLE(cr.Voxels)
		if err != nil {
			return fmt.Errorf("restore chunk %v: %w", coord, err)
		}
		if len(words) != core.VoxelsPerChunk*core.VoxelWords {
			return fmt.Errorf("restore chunk %v: %d words", coord, len(words))
		}

		for i := 0; i < len(words); i += core.VoxelWords {
			authored := uint16(words[i] & 0xFFFF)
			internal, ok := e.resolveAuthored(authored)
			if !ok {
				// Material from a mod that is no longer loaded.
				words[i+0] = 0
				words[i+1] = 0
				continue
			}
			words[i] = words[i]&^uint32(0xFFFF) | uint32(internal)
		}

		for i := range words {
			binary.LittleEndian.PutUint32(buf[i*4:], words[i])
		}
		if err := e.pool.WriteChunk(ch.ReadOffset(), buf); err != nil {
			return err
		}
		if err := e.pool.WriteChunk(ch.WriteOffset(), buf); err != nil {
			return err
		}
		e.renderer.RescanChunk(coord)
	}
	return nil
}

func (e *Engine) resolveAuthored(authored uint16) (uint16, bool) {
	if authored < core.ModIDBase {
		if uint32(authored) >= e.tables.MaterialCount {
			return 0, false
		}
		return authored, true
	}
	return e.tables.Remap.Internal(authored)
}

// SaveSnapshot writes a snapshot file.
func (e *Engine) SaveSnapshot(path string) error {
	return snapshot.Write(path, e.Snapshot())
}

// LoadSnapshot restores from a snapshot file.
func (e *Engine) LoadSnapshot(path string) error {
	s, err := snapshot.Read(path)
	if err != nil {
		return err
	}
	return e.Restore(s)
}
