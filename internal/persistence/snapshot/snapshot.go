// Package snapshot frames engine snapshots on disk: a versioned JSON
// document, zstd-compressed. Chunk voxel words are run-length encoded
// before compression. Framing and compression live here; what goes into a
// snapshot is the engine's concern.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the current snapshot format version.
const Version = 1

// Header identifies a snapshot and the rule set it was taken under.
type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Seed    int64  `json:"seed"`
	// RulesDigest is the compiled rule-set digest at save time; restore
	// warns when the current set differs.
	RulesDigest string `json:"rules_digest"`
	Grid        [3]int `json:"grid"`
}

// ChunkV1 is one chunk record: coordinate plus RLE voxel words. Material
// ids inside the words are authored ids, not internal ids.
type ChunkV1 struct {
	Coord  [3]int `json:"coord"`
	Voxels string `json:"voxels"`
}

// SnapshotV1 is the full on-disk document.
type SnapshotV1 struct {
	Header Header    `json:"header"`
	Chunks []ChunkV1 `json:"chunks"`
}

// Write atomically writes a snapshot: temp file, fsync, rename.
func Write(path string, s *SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(s); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads and version-checks a snapshot.
func Read(path string) (*SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var s SnapshotV1
	if err := json.NewDecoder(dec.IOReadCloser()).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Header.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	return &s, nil
}
