// Package indexdb is the run index: a small sqlite database recording
// snapshot metadata and periodic world digests. It is a read model for
// tooling and debugging; the simulation never reads from it, so writes are
// fire-and-forget through a single background writer.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteIndex wraps the database with an async single-writer queue.
type SQLiteIndex struct {
	db *sql.DB

	ch     chan req
	wg     sync.WaitGroup
	closed atomic.Bool
}

type reqKind int

const (
	reqSnapshot reqKind = iota + 1
	reqDigest
)

type req struct {
	kind     reqKind
	snapshot SnapshotRow
	digest   DigestRow
}

// SnapshotRow is one recorded snapshot.
type SnapshotRow struct {
	Tick        uint64
	Path        string
	Seed        int64
	Chunks      int
	RulesDigest string
}

// DigestRow is one periodic world-state digest, used by determinism
// tooling to compare runs.
type DigestRow struct {
	Tick         uint64
	Digest       string
	ActiveChunks int
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	tick         INTEGER NOT NULL,
	path         TEXT NOT NULL,
	seed         INTEGER NOT NULL,
	chunks       INTEGER NOT NULL,
	rules_digest TEXT NOT NULL,
	recorded_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tick_digests (
	tick          INTEGER NOT NULL,
	digest        TEXT NOT NULL,
	active_chunks INTEGER NOT NULL,
	recorded_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_tick ON snapshots(tick);
CREATE INDEX IF NOT EXISTS idx_tick_digests_tick ON tick_digests(tick);
`

// Open creates or opens the index database and starts the writer.
func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index schema: %w", err)
	}

	idx := &SQLiteIndex{db: db, ch: make(chan req, 256)}
	idx.wg.Add(1)
	go idx.writer()
	return idx, nil
}

// RecordSnapshot enqueues a snapshot row; dropped silently after Close.
func (x *SQLiteIndex) RecordSnapshot(row SnapshotRow) {
	if x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
	}
}

// RecordDigest enqueues a tick digest row.
func (x *SQLiteIndex) RecordDigest(row DigestRow) {
	if x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqDigest, digest: row}:
	default:
	}
}

// LatestSnapshot returns the most recent snapshot row, if any.
func (x *SQLiteIndex) LatestSnapshot() (SnapshotRow, bool, error) {
	var row SnapshotRow
	err := x.db.QueryRow(
		`SELECT tick, path, seed, chunks, rules_digest FROM snapshots ORDER BY tick DESC, rowid DESC LIMIT 1`,
	).Scan(&row.Tick, &row.Path, &row.Seed, &row.Chunks, &row.RulesDigest)
	if err == sql.ErrNoRows {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

// DigestAt fetches the recorded digest for a tick, if present.
func (x *SQLiteIndex) DigestAt(tick uint64) (string, bool, error) {
	var d string
	err := x.db.QueryRow(`SELECT digest FROM tick_digests WHERE tick = ? ORDER BY rowid DESC LIMIT 1`, tick).Scan(&d)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

// Close stops the writer, flushes the queue, and closes the database.
func (x *SQLiteIndex) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	close(x.ch)
	x.wg.Wait()
	return x.db.Close()
}

func (x *SQLiteIndex) writer() {
	defer x.wg.Done()
	for r := range x.ch {
		now := time.Now().UTC().Format(time.RFC3339)
		switch r.kind {
		case reqSnapshot:
			_, _ = x.db.Exec(
				`INSERT INTO snapshots (tick, path, seed, chunks, rules_digest, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
				r.snapshot.Tick, r.snapshot.Path, r.snapshot.Seed, r.snapshot.Chunks, r.snapshot.RulesDigest, now,
			)
		case reqDigest:
			_, _ = x.db.Exec(
				`INSERT INTO tick_digests (tick, digest, active_chunks, recorded_at) VALUES (?, ?, ?, ?)`,
				r.digest.Tick, r.digest.Digest, r.digest.ActiveChunks, now,
			)
		}
	}
}
