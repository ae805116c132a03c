// Package sim owns the chunk slot pool and drives the seven-pass tick over
// a dispatch list. All voxel and charge bytes live here for the engine's
// lifetime; chunks hold slot byte offsets as opaque handles.
package sim

import (
	"encoding/binary"
	"fmt"

	"alkahest/internal/core"
)

// ErrPoolExhausted is returned when no slot pair is available.
var ErrPoolExhausted = fmt.Errorf("E_POOL_EXHAUSTED: no free chunk slots")

// Pool is the contiguous slot-subdivided simulation memory: a voxel array
// (two u32 words per voxel) and a parallel charge array (one u32 per
// voxel). Each logical chunk owns two slots, swapped each tick; slot byte
// offsets are the handles handed to the world and the renderer.
type Pool struct {
	slots  int
	vox    []uint32
	charge []uint32
	free   []uint32 // free slot indices, LIFO
}

// NewPool allocates a pool of the given slot count. Every chunk needs two
// slots, so a world of N chunks needs a pool of at least 2N.
func NewPool(slots int) *Pool {
	p := &Pool{
		slots:  slots,
		vox:    make([]uint32, slots*core.VoxelsPerChunk*core.VoxelWords),
		charge: make([]uint32, slots*core.VoxelsPerChunk),
	}
	// Hand out low offsets first.
	for i := slots - 1; i >= 0; i-- {
		p.free = append(p.free, uint32(i))
	}
	return p
}

// Slots is the pool's total slot count.
func (p *Pool) Slots() int { return p.slots }

// FreeSlots is the number of currently unallocated slots.
func (p *Pool) FreeSlots() int { return len(p.free) }

// AllocPair reserves the two slots of one chunk and returns their byte
// offsets, zero-filled.
func (p *Pool) AllocPair() (a, b uint32, err error) {
	if len(p.free) < 2 {
		return 0, 0, ErrPoolExhausted
	}
	sa := p.free[len(p.free)-1]
	sb := p.free[len(p.free)-2]
	p.free = p.free[:len(p.free)-2]
	p.clearSlot(sa)
	p.clearSlot(sb)
	return sa * core.ChunkVoxelBytes, sb * core.ChunkVoxelBytes, nil
}

// FreePair returns a chunk's two slots to the free list.
func (p *Pool) FreePair(a, b uint32) {
	p.free = append(p.free, a/core.ChunkVoxelBytes, b/core.ChunkVoxelBytes)
}

func (p *Pool) clearSlot(slot uint32) {
	vb := slot * core.VoxelsPerChunk * core.VoxelWords
	for i := uint32(0); i < core.VoxelsPerChunk*core.VoxelWords; i++ {
		p.vox[vb+i] = 0
	}
	cb := slot * core.VoxelsPerChunk
	for i := uint32(0); i < core.VoxelsPerChunk; i++ {
		p.charge[cb+i] = 0
	}
}

// wordBase converts a slot byte offset into a word index into the voxel array.
func wordBase(byteOffset uint32) uint32 { return byteOffset / 4 }

// VoxelAt reads one voxel from a slot identified by byte offset.
func (p *Pool) VoxelAt(slotOffset uint32, idx int) core.Voxel {
	o := wordBase(slotOffset) + uint32(idx)*core.VoxelWords
	return core.Voxel{Lo: p.vox[o], Hi: p.vox[o+1]}
}

// SetVoxelAt writes one voxel into a slot identified by byte offset.
func (p *Pool) SetVoxelAt(slotOffset uint32, idx int, v core.Voxel) {
	o := wordBase(slotOffset) + uint32(idx)*core.VoxelWords
	p.vox[o] = v.Lo
	p.vox[o+1] = v.Hi
}

// ChargeAt reads one charge word from a slot.
func (p *Pool) ChargeAt(slotOffset uint32, idx int) uint32 {
	return p.charge[wordBase(slotOffset)/core.VoxelWords+uint32(idx)]
}

// SetChargeAt writes one charge word into a slot.
func (p *Pool) SetChargeAt(slotOffset uint32, idx int, v uint32) {
	p.charge[wordBase(slotOffset)/core.VoxelWords+uint32(idx)] = v
}

// ReadChunk serializes a slot's voxel bytes little-endian into dst, which
// must hold core.ChunkVoxelBytes. Used by persistence and streaming; on a
// device backend this blocks on readback completion first.
func (p *Pool) ReadChunk(slotOffset uint32, dst []byte) error {
	if len(dst) < core.ChunkVoxelBytes {
		return fmt.Errorf("dst too small: %d", len(dst))
	}
	base := wordBase(slotOffset)
	for i := uint32(0); i < core.VoxelsPerChunk*core.VoxelWords; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], p.vox[base+i])
	}
	return nil
}

// WriteChunk loads serialized voxel bytes into a slot.
func (p *Pool) WriteChunk(slotOffset uint32, src []byte) error {
	if len(src) < core.ChunkVoxelBytes {
		return fmt.Errorf("src too small: %d", len(src))
	}
	base := wordBase(slotOffset)
	for i := uint32(0); i < core.VoxelsPerChunk*core.VoxelWords; i++ {
		p.vox[base+i] = binary.LittleEndian.Uint32(src[i*4:])
	}
	return nil
}

// SlotEqual compares two slots' voxel and charge words.
func (p *Pool) SlotEqual(a, b uint32) bool {
	ab, bb := wordBase(a), wordBase(b)
	for i := uint32(0); i < core.VoxelsPerChunk*core.VoxelWords; i++ {
		if p.vox[ab+i] != p.vox[bb+i] {
			return false
		}
	}
	ac, bc := ab/core.VoxelWords, bb/core.VoxelWords
	for i := uint32(0); i < core.VoxelsPerChunk; i++ {
		if p.charge[ac+i] != p.charge[bc+i] {
			return false
		}
	}
	return true
}
