package world

import (
	"alkahest/internal/core"
)

// TerrainIDs names the materials the seeder writes.
type TerrainIDs struct {
	Stone uint16
	Sand  uint16
	Water uint16
}

// Terrain is the deterministic heightmap seeder: two octaves of seeded
// value noise produce a surface, stone fills below it with a sand cap, and
// water fills low ground up to sea level.
type Terrain struct {
	seed     int64
	seaLevel int
	ids      TerrainIDs
}

// NewTerrain builds a seeder for a seed and material id assignment.
func NewTerrain(seed int64, seaLevel int, ids TerrainIDs) *Terrain {
	return &Terrain{seed: seed, seaLevel: seaLevel, ids: ids}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (t *Terrain) hash2(x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(t.seed) ^ ux*0x9e3779b97f4a7c15 ^ uz*0xbf58476d1ce4e5b9)
}

// latticeValue is a deterministic [0,1) sample at a lattice point.
func (t *Terrain) latticeValue(x, z int) float64 {
	return float64(t.hash2(x, z)>>40) / float64(uint64(1)<<24)
}

// valueNoise is bilinear interpolation between lattice samples of the
// given cell size.
func (t *Terrain) valueNoise(wx, wz, cell int) float64 {
	cx, cz := core.FloorDiv(wx, cell), core.FloorDiv(wz, cell)
	fx := float64(core.Mod(wx, cell)) / float64(cell)
	fz := float64(core.Mod(wz, cell)) / float64(cell)

	v00 := t.latticeValue(cx, cz)
	v10 := t.latticeValue(cx+1, cz)
	v01 := t.latticeValue(cx, cz+1)
	v11 := t.latticeValue(cx+1, cz+1)

	// Smoothstep fade.
	fx = fx * fx * (3 - 2*fx)
	fz = fz * fz * (3 - 2*fz)

	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return top + (bot-top)*fz
}

// Height is the terrain surface at a world column.
func (t *Terrain) Height(wx, wz int) int {
	n := t.valueNoise(wx, wz, 32)*0.7 + t.valueNoise(wx, wz, 9)*0.3
	return t.seaLevel - 4 + int(n*14)
}

// MaterialAt is the seeded material for one world voxel.
func (t *Terrain) MaterialAt(wx, wy, wz int) uint16 {
	h := t.Height(wx, wz)
	switch {
	case wy < h-1:
		return t.ids.Stone
	case wy <= h:
		return t.ids.Sand
	case wy <= t.seaLevel && h <= t.seaLevel:
		return t.ids.Water
	default:
		return 0
	}
}

// SeedChunk writes the seeded voxels for a chunk into both of its slots so
// the first dispatch starts from identical read and write state.
func (t *Terrain) SeedChunk(pool voxelWriter, coord core.Vec3i, readOffset, writeOffset uint32) {
	base := core.Vec3i{X: coord.X * core.ChunkSize, Y: coord.Y * core.ChunkSize, Z: coord.Z * core.ChunkSize}
	for z := 0; z < core.ChunkSize; z++ {
		for y := 0; y < core.ChunkSize; y++ {
			for x := 0; x < core.ChunkSize; x++ {
				mat := t.MaterialAt(base.X+x, base.Y+y, base.Z+z)
				if mat == 0 {
					continue
				}
				var flags uint8
				if mat == t.ids.Stone {
					// Seeded bedrock is bonded; the collapse solver clears
					// the bond when it disconnects.
					flags = core.FlagBonded
				}
				v := core.Pack(core.Fields{Material: mat, Temp: core.AmbientQ, Flags: flags})
				idx := core.LocalIndex(x, y, z)
				pool.SetVoxelAt(readOffset, idx, v)
				pool.SetVoxelAt(writeOffset, idx, v)
			}
		}
	}
}

// voxelWriter is the slice of the pool the seeder needs.
type voxelWriter interface {
	SetVoxelAt(slotOffset uint32, idx int, v core.Voxel)
}
