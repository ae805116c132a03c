// Package core holds the shared constants and packed data types of the
// engine. Every value here has a mirror in the WGSL shader preamble
// (internal/sim/device/webgpu/shaders/common.wgsl); the two must agree.
package core

const (
	// ChunkSize is the side length of a chunk in voxels.
	ChunkSize = 32

	// VoxelWords is the number of u32 words per packed voxel.
	VoxelWords = 2

	// VoxelBytes is the byte size of one packed voxel.
	VoxelBytes = 8

	// VoxelsPerChunk is the voxel count of one chunk (32^3).
	VoxelsPerChunk = ChunkSize * ChunkSize * ChunkSize

	// ChunkVoxelBytes is the byte size of one chunk's voxel storage (256 KiB).
	ChunkVoxelBytes = VoxelsPerChunk * VoxelBytes

	// ChunkChargeBytes is the byte size of one chunk's charge storage (128 KiB).
	ChunkChargeBytes = VoxelsPerChunk * 4
)

// Temperature quantization: 12 bits mapping linearly onto [0, MaxTempK].
const (
	MaxTempK     = 8000.0
	TempQuantMax = 4095

	// AmbientTempK is ~20 degrees C.
	AmbientTempK = 293.0

	// AmbientQ is AmbientTempK quantized: round(293/8000*4095) = 150.
	AmbientQ = 150
)

// Simulation tuning. Quantized temperature space unless noted.
const (
	// SettleTicks is the number of consecutive clean activity-scan results
	// before an Active chunk demotes to Static.
	SettleTicks = 8

	// MaxCommands bounds the per-tick command queue.
	MaxCommands = 64

	// MaxBrushRadius bounds brushed command expansion.
	MaxBrushRadius = 16

	// DiffusionRate scales the 26-neighbor thermal diffusion sum. Together
	// with the validator's conductivity clamp it satisfies the discrete CFL
	// condition DiffusionRate * maxConductivity * 26 < 1.
	DiffusionRate = 0.25

	// EntropyStep is the per-tick drift toward AmbientQ.
	EntropyStep = 1

	// ConvectionThreshold: fluids hotter than AmbientQ+this get upward velocity.
	ConvectionThreshold = 100

	ThermalPressureFactor = 2
	PressureDiffusionRate = 0.25
	PressureMax           = 63

	ChargeMax               = 255
	ChargeDecayRate         = 16
	ElectricalDiffusionRate = 0.9

	// JouleDivisor: joule heating adds charge*charge*resistance/JouleDivisor.
	JouleDivisor = 512
)

const (
	// SentinelSlot marks an unloaded neighbor in a chunk descriptor.
	SentinelSlot uint32 = 0xFFFFFFFF

	// NoRule marks an empty cell in the interaction lookup table.
	NoRule uint32 = 0xFFFFFFFF

	// ModIDBase is the first authored material id reserved for mods.
	ModIDBase = 10000
)

// Structural solver bounds.
const (
	StructuralFloodLimit = 4096
	DestructionRingCap   = 256
)

// Voxel flag bits (6-bit field).
const (
	FlagActive  = 1 << 0
	FlagUpdated = 1 << 1
	FlagBonded  = 1 << 2
)

// Command tool identifiers, shared with the commands kernel.
const (
	ToolPlace  = 1
	ToolRemove = 2
	ToolHeat   = 3
	ToolPush   = 4
)

// Brush shapes for brushed commands.
const (
	BrushSingle = 0
	BrushCube   = 1
	BrushSphere = 2
)

// Material phases, stored as integers in the compiled property table.
const (
	PhaseGas    = 0
	PhaseLiquid = 1
	PhaseSolid  = 2
	PhasePowder = 3
)
