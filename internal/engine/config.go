package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine tuning loaded from engine.yaml. Zero values fall
// back to defaults; Validate runs after Normalize.
type Config struct {
	TickRateHz int   `yaml:"tick_rate_hz"`
	Seed       int64 `yaml:"seed"`

	// Grid is the chunk-grid dimension [x, y, z].
	Grid []int `yaml:"grid"`

	StreamRadius int `yaml:"stream_radius"`
	OuterRadius  int `yaml:"outer_radius"`

	// PoolSlots sizes the simulation pool; every loaded chunk needs two.
	// 0 derives it from the grid volume.
	PoolSlots int `yaml:"pool_slots"`

	SeaLevel int  `yaml:"sea_level"`
	Terrain  bool `yaml:"terrain"`

	// TerrainMaterials names the seeded materials by authored id.
	TerrainMaterials struct {
		Stone uint16 `yaml:"stone"`
		Sand  uint16 `yaml:"sand"`
		Water uint16 `yaml:"water"`
	} `yaml:"terrain_materials"`

	MaxFrameDeltaMs    int  `yaml:"max_frame_delta_ms"`
	SnapshotEveryTicks int  `yaml:"snapshot_every_ticks"`
	DigestEveryTicks   int  `yaml:"digest_every_ticks"`
	Debug              bool `yaml:"debug"`
}

// DefaultConfig is the stock 8x4x8 world.
func DefaultConfig() Config {
	var c Config
	c.Normalize()
	return c
}

// LoadConfig reads engine.yaml; a missing file yields defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Normalize()
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("engine.yaml: %w", err)
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if c.TickRateHz == 0 {
		c.TickRateHz = 30
	}
	if c.Seed == 0 {
		c.Seed = 1337
	}
	if len(c.Grid) != 3 {
		c.Grid = []int{8, 4, 8}
	}
	if c.StreamRadius == 0 {
		c.StreamRadius = 3
	}
	if c.OuterRadius == 0 {
		c.OuterRadius = c.StreamRadius + 2
	}
	if c.PoolSlots == 0 {
		c.PoolSlots = 2 * c.Grid[0] * c.Grid[1] * c.Grid[2]
	}
	if c.SeaLevel == 0 {
		c.SeaLevel = 8
	}
	if c.TerrainMaterials.Stone == 0 {
		c.TerrainMaterials.Stone = 1
	}
	if c.TerrainMaterials.Sand == 0 {
		c.TerrainMaterials.Sand = 2
	}
	if c.TerrainMaterials.Water == 0 {
		c.TerrainMaterials.Water = 3
	}
	if c.MaxFrameDeltaMs == 0 {
		c.MaxFrameDeltaMs = 100
	}
	if c.DigestEveryTicks == 0 {
		c.DigestEveryTicks = 600
	}
}

// Validate rejects configurations the pool or grid cannot satisfy.
func (c *Config) Validate() error {
	for _, g := range c.Grid {
		if g < 1 || g > 64 {
			return fmt.Errorf("grid dimension %d out of range", g)
		}
	}
	if c.OuterRadius < c.StreamRadius {
		return fmt.Errorf("outer_radius %d below stream_radius %d", c.OuterRadius, c.StreamRadius)
	}
	if c.PoolSlots < 2 {
		return fmt.Errorf("pool_slots %d cannot hold a chunk", c.PoolSlots)
	}
	if c.TickRateHz < 1 || c.TickRateHz > 240 {
		return fmt.Errorf("tick_rate_hz %d out of range", c.TickRateHz)
	}
	return nil
}
