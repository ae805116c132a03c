package rules

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"alkahest/internal/core"
)

// MaterialProps is one row of the compiled material-property table,
// indexed by internal material id. Index 0 (air) is all zeros.
type MaterialProps struct {
	Phase    uint8
	Density  float32
	Color    [3]float32
	Emission float32

	Flammability float32
	IgnitionQ    uint16

	DecayRate      uint16
	DecayThreshold uint16
	DecayProduct   uint16

	Viscosity           float32
	ThermalConductivity float32
	PhaseChangeQ        uint16
	PhaseChangeProduct  uint16

	StructuralIntegrity uint8
	Opacity             float32
	AbsorptionRate      float32

	Conductivity        float32
	Resistance          float32
	ActivationThreshold uint8
	ChargeEmission      uint32
}

// RuleEntry is one compiled lookup entry, written from the perspective of
// the acting voxel: when it fires, the acting voxel becomes Output and
// receives the deltas. Each authored rule compiles into two entries.
type RuleEntry struct {
	Output        uint16
	Probability   uint32 // authored [0,1] scaled onto the full u32 range
	TempDelta     int32
	PressureDelta int32
	MinTemp       uint32
	MaxTemp       uint32
	MinCharge     uint32
	MaxCharge     uint32
}

// Compiled is the full GPU-ready rule set.
type Compiled struct {
	MaterialCount uint32
	Props         []MaterialProps
	Names         []string

	// Lookup is a dense MaterialCount^2 table: Lookup[a*M+b] holds the
	// RuleData index for acting material a next to neighbor b, or NoRule.
	Lookup []uint32
	Rules  []RuleEntry
	// RuleNames parallels Rules for debug display.
	RuleNames []string

	Remap  *IDRemap
	digest string
}

// Compile validates nothing; call Validate first. It assigns the dense
// tables and computes the rule-set digest recorded by snapshots.
func Compile(res *LoadResult) (*Compiled, error) {
	set := &res.Set
	count := uint32(set.MaxID()) + 1

	c := &Compiled{
		MaterialCount: count,
		Props:         make([]MaterialProps, count),
		Names:         make([]string, count),
		Lookup:        make([]uint32, count*count),
		Remap:         res.Remap,
	}
	for i := range c.Lookup {
		c.Lookup[i] = core.NoRule
	}
	c.Names[0] = "air"

	for i := range set.Materials {
		m := &set.Materials[i]
		phase, err := m.PhaseID()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrConfigInvalid, err)
		}
		p := MaterialProps{
			Phase:               phase,
			Density:             float32(m.Density),
			Color:               [3]float32{float32(m.Color[0]), float32(m.Color[1]), float32(m.Color[2])},
			Emission:            float32(m.Emission),
			Flammability:        float32(m.Flammability),
			IgnitionQ:           core.QuantizeTemp(m.IgnitionTempK),
			DecayRate:           uint16(m.DecayRate),
			DecayThreshold:      uint16(m.DecayThreshold),
			DecayProduct:        m.DecayProduct,
			Viscosity:           float32(m.Viscosity),
			ThermalConductivity: float32(m.ThermalConductivity),
			PhaseChangeQ:        core.QuantizeTemp(m.PhaseChangeTempK),
			PhaseChangeProduct:  m.PhaseChangeProduct,
			StructuralIntegrity: uint8(m.StructuralIntegrity),
			Opacity:             deriveOpacity(m, phase),
			AbsorptionRate:      float32(m.AbsorptionRate),
		}
		if e := m.Electrical; e != nil {
			p.Conductivity = float32(e.Conductivity)
			p.Resistance = float32(e.Resistance)
			p.ActivationThreshold = 1
			if e.ActivationThreshold != nil {
				p.ActivationThreshold = uint8(*e.ActivationThreshold)
			}
			p.ChargeEmission = e.ChargeEmission
		}
		c.Props[m.ID] = p
		c.Names[m.ID] = m.Name
	}

	for i := range set.Rules {
		r := &set.Rules[i]
		prob := uint32(math.Round(r.Probability * math.MaxUint32))
		if r.Probability >= 1 {
			prob = math.MaxUint32
		}

		// Entry from A's perspective, then the mirrored entry from B's.
		entryA := RuleEntry{
			Output:        r.OutputA,
			Probability:   prob,
			TempDelta:     r.TempDelta,
			PressureDelta: r.PressureDelta,
			MinTemp:       r.MinTemp,
			MaxTemp:       r.MaxTemp,
			MinCharge:     r.MinCharge,
			MaxCharge:     r.MaxCharge,
		}
		entryB := entryA
		entryB.Output = r.OutputB

		idxA := uint32(len(c.Rules))
		c.Rules = append(c.Rules, entryA, entryB)
		c.RuleNames = append(c.RuleNames, r.Name, r.Name)

		c.Lookup[uint32(r.InputA)*count+uint32(r.InputB)] = idxA
		c.Lookup[uint32(r.InputB)*count+uint32(r.InputA)] = idxA + 1
	}

	c.digest = hex.EncodeToString(hashTables(c))
	return c, nil
}

func deriveOpacity(m *MaterialDef, phase uint8) float32 {
	if m.Opacity != nil {
		return float32(*m.Opacity)
	}
	switch phase {
	case core.PhaseLiquid:
		return 0.7
	case core.PhaseGas:
		return 0.25
	default:
		return 1.0
	}
}

// Digest is a stable sha256 over the compiled tables, recorded in snapshot
// headers so a restore can warn when the rule set changed.
func (c *Compiled) Digest() string { return c.digest }

// HasRule reports whether the pair (a acting, b neighbor) has a compiled rule.
func (c *Compiled) HasRule(a, b uint16) bool {
	if uint32(a) >= c.MaterialCount || uint32(b) >= c.MaterialCount {
		return false
	}
	return c.Lookup[uint32(a)*c.MaterialCount+uint32(b)] != core.NoRule
}

// RuleFor returns the compiled entry for (a acting, b neighbor), if any.
func (c *Compiled) RuleFor(a, b uint16) (RuleEntry, bool) {
	if uint32(a) >= c.MaterialCount || uint32(b) >= c.MaterialCount {
		return RuleEntry{}, false
	}
	idx := c.Lookup[uint32(a)*c.MaterialCount+uint32(b)]
	if idx == core.NoRule {
		return RuleEntry{}, false
	}
	return c.Rules[idx], true
}

// Prop returns the property row for a material id; out-of-range ids read as
// air. Kernels call this on every neighbor lookup, so it must stay cheap.
func (c *Compiled) Prop(id uint16) *MaterialProps {
	if uint32(id) >= c.MaterialCount {
		return &c.Props[0]
	}
	return &c.Props[id]
}

// StructuralIDs lists internal ids of solid materials with nonzero
// structural integrity; the collapse solver flood-fills over these.
func (c *Compiled) StructuralIDs() []uint16 {
	var ids []uint16
	for id := uint32(1); id < c.MaterialCount; id++ {
		p := &c.Props[id]
		if p.Phase == core.PhaseSolid && p.StructuralIntegrity > 0 {
			ids = append(ids, uint16(id))
		}
	}
	return ids
}

// --- GPU byte packing ---
//
// The device backend uploads the tables as little-endian byte buffers. The
// layouts mirror the WGSL storage bindings in shaders/common.wgsl:
//
//	material props: 4x vec4<f32> = 64 bytes per material
//	rule lookup:    u32 per pair
//	rule data:      2x vec4<u32> = 32 bytes per entry

// PackProps serializes the material-property table.
func (c *Compiled) PackProps() []byte {
	buf := make([]byte, len(c.Props)*64)
	for i := range c.Props {
		p := &c.Props[i]
		o := i * 64
		putF32(buf[o+0:], p.Density)
		putF32(buf[o+4:], float32(p.Phase))
		putF32(buf[o+8:], p.Flammability)
		putF32(buf[o+12:], float32(p.IgnitionQ))
		putF32(buf[o+16:], float32(p.DecayRate))
		putF32(buf[o+20:], float32(p.DecayThreshold))
		putF32(buf[o+24:], float32(p.DecayProduct))
		putF32(buf[o+28:], p.Viscosity)
		putF32(buf[o+32:], p.ThermalConductivity)
		putF32(buf[o+36:], float32(p.PhaseChangeQ))
		putF32(buf[o+40:], float32(p.PhaseChangeProduct))
		putF32(buf[o+44:], float32(p.StructuralIntegrity))
		putF32(buf[o+48:], p.Conductivity)
		putF32(buf[o+52:], p.Resistance)
		putF32(buf[o+56:], float32(p.ActivationThreshold))
		putF32(buf[o+60:], float32(p.ChargeEmission))
	}
	return buf
}

// PackLookup serializes the dense pair lookup.
func (c *Compiled) PackLookup() []byte {
	buf := make([]byte, len(c.Lookup)*4)
	for i, v := range c.Lookup {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// PackRules serializes the rule-entry array.
func (c *Compiled) PackRules() []byte {
	if len(c.Rules) == 0 {
		// Device storage buffers cannot be empty.
		return make([]byte, 32)
	}
	buf := make([]byte, len(c.Rules)*32)
	for i := range c.Rules {
		r := &c.Rules[i]
		o := i * 32
		binary.LittleEndian.PutUint32(buf[o+0:], uint32(r.Output))
		binary.LittleEndian.PutUint32(buf[o+4:], r.Probability)
		binary.LittleEndian.PutUint32(buf[o+8:], uint32(r.TempDelta))
		binary.LittleEndian.PutUint32(buf[o+12:], uint32(r.PressureDelta))
		binary.LittleEndian.PutUint32(buf[o+16:], r.MinTemp)
		binary.LittleEndian.PutUint32(buf[o+20:], r.MaxTemp)
		binary.LittleEndian.PutUint32(buf[o+24:], r.MinCharge)
		binary.LittleEndian.PutUint32(buf[o+28:], r.MaxCharge)
	}
	return buf
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func hashTables(c *Compiled) []byte {
	h := sha256.New()
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], c.MaterialCount)
	h.Write(n[:])
	h.Write(c.PackProps())
	h.Write(c.PackLookup())
	h.Write(c.PackRules())
	return h.Sum(nil)
}
