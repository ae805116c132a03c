// Package rules loads declarative material and interaction records,
// validates them, and compiles the GPU lookup tables the simulation
// kernels index at runtime.
package rules

import (
	"fmt"

	"alkahest/internal/core"
)

// ElectricalDef is the electrical sub-record of a material.
type ElectricalDef struct {
	Conductivity float64 `json:"conductivity"`
	Resistance   float64 `json:"resistance"`
	// ActivationThreshold is the number of charged face neighbors required
	// before a conductor passes charge. 2+ realizes AND-like logic.
	ActivationThreshold *int    `json:"activation_threshold,omitempty"`
	ChargeEmission      uint32  `json:"charge_emission,omitempty"`
}

// MaterialDef is one authored material record.
type MaterialDef struct {
	ID    uint16     `json:"id"`
	Name  string     `json:"name"`
	Phase string     `json:"phase"` // "gas","liquid","solid","powder"
	// Density in abstract units; higher sinks below lower.
	Density  float64    `json:"density"`
	Color    [3]float64 `json:"color"`
	Emission float64    `json:"emission,omitempty"`

	Flammability   float64 `json:"flammability,omitempty"`
	IgnitionTempK  float64 `json:"ignition_temp_k,omitempty"`
	DecayRate      uint32  `json:"decay_rate,omitempty"`
	DecayThreshold uint32  `json:"decay_threshold,omitempty"`
	DecayProduct   uint16  `json:"decay_product,omitempty"`

	Viscosity           float64 `json:"viscosity,omitempty"`
	ThermalConductivity float64 `json:"thermal_conductivity,omitempty"`
	PhaseChangeTempK    float64 `json:"phase_change_temp_k,omitempty"`
	PhaseChangeProduct  uint16  `json:"phase_change_product,omitempty"`

	StructuralIntegrity uint32 `json:"structural_integrity,omitempty"`

	// Opacity nil means derive from phase.
	Opacity        *float64 `json:"opacity,omitempty"`
	AbsorptionRate float64  `json:"absorption_rate,omitempty"`

	Electrical *ElectricalDef `json:"electrical,omitempty"`
}

// PhaseID maps the authored phase string onto the table constant.
func (m *MaterialDef) PhaseID() (uint8, error) {
	switch m.Phase {
	case "gas":
		return core.PhaseGas, nil
	case "liquid":
		return core.PhaseLiquid, nil
	case "solid":
		return core.PhaseSolid, nil
	case "powder":
		return core.PhasePowder, nil
	}
	return 0, fmt.Errorf("material %q: unknown phase %q", m.Name, m.Phase)
}

// InteractionRule is one authored ordered-pair record. The compiler
// expands it into both (A,B) and (B,A) lookup entries; only one direction
// is authored.
type InteractionRule struct {
	Name    string `json:"name"`
	InputA  uint16 `json:"input_a"`
	InputB  uint16 `json:"input_b"`
	OutputA uint16 `json:"output_a"`
	OutputB uint16 `json:"output_b"`
	// Probability of the reaction firing per tick, per neighbor check.
	Probability float64 `json:"probability"`
	// TempDelta in quantized units, applied to the acting voxel.
	TempDelta     int32 `json:"temp_delta,omitempty"`
	MinTemp       uint32 `json:"min_temp,omitempty"` // 0 = unbounded
	MaxTemp       uint32 `json:"max_temp,omitempty"` // 0 = unbounded
	PressureDelta int32  `json:"pressure_delta,omitempty"`
	MinCharge     uint32 `json:"min_charge,omitempty"` // 0 = unbounded
	MaxCharge     uint32 `json:"max_charge,omitempty"` // 0 = unbounded
}

// ModManifest describes a mod directory.
type ModManifest struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Author        string `json:"author,omitempty"`
	Description   string `json:"description,omitempty"`
	LoadOrderHint int    `json:"load_order_hint"`
}

// MaterialSet is the merged authored input before compilation.
type MaterialSet struct {
	Materials []MaterialDef
	Rules     []InteractionRule
}

// MaxID returns the highest authored material id present.
func (s *MaterialSet) MaxID() uint16 {
	var max uint16
	for i := range s.Materials {
		if s.Materials[i].ID > max {
			max = s.Materials[i].ID
		}
	}
	return max
}

// Lookup finds a material by authored id.
func (s *MaterialSet) Lookup(id uint16) *MaterialDef {
	for i := range s.Materials {
		if s.Materials[i].ID == id {
			return &s.Materials[i]
		}
	}
	return nil
}
