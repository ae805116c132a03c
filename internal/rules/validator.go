package rules

import (
	"errors"
	"fmt"
	"math"

	"alkahest/internal/core"
)

// Named error codes, reported per record with source and reason. The engine
// never boots on a failed rule set.
const (
	ErrConfigInvalid     = "E_CONFIG_INVALID"
	ErrDuplicateID       = "E_DUPLICATE_MATERIAL_ID"
	ErrPropertyRange     = "E_PROPERTY_RANGE"
	ErrUnknownMaterial   = "E_UNKNOWN_MATERIAL_REF"
	ErrEnergyFromNothing = "E_ENERGY_FROM_NOTHING"
	ErrRuleOscillation   = "E_RULE_OSCILLATION"
	ErrModIDRange        = "E_MOD_ID_RANGE"
)

// MaxConductivity is the thermal conductivity ceiling implied by the
// discrete CFL condition: DiffusionRate * k * 26 < 1. With DiffusionRate
// 0.25 that bound is ~0.1538; authored values above it are clamped with a
// warning so a hot rule set cannot destabilize diffusion.
const MaxConductivity = 0.15

// Validate checks the merged set against every load-time constraint.
// Returned warnings cover non-fatal clamps; a non-nil error aggregates every
// fatal violation found (the whole set is checked before rejecting).
func Validate(set *MaterialSet) ([]Warning, error) {
	var errs []error
	var warns []Warning

	// Material 0 is air: implicit, never authored.
	seen := map[uint16]string{0: "air"}
	for i := range set.Materials {
		m := &set.Materials[i]
		if prev, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: material %q reuses id %d of %q", ErrDuplicateID, m.Name, m.ID, prev))
			continue
		}
		seen[m.ID] = m.Name

		if _, err := m.PhaseID(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ErrConfigInvalid, err))
		}
		errs = appendRangeErrs(errs, m)

		if m.ThermalConductivity > MaxConductivity {
			warns = append(warns, Warning{
				Source:  m.Name,
				Message: fmt.Sprintf("thermal_conductivity %.3f clamped to %.2f (diffusion stability)", m.ThermalConductivity, MaxConductivity),
			})
			m.ThermalConductivity = MaxConductivity
		}
	}

	for i := range set.Rules {
		r := &set.Rules[i]
		for _, ref := range [...]uint16{r.InputA, r.InputB, r.OutputA, r.OutputB} {
			if _, ok := seen[ref]; !ok {
				errs = append(errs, fmt.Errorf("%s: rule %q references material id %d", ErrUnknownMaterial, r.Name, ref))
			}
		}

		// Energy conservation: heat without transformation is rejected.
		if r.TempDelta > 0 && r.OutputA == r.InputA && r.OutputB == r.InputB {
			errs = append(errs, fmt.Errorf("%s: rule %q", ErrEnergyFromNothing, r.Name))
		}
	}

	errs = append(errs, oscillationErrs(set.Rules)...)

	if len(errs) > 0 {
		return warns, errors.Join(errs...)
	}
	return warns, nil
}

func appendRangeErrs(errs []error, m *MaterialDef) []error {
	fail := func(field string, v any) {
		errs = append(errs, fmt.Errorf("%s: material %q: %s out of range (%v)", ErrPropertyRange, m.Name, field, v))
	}

	if math.IsNaN(m.Density) || math.IsInf(m.Density, 0) {
		fail("density", m.Density)
	}
	if m.IgnitionTempK < 0 || m.IgnitionTempK > core.MaxTempK {
		fail("ignition_temp_k", m.IgnitionTempK)
	}
	if m.PhaseChangeTempK < 0 || m.PhaseChangeTempK > core.MaxTempK {
		fail("phase_change_temp_k", m.PhaseChangeTempK)
	}
	if m.DecayThreshold > core.TempQuantMax {
		fail("decay_threshold", m.DecayThreshold)
	}
	if m.StructuralIntegrity > core.PressureMax {
		fail("structural_integrity", m.StructuralIntegrity)
	}
	if m.Viscosity < 0 || m.Viscosity > 1 {
		fail("viscosity", m.Viscosity)
	}
	if m.Flammability < 0 || m.Flammability > 1 {
		fail("flammability", m.Flammability)
	}
	if m.Emission < 0 || m.Emission > 5 {
		fail("emission", m.Emission)
	}
	if m.ThermalConductivity < 0 || m.ThermalConductivity > 1 {
		fail("thermal_conductivity", m.ThermalConductivity)
	}
	if m.Opacity != nil && (*m.Opacity < 0 || *m.Opacity > 1) {
		fail("opacity", *m.Opacity)
	}
	if e := m.Electrical; e != nil {
		if e.Conductivity < 0 || e.Conductivity > 1 {
			fail("electrical.conductivity", e.Conductivity)
		}
		if e.Resistance < 0 || e.Resistance > 1 {
			fail("electrical.resistance", e.Resistance)
		}
		if e.ActivationThreshold != nil && (*e.ActivationThreshold < 0 || *e.ActivationThreshold > core.FaceCount) {
			fail("electrical.activation_threshold", *e.ActivationThreshold)
		}
		if e.ChargeEmission > core.ChargeMax {
			fail("electrical.charge_emission", e.ChargeEmission)
		}
	}
	return errs
}

// oscillationErrs rejects rule pairs that undo each other unless their
// temperature gates are disjoint; runtime cycle detection is out of the
// question on the device side, so cycles are disallowed at load.
func oscillationErrs(rules []InteractionRule) []error {
	var errs []error
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			a, b := &rules[i], &rules[j]
			if !transforms(a) || !transforms(b) {
				continue
			}
			forward := samePair(a.OutputA, a.OutputB, b.InputA, b.InputB)
			backward := samePair(b.OutputA, b.OutputB, a.InputA, a.InputB)
			if !forward || !backward {
				continue
			}
			if tempRangesOverlap(a, b) {
				errs = append(errs, fmt.Errorf("%s: rules %q and %q form a cycle with overlapping temperature ranges", ErrRuleOscillation, a.Name, b.Name))
			}
		}
	}
	return errs
}

func transforms(r *InteractionRule) bool {
	return r.OutputA != r.InputA || r.OutputB != r.InputB
}

func samePair(a1, a2, b1, b2 uint16) bool {
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}

// tempRangesOverlap treats a zero max gate as unbounded.
func tempRangesOverlap(a, b *InteractionRule) bool {
	aMax, bMax := a.MaxTemp, b.MaxTemp
	if aMax == 0 {
		aMax = math.MaxUint32
	}
	if bMax == 0 {
		bMax = math.MaxUint32
	}
	return a.MinTemp <= bMax && b.MinTemp <= aMax
}
