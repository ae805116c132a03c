package rules

import (
	"strings"
	"testing"
)

func mat(id uint16, name, phase string) MaterialDef {
	return MaterialDef{ID: id, Name: name, Phase: phase, Density: 1000, Color: [3]float64{0.5, 0.5, 0.5}}
}

func baseSet() MaterialSet {
	return MaterialSet{
		Materials: []MaterialDef{
			mat(1, "stone", "solid"),
			mat(2, "sand", "powder"),
			mat(3, "water", "liquid"),
			mat(4, "steam", "gas"),
			mat(5, "fire", "gas"),
			mat(6, "ash", "powder"),
		},
	}
}

func TestValidateAcceptsCleanSet(t *testing.T) {
	set := baseSet()
	warns, err := Validate(&set)
	if err != nil {
		t.Fatalf("clean set rejected: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	set := baseSet()
	set.Materials = append(set.Materials, mat(2, "sand2", "powder"))
	_, err := Validate(&set)
	if err == nil || !strings.Contains(err.Error(), ErrDuplicateID) {
		t.Fatalf("duplicate id not rejected: %v", err)
	}
}

func TestValidateRejectsRangeViolations(t *testing.T) {
	set := baseSet()
	set.Materials[0].IgnitionTempK = 9000
	set.Materials[1].StructuralIntegrity = 64
	set.Materials[2].Viscosity = 1.5
	_, err := Validate(&set)
	if err == nil {
		t.Fatalf("range violations accepted")
	}
	for _, want := range []string{"ignition_temp_k", "structural_integrity", "viscosity"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s violation in %v", want, err)
		}
	}
}

func TestValidateClampsConductivity(t *testing.T) {
	set := baseSet()
	set.Materials[0].ThermalConductivity = 0.9
	warns, err := Validate(&set)
	if err != nil {
		t.Fatalf("clampable conductivity rejected: %v", err)
	}
	if len(warns) != 1 {
		t.Fatalf("expected one clamp warning, got %v", warns)
	}
	if set.Materials[0].ThermalConductivity != MaxConductivity {
		t.Fatalf("conductivity not clamped: %v", set.Materials[0].ThermalConductivity)
	}
	// The discrete stability bound must hold after clamping.
	if 0.25*set.Materials[0].ThermalConductivity*26 >= 1.0 {
		t.Fatalf("stability bound violated after clamp")
	}
}

func TestValidateRejectsUnknownRef(t *testing.T) {
	set := baseSet()
	set.Rules = []InteractionRule{{
		Name: "bad_ref", InputA: 5, InputB: 99, OutputA: 5, OutputB: 6, Probability: 1,
	}}
	_, err := Validate(&set)
	if err == nil || !strings.Contains(err.Error(), ErrUnknownMaterial) {
		t.Fatalf("unknown ref not rejected: %v", err)
	}
}

func TestValidateRejectsEnergyFromNothing(t *testing.T) {
	set := baseSet()
	set.Rules = []InteractionRule{{
		Name: "free_energy", InputA: 1, InputB: 2, OutputA: 1, OutputB: 2,
		Probability: 1, TempDelta: 100,
	}}
	_, err := Validate(&set)
	if err == nil || !strings.Contains(err.Error(), ErrEnergyFromNothing) {
		t.Fatalf("energy-from-nothing not rejected: %v", err)
	}
}

func TestValidateRejectsOscillation(t *testing.T) {
	set := baseSet()
	set.Rules = []InteractionRule{
		{Name: "forward", InputA: 1, InputB: 2, OutputA: 3, OutputB: 4, Probability: 1},
		{Name: "backward", InputA: 3, InputB: 4, OutputA: 1, OutputB: 2, Probability: 1},
	}
	_, err := Validate(&set)
	if err == nil || !strings.Contains(err.Error(), ErrRuleOscillation) {
		t.Fatalf("oscillating pair not rejected: %v", err)
	}
}

func TestValidateAllowsDisjointOscillation(t *testing.T) {
	set := baseSet()
	set.Rules = []InteractionRule{
		{Name: "melt", InputA: 1, InputB: 2, OutputA: 3, OutputB: 4, Probability: 1, MinTemp: 2000},
		{Name: "freeze", InputA: 3, InputB: 4, OutputA: 1, OutputB: 2, Probability: 1, MaxTemp: 500},
	}
	if _, err := Validate(&set); err != nil {
		t.Fatalf("disjoint temperature cycle rejected: %v", err)
	}
}
