package rules

import (
	"fmt"

	"alkahest/internal/core"
)

const modIDBase = core.ModIDBase

// IDRemap maps authored mod ids (>= modIDBase) to contiguous internal ids
// appended after the base range. Authored ids are the stable identity used
// by save files; internal ids keep the compiled lookup table dense.
type IDRemap struct {
	toInternal map[uint16]uint16
	toAuthored map[uint16]uint16
	next       uint16
}

// NewIDRemap starts internal ids at baseMax+1.
func NewIDRemap(baseMax uint16) *IDRemap {
	return &IDRemap{
		toInternal: map[uint16]uint16{},
		toAuthored: map[uint16]uint16{},
		next:       baseMax + 1,
	}
}

// Assign returns the internal id for an authored mod id, allocating one on
// first sight.
func (r *IDRemap) Assign(authored uint16) uint16 {
	if id, ok := r.toInternal[authored]; ok {
		return id
	}
	id := r.next
	r.next++
	r.toInternal[authored] = id
	r.toAuthored[id] = authored
	return id
}

// Internal looks up the internal id for an authored id.
func (r *IDRemap) Internal(authored uint16) (uint16, bool) {
	id, ok := r.toInternal[authored]
	return id, ok
}

// Authored looks up the authored id for an internal id. Base-range ids map
// to themselves.
func (r *IDRemap) Authored(internal uint16) uint16 {
	if a, ok := r.toAuthored[internal]; ok {
		return a
	}
	return internal
}

// Len is the number of remapped mod ids.
func (r *IDRemap) Len() int { return len(r.toInternal) }

// mergeMod folds one mod's materials and rules into the set, remapping ids
// and resolving pair conflicts last-wins.
func mergeMod(set *MaterialSet, remap *IDRemap, m Mod) []Warning {
	var warns []Warning

	for _, mat := range m.Materials {
		mat.ID = remap.Assign(mat.ID)
		mat.DecayProduct = remapRef(remap, mat.DecayProduct)
		mat.PhaseChangeProduct = remapRef(remap, mat.PhaseChangeProduct)
		set.Materials = append(set.Materials, mat)
	}

	for _, rule := range m.Rules {
		rule.InputA = remapRef(remap, rule.InputA)
		rule.InputB = remapRef(remap, rule.InputB)
		rule.OutputA = remapRef(remap, rule.OutputA)
		rule.OutputB = remapRef(remap, rule.OutputB)

		if prev := findPair(set.Rules, rule.InputA, rule.InputB); prev >= 0 {
			warns = append(warns, Warning{
				Source: m.Dir,
				Message: fmt.Sprintf("rule %q replaces %q for pair (%d,%d)",
					rule.Name, set.Rules[prev].Name, rule.InputA, rule.InputB),
			})
			set.Rules[prev] = rule
			continue
		}
		set.Rules = append(set.Rules, rule)
	}
	return warns
}

// remapRef rewrites a material reference if it points into the mod range;
// base ids pass through unchanged.
func remapRef(remap *IDRemap, id uint16) uint16 {
	if id < modIDBase {
		return id
	}
	return remap.Assign(id)
}

// findPair locates an existing rule for the unordered pair (a,b).
func findPair(rules []InteractionRule, a, b uint16) int {
	for i := range rules {
		r := &rules[i]
		if (r.InputA == a && r.InputB == b) || (r.InputA == b && r.InputB == a) {
			return i
		}
	}
	return -1
}
