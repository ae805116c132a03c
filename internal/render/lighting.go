package render

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"alkahest/internal/core"
	"alkahest/internal/rules"
)

var faceOffsets = [core.FaceCount]core.Vec3i{
	{X: 0, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: -1, Y: 0, Z: 0},
}

// shade lights an opaque hit: emission, lambertian from the shadow-budget
// nearest lights, and 6-face ambient occlusion.
func (r *Renderer) shade(cell core.Vec3i, normal core.Vec3i, props *rules.MaterialProps, lights []Light) mgl32.Vec3 {
	base := mgl32.Vec3{props.Color[0], props.Color[1], props.Color[2]}

	// Emissive materials carry their own light.
	if props.Emission > 0 {
		return base.Mul(1 + props.Emission)
	}

	center := mgl32.Vec3{float32(cell.X) + 0.5, float32(cell.Y) + 0.5, float32(cell.Z) + 0.5}
	n := mgl32.Vec3{float32(normal.X), float32(normal.Y), float32(normal.Z)}

	// Ambient term attenuated by face-neighbor occupancy.
	occupied := 0
	for _, off := range faceOffsets {
		if !r.view.VoxelAt(cell.Add(off)).IsAir() {
			occupied++
		}
	}
	ambient := 0.35 * (1 - aoFactor*float32(occupied))
	out := base.Mul(ambient)

	// Only the nearest lights take shadow rays.
	type litRef struct {
		idx  int
		dist float32
	}
	refs := make([]litRef, len(lights))
	for i := range lights {
		refs[i] = litRef{i, lights[i].Pos.Sub(center).Len()}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].dist < refs[j].dist })
	if len(refs) > ShadowRayBudget {
		refs = refs[:ShadowRayBudget]
	}

	for _, ref := range refs {
		l := lights[ref.idx]
		toLight := l.Pos.Sub(center)
		dist := toLight.Len()
		if dist < 1e-4 {
			continue
		}
		ldir := toLight.Mul(1 / dist)
		lambert := n.Dot(ldir)
		if lambert <= 0 {
			continue
		}
		start := center.Add(n.Mul(0.51))
		if r.occluded(start, ldir, dist) {
			continue
		}
		atten := l.Intensity / (1 + 0.05*dist*dist)
		lit := base.Mul(lambert * atten)
		out = out.Add(mgl32.Vec3{lit.X() * l.Color.X(), lit.Y() * l.Color.Y(), lit.Z() * l.Color.Z()})
	}
	return out
}

// occluded walks a shadow ray voxel by voxel; shadow rays share the DDA but
// skip the chunk-level acceleration.
func (r *Renderer) occluded(origin, dir mgl32.Vec3, maxDist float32) bool {
	d := newDDA(origin, dir)
	for d.t < maxDist {
		v := r.view.VoxelAt(d.cell)
		if !v.IsAir() && r.tables.Prop(v.Material()).Opacity >= 0.99 {
			return true
		}
		d.advance()
	}
	return false
}

// writePick fills the pick buffer from the cursor ray's first hit.
func (r *Renderer) writePick(cell core.Vec3i, f core.Fields) {
	r.pick = Pick{
		uint32(int32(cell.X)),
		uint32(int32(cell.Y)),
		uint32(int32(cell.Z)),
		uint32(f.Material),
		uint32(f.Temp),
		uint32(f.Pressure),
		uint32(uint8(int16(f.VelX)+128)) | uint32(uint8(int16(f.VelY)+128))<<8 | uint32(uint8(int16(f.VelZ)+128))<<16,
		uint32(f.Flags),
	}
}

// Luminance is a helper for tests and the observer overlay.
func Luminance(c mgl32.Vec3) float64 {
	return 0.2126*float64(c.X()) + 0.7152*float64(c.Y()) + 0.0722*float64(c.Z())
}
