package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"alkahest/internal/core"
)

// maxRayDistance bounds primary rays in voxel units.
const maxRayDistance = 512

var skyZenith = mgl32.Vec3{0.10, 0.15, 0.40}
var skyHorizon = mgl32.Vec3{0.50, 0.45, 0.35}

// dda is the voxel traversal state (Amanatides & Woo).
type dda struct {
	cell          core.Vec3i
	step          core.Vec3i
	tMax, tDelta  mgl32.Vec3
	t             float32
	lastAxis      int
}

func newDDA(origin, dir mgl32.Vec3) dda {
	var d dda
	d.cell = core.Vec3i{X: floorInt(origin.X()), Y: floorInt(origin.Y()), Z: floorInt(origin.Z())}
	for axis := 0; axis < 3; axis++ {
		dirA := dir[axis]
		if dirA > 0 {
			setAxis(&d.step, axis, 1)
			d.tDelta[axis] = 1 / dirA
			d.tMax[axis] = (float32(axisOf(d.cell, axis)+1) - origin[axis]) / dirA
		} else if dirA < 0 {
			setAxis(&d.step, axis, -1)
			d.tDelta[axis] = -1 / dirA
			d.tMax[axis] = (origin[axis] - float32(axisOf(d.cell, axis))) / -dirA
		} else {
			d.tDelta[axis] = float32(math.Inf(1))
			d.tMax[axis] = float32(math.Inf(1))
		}
	}
	d.lastAxis = -1
	return d
}

// advance steps to the next voxel boundary and records the crossing t in d.t.
func (d *dda) advance() {
	axis := 0
	if d.tMax[1] < d.tMax[axis] {
		axis = 1
	}
	if d.tMax[2] < d.tMax[axis] {
		axis = 2
	}
	d.t = d.tMax[axis]
	d.tMax[axis] += d.tDelta[axis]
	setAxis(&d.cell, axis, axisOf(d.cell, axis)+axisOf(d.step, axis))
	d.lastAxis = axis
}

// skipToChunkExit fast-forwards the traversal to the far AABB exit of the
// current chunk; the outer level of the two-level DDA.
func (d *dda) skipToChunkExit(origin, dir mgl32.Vec3) {
	chunk := core.WorldToChunk(d.cell)
	exitT := float32(math.Inf(1))
	for axis := 0; axis < 3; axis++ {
		if axisOf(d.step, axis) == 0 {
			continue
		}
		var bound float32
		if axisOf(d.step, axis) > 0 {
			bound = float32((axisOf(chunk, axis) + 1) * core.ChunkSize)
		} else {
			bound = float32(axisOf(chunk, axis) * core.ChunkSize)
		}
		t := (bound - origin[axis]) / dir[axis]
		if t < exitT {
			exitT = t
		}
	}
	// Re-seat the DDA just past the chunk boundary.
	pos := origin.Add(dir.Mul(exitT + 1e-4))
	nd := newDDA(pos, dir)
	nd.t = exitT
	// Rebase tMax onto the global ray parameter.
	for axis := 0; axis < 3; axis++ {
		if !math.IsInf(float64(nd.tMax[axis]), 1) {
			nd.tMax[axis] += exitT
		}
	}
	*d = nd
}

func floorInt(v float32) int { return int(math.Floor(float64(v))) }

func axisOf(v core.Vec3i, axis int) int {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setAxis(v *core.Vec3i, axis, val int) {
	switch axis {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
}

// trace composites one primary ray front-to-back through up to
// MaxTransparentSteps transparent voxels, shading the first opaque hit.
func (r *Renderer) trace(origin, dir mgl32.Vec3, lights []Light, isCursor bool) (mgl32.Vec3, bool) {
	d := newDDA(origin, dir)

	accum := mgl32.Vec3{}
	transmit := float32(1.0)
	transparentSteps := 0
	picked := false

	for d.t < maxRayDistance {
		chunk := core.WorldToChunk(d.cell)
		if !r.view.Loaded(chunk) || !r.occupancy[chunk] {
			d.skipToChunkExit(origin, dir)
			continue
		}

		v := r.view.VoxelAt(d.cell)
		if v.IsAir() {
			d.advance()
			continue
		}

		f := core.Unpack(v)
		props := r.tables.Prop(f.Material)

		if isCursor && !picked {
			r.writePick(d.cell, f)
			picked = true
		}

		if props.Opacity >= 0.99 {
			shaded := r.shade(d.cell, dirNormal(d), props, lights)
			accum = accum.Add(shaded.Mul(transmit))
			return accum, true
		}

		// Transparent voxel: depth-dependent absorption for liquids,
		// flat alpha otherwise.
		alpha := props.Opacity
		if props.Phase == core.PhaseLiquid && props.AbsorptionRate > 0 {
			span := d.nextCrossing() - d.t
			alpha = 1 - float32(math.Exp(-float64(props.AbsorptionRate)*float64(span)))
			if alpha < props.Opacity {
				alpha = props.Opacity
			}
		}
		voxColor := mgl32.Vec3{props.Color[0], props.Color[1], props.Color[2]}
		accum = accum.Add(voxColor.Mul(transmit * alpha))
		transmit *= 1 - alpha

		transparentSteps++
		if transparentSteps >= MaxTransparentSteps || transmit < 0.01 {
			return accum, true
		}
		d.advance()
	}

	// Sky gradient by ray elevation.
	elev := (dir.Y() + 1) / 2
	sky := skyHorizon.Mul(1 - elev).Add(skyZenith.Mul(elev))
	return accum.Add(sky.Mul(transmit)), false
}

// nextCrossing is the ray parameter of the next boundary, without stepping.
func (d *dda) nextCrossing() float32 {
	m := d.tMax[0]
	if d.tMax[1] < m {
		m = d.tMax[1]
	}
	if d.tMax[2] < m {
		m = d.tMax[2]
	}
	return m
}

func dirNormal(d dda) core.Vec3i {
	var n core.Vec3i
	if d.lastAxis >= 0 {
		setAxis(&n, d.lastAxis, -axisOf(d.step, d.lastAxis))
	} else {
		n = core.Vec3i{Y: 1}
	}
	return n
}
