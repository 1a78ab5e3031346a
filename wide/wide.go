// Package wide defines lane-parallel scalar, vector, quaternion and
// symmetric-3x3 bundle types for constraint math. The solver in the parent
// package does not use them; it solves one constraint at a time.
//
// The source engine this design is ported from lays solver data out as
// Vector<float>[LaneWidth]-shaped bundles so one "wide" operation processes
// LaneWidth logical constraints at once. Go has no portable way to address
// SIMD lanes without per-architecture assembly, which nothing in this
// codebase's lineage does, so these types implement the scalar fallback
// path explicitly called out as valuable for debugging and determinism
// validation: a WideFloat is a plain [LaneWidth]float64 and every op is a
// LaneWidth-iteration loop. Bundles are filled and drained through the
// Gather/Scatter functions, whose count argument marks how many lanes of a
// partially-filled tail are live.
package wide

import "github.com/go-gl/mathgl/mgl64"

// LaneWidth is the number of logical constraints packed into one bundle.
const LaneWidth = 4

// Float is a bundle of LaneWidth scalar lanes.
type Float [LaneWidth]float64

// Vec3 is a bundle of LaneWidth 3-vectors, one per lane.
type Vec3 [LaneWidth]mgl64.Vec3

// Quat is a bundle of LaneWidth unit quaternions, one per lane.
type Quat [LaneWidth]mgl64.Quat

// Symmetric3x3 is a bundle of LaneWidth symmetric 3x3 matrices (e.g. world
// inverse-inertia tensors), stored as their six independent components.
type Symmetric3x3 struct {
	XX, YY, ZZ Float
	XY, XZ, YZ Float
}

func SplatFloat(v float64) Float {
	var f Float
	for i := range f {
		f[i] = v
	}
	return f
}

func (a Float) Add(b Float) Float {
	var r Float
	for i := range r {
		r[i] = a[i] + b[i]
	}
	return r
}

func (a Float) Sub(b Float) Float {
	var r Float
	for i := range r {
		r[i] = a[i] - b[i]
	}
	return r
}

func (a Float) Mul(b Float) Float {
	var r Float
	for i := range r {
		r[i] = a[i] * b[i]
	}
	return r
}

func (a Float) Scale(s float64) Float {
	var r Float
	for i := range r {
		r[i] = a[i] * s
	}
	return r
}

// Max returns the lane-wise maximum of a and b.
func (a Float) Max(b Float) Float {
	var r Float
	for i := range r {
		if a[i] > b[i] {
			r[i] = a[i]
		} else {
			r[i] = b[i]
		}
	}
	return r
}

// Clamp clamps each lane to [lo, hi].
func (a Float) Clamp(lo, hi Float) Float {
	var r Float
	for i := range r {
		v := a[i]
		if v < lo[i] {
			v = lo[i]
		}
		if v > hi[i] {
			v = hi[i]
		}
		r[i] = v
	}
	return r
}

func (a Vec3) Add(b Vec3) Vec3 {
	var r Vec3
	for i := range r {
		r[i] = a[i].Add(b[i])
	}
	return r
}

func (a Vec3) Sub(b Vec3) Vec3 {
	var r Vec3
	for i := range r {
		r[i] = a[i].Sub(b[i])
	}
	return r
}

func (a Vec3) Scale(s Float) Vec3 {
	var r Vec3
	for i := range r {
		r[i] = a[i].Mul(s[i])
	}
	return r
}

func (a Vec3) Dot(b Vec3) Float {
	var r Float
	for i := range r {
		r[i] = a[i].Dot(b[i])
	}
	return r
}

func (a Vec3) Cross(b Vec3) Vec3 {
	var r Vec3
	for i := range r {
		r[i] = a[i].Cross(b[i])
	}
	return r
}

// TransformBySymmetric applies a bundle of symmetric 3x3 matrices to a
// bundle of vectors, one lane at a time: r[i] = M[i] * v[i].
func TransformBySymmetric(m Symmetric3x3, v Vec3) Vec3 {
	var r Vec3
	for i := range r {
		x, y, z := v[i].X(), v[i].Y(), v[i].Z()
		r[i] = mgl64.Vec3{
			m.XX[i]*x + m.XY[i]*y + m.XZ[i]*z,
			m.XY[i]*x + m.YY[i]*y + m.YZ[i]*z,
			m.XZ[i]*x + m.YZ[i]*y + m.ZZ[i]*z,
		}
	}
	return r
}

// GatherFloat builds a Float bundle from up to LaneWidth scalars produced
// by index. Lanes at or beyond count are zeroed.
func GatherFloat(count int, index func(lane int) float64) Float {
	var f Float
	for i := 0; i < count && i < LaneWidth; i++ {
		f[i] = index(i)
	}
	return f
}

// GatherVec3 builds a Vec3 bundle from up to LaneWidth vectors produced by
// index. Lanes at or beyond count are zeroed.
func GatherVec3(count int, index func(lane int) mgl64.Vec3) Vec3 {
	var v Vec3
	for i := 0; i < count && i < LaneWidth; i++ {
		v[i] = index(i)
	}
	return v
}

// Scatter calls store for each active lane in [0, count).
func (a Float) Scatter(count int, store func(lane int, v float64)) {
	for i := 0; i < count && i < LaneWidth; i++ {
		store(i, a[i])
	}
}

// Scatter calls store for each active lane in [0, count).
func (a Vec3) Scatter(count int, store func(lane int, v mgl64.Vec3)) {
	for i := 0; i < count && i < LaneWidth; i++ {
		store(i, a[i])
	}
}
