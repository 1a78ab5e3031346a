package rigid3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Bounds is an axis-aligned 3D bounding box, generalized from the teacher's
// 2D (L,B,R,T) BB into a pair of corner vectors. Every broadphase leaf and
// tree node carries one.
type Bounds struct {
	Min, Max mgl64.Vec3
}

// BoundsForSphere constructs a Bounds centered on c with the given radius,
// the 3D analogue of the teacher's NewBBForCircle.
func BoundsForSphere(c mgl64.Vec3, r float64) Bounds {
	rv := mgl64.Vec3{r, r, r}
	return Bounds{Min: c.Sub(rv), Max: c.Add(rv)}
}

// Intersects returns true if a and b overlap on all three axes.
func (a Bounds) Intersects(b Bounds) bool {
	return a.Min.X() <= b.Max.X() && b.Min.X() <= a.Max.X() &&
		a.Min.Y() <= b.Max.Y() && b.Min.Y() <= a.Max.Y() &&
		a.Min.Z() <= b.Max.Z() && b.Min.Z() <= a.Max.Z()
}

// Contains returns true if other lies entirely within a.
func (a Bounds) Contains(other Bounds) bool {
	return a.Min.X() <= other.Min.X() && a.Max.X() >= other.Max.X() &&
		a.Min.Y() <= other.Min.Y() && a.Max.Y() >= other.Max.Y() &&
		a.Min.Z() <= other.Min.Z() && a.Max.Z() >= other.Max.Z()
}

// ContainsPoint returns true if p lies within a.
func (a Bounds) ContainsPoint(p mgl64.Vec3) bool {
	return a.Min.X() <= p.X() && p.X() <= a.Max.X() &&
		a.Min.Y() <= p.Y() && p.Y() <= a.Max.Y() &&
		a.Min.Z() <= p.Z() && p.Z() <= a.Max.Z()
}

// Merge returns the smallest Bounds containing both a and b.
func (a Bounds) Merge(b Bounds) Bounds {
	return Bounds{
		Min: mgl64.Vec3{math.Min(a.Min.X(), b.Min.X()), math.Min(a.Min.Y(), b.Min.Y()), math.Min(a.Min.Z(), b.Min.Z())},
		Max: mgl64.Vec3{math.Max(a.Max.X(), b.Max.X()), math.Max(a.Max.Y(), b.Max.Y()), math.Max(a.Max.Z(), b.Max.Z())},
	}
}

// Expand returns a that has been grown to also contain p.
func (a Bounds) Expand(p mgl64.Vec3) Bounds {
	return Bounds{
		Min: mgl64.Vec3{math.Min(a.Min.X(), p.X()), math.Min(a.Min.Y(), p.Y()), math.Min(a.Min.Z(), p.Z())},
		Max: mgl64.Vec3{math.Max(a.Max.X(), p.X()), math.Max(a.Max.Y(), p.Y()), math.Max(a.Max.Z(), p.Z())},
	}
}

// Inflate grows a on every side by margin, used for the speculative contact
// margin a collidable's broadphase leaf carries beyond its tight bounds.
func (a Bounds) Inflate(margin float64) Bounds {
	m := mgl64.Vec3{margin, margin, margin}
	return Bounds{Min: a.Min.Sub(m), Max: a.Max.Add(m)}
}

// Center returns the midpoint of a.
func (a Bounds) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Extents returns the half-size of a along each axis.
func (a Bounds) Extents() mgl64.Vec3 {
	return a.Max.Sub(a.Min).Mul(0.5)
}

// SurfaceArea returns twice the sum of the three face areas, the cost metric
// BoundsTree.insert minimizes when choosing where to graft
// a new leaf, generalized from the teacher's bb_tree.go Area (2D perimeter)
// into 3D surface area.
func (a Bounds) SurfaceArea() float64 {
	d := a.Max.Sub(a.Min)
	return 2 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

// MergedArea returns the surface area of a.Merge(b) without constructing
// the merged Bounds, the hot path for subtree-insert cost comparisons.
func (a Bounds) MergedArea(b Bounds) float64 {
	minX, minY, minZ := math.Min(a.Min.X(), b.Min.X()), math.Min(a.Min.Y(), b.Min.Y()), math.Min(a.Min.Z(), b.Min.Z())
	maxX, maxY, maxZ := math.Max(a.Max.X(), b.Max.X()), math.Max(a.Max.Y(), b.Max.Y()), math.Max(a.Max.Z(), b.Max.Z())
	dx, dy, dz := maxX-minX, maxY-minY, maxZ-minZ
	return 2 * (dx*dy + dy*dz + dz*dx)
}

// IntersectsSegment reports whether the segment from start to end crosses a,
// using the standard slab method, and the entry fraction along the segment
// (clamped to [0,1], 0 if start already lies inside a). Used by broadphase
// ray queries, generalized from the teacher's BB.IntersectsSegment (2D, two
// axes) to three slabs.
func (a Bounds) IntersectsSegment(start, end mgl64.Vec3) (fraction float64, hit bool) {
	d := end.Sub(start)
	tmin, tmax := 0.0, 1.0
	for axis := 0; axis < 3; axis++ {
		s, e, lo, hi := component(start, axis), component(d, axis), component(a.Min, axis), component(a.Max, axis)
		if math.Abs(e) < 1e-12 {
			if s < lo || s > hi {
				return 0, false
			}
			continue
		}
		inv := 1 / e
		t1, t2 := (lo-s)*inv, (hi-s)*inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func component(v mgl64.Vec3, axis int) float64 {
	switch axis {
	case 0:
		return v.X()
	case 1:
		return v.Y()
	default:
		return v.Z()
	}
}

// Proximity is a cheap ordering heuristic (sum of center-offset magnitudes
// along each axis) used during tree insertion to pick between two children
// whose merged-area costs are equal, mirroring the teacher's bb_tree.go
// Proximity.
func (a Bounds) Proximity(b Bounds) float64 {
	return math.Abs(a.Min.X()+a.Max.X()-b.Min.X()-b.Max.X()) +
		math.Abs(a.Min.Y()+a.Max.Y()-b.Min.Y()-b.Max.Y()) +
		math.Abs(a.Min.Z()+a.Max.Z()-b.Min.Z()-b.Max.Z())
}
