package rigid3d

import "github.com/go-gl/mathgl/mgl64"

// MaxContactsPerManifold bounds a convex manifold's contact count, spec.md
// §4.5's "up to 4 contacts, shared normal".
const MaxContactsPerManifold = 4

// contactPoint is one contact's fixed prestep data and accumulated impulse,
// generalized from the teacher's Contact (r1, r2, nMass, jnAcc, jtAcc,
// bias, bounce) from a 2D perp-product formulation to 3D angular Jacobians
// stored as moment arms (r1, r2) plus the normal-impulse effective mass.
type contactPoint struct {
	offsetOnA mgl64.Vec3
	depth     float64
	featureID uint32

	r1, r2     mgl64.Vec3
	normalMass float64
	bias       float64
	bounce     float64

	normalImpulse  float64
	tangentImpulse [2]float64
}

// ContactConstraint is the two-body penetration+friction+twist-friction
// constraint for one manifold, grounded on the teacher's Arbiter
// (contact.go in the source tree) generalized from a single shared 2D
// normal/tangent pair to a 3D shared normal, a two-direction tangent basis,
// and a twist-friction term about the normal, per spec.md §4.7's
// "Penetration limits ... Friction uses a two-direction tangent basis ...
// Twist friction is a scalar about the normal" paragraph.
type ContactConstraint struct {
	BodyA, BodyB Handle

	normal   mgl64.Vec3
	tangent1 mgl64.Vec3
	tangent2 mgl64.Vec3

	friction            float64
	maxRecoveryVelocity float64

	twistMass    float64
	twistImpulse float64

	contacts [MaxContactsPerManifold]contactPoint
	count    int
}

// NewContactConstraint builds a constraint for manifold between a and b,
// inheriting accumulated impulses from previous where feature ids match
// (spec.md §4.5's warm-start carry-over).
func NewContactConstraint(a, b Handle, manifold Manifold, material PairMaterial, previous *ContactConstraint) *ContactConstraint {
	c := &ContactConstraint{
		BodyA:               a,
		BodyB:               b,
		normal:              manifold.Normal,
		friction:            material.FrictionCoefficient,
		maxRecoveryVelocity: material.MaxRecoveryVelocity,
		count:               len(manifold.Contacts),
	}
	if c.count > MaxContactsPerManifold {
		c.count = MaxContactsPerManifold
	}
	c.tangent1, c.tangent2 = tangentBasis(c.normal)

	surviving := manifold.Contacts[:c.count]
	var normalImpulse []float64
	var tangentImpulse [][2]float64
	if previous != nil {
		prevContacts := make([]ManifoldContact, previous.count)
		prevNormal := make([]float64, previous.count)
		prevTangent := make([][2]float64, previous.count)
		for j := 0; j < previous.count; j++ {
			prevContacts[j] = ManifoldContact{FeatureID: previous.contacts[j].featureID}
			prevNormal[j] = previous.contacts[j].normalImpulse
			prevTangent[j] = previous.contacts[j].tangentImpulse
		}
		normalImpulse, tangentImpulse = MatchImpulses(surviving, prevContacts, prevNormal, prevTangent)
	}

	for i, mc := range surviving {
		cp := contactPoint{featureID: mc.FeatureID, offsetOnA: mc.OffsetOnA, depth: mc.Depth}
		if normalImpulse != nil {
			cp.normalImpulse = normalImpulse[i]
			cp.tangentImpulse = tangentImpulse[i]
		}
		c.contacts[i] = cp
	}
	return c
}

// tangentBasis builds an arbitrary orthonormal pair perpendicular to n,
// generalizing the teacher's single n.Perp() (2D has only one tangent) to
// the two-direction basis a 3D contact needs.
func tangentBasis(n mgl64.Vec3) (t1, t2 mgl64.Vec3) {
	ref := mgl64.Vec3{1, 0, 0}
	if n.X() > 0.9 || n.X() < -0.9 {
		ref = mgl64.Vec3{0, 1, 0}
	}
	t1 = n.Cross(ref).Normalize()
	t2 = n.Cross(t1)
	return t1, t2
}

// PreStep computes each contact's moment arms, effective mass, and bias
// velocity from the offset-on-A and depth captured at construction time,
// spec.md §4.7 step 1. r1 is the offset stored on the manifold; r2 follows
// from the two bodies' current separation, since a manifold only carries
// one offset per contact (spec.md §4.5).
func (c *ContactConstraint) PreStep(store *BodyStore, dt, slop, biasRate float64) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)
	centerDelta := b.Position.Sub(a.Position)

	for i := 0; i < c.count; i++ {
		cp := &c.contacts[i]
		cp.r1 = cp.offsetOnA
		cp.r2 = cp.r1.Sub(centerDelta)

		cp.normalMass = 1 / effectiveMass(a, b, cp.r1, cp.r2, c.normal)

		if cp.depth < 0 {
			// Speculative contact: the gap may close within this step.
			cp.bias = cp.depth / dt
		} else {
			cp.bias = biasRate * max64(cp.depth-slop, 0) / dt
			if c.maxRecoveryVelocity > 0 && cp.bias > c.maxRecoveryVelocity {
				cp.bias = c.maxRecoveryVelocity
			}
		}
	}

	c.twistMass = 1 / angularEffectiveMass(a, b, c.normal)
}

// ApplyCachedImpulse re-applies last frame's accumulated impulses before
// the iteration loop starts, the warm-start step spec.md §4.7 prescribes
// ahead of "iterate K times", grounded on the teacher's
// Arbiter.ApplyCachedImpulse.
func (c *ContactConstraint) ApplyCachedImpulse(store *BodyStore) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)
	for i := 0; i < c.count; i++ {
		cp := &c.contacts[i]
		impulse := c.normal.Mul(cp.normalImpulse).
			Add(c.tangent1.Mul(cp.tangentImpulse[0])).
			Add(c.tangent2.Mul(cp.tangentImpulse[1]))
		applyImpulsePair(a, b, cp.r1, cp.r2, impulse)
	}
}

// ApplyImpulse runs one solver iteration over every contact in the
// manifold: penetration impulse clamped to [0, inf), then a shared
// friction cone bounded by the sum of penetration impulses times the
// friction coefficient, then twist friction about the normal, per spec.md
// §4.7 step 3 and the penetration/friction paragraph in §4.7.
func (c *ContactConstraint) ApplyImpulse(store *BodyStore) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)

	normalSum := 0.0
	for i := 0; i < c.count; i++ {
		cp := &c.contacts[i]
		vrn := normalRelativeVelocity(a, b, cp.r1, cp.r2, c.normal)
		jn := (cp.bias - vrn) * cp.normalMass
		old := cp.normalImpulse
		cp.normalImpulse = max64(old+jn, 0)
		applyImpulsePair(a, b, cp.r1, cp.r2, c.normal.Mul(cp.normalImpulse-old))
		normalSum += cp.normalImpulse
	}

	limit := c.friction * normalSum
	for i := 0; i < c.count; i++ {
		cp := &c.contacts[i]
		vr := relativeVelocity(a, b, cp.r1, cp.r2)

		for dir, tangent := range [2]mgl64.Vec3{c.tangent1, c.tangent2} {
			vrt := vr.Dot(tangent)
			jt := -vrt * cp.normalMass
			old := cp.tangentImpulse[dir]
			cp.tangentImpulse[dir] = clamp(old+jt, -limit, limit)
			applyImpulsePair(a, b, cp.r1, cp.r2, tangent.Mul(cp.tangentImpulse[dir]-old))
		}
	}

	twistLimit := c.friction * normalSum
	relAngular := b.AngularVelocity.Sub(a.AngularVelocity).Dot(c.normal)
	jTwist := -relAngular * c.twistMass
	old := c.twistImpulse
	c.twistImpulse = clamp(old+jTwist, -twistLimit, twistLimit)
	applyTwistImpulse(a, b, c.normal, c.twistImpulse-old)
}

func effectiveMass(a, b *Body, r1, r2, n mgl64.Vec3) float64 {
	rn1 := r1.Cross(n)
	rn2 := r2.Cross(n)
	return a.InverseMass + b.InverseMass +
		a.WorldInverseInertia.Mul3x1(rn1).Dot(rn1) +
		b.WorldInverseInertia.Mul3x1(rn2).Dot(rn2)
}

func angularEffectiveMass(a, b *Body, n mgl64.Vec3) float64 {
	return a.WorldInverseInertia.Mul3x1(n).Dot(n) + b.WorldInverseInertia.Mul3x1(n).Dot(n)
}

func relativeVelocity(a, b *Body, r1, r2 mgl64.Vec3) mgl64.Vec3 {
	return b.VelocityAtPoint(b.Position.Add(r2)).Sub(a.VelocityAtPoint(a.Position.Add(r1)))
}

func normalRelativeVelocity(a, b *Body, r1, r2, n mgl64.Vec3) float64 {
	return relativeVelocity(a, b, r1, r2).Dot(n)
}

func applyImpulsePair(a, b *Body, r1, r2, impulse mgl64.Vec3) {
	b.ApplyImpulseAtPoint(impulse, b.Position.Add(r2))
	a.ApplyImpulseAtPoint(impulse.Mul(-1), a.Position.Add(r1))
}

func applyTwistImpulse(a, b *Body, n mgl64.Vec3, impulse float64) {
	if !a.IsKinematic() {
		a.AngularVelocity = a.AngularVelocity.Sub(a.WorldInverseInertia.Mul3x1(n).Mul(impulse))
	}
	if !b.IsKinematic() {
		b.AngularVelocity = b.AngularVelocity.Add(b.WorldInverseInertia.Mul3x1(n).Mul(impulse))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
