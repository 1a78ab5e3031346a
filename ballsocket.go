package rigid3d

import "github.com/go-gl/mathgl/mgl64"

// BallSocketConstraint pins a point on bodyA to a point on bodyB, the
// two-body point constraint from spec.md §3's constraint-kind list,
// grounded on the teacher's PinJoint but generalized from a fixed-distance
// 2D pin (joint.Dist) to a coincident-point 3D socket with implicit-spring
// softness instead of a hard maxBias/maxForce clamp, per spec.md §4.7's
// "Spring-damper terms derive an effective-mass CFM scale and softness
// impulse scale from (natural frequency, damping ratio, dt)" paragraph.
type BallSocketConstraint struct {
	BodyA, BodyB Handle

	// LocalAnchorA/LocalAnchorB are the pinned points in each body's local
	// frame, following the teacher's AnchorA/AnchorB fields.
	LocalAnchorA, LocalAnchorB mgl64.Vec3

	SpringNaturalFrequency float64
	SpringDampingRatio     float64

	r1, r2 mgl64.Vec3
	bias   mgl64.Vec3

	effectiveMass mgl64.Mat3
	cfm           float64
	impulseScale  float64

	Impulse mgl64.Vec3
}

// NewBallSocketConstraint returns a constraint pinning the world points
// currently at localAnchorA (on a) and localAnchorB (on b) together.
func NewBallSocketConstraint(a, b Handle, localAnchorA, localAnchorB mgl64.Vec3) *BallSocketConstraint {
	return &BallSocketConstraint{
		BodyA:        a,
		BodyB:        b,
		LocalAnchorA: localAnchorA,
		LocalAnchorB: localAnchorB,
	}
}

// PreStep computes the moment arms, the 3x3 effective mass, and the
// position-error bias, spec.md §4.7 step 1. biasRate plays the role of the
// teacher's errorBias/biasCoef term.
func (c *BallSocketConstraint) PreStep(store *BodyStore, dt, biasRate float64) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)

	c.r1 = a.Orientation.Rotate(c.LocalAnchorA)
	c.r2 = b.Orientation.Rotate(c.LocalAnchorB)

	pa := a.Position.Add(c.r1)
	pb := b.Position.Add(c.r2)
	separation := pb.Sub(pa)

	c.cfm, c.impulseScale = springSoftness(c.SpringNaturalFrequency, c.SpringDampingRatio, dt)

	k := k3x3(a, b, c.r1, c.r2)
	for i := range k {
		if i%4 == 0 {
			k[i] += c.cfm
		}
	}
	c.effectiveMass = k.Inv()

	c.bias = separation.Mul(-biasRate / dt)
}

// ApplyCachedImpulse re-applies the prior frame's accumulated impulse.
func (c *BallSocketConstraint) ApplyCachedImpulse(store *BodyStore) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)
	applyImpulsePair(a, b, c.r1, c.r2, c.Impulse)
}

// ApplyImpulse solves the 3-DOF point constraint to zero relative velocity
// at the anchors (plus the bias term), the spec.md §4.7 step 3 corrective
// impulse `Δλ = M_eff · (JᵀΔv_target − Jv − softness·λ_accum)` specialized
// to an unconstrained (non-conic) 3-vector impulse.
func (c *BallSocketConstraint) ApplyImpulse(store *BodyStore) {
	a := store.Body(c.BodyA)
	b := store.Body(c.BodyB)

	vr := relativeVelocity(a, b, c.r1, c.r2)
	rhs := c.bias.Sub(vr).Sub(c.Impulse.Mul(c.cfm))
	delta := c.effectiveMass.Mul3x1(rhs).Mul(1 - c.impulseScale)

	c.Impulse = c.Impulse.Add(delta)
	applyImpulsePair(a, b, c.r1, c.r2, delta)
}

// GetImpulse returns the magnitude of the impulse accumulated since the
// constraint was created, mirroring
// the teacher's PinJoint.GetImpulse (abs of a scalar there; a vector norm
// here since the 3D socket has no single constrained axis).
func (c *BallSocketConstraint) GetImpulse() float64 {
	return c.Impulse.Len()
}

// springSoftness derives the CFM scale and impulse scale an implicit
// spring-damper needs from its natural frequency and damping ratio,
// following the standard soft-constraint formulation spec.md §4.7
// references. A zero natural frequency means "rigid": no softness at all.
func springSoftness(naturalFrequency, dampingRatio, dt float64) (cfm, impulseScale float64) {
	if naturalFrequency <= 0 {
		return 0, 0
	}
	omega := 2 * 3.141592653589793 * naturalFrequency
	a1 := 2*dampingRatio + dt*omega
	a2 := dt * omega * a1
	a3 := 1 / (1 + a2)
	return a2 * a3, a3
}

// k3x3 builds the 3x3 effective-mass-basis matrix K = (1/ma + 1/mb)I −
// [r1]×Ia⁻¹[r1]× − [r2]×Ib⁻¹[r2]×, the 3-DOF generalization of the scalar
// kScalar the teacher's 2D solver uses.
func k3x3(a, b *Body, r1, r2 mgl64.Vec3) mgl64.Mat3 {
	sum := a.InverseMass + b.InverseMass
	k := mgl64.Mat3{sum, 0, 0, 0, sum, 0, 0, 0, sum}
	k = k.Sub(skewInertiaSkew(a.WorldInverseInertia, r1))
	k = k.Sub(skewInertiaSkew(b.WorldInverseInertia, r2))
	return k
}

func skewInertiaSkew(inertia mgl64.Mat3, r mgl64.Vec3) mgl64.Mat3 {
	skew := mgl64.Mat3{
		0, r.Z(), -r.Y(),
		-r.Z(), 0, r.X(),
		r.Y(), -r.X(), 0,
	}
	return skew.Mul3(inertia).Mul3(skew)
}
