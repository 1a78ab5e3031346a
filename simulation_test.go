package rigid3d_test

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nyxphys/rigid3d"
)

// sphereCollidable and boxHalfExtentCollidable stash a shape's only relevant
// dimension (radius, or half-extent along y) as the bit pattern of a
// float64 in ShapeHandle. Concrete shape storage is out of scope; these are
// the minimal stand-ins an end-to-end test needs to exercise real narrow
// phase dispatch instead of hand-injecting manifolds.
func sphereCollidable(radius float64) rigid3d.Collidable {
	return rigid3d.Collidable{
		ShapeType:         shapeSphere,
		ShapeHandle:       math.Float64bits(radius),
		SpeculativeMargin: radius + 0.05,
		Present:           true,
	}
}

func boxHalfExtentCollidable(halfY float64) rigid3d.Collidable {
	return rigid3d.Collidable{
		ShapeType:         shapeBox,
		ShapeHandle:       math.Float64bits(halfY),
		SpeculativeMargin: halfY + 0.05,
		Present:           true,
	}
}

func sphereVsSphereManifold(worker int, a, b rigid3d.PairCollidable) (rigid3d.Manifold, bool) {
	ra := math.Float64frombits(a.Collidable.ShapeHandle)
	rb := math.Float64frombits(b.Collidable.ShapeHandle)
	delta := b.Position.Sub(a.Position)
	dist := delta.Len()
	if dist > ra+rb+0.1 {
		return rigid3d.Manifold{}, false
	}
	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-9 {
		normal = delta.Mul(1 / dist)
	}
	return rigid3d.Manifold{
		Convex: true,
		Normal: normal,
		Contacts: []rigid3d.ManifoldContact{
			{OffsetOnA: normal.Mul(ra), Depth: ra + rb - dist, FeatureID: 1},
		},
	}, true
}

// sphereVsBoxManifold treats b's box as an infinite slab along y, since the
// stacking scenario only ever loads a sphere onto a box's top face.
func sphereVsBoxManifold(worker int, a, b rigid3d.PairCollidable) (rigid3d.Manifold, bool) {
	r := math.Float64frombits(a.Collidable.ShapeHandle)
	halfY := math.Float64frombits(b.Collidable.ShapeHandle)
	topY := b.Position.Y() + halfY
	depth := (topY + r) - a.Position.Y()
	if depth < -0.1 {
		return rigid3d.Manifold{}, false
	}
	normal := mgl64.Vec3{0, 1, 0}
	if b.Position.Y() < a.Position.Y() {
		normal = mgl64.Vec3{0, -1, 0}
	}
	return rigid3d.Manifold{
		Convex: true,
		Normal: normal,
		Contacts: []rigid3d.ManifoldContact{
			{OffsetOnA: normal.Mul(r), Depth: depth, FeatureID: 1},
		},
	}, true
}

func newStackingSimulation() *rigid3d.Simulation {
	sim := rigid3d.NewSimulation(rigid3d.SimulationDescription{
		Gravity:       mgl64.Vec3{0, -10, 0},
		Damping:       1,
		CollisionSlop: 0.005,
		Iterations:    8,
	})
	sim.NarrowPhase.Register(shapeSphere, shapeSphere, sphereVsSphereManifold)
	sim.NarrowPhase.Register(shapeSphere, shapeBox, sphereVsBoxManifold)
	return sim
}

func sphereBody(pos mgl64.Vec3, radius float64) rigid3d.BodyDescription {
	inertia := 0.4 * radius * radius
	return rigid3d.BodyDescription{
		Kind:                           rigid3d.KindDynamic,
		Position:                       pos,
		Orientation:                    mgl64.QuatIdent(),
		InverseMass:                    1,
		LocalInverseInertia:            mgl64.Mat3{1 / inertia, 0, 0, 0, 1 / inertia, 0, 0, 0, 1 / inertia},
		Collidable:                     sphereCollidable(radius),
		SleepThreshold:                 0.01,
		MinimumTimestepsUnderThreshold: 30,
	}
}

// TestTwoSphereRestStackSettles exercises spec scenario S1: two unit-mass
// spheres dropped onto a static box come to rest stacked on top of it.
func TestTwoSphereRestStackSettles(t *testing.T) {
	sim := newStackingSimulation()

	sim.AddStatic(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), boxHalfExtentCollidable(0.5))
	a := sim.AddBody(sphereBody(mgl64.Vec3{0, 1, 0}, 0.5))
	b := sim.AddBody(sphereBody(mgl64.Vec3{0, 2, 0}, 0.5))

	const dt = 1.0 / 60
	for i := 0; i < 120; i++ {
		sim.Step(dt)
	}

	bodyA := sim.Bodies.Body(a)
	bodyB := sim.Bodies.Body(b)

	if v := bodyA.LinearVelocity.Len(); v >= 0.01 {
		t.Errorf("sphere A |velocity| = %v, want < 0.01", v)
	}
	if v := bodyB.LinearVelocity.Len(); v >= 0.01 {
		t.Errorf("sphere B |velocity| = %v, want < 0.01", v)
	}
	if d := math.Abs(bodyA.Position.Y() - 0.5); d >= 0.02 {
		t.Errorf("sphere A y = %v, want within 0.02 of 0.5", bodyA.Position.Y())
	}
	if d := math.Abs(bodyB.Position.Y() - 1.5); d >= 0.04 {
		t.Errorf("sphere B y = %v, want within 0.04 of 1.5", bodyB.Position.Y())
	}
}

// TestBallSocketChainHoldsBottomBodyNearRestLength exercises spec scenario
// S2: a chain of ball sockets hanging from a kinematic anchor holds its
// bottom link close to its rest separation once damped springs settle.
func TestBallSocketChainHoldsBottomBodyNearRestLength(t *testing.T) {
	sim := rigid3d.NewSimulation(rigid3d.SimulationDescription{
		Gravity: mgl64.Vec3{0, -10, 0},
		Damping: 1,
	})

	anchor := sim.AddBody(rigid3d.BodyDescription{
		Kind:        rigid3d.KindKinematic,
		Position:    mgl64.Vec3{0, 4, 0},
		Orientation: mgl64.QuatIdent(),
	})

	link := func(y float64) rigid3d.BodyDescription {
		return rigid3d.BodyDescription{
			Kind:                           rigid3d.KindDynamic,
			Position:                       mgl64.Vec3{0, y, 0},
			Orientation:                    mgl64.QuatIdent(),
			InverseMass:                    1,
			LocalInverseInertia:            mgl64.Ident3(),
			SleepThreshold:                 0.01,
			MinimumTimestepsUnderThreshold: 30,
		}
	}
	l1 := sim.AddBody(link(3))
	l2 := sim.AddBody(link(2))
	l3 := sim.AddBody(link(1))

	chain := [][2]rigid3d.Handle{{anchor, l1}, {l1, l2}, {l2, l3}}
	for _, pair := range chain {
		c := rigid3d.NewBallSocketConstraint(pair[0], pair[1], mgl64.Vec3{0, -0.5, 0}, mgl64.Vec3{0, 0.5, 0})
		c.SpringNaturalFrequency = 30
		c.SpringDampingRatio = 1
		sim.Solver.AddBallSocket(sim.Bodies, pair, c)
	}

	const dt = 1.0 / 60
	for i := 0; i < 60; i++ {
		sim.Step(dt)
	}

	bottom := sim.Bodies.Body(l3)
	if bottom.Position.Y() < 0.95 || bottom.Position.Y() > 1.05 {
		t.Errorf("bottom link y = %v, want within [0.95, 1.05]", bottom.Position.Y())
	}
}

// TestSleepWakeRoundTrip exercises spec scenario S4: a settled stack of
// bodies migrates into inactive sets. Applying an impulse to a sleeping
// body does not wake it by itself, so after the impulse the test wakes
// every inactive set through Simulation.Wake and checks that every body
// plus the solver's constraints are back in the active set.
func TestSleepWakeRoundTrip(t *testing.T) {
	sim := newStackingSimulation()
	sim.AddStatic(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), boxHalfExtentCollidable(0.5))

	const count = 16
	handles := make([]rigid3d.Handle, count)
	for i := 0; i < count; i++ {
		handles[i] = sim.AddBody(sphereBody(mgl64.Vec3{0, 0.5 + float64(i), 0}, 0.5))
	}

	const dt = 1.0 / 60
	for i := 0; i < 240; i++ {
		sim.Step(dt)
	}

	asleep := 0
	for _, h := range handles {
		set, _, ok := sim.Bodies.Location(h)
		if ok && set != 0 {
			asleep++
		}
	}
	if asleep < 15 {
		t.Fatalf("only %d of %d bodies asleep after settling, want at least 15", asleep, count)
	}

	bottom := sim.Bodies.Body(handles[0])
	bottom.ApplyImpulseAtPoint(mgl64.Vec3{0, 5, 0}, bottom.Position)

	sleptSets := make(map[int32]bool)
	for i := int32(1); i < sim.Bodies.SetCount(); i++ {
		if len(sim.Bodies.Set(i)) > 0 {
			sleptSets[i] = true
		}
	}
	setIDs := make([]int32, 0, len(sleptSets))
	for s := range sleptSets {
		setIDs = append(setIDs, s)
	}

	constraintsBeforeWake := sim.Solver.ActiveConstraintCount()

	sim.Wake(setIDs)

	// AddStatic allocates a kinematic anchor body in the active set
	// alongside every sphere, so a fully awake world holds count+1 active
	// bodies, not count.
	if want := count + 1; len(sim.Bodies.Active()) != want {
		t.Fatalf("Active() has %d bodies after waking, want %d", len(sim.Bodies.Active()), want)
	}

	if got := sim.Solver.ActiveConstraintCount(); got <= constraintsBeforeWake {
		t.Fatalf("ActiveConstraintCount() = %d after waking, want more than %d (the settled stack's constraints restored)", got, constraintsBeforeWake)
	}
}

// TestPointQueryFindsBodyAndStaticLeaves exercises the point-query
// supplemented feature: a point inside a body's or static's broadphase
// leaf bounds is reported, one outside every leaf is not.
func TestPointQueryFindsBodyAndStaticLeaves(t *testing.T) {
	sim := newStackingSimulation()
	staticHandle := sim.AddStatic(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), boxHalfExtentCollidable(0.5))
	bodyHandle := sim.AddBody(sphereBody(mgl64.Vec3{5, 5, 5}, 0.5))

	hits := sim.PointQuery(mgl64.Vec3{0, -0.5, 0})
	foundStatic := false
	for _, r := range hits {
		if r.Ref.Static && r.Ref.Handle == staticHandle {
			foundStatic = true
		}
	}
	if !foundStatic {
		t.Error("expected a point query at the static's center to find it")
	}

	hits = sim.PointQuery(mgl64.Vec3{5, 5, 5})
	foundBody := false
	for _, r := range hits {
		if !r.Ref.Static && r.Ref.Handle == bodyHandle {
			foundBody = true
		}
	}
	if !foundBody {
		t.Error("expected a point query at the body's center to find it")
	}

	if hits := sim.PointQuery(mgl64.Vec3{500, 500, 500}); len(hits) != 0 {
		t.Errorf("expected no hits far from every leaf, got %d", len(hits))
	}
}

// TestRayCastCrossesStaticLeaf exercises the ray-cast supplemented feature:
// a segment passing through a static's broadphase leaf reports a hit with
// an entry fraction in [0,1].
func TestRayCastCrossesStaticLeaf(t *testing.T) {
	sim := newStackingSimulation()
	staticHandle := sim.AddStatic(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), boxHalfExtentCollidable(0.5))

	results := sim.RayCast(mgl64.Vec3{0, 10, -0.5}, mgl64.Vec3{0, -10, -0.5})
	found := false
	for _, r := range results {
		if r.Ref.Static && r.Ref.Handle == staticHandle {
			found = true
			if r.Fraction < 0 || r.Fraction > 1 {
				t.Errorf("entry fraction = %v, want within [0,1]", r.Fraction)
			}
		}
	}
	if !found {
		t.Error("expected a downward ray through the static's column to hit it")
	}

	if results := sim.RayCast(mgl64.Vec3{500, 10, 0}, mgl64.Vec3{500, -10, 0}); len(results) != 0 {
		t.Errorf("expected no hits for a ray far from every leaf, got %d", len(results))
	}
}

// TestSimulationStepIsDeterministicUnderSingleWorker exercises spec
// scenario S5: two independently constructed simulations given identical
// input and the default single-worker deterministic dispatcher produce
// bit-identical positions and linear velocities at every step.
func TestSimulationStepIsDeterministicUnderSingleWorker(t *testing.T) {
	build := func() *rigid3d.Simulation {
		sim := newStackingSimulation()
		sim.AddStatic(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), boxHalfExtentCollidable(0.5))
		sim.AddBody(sphereBody(mgl64.Vec3{0, 1, 0}, 0.5))
		sim.AddBody(sphereBody(mgl64.Vec3{0.05, 2, 0}, 0.5))
		return sim
	}

	simA := build()
	simB := build()

	const dt = 1.0 / 60
	for i := 0; i < 90; i++ {
		simA.Step(dt)
		simB.Step(dt)

		activeA, activeB := simA.Bodies.Active(), simB.Bodies.Active()
		if len(activeA) != len(activeB) {
			t.Fatalf("step %d: active body count diverged: %d vs %d", i, len(activeA), len(activeB))
		}
		for j := range activeA {
			if activeA[j].Position != activeB[j].Position {
				t.Fatalf("step %d body %d: position diverged: %v vs %v", i, j, activeA[j].Position, activeB[j].Position)
			}
			if activeA[j].LinearVelocity != activeB[j].LinearVelocity {
				t.Fatalf("step %d body %d: linear velocity diverged: %v vs %v", i, j, activeA[j].LinearVelocity, activeB[j].LinearVelocity)
			}
		}
	}
}
