package rigid3d_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nyxphys/rigid3d"
)

func contactBetween(a, b rigid3d.Handle) *rigid3d.ContactConstraint {
	manifold := rigid3d.Manifold{
		Normal: mgl64.Vec3{0, 1, 0},
		Contacts: []rigid3d.ManifoldContact{
			{FeatureID: 1, OffsetOnA: mgl64.Vec3{0, 0.5, 0}, Depth: 0.01},
		},
	}
	material := rigid3d.PairMaterial{FrictionCoefficient: 0.5, MaxRecoveryVelocity: 3}
	return rigid3d.NewContactConstraint(a, b, manifold, material, nil)
}

func TestSolverDisjointConstraintsShareOneBatch(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{0, 1, 0}))
	c := store.Add(unitBox(mgl64.Vec3{5, 0, 0}))
	d := store.Add(unitBox(mgl64.Vec3{5, 1, 0}))

	s := rigid3d.NewSolver()
	s.AddContact(store, [2]rigid3d.Handle{a, b}, contactBetween(a, b))
	s.AddContact(store, [2]rigid3d.Handle{c, d}, contactBetween(c, d))

	if s.BatchCount() != 1 {
		t.Errorf("BatchCount() = %d, want 1 for body-disjoint constraints", s.BatchCount())
	}
}

func TestSolverConflictingConstraintsSplitAcrossBatches(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{0, 1, 0}))
	c := store.Add(unitBox(mgl64.Vec3{0, 2, 0}))

	s := rigid3d.NewSolver()
	s.AddContact(store, [2]rigid3d.Handle{a, b}, contactBetween(a, b))
	s.AddContact(store, [2]rigid3d.Handle{b, c}, contactBetween(b, c))

	if s.BatchCount() != 2 {
		t.Errorf("BatchCount() = %d, want 2 when the second constraint shares body b", s.BatchCount())
	}
}

func TestSolverStepSettlesOverlappingBox(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{0, 0.9, 0}))
	store.Body(b).LinearVelocity = mgl64.Vec3{0, -1, 0}

	s := rigid3d.NewSolver()
	s.AddContact(store, [2]rigid3d.Handle{a, b}, contactBetween(a, b))

	s.Step(store, 1.0/60, 0.01, 0.2, nil)

	if store.Body(b).LinearVelocity.Y() < -1 {
		t.Error("expected solving to not increase the approach speed")
	}
}

func TestSolverRemoveCompactsTypeBatch(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{0, 1, 0}))
	c := store.Add(unitBox(mgl64.Vec3{5, 0, 0}))
	d := store.Add(unitBox(mgl64.Vec3{5, 1, 0}))

	s := rigid3d.NewSolver()
	h1 := s.AddContact(store, [2]rigid3d.Handle{a, b}, contactBetween(a, b))
	s.AddContact(store, [2]rigid3d.Handle{c, d}, contactBetween(c, d))

	s.Remove(h1)
	// The surviving constraint must still be solvable after the swap-remove
	// relocated it into h1's old slot.
	s.Step(store, 1.0/60, 0.01, 0.2, nil)
}
