package rigid3d_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nyxphys/rigid3d"
)

func TestBallSocketConstraintPullsAnchorsTogether(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{2.5, 0, 0}))

	c := rigid3d.NewBallSocketConstraint(a, b, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{-1, 0, 0})

	dt := 1.0 / 60
	for i := 0; i < 120; i++ {
		c.PreStep(store, dt, 0.2)
		c.ApplyImpulse(store)
		store.Body(a).Position = store.Body(a).Position.Add(store.Body(a).LinearVelocity.Mul(dt))
		store.Body(b).Position = store.Body(b).Position.Add(store.Body(b).LinearVelocity.Mul(dt))
	}

	anchorA := store.Body(a).Position.Add(mgl64.Vec3{1, 0, 0})
	anchorB := store.Body(b).Position.Add(mgl64.Vec3{-1, 0, 0})
	if anchorA.Sub(anchorB).Len() > 0.1 {
		t.Errorf("anchors did not converge: a=%v b=%v", anchorA, anchorB)
	}
}

func TestBallSocketConstraintImpulseIsZeroBeforeApplyImpulse(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{1, 0, 0}))
	c := rigid3d.NewBallSocketConstraint(a, b, mgl64.Vec3{}, mgl64.Vec3{})

	c.PreStep(store, 1.0/60, 0.2)
	if c.GetImpulse() != 0 {
		t.Errorf("expected zero impulse before any ApplyImpulse call, got %v", c.GetImpulse())
	}
}

func TestBallSocketConstraintApplyCachedImpulseIsIdempotentAtRest(t *testing.T) {
	store := rigid3d.NewBodyStore()
	a := store.Add(unitBox(mgl64.Vec3{0, 0, 0}))
	b := store.Add(unitBox(mgl64.Vec3{1, 0, 0}))
	c := rigid3d.NewBallSocketConstraint(a, b, mgl64.Vec3{}, mgl64.Vec3{})
	c.PreStep(store, 1.0/60, 0.2)

	before := store.Body(a).LinearVelocity
	c.ApplyCachedImpulse(store)
	after := store.Body(a).LinearVelocity
	if before != after {
		t.Errorf("expected a zero cached impulse to leave velocity unchanged, got %v -> %v", before, after)
	}
}
