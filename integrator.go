package rigid3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// angularEpsilon is the ‖angular_velocity‖ floor below which orientation
// integration is skipped rather than divide by a near-zero magnitude,
// spec.md §4.4 step 2.
const angularEpsilon = 1e-15

// VelocityIntegrationFunc is the user callback the pose integrator invokes
// once per active body per step, generalizing the teacher's per-body
// BodyVelocityFunc into the (body index, pose, local inertia, worker id)
// signature spec.md §6 describes. It mutates linear/angular velocity in
// place, typically to add gravity and drag.
type VelocityIntegrationFunc func(bodyIndex int, position mgl64.Vec3, orientation mgl64.Quat, localInverseInertia mgl64.Mat3, worker int, linear, angular *mgl64.Vec3)

// PoseIntegratorCallbacks bundles the two pose-integrator hooks spec.md §6
// names: a per-step preparation hook and the per-body velocity hook.
type PoseIntegratorCallbacks struct {
	PrepareForIntegration func(dt float64)
	IntegrateVelocity     VelocityIntegrationFunc
}

// PredictedBounds pairs a body handle with the AABB the pose integrator
// predicted for it this step, the batcher output spec.md §4.4 step 6
// describes feeding the broadphase.
type PredictedBounds struct {
	Handle Handle
	Bounds Bounds
}

// PoseIntegrator advances active bodies by velocity and refreshes their
// world inertia, following the six numbered steps of spec.md §4.4.
// Grounded on the teacher's BodyUpdatePosition (position += velocity*dt,
// then rebuild the pose transform) generalized to quaternion orientation,
// and on akmonengine-feather's rigidbody.go Integrate for the half-angle
// quaternion update this teacher's 2D angle increment has no analogue for.
type PoseIntegrator struct {
	Callbacks PoseIntegratorCallbacks

	// ContinuityVelocityScale expands a predicted AABB by this fraction of
	// one step's velocity displacement, the continuity margin spec.md
	// §4.4 step 6 asks for.
	ContinuityVelocityScale float64
}

// NewPoseIntegrator returns an integrator with the given callbacks and the
// teacher-style default continuity scale (the same 0.1 coefficient the
// teacher's BBTree.GetBB uses to pad predicted bounds by velocity).
func NewPoseIntegrator(callbacks PoseIntegratorCallbacks) *PoseIntegrator {
	return &PoseIntegrator{Callbacks: callbacks, ContinuityVelocityScale: 0.1}
}

// Integrate advances every active body in store by dt, appending one
// PredictedBounds per body with a collidable to out, and returns out. It
// implements steps 1-6 of spec.md §4.4's full integrate-and-update-bboxes
// variant.
func (pi *PoseIntegrator) Integrate(store *BodyStore, dt float64, worker int, out []PredictedBounds) []PredictedBounds {
	if pi.Callbacks.PrepareForIntegration != nil {
		pi.Callbacks.PrepareForIntegration(dt)
	}

	active := store.Active()
	for i := range active {
		body := &active[i]
		pi.integratePose(body, dt)

		if !body.IsKinematic() {
			body.RefreshWorldInertia()
		}

		// The velocity callback runs for kinematic bodies too, so an
		// embedder can drive a scripted platform's velocity every step
		// through the same hook gravity and drag use for dynamic bodies
		// (spec.md §4.4, §6) instead of a second per-body function
		// pointer. A kinematic body's inverse mass and tensor stay zero
		// regardless of what the callback writes (BodyStore.Add pins
		// that at construction), so it can set velocity but never gains
		// the ability to receive an impulse.
		if pi.Callbacks.IntegrateVelocity != nil {
			pi.Callbacks.IntegrateVelocity(i, body.Position, body.Orientation, body.LocalInverseInertia, worker, &body.LinearVelocity, &body.AngularVelocity)
		}

		pi.refreshSleepCandidacy(body)
		out = pi.emitPredictedBounds(body, dt, out)
	}
	return out
}

// Predict appends predicted bounds built from each active body's current
// pose and velocity without mutating pose or inertia and without running
// the callbacks, spec.md §4.4's predict-only variant for timesteppers that
// defer the actual integration. The bounds are not those of the pose
// Integrate would reach.
func (pi *PoseIntegrator) Predict(store *BodyStore, dt float64, out []PredictedBounds) []PredictedBounds {
	for _, body := range store.Active() {
		out = pi.emitPredictedBounds(&body, dt, out)
	}
	return out
}

// integratePose applies steps 1-2: linear position update and half-angle
// quaternion orientation update.
func (pi *PoseIntegrator) integratePose(body *Body, dt float64) {
	body.Position = body.Position.Add(body.LinearVelocity.Mul(dt))

	w := body.AngularVelocity
	mag := w.Len()
	if mag > angularEpsilon {
		halfAngle := mag * dt / 2
		axis := w.Mul(math.Sin(halfAngle) / mag)
		delta := mgl64.Quat{W: math.Cos(halfAngle), V: axis}
		body.Orientation = body.Orientation.Mul(delta).Normalize()
	}
}

func (pi *PoseIntegrator) refreshSleepCandidacy(body *Body) {
	body.Activity.update(body.ActivityMetric())
}

func (pi *PoseIntegrator) emitPredictedBounds(body *Body, dt float64, out []PredictedBounds) []PredictedBounds {
	if !body.Collidable.Present {
		return out
	}
	margin := body.Collidable.SpeculativeMargin
	base := Bounds{
		Min: body.Position.Sub(mgl64.Vec3{margin, margin, margin}),
		Max: body.Position.Add(mgl64.Vec3{margin, margin, margin}),
	}

	displacement := body.LinearVelocity.Mul(dt * pi.ContinuityVelocityScale)
	predicted := base.Expand(base.Min.Add(displacement)).Expand(base.Max.Add(displacement))

	return append(out, PredictedBounds{Handle: body.Handle, Bounds: predicted})
}
