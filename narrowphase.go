package rigid3d

import "github.com/go-gl/mathgl/mgl64"

// ShapeType is an opaque tag identifying a registered shape kind. Concrete
// shapes and their storage are out of scope (spec.md §1); the narrow phase
// only needs shape type as a dispatch key.
type ShapeType int32

type shapeTypePair struct {
	A, B ShapeType
}

// ManifoldContact is one contact within a Manifold: an offset on
// collidable A, a penetration depth (negative for a speculative contact
// kept ahead of actual touching, spec.md's glossary), and a feature id
// stable across frames for warm-start matching. Normal is only meaningful
// on a non-convex manifold, where each contact carries its own normal
// instead of sharing the manifold-level one.
type ManifoldContact struct {
	OffsetOnA mgl64.Vec3
	Normal    mgl64.Vec3
	Depth     float64
	FeatureID uint32
}

// Manifold is a tester's output: either a convex manifold (shared normal,
// up to 4 contacts) or a non-convex one (up to 8 contacts, each with its
// own normal), per spec.md §4.5.
type Manifold struct {
	Convex   bool
	Normal   mgl64.Vec3 // shared normal; valid when Convex
	Contacts []ManifoldContact
}

// PairCollidable is the pose + collidable reference a tester needs for one
// side of a candidate pair.
type PairCollidable struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Collidable  Collidable
}

// PairTester produces a manifold for a specific (shape_type_a,
// shape_type_b) combination, or ok=false if the pair does not currently
// touch. Concrete testers (sphere/capsule/box/...) are out of scope; the
// core only consumes this contract, grounded on the teacher's
// SupportPointFunc-style per-shape-pair dispatch in collision.go
// generalized from a fixed enum switch into an open registry.
type PairTester func(worker int, a, b PairCollidable) (Manifold, bool)

// CollidableRef identifies one side of a candidate pair by handle, tagged
// with whether that handle is a static or a body.
type CollidableRef struct {
	Handle Handle
	Static bool
}

// CollidablePair is an ordered pair of collidable references, the key the
// pair cache maps from (spec.md §4.6).
type CollidablePair struct {
	A, B CollidableRef
}

// PairMaterial carries per-pair solver parameters back from
// ConfigureContactManifold: friction, recovery velocity clamp, and the
// implicit-spring parameters, per spec.md §6. ContactConstraint reads only
// the friction and recovery clamp; the spring parameters are carried but
// not used by the contact solver.
type PairMaterial struct {
	FrictionCoefficient   float64
	MaxRecoveryVelocity   float64
	SpringNaturalFrequency float64
	SpringDampingRatio     float64
}

// NarrowPhaseCallbacks are the two user hooks spec.md §6 defines.
// AllowContactGeneration filters a candidate pair before any tester runs;
// ConfigureContactManifold inspects (and may veto) the manifold a tester
// produced and supplies the pair's material. Neither returning false is an
// error — both are filtering mechanisms (spec.md §7).
type NarrowPhaseCallbacks struct {
	AllowContactGeneration   func(worker int, a, b Collidable) bool
	ConfigureContactManifold func(worker int, pair CollidablePair, manifold *Manifold) (bool, PairMaterial)
}

// NarrowPhase dispatches broadphase candidate pairs to registered testers
// keyed by shape type pair, grounded on the teacher's narrow-phase dispatch
// (collision.go's switch over shape-class combinations), generalized into
// an open registration table so concrete testers can live outside this
// module entirely.
type NarrowPhase struct {
	testers   map[shapeTypePair]PairTester
	Callbacks NarrowPhaseCallbacks
}

// NewNarrowPhase returns an empty dispatch registry with the given
// callbacks.
func NewNarrowPhase(callbacks NarrowPhaseCallbacks) *NarrowPhase {
	return &NarrowPhase{testers: make(map[shapeTypePair]PairTester), Callbacks: callbacks}
}

// Register installs tester for the (a, b) shape type combination. Testers
// are looked up in both orientations: Register(Sphere, Box, f) also
// answers dispatch(Box, Sphere).
func (np *NarrowPhase) Register(a, b ShapeType, tester PairTester) {
	np.testers[shapeTypePair{a, b}] = tester
	if a != b {
		np.testers[shapeTypePair{b, a}] = func(worker int, x, y PairCollidable) (Manifold, bool) {
			return tester(worker, y, x)
		}
	}
}

// Dispatch runs the registered tester for pair, applying both narrow-phase
// callbacks around it. ok is false if the two collidables' filters reject
// each other, if no tester is registered for the pair's shape types, if
// AllowContactGeneration rejects the pair, if the
// tester reports no contact, or if ConfigureContactManifold vetoes the
// result.
func (np *NarrowPhase) Dispatch(worker int, pair CollidablePair, a, b PairCollidable) (Manifold, PairMaterial, bool) {
	if a.Collidable.Filter.Reject(b.Collidable.Filter) {
		return Manifold{}, PairMaterial{}, false
	}
	if np.Callbacks.AllowContactGeneration != nil && !np.Callbacks.AllowContactGeneration(worker, a.Collidable, b.Collidable) {
		return Manifold{}, PairMaterial{}, false
	}

	tester, ok := np.testers[shapeTypePair{a.Collidable.ShapeType, b.Collidable.ShapeType}]
	if !ok {
		return Manifold{}, PairMaterial{}, false
	}

	manifold, touching := tester(worker, a, b)
	if !touching {
		return Manifold{}, PairMaterial{}, false
	}

	if len(manifold.Contacts) > 4 && !manifold.Convex {
		manifold.Contacts = ReduceManifold(manifold.Contacts)
	}

	material := PairMaterial{FrictionCoefficient: 1, MaxRecoveryVelocity: 3}
	if np.Callbacks.ConfigureContactManifold != nil {
		allow, m := np.Callbacks.ConfigureContactManifold(worker, pair, &manifold)
		if !allow {
			return Manifold{}, PairMaterial{}, false
		}
		material = m
	}

	return manifold, material, true
}
