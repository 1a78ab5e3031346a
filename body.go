package rigid3d

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyKind distinguishes dynamic bodies (affected by impulses) from
// kinematic ones (drive the simulation but never receive impulses),
// generalized from the teacher's three-way Dynamic/Kinematic/Static
// BodyType. Static bodies carry no velocity or inertia at all, so they
// live in StaticStore instead of sharing this type.
type BodyKind uint8

const (
	KindDynamic BodyKind = iota
	KindKinematic
)

// ContinuityMode selects how a collidable's motion is swept for contact
// generation.
type ContinuityMode uint8

const (
	Discrete ContinuityMode = iota
	Continuous
)

// CollisionFilter gates narrow-phase dispatch before any tester runs,
// grounded on the teacher's ShapeFilter (group + category/mask bitmasks
// checked in Space.collide and PointQueryNearest). Unlike the teacher, the
// zero value here means "collides with everything": an embedder that never
// touches this field gets the pre-teacher behavior of unconditional
// dispatch, rather than inheriting the teacher's opt-in AllCategories
// convention that would silently reject every pair until configured.
type CollisionFilter struct {
	// Group suppresses collision between any two collidables sharing the
	// same nonzero group, regardless of category/mask (e.g. a ragdoll's
	// own limbs).
	Group      int32
	Categories uint32
	Mask       uint32
}

// Reject reports whether f and other should never generate a contact.
func (f CollisionFilter) Reject(other CollisionFilter) bool {
	if f.Group != 0 && f.Group == other.Group {
		return true
	}
	return !categoryMatches(f.Categories, other.Mask) || !categoryMatches(other.Categories, f.Mask)
}

// categoryMatches treats a zero mask as "accept any category", so a
// collidable that never sets Mask/Categories keeps colliding with
// everything else that also never set them.
func categoryMatches(categories, mask uint32) bool {
	if mask == 0 {
		return true
	}
	return categories&mask != 0
}

// Collidable is a body or static's reference into the (out of scope) shape
// storage and its broadphase leaf, per spec.md §3's collidable-reference
// field. Present is false for a body with no shape (a point mass that never
// takes part in narrow phase).
type Collidable struct {
	ShapeHandle       uint64
	ShapeType         ShapeType
	SpeculativeMargin float64
	Continuity        ContinuityMode
	Filter            CollisionFilter
	BroadphaseLeaf    int32
	Present           bool
}

// Activity tracks the sleep-candidacy accounting the pose integrator
// updates every step (spec.md §4.4 step 5) and the sleeper reads.
type Activity struct {
	SleepThreshold   float64
	MinimumTimesteps int32

	stepsUnderThreshold int32
	Candidate           bool
}

// update folds one step's linear+angular speed-squared sample into the
// idle counter, following the reset-on-motion / accumulate-then-latch
// pattern the teacher's Body.sleepingIdleTime bookkeeping uses.
func (a *Activity) update(activityMetric float64) {
	if activityMetric > a.SleepThreshold {
		a.stepsUnderThreshold = 0
		a.Candidate = false
		return
	}
	a.stepsUnderThreshold++
	if a.stepsUnderThreshold >= a.MinimumTimesteps {
		a.Candidate = true
	}
}

// Reset clears idle accounting, mirroring Body.Activate resetting
// sleepingIdleTime to zero on any user-driven wake.
func (a *Activity) Reset() {
	a.stepsUnderThreshold = 0
	a.Candidate = false
}

// IdleSteps returns the number of consecutive steps this body has spent
// under its sleep threshold, mirroring the teacher's Body.IdleTime() for
// embedder-side debug HUDs. Not otherwise consulted by the sleeper, which
// reads Candidate instead.
func (a *Activity) IdleSteps() int32 {
	return a.stepsUnderThreshold
}

// BodyDescription is the argument to BodyStore.Add: everything needed to
// place a new body into the active set, per spec.md §6's add_body contract.
type BodyDescription struct {
	Kind                           BodyKind
	Position                       mgl64.Vec3
	Orientation                    mgl64.Quat
	LinearVelocity                 mgl64.Vec3
	AngularVelocity                mgl64.Vec3
	InverseMass                    float64
	LocalInverseInertia            mgl64.Mat3
	Collidable                     Collidable
	SleepThreshold                 float64
	MinimumTimestepsUnderThreshold int32
}

// Body is one simulated mass. Fields are exported because BodyStore hands
// out direct pointers into its set slices for the solver's hot gather path;
// callers must go through a handle to find that pointer in the first place.
type Body struct {
	Handle Handle
	Kind   BodyKind

	Position    mgl64.Vec3
	Orientation mgl64.Quat

	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3

	InverseMass         float64
	LocalInverseInertia mgl64.Mat3
	WorldInverseInertia mgl64.Mat3

	Collidable Collidable
	Activity   Activity
}

func (b *Body) String() string {
	return fmt.Sprintf("Body(handle=%d, pos=%v)", b.Handle, b.Position)
}

// IsKinematic reports whether b was added with Kind KindKinematic.
// BodyStore.Add zeroes such a body's inverse mass and tensor, the
// condition spec.md §4.2 uses to define a kinematic body.
func (b *Body) IsKinematic() bool {
	return b.Kind == KindKinematic
}

// RefreshWorldInertia rotates the body-local inverse inertia tensor into
// world space, spec.md §4.4 step 3: I⁻¹_world = R · I⁻¹_local · Rᵀ.
func (b *Body) RefreshWorldInertia() {
	if b.IsKinematic() {
		b.WorldInverseInertia = mgl64.Mat3{}
		return
	}
	r := b.Orientation.Mat4().Mat3()
	b.WorldInverseInertia = r.Mul3(b.LocalInverseInertia).Mul3(r.Transpose())
}

// VelocityAtPoint returns the world velocity of the material point of b
// currently located at the given world position, generalizing the
// teacher's VelocityAtWorldPoint from a 2D perp-product to a 3D cross
// product.
func (b *Body) VelocityAtPoint(point mgl64.Vec3) mgl64.Vec3 {
	r := point.Sub(b.Position)
	return b.LinearVelocity.Add(b.AngularVelocity.Cross(r))
}

// ApplyImpulseAtPoint applies impulse at a world point, immediately
// updating linear and angular velocity. Kinematic bodies are unaffected,
// per the Body Store contract in spec.md §4.2.
func (b *Body) ApplyImpulseAtPoint(impulse, point mgl64.Vec3) {
	if b.IsKinematic() {
		return
	}
	b.LinearVelocity = b.LinearVelocity.Add(impulse.Mul(b.InverseMass))
	r := point.Sub(b.Position)
	b.AngularVelocity = b.AngularVelocity.Add(b.WorldInverseInertia.Mul3x1(r.Cross(impulse)))
}

// ActivityMetric returns h = ‖v_linear‖² + ‖v_angular‖², the quantity
// spec.md §4.4 step 5 compares against the sleep threshold.
func (b *Body) ActivityMetric() float64 {
	return b.LinearVelocity.Dot(b.LinearVelocity) + b.AngularVelocity.Dot(b.AngularVelocity)
}

func normalizedOrIdentity(q mgl64.Quat) mgl64.Quat {
	if q.W == 0 && q.V == (mgl64.Vec3{}) {
		return mgl64.QuatIdent()
	}
	return q.Normalize()
}

// Static is a fixed collidable with pose but no velocity or inertia,
// spec.md §3's Static entity.
type Static struct {
	Handle      Handle
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Collidable  Collidable
}

// BodyStore holds every dynamic and kinematic body, partitioned into the
// active set (index 0) and inactive sleeping-island sets (1..N), addressed
// by handle so the sleeper and activator can relocate bodies between sets
// without invalidating anything the caller holds. Grounded on the
// teacher's Space.DynamicBodies slice plus its sleepingRoot/sleepingNext
// linked-list island bookkeeping, restructured around explicit sets
// because spec.md §3 requires bodies to live at exactly one (set, index)
// rather than in one flat slice with an intrusive sleep list.
type BodyStore struct {
	handles *HandlePool[location]
	sets    [][]Body
}

// NewBodyStore returns a store with only the active set allocated.
func NewBodyStore() *BodyStore {
	return &BodyStore{
		handles: NewHandlePool[location](),
		sets:    [][]Body{nil},
	}
}

// Add places a new body into the active set and returns its handle.
func (s *BodyStore) Add(desc BodyDescription) Handle {
	body := Body{
		Kind:                desc.Kind,
		Position:            desc.Position,
		Orientation:         normalizedOrIdentity(desc.Orientation),
		LinearVelocity:      desc.LinearVelocity,
		AngularVelocity:     desc.AngularVelocity,
		InverseMass:         desc.InverseMass,
		LocalInverseInertia: desc.LocalInverseInertia,
		Collidable:          desc.Collidable,
		Activity: Activity{
			SleepThreshold:   desc.SleepThreshold,
			MinimumTimesteps: desc.MinimumTimestepsUnderThreshold,
		},
	}
	if body.IsKinematic() {
		body.InverseMass = 0
		body.LocalInverseInertia = mgl64.Mat3{}
	}
	body.RefreshWorldInertia()

	index := int32(len(s.sets[0]))
	handle := s.handles.Allocate(location{set: 0, index: index})
	body.Handle = handle
	s.sets[0] = append(s.sets[0], body)
	return handle
}

// Remove deletes h by swap-removing it from its set and fixing up the
// handle of whichever body took its slot.
func (s *BodyStore) Remove(h Handle) {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic(fmt.Sprintf("rigid3d: remove of unallocated body handle %d", h))
	}
	set := s.sets[loc.set]
	last := int32(len(set) - 1)
	if loc.index != last {
		set[loc.index] = set[last]
		s.handles.SetLocation(set[loc.index].Handle, loc)
	}
	s.sets[loc.set] = set[:last]
	s.handles.Free(h)
}

// Body resolves h to a live pointer into its owning set. Panics on an
// unallocated handle, the fatal "handle to removed body" condition from
// spec.md §7.
func (s *BodyStore) Body(h Handle) *Body {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic(fmt.Sprintf("rigid3d: unknown or freed body handle %d", h))
	}
	return &s.sets[loc.set][loc.index]
}

// Location exposes a handle's current (set, index) for callers that need
// to reconcile pair-cache or constraint-graph bookkeeping against a move.
func (s *BodyStore) Location(h Handle) (set, index int32, ok bool) {
	loc, ok := s.handles.Location(h)
	return loc.set, loc.index, ok
}

// Active returns the active set (set 0), the only set the solver and
// broadphase touch on a normal step.
func (s *BodyStore) Active() []Body {
	return s.sets[0]
}

// Set returns the bodies currently in the given set index.
func (s *BodyStore) Set(set int32) []Body {
	return s.sets[set]
}

// SetCount returns the number of sets, including the always-present active
// set 0.
func (s *BodyStore) SetCount() int32 {
	return int32(len(s.sets))
}

// AllocateSet appends a new empty inactive set and returns its index, used
// by the sleeper when an island has no existing inactive set to reuse.
func (s *BodyStore) AllocateSet() int32 {
	s.sets = append(s.sets, nil)
	return int32(len(s.sets) - 1)
}

// MoveBody relocates h from its current set into toSet, appending it there
// and swap-removing it from its old set. Used by the sleeper (active ->
// inactive) and the activator (inactive -> active).
func (s *BodyStore) MoveBody(h Handle, toSet int32) {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic(fmt.Sprintf("rigid3d: move of unallocated body handle %d", h))
	}
	body := s.sets[loc.set][loc.index]

	last := int32(len(s.sets[loc.set]) - 1)
	if loc.index != last {
		s.sets[loc.set][loc.index] = s.sets[loc.set][last]
		s.handles.SetLocation(s.sets[loc.set][loc.index].Handle, loc)
	}
	s.sets[loc.set] = s.sets[loc.set][:last]

	newIndex := int32(len(s.sets[toSet]))
	s.sets[toSet] = append(s.sets[toSet], body)
	s.handles.SetLocation(h, location{set: toSet, index: newIndex})
}

// StaticStore holds fixed collidables: pose plus a shape reference, no
// velocity or inertia, per spec.md §3's Static entity. It is a flat handle
// pool rather than a set-partitioned store because statics never sleep or
// wake.
type StaticStore struct {
	handles *HandlePool[location]
	statics []Static
}

func NewStaticStore() *StaticStore {
	return &StaticStore{handles: NewHandlePool[location]()}
}

// Add places a new static and returns its handle.
func (s *StaticStore) Add(position mgl64.Vec3, orientation mgl64.Quat, collidable Collidable) Handle {
	st := Static{
		Position:    position,
		Orientation: normalizedOrIdentity(orientation),
		Collidable:  collidable,
	}
	index := int32(len(s.statics))
	handle := s.handles.Allocate(location{set: 0, index: index})
	st.Handle = handle
	s.statics = append(s.statics, st)
	return handle
}

// Remove deletes h by swap-removal, fixing the moved static's handle.
func (s *StaticStore) Remove(h Handle) {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic(fmt.Sprintf("rigid3d: remove of unallocated static handle %d", h))
	}
	last := int32(len(s.statics) - 1)
	if loc.index != last {
		s.statics[loc.index] = s.statics[last]
		s.handles.SetLocation(s.statics[loc.index].Handle, loc)
	}
	s.statics = s.statics[:last]
	s.handles.Free(h)
}

// Get resolves h to a live pointer into the static list.
func (s *StaticStore) Get(h Handle) *Static {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic(fmt.Sprintf("rigid3d: unknown or freed static handle %d", h))
	}
	return &s.statics[loc.index]
}

// All returns every static currently stored.
func (s *StaticStore) All() []Static {
	return s.statics
}
