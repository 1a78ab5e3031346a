package rigid3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SimulationDescription bundles the construction-time parameters spec.md
// §6's Simulation::create names: the pool, the two narrow/pose callback
// sets, and the ambient per-step constants the teacher's Space exposes as
// public fields (Gravity, Damping, CollisionSlop, CollisionBias,
// Iterations).
type SimulationDescription struct {
	Pool                    *Pool
	NarrowPhaseCallbacks    NarrowPhaseCallbacks
	PoseIntegratorCallbacks PoseIntegratorCallbacks
	Gravity                 mgl64.Vec3
	Damping                 float64
	CollisionSlop           float64
	CollisionBiasPerSecond  float64
	Iterations              int
	Dispatcher              *ThreadDispatcher
}

// Simulation ties every subsystem together and drives one step in the
// order spec.md §5 requires: pose integrate, broadphase refit, overlap
// enumeration, narrow phase, constraint graph update, solver prestep,
// warm start, iterations. Grounded on the teacher's Space, which owns the
// same subsystems (two BBTrees, a cached-arbiter set, a constraint slice)
// behind one Step method; this type keeps that "one object owns the
// pipeline" shape but delegates each stage to its own file instead of
// Space's single 1200-line method.
type Simulation struct {
	Bodies      *BodyStore
	Statics     *StaticStore
	Broadphase  *BroadPhase
	NarrowPhase *NarrowPhase
	PairCache   *PairCache
	Solver      *Solver
	Integrator  *PoseIntegrator
	Sleeper     *Sleeper
	Activator   *Activator
	Pool        *Pool
	Dispatcher  *ThreadDispatcher

	Gravity                mgl64.Vec3
	Damping                float64
	CollisionSlop          float64
	CollisionBiasPerSecond float64

	// staticAnchor maps a static's handle to the immovable kinematic body
	// that stands in for it in contact math, so ContactConstraint never
	// needs a BodyStore-handle-or-nil special case. The static tree and
	// StaticStore remain the authoritative pose/collidable record spec.md
	// §3 describes; the anchor body exists purely so contacts resolve
	// through the same BodyStore gather/scatter path every other
	// constraint uses.
	staticAnchor map[Handle]Handle

	predicted []PredictedBounds
	live      map[CollidablePair]bool
}

// NewSimulation wires every subsystem from desc, defaulting Iterations to
// the solver's own default (8) when desc.Iterations is zero and
// Dispatcher to a deterministic single-worker dispatcher when nil,
// matching the teacher's NewSpace defaulting its public fields to sane
// values rather than requiring the caller to fill in every one.
func NewSimulation(desc SimulationDescription) *Simulation {
	pool := desc.Pool
	if pool == nil {
		pool = NewPool()
	}
	dispatcher := desc.Dispatcher
	if dispatcher == nil {
		dispatcher = NewThreadDispatcher(1)
		dispatcher.Deterministic = true
	}
	damping := desc.Damping
	if damping == 0 {
		damping = 1
	}
	biasPerSecond := desc.CollisionBiasPerSecond
	if biasPerSecond == 0 {
		biasPerSecond = math.Pow(0.9, 60)
	}

	broadphase := NewBroadPhase()
	pairCache := NewPairCache()
	statics := NewStaticStore()
	solver := NewSolver()
	if desc.Iterations > 0 {
		solver.Iterations = desc.Iterations
	}

	return &Simulation{
		Bodies:                 NewBodyStore(),
		Statics:                statics,
		Broadphase:             broadphase,
		NarrowPhase:            NewNarrowPhase(desc.NarrowPhaseCallbacks),
		PairCache:              pairCache,
		Solver:                 solver,
		Integrator:             NewPoseIntegrator(desc.PoseIntegratorCallbacks),
		Sleeper:                NewSleeper(broadphase, pairCache, solver, statics),
		Activator:              NewActivator(broadphase, pairCache, solver, statics),
		Pool:                   pool,
		Dispatcher:             dispatcher,
		Gravity:                desc.Gravity,
		Damping:                damping,
		CollisionSlop:          desc.CollisionSlop,
		CollisionBiasPerSecond: biasPerSecond,
		staticAnchor:           make(map[Handle]Handle),
		live:                   make(map[CollidablePair]bool),
	}
}

// AddBody places a new body into the active set and, if it carries a
// collidable, inserts a leaf for it into the active broadphase tree.
func (sim *Simulation) AddBody(desc BodyDescription) Handle {
	h := sim.Bodies.Add(desc)
	if desc.Collidable.Present {
		body := sim.Bodies.Body(h)
		bounds := BoundsForSphere(body.Position, body.Collidable.SpeculativeMargin)
		leaf := sim.Broadphase.Active.Add(bounds, CollidableRef{Handle: h, Static: false})
		body.Collidable.BroadphaseLeaf = int32(leaf)
	}
	return h
}

// AddStatic places a new static and, if it carries a collidable, inserts a
// leaf for it into the static broadphase tree. An immovable kinematic
// anchor body is allocated alongside it so contact constraints touching
// this static can gather/scatter through BodyStore exactly like any other
// constraint side.
func (sim *Simulation) AddStatic(position mgl64.Vec3, orientation mgl64.Quat, collidable Collidable) Handle {
	h := sim.Statics.Add(position, orientation, collidable)
	anchor := sim.Bodies.Add(BodyDescription{
		Kind:        KindKinematic,
		Position:    position,
		Orientation: orientation,
	})
	sim.staticAnchor[h] = anchor

	if collidable.Present {
		st := sim.Statics.Get(h)
		bounds := BoundsForSphere(st.Position, st.Collidable.SpeculativeMargin)
		leaf := sim.Broadphase.Static.Add(bounds, CollidableRef{Handle: h, Static: true})
		st.Collidable.BroadphaseLeaf = int32(leaf)
	}
	return h
}

// RemoveBody removes a body's broadphase leaf (whichever tree it
// currently lives in, active or — if asleep — static) and then the body
// itself, per spec.md §6's remove_body contract. Removing a body the
// solver still references through a live constraint is a caller error the
// same way an unknown handle is (spec.md §7); this does not cascade into
// constraint or pair-cache cleanup on its own.
func (sim *Simulation) RemoveBody(h Handle) {
	body := sim.Bodies.Body(h)
	if body.Collidable.Present && LeafIndex(body.Collidable.BroadphaseLeaf) != NoLeaf {
		leaf := LeafIndex(body.Collidable.BroadphaseLeaf)
		set, _, _ := sim.Bodies.Location(h)
		tree := sim.Broadphase.Active
		if set != 0 {
			tree = sim.Broadphase.Static
		}
		if _, movedData, moved := tree.Remove(leaf); moved {
			patchMovedLeaf(sim.Bodies, sim.Statics, leaf, movedData)
		}
	}
	sim.Bodies.Remove(h)
}

// RemoveStatic removes a static's broadphase leaf, its anchor body, and
// the static itself.
func (sim *Simulation) RemoveStatic(h Handle) {
	st := sim.Statics.Get(h)
	if st.Collidable.Present && LeafIndex(st.Collidable.BroadphaseLeaf) != NoLeaf {
		leaf := LeafIndex(st.Collidable.BroadphaseLeaf)
		if _, movedData, moved := sim.Broadphase.Static.Remove(leaf); moved {
			patchMovedLeaf(sim.Bodies, sim.Statics, leaf, movedData)
		}
	}
	if anchor, ok := sim.staticAnchor[h]; ok {
		sim.Bodies.Remove(anchor)
		delete(sim.staticAnchor, h)
	}
	sim.Statics.Remove(h)
}

// AddBallSocket registers a persistent ball-socket constraint between a
// and b, spec.md §6's solver.add. Unlike contact constraints, this handle
// survives until the caller removes it; the per-step pipeline never
// rebuilds or discards it.
func (sim *Simulation) AddBallSocket(a, b Handle, localAnchorA, localAnchorB mgl64.Vec3) Handle {
	sim.wakeIfInactive(a)
	sim.wakeIfInactive(b)
	c := NewBallSocketConstraint(a, b, localAnchorA, localAnchorB)
	return sim.Solver.AddBallSocket(sim.Bodies, [2]Handle{a, b}, c)
}

// wakeIfInactive wakes h's set if it is not already active, spec.md §6's
// "newly added constraints that reference any body in an inactive set
// trigger a wake of those sets before integration into the active solver
// sets".
func (sim *Simulation) wakeIfInactive(h Handle) {
	set, _, ok := sim.Bodies.Location(h)
	if ok && set != 0 {
		sim.Wake([]int32{set})
	}
}

// RemoveConstraint removes any constraint (contact or persistent) by
// handle.
func (sim *Simulation) RemoveConstraint(h Handle) {
	sim.Solver.Remove(h)
}

func refLess(a, b CollidableRef) bool {
	if a.Static != b.Static {
		return !a.Static
	}
	return a.Handle < b.Handle
}

// canonicalPair orders a and b into a stable order regardless of which
// side the broadphase happened to enumerate first, so both the pair
// cache's map key and the manifold's A/B (and therefore its normal
// direction) stay consistent for the same physical pair across frames,
// even as the dynamic trees reorder their internal leaf indices.
func canonicalPair(a, b CollidableRef) (CollidableRef, CollidableRef) {
	if refLess(a, b) {
		return a, b
	}
	return b, a
}

func (sim *Simulation) pairCollidable(ref CollidableRef) PairCollidable {
	if ref.Static {
		st := sim.Statics.Get(ref.Handle)
		return PairCollidable{Position: st.Position, Orientation: st.Orientation, Collidable: st.Collidable}
	}
	body := sim.Bodies.Body(ref.Handle)
	return PairCollidable{Position: body.Position, Orientation: body.Orientation, Collidable: body.Collidable}
}

// resolveBody returns the BodyStore handle that stands in for ref: the
// body itself, or a static's immovable anchor.
func (sim *Simulation) resolveBody(ref CollidableRef) Handle {
	if ref.Static {
		return sim.staticAnchor[ref.Handle]
	}
	return ref.Handle
}

func (sim *Simulation) leafRef(leaf LeafIndex, static bool) CollidableRef {
	if static {
		return sim.Broadphase.Static.UserData(leaf).(CollidableRef)
	}
	return sim.Broadphase.Active.UserData(leaf).(CollidableRef)
}

// Step advances the simulation by dt, running the full pipeline in
// spec.md §5's required order.
func (sim *Simulation) Step(dt float64) {
	if dt == 0 {
		return
	}

	// 1. Pose integrate: advance position/orientation, refresh world
	// inertia, apply the velocity callback (gravity, damping), and emit
	// predicted bounds for every collidable active body.
	sim.predicted = sim.predicted[:0]
	sim.predicted = sim.Integrator.Integrate(sim.Bodies, dt, 0, sim.predicted)
	if sim.Integrator.Callbacks.IntegrateVelocity == nil {
		sim.applyGravityAndDamping(dt)
	}

	// 2. Broadphase refit: push every predicted bounds into the active
	// tree.
	for _, pb := range sim.predicted {
		body := sim.Bodies.Body(pb.Handle)
		if LeafIndex(body.Collidable.BroadphaseLeaf) == NoLeaf {
			continue
		}
		sim.Broadphase.Active.Update(LeafIndex(body.Collidable.BroadphaseLeaf), pb.Bounds)
	}

	// 3. Overlap enumeration + 4. narrow phase + constraint graph update.
	for k := range sim.live {
		delete(sim.live, k)
	}
	sim.Solver.ResetContacts(sim.Bodies)

	worker := 0
	sim.Broadphase.EnumerateOverlaps(func(pair CandidatePair) {
		refA, refB := canonicalPair(sim.leafRef(pair.A, false), sim.leafRef(pair.B, pair.BStatic))
		key := CollidablePair{A: refA, B: refB}

		pcA := sim.pairCollidable(refA)
		pcB := sim.pairCollidable(refB)

		manifold, material, ok := sim.NarrowPhase.Dispatch(worker, key, pcA, pcB)
		if !ok {
			return
		}

		previous, _ := sim.PairCache.Lookup(key)
		bodyA, bodyB := sim.resolveBody(refA), sim.resolveBody(refB)

		constraint := NewContactConstraint(bodyA, bodyB, manifold, material, previous)
		sim.PairCache.Enqueue(key, constraint)
		sim.live[key] = true
		sim.Solver.AddContact(sim.Bodies, [2]Handle{bodyA, bodyB}, constraint)
	})
	sim.PairCache.Flush()
	sim.PairCache.Prune(sim.live)

	// 5. Solver prestep, warm start, and iterate.
	biasRate := 1 - math.Pow(sim.CollisionBiasPerSecond, dt)
	sim.Solver.Step(sim.Bodies, dt, sim.CollisionSlop, biasRate, sim.Dispatcher)

	// Sleep bookkeeping runs after the solver has settled this step's
	// velocities, using the sleep candidacy the pose integrator refreshed
	// in step 1 (spec.md §4.4 step 5, §4.8's Sleep paragraph).
	for _, island := range sim.Sleeper.Islands(sim.Bodies, sim.Solver) {
		if len(island) > 0 && sim.Sleeper.ReadyToSleep(sim.Bodies, island) {
			sim.Sleeper.Sleep(sim.Bodies, island)
		}
	}
}

// applyGravityAndDamping is the default velocity integration the teacher's
// Space.Step applies when no user callback overrides it: gravity added,
// then exponential damping, per spec.md §4.4's velocity-callback default.
func (sim *Simulation) applyGravityAndDamping(dt float64) {
	damping := math.Pow(sim.Damping, dt)
	for i := range sim.Bodies.sets[0] {
		body := &sim.Bodies.sets[0][i]
		if body.IsKinematic() {
			continue
		}
		body.LinearVelocity = body.LinearVelocity.Add(sim.Gravity.Mul(dt))
		body.LinearVelocity = body.LinearVelocity.Mul(damping)
		body.AngularVelocity = body.AngularVelocity.Mul(damping)
	}
}

// PointQueryResult identifies one collidable (a body or a static) whose
// broadphase leaf contains a queried point.
type PointQueryResult struct {
	Ref CollidableRef
}

// PointQuery returns every collidable, active or static, whose broadphase
// leaf bounds contain p. This is an AABB-level query, not an exact
// point-in-shape test, since concrete shapes are out of scope (spec.md §1);
// it generalizes the teacher's Space.PointQueryNearest into a visitor over
// every hit rather than a single nearest result, leaving ranking to the
// caller (who has the shape data this core doesn't).
func (sim *Simulation) PointQuery(p mgl64.Vec3) []PointQueryResult {
	var out []PointQueryResult
	sim.Broadphase.Active.QueryPoint(p, func(leaf LeafIndex) {
		out = append(out, PointQueryResult{Ref: sim.leafRef(leaf, false)})
	})
	sim.Broadphase.Static.QueryPoint(p, func(leaf LeafIndex) {
		out = append(out, PointQueryResult{Ref: sim.leafRef(leaf, true)})
	})
	return out
}

// RayCastResult identifies one collidable whose broadphase leaf the segment
// crossed, and the fraction along the segment where it entered that leaf's
// bounds.
type RayCastResult struct {
	Ref      CollidableRef
	Fraction float64
}

// RayCast returns every collidable whose broadphase leaf the segment from
// start to end crosses, generalizing the teacher's Space.SegmentQuery the
// same way PointQuery generalizes PointQueryNearest: AABB-precision hits,
// unordered, with fraction along the segment so the caller can sort.
func (sim *Simulation) RayCast(start, end mgl64.Vec3) []RayCastResult {
	var out []RayCastResult
	collect := func(static bool) func(LeafIndex) {
		tree := sim.Broadphase.Active
		if static {
			tree = sim.Broadphase.Static
		}
		return func(leaf LeafIndex) {
			fraction, _ := tree.Bounds(leaf).IntersectsSegment(start, end)
			out = append(out, RayCastResult{Ref: sim.leafRef(leaf, static), Fraction: fraction})
		}
	}
	sim.Broadphase.Active.QuerySegment(start, end, collect(false))
	sim.Broadphase.Static.QuerySegment(start, end, collect(true))
	return out
}

// Wake merges the given inactive sets back into the active set. spec.md
// §6 does not name a single verb for this (Activate is internal machinery
// per §4.8), but S4's sleep/wake round-trip scenario requires a caller
// able to force it, e.g. after mutating a sleeping island from outside a
// step.
func (sim *Simulation) Wake(setIDs []int32) {
	sim.Activator.Wake(sim.Bodies, setIDs)
}
