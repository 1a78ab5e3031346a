package rigid3d

// Activator wakes inactive body sets back into the active set, spec.md
// §4.8's Activate procedure. The full spec describes a capacity-reserving
// pre-pass followed by two parallel phases over per-worker job lists; this
// implementation has no pre-pass and no dispatcher. It handles one set at
// a time on the calling goroutine: pair cache, then solver constraints,
// then for each body its activity reset, broadphase leaf migration and
// move into the active set (see Wake).
type Activator struct {
	Broadphase *BroadPhase
	PairCache  *PairCache
	Statics    *StaticStore
	Solver     *Solver
}

// NewActivator returns an activator wired to the given broadphase, pair
// cache, solver, and static store (see Sleeper's statics parameter for why
// this can be nil in tests that never populate the static tree).
func NewActivator(broadphase *BroadPhase, pairCache *PairCache, solver *Solver, statics *StaticStore) *Activator {
	return &Activator{Broadphase: broadphase, PairCache: pairCache, Solver: solver, Statics: statics}
}

// Wake merges every body in the given inactive sets back into the active
// set (set 0), resetting their activity counters. Unique-set accumulation
// (spec.md step 1) is the caller's responsibility via a deduplicated
// setIDs slice.
//
// spec.md's Phase 1 (pair cache + referenced-handles + body copy) is
// described as parallel over preallocated ranges, and only Phase 2's
// broadphase migration is explicitly sequential ("tree removals
// renumber"). This implementation skips the capacity-reservation pre-pass
// that makes that parallelism safe — BodyStore.MoveBody and the bounds
// trees are single-writer structures here — and runs every stage on the
// calling goroutine. A dispatcher argument is deliberately not exposed;
// wiring real parallel wake requires the preallocated body-region copy
// spec.md describes, which is future work once BodyStore grows a
// capacity-reserving bulk insert.
func (act *Activator) Wake(store *BodyStore, setIDs []int32) {
	for _, set := range setIDs {
		act.PairCache.MigrateIn(set)
		act.Solver.Wake(store, set)

		bodies := store.Set(set)
		handles := make([]Handle, len(bodies))
		for i, b := range bodies {
			handles[i] = b.Handle
		}
		for _, h := range handles {
			body := store.Body(h)
			body.Activity.Reset()
			act.migrateLeaf(store, body)
			store.MoveBody(h, 0)
		}
	}
}

// migrateLeaf moves body's static leaf (if any) into the active tree,
// patching whichever leaf the removal relocated, spec.md §4.8 Phase 2's
// broadphase migration.
func (act *Activator) migrateLeaf(store *BodyStore, body *Body) {
	if !body.Collidable.Present || LeafIndex(body.Collidable.BroadphaseLeaf) == NoLeaf {
		return
	}
	leaf := LeafIndex(body.Collidable.BroadphaseLeaf)
	bounds := act.Broadphase.Static.Bounds(leaf)
	userData := act.Broadphase.Static.UserData(leaf)

	if _, movedData, moved := act.Broadphase.Static.Remove(leaf); moved {
		patchMovedLeaf(store, act.Statics, leaf, movedData)
	}
	newLeaf := act.Broadphase.Active.Add(bounds, userData)
	body.Collidable.BroadphaseLeaf = int32(newLeaf)
}
