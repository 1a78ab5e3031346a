package rigid3d

// constraintKind tags which type batch a constraint handle resolves into.
type constraintKind int32

const (
	kindContact constraintKind = iota
	kindBallSocket
)

// constraintLocation is a constraint handle's (set, batch, kind,
// index-in-type-batch) — spec.md §4.7's "handle that encodes (set, batch,
// type-batch, index-in-type-batch)". set 0 is the active solver set,
// resolved against Solver.batches; a nonzero set is a sleeping island,
// resolved against Solver.inactiveSets, mirroring BodyStore's own set
// numbering.
type constraintLocation struct {
	set   int32
	batch int32
	kind  constraintKind
	index int32
}

// contactSlot pairs a contact constraint with the body handles it
// references, kept alongside the constraint so batch assignment and
// removal don't need to reach back into BodyStore.
type contactSlot struct {
	handle Handle
	bodies [2]Handle
	c      *ContactConstraint
}

type ballSocketSlot struct {
	handle Handle
	bodies [2]Handle
	c      *BallSocketConstraint
}

// Batch holds every constraint in one conflict-free group, keyed by kind
// into concrete (not interface-boxed) slices — the monomorphization
// spec.md §9 calls for: a type batch's solve loop iterates a slice of
// *ContactConstraint or *BallSocketConstraint directly, never through a
// polymorphic ConstraintKind vtable, so the compiler can inline the whole
// prestep/solve body per kind.
type Batch struct {
	referenced map[Handle]bool

	contacts    []contactSlot
	ballSockets []ballSocketSlot
}

func newBatch() *Batch {
	return &Batch{referenced: make(map[Handle]bool)}
}

// conflicts reports whether any of bodies is already referenced in this
// batch. A NilHandle (one-body constraint's unused slot) and kinematic
// bodies never conflict: a kinematic body can anchor arbitrarily many
// constraints across a frame without a write race, since it never
// receives impulses (spec.md §4.2).
func (b *Batch) conflicts(store *BodyStore, bodies [2]Handle) bool {
	for _, h := range bodies {
		if h == NilHandle {
			continue
		}
		if body := store.Body(h); body.IsKinematic() {
			continue
		}
		if b.referenced[h] {
			return true
		}
	}
	return false
}

func (b *Batch) reserve(store *BodyStore, bodies [2]Handle) {
	for _, h := range bodies {
		if h == NilHandle {
			continue
		}
		if body := store.Body(h); body.IsKinematic() {
			continue
		}
		b.referenced[h] = true
	}
}

// Solver holds the active set's batches and drives the prestep / warm
// start / iterate sequence, grounded on the teacher's Space.constraints
// flat slice plus its per-step Arbiter loop, restructured into spec.md
// §4.7's batch/type-batch layout so same-batch constraints are provably
// conflict-free and a future SIMD bundle pass could process them in
// lockstep.
type Solver struct {
	handles *HandlePool[constraintLocation]
	batches []*Batch

	// inactiveSets holds one flat batch list per sleeping island, keyed by
	// the same set id BodyStore uses. Conflict-free batching only matters
	// for parallel active solving, so a sleeping set's constraints all
	// live in a single batch — nothing ever iterates them until Wake
	// migrates them back.
	inactiveSets map[int32][]*Batch

	Iterations int
}

// NewSolver returns an empty solver running the default 8 iterations.
func NewSolver() *Solver {
	return &Solver{handles: NewHandlePool[constraintLocation](), Iterations: 8}
}

// batchesFor returns the batch list a constraint location's set resolves
// against.
func (s *Solver) batchesFor(set int32) []*Batch {
	if set == 0 {
		return s.batches
	}
	return s.inactiveSets[set]
}

func (s *Solver) findOrCreateBatch(store *BodyStore, bodies [2]Handle) int32 {
	for i, b := range s.batches {
		if !b.conflicts(store, bodies) {
			return int32(i)
		}
	}
	s.batches = append(s.batches, newBatch())
	return int32(len(s.batches) - 1)
}

// AddContact inserts c into the lowest-indexed conflict-free batch of the
// active set and returns its constraint handle.
func (s *Solver) AddContact(store *BodyStore, bodies [2]Handle, c *ContactConstraint) Handle {
	batchIdx := s.findOrCreateBatch(store, bodies)
	batch := s.batches[batchIdx]
	batch.reserve(store, bodies)

	index := int32(len(batch.contacts))
	handle := s.handles.Allocate(constraintLocation{set: 0, batch: batchIdx, kind: kindContact, index: index})
	batch.contacts = append(batch.contacts, contactSlot{handle: handle, bodies: bodies, c: c})
	return handle
}

// AddBallSocket inserts c into the lowest-indexed conflict-free batch of
// the active set and returns its constraint handle.
func (s *Solver) AddBallSocket(store *BodyStore, bodies [2]Handle, c *BallSocketConstraint) Handle {
	batchIdx := s.findOrCreateBatch(store, bodies)
	batch := s.batches[batchIdx]
	batch.reserve(store, bodies)

	index := int32(len(batch.ballSockets))
	handle := s.handles.Allocate(constraintLocation{set: 0, batch: batchIdx, kind: kindBallSocket, index: index})
	batch.ballSockets = append(batch.ballSockets, ballSocketSlot{handle: handle, bodies: bodies, c: c})
	return handle
}

// Remove deletes a constraint by handle, swap-removing it from its type
// batch and fixing up the handle of whichever constraint took its slot.
// The batch's referenced-handles set is left as-is: a stale reservation
// only prevents an otherwise-valid co-batching and is corrected the next
// time that batch is rebuilt from scratch (acceptable per spec.md §4.7,
// which only requires batches to remain conflict-free, not minimal).
func (s *Solver) Remove(h Handle) {
	loc, ok := s.handles.Location(h)
	if !ok {
		panic("rigid3d: remove of unallocated constraint handle")
	}
	batch := s.batchesFor(loc.set)[loc.batch]
	switch loc.kind {
	case kindContact:
		last := int32(len(batch.contacts) - 1)
		if loc.index != last {
			batch.contacts[loc.index] = batch.contacts[last]
			s.handles.SetLocation(batch.contacts[loc.index].handle, loc)
		}
		batch.contacts = batch.contacts[:last]
	case kindBallSocket:
		last := int32(len(batch.ballSockets) - 1)
		if loc.index != last {
			batch.ballSockets[loc.index] = batch.ballSockets[last]
			s.handles.SetLocation(batch.ballSockets[loc.index].handle, loc)
		}
		batch.ballSockets = batch.ballSockets[:last]
	}
	s.handles.Free(h)
}

// Sleep moves every constraint that touches a body in island out of the
// active batches and into a single fresh batch filed under target,
// spec.md §4.8's "migrate them into a fresh inactive set together with
// their constraints". A constraint with only one endpoint in island (the
// other a kinematic anchor, which never sleeps) still migrates in full:
// spec.md §4.6's active/inactive separation invariant forbids an edge
// between an active and an inactive body, and the kinematic side is
// addressed by handle either way, active or not.
func (s *Solver) Sleep(store *BodyStore, island []Handle, target int32) {
	inIsland := make(map[Handle]bool, len(island))
	for _, h := range island {
		inIsland[h] = true
	}

	dest := newBatch()
	for _, batch := range s.batches {
		kept := batch.contacts[:0]
		for _, slot := range batch.contacts {
			if inIsland[slot.bodies[0]] || inIsland[slot.bodies[1]] {
				index := int32(len(dest.contacts))
				dest.contacts = append(dest.contacts, slot)
				s.handles.SetLocation(slot.handle, constraintLocation{set: target, batch: 0, kind: kindContact, index: index})
				continue
			}
			kept = append(kept, slot)
		}
		batch.contacts = kept

		keptSockets := batch.ballSockets[:0]
		for _, slot := range batch.ballSockets {
			if inIsland[slot.bodies[0]] || inIsland[slot.bodies[1]] {
				index := int32(len(dest.ballSockets))
				dest.ballSockets = append(dest.ballSockets, slot)
				s.handles.SetLocation(slot.handle, constraintLocation{set: target, batch: 0, kind: kindBallSocket, index: index})
				continue
			}
			keptSockets = append(keptSockets, slot)
		}
		batch.ballSockets = keptSockets
	}

	if len(dest.contacts) == 0 && len(dest.ballSockets) == 0 {
		return
	}
	if s.inactiveSets == nil {
		s.inactiveSets = make(map[int32][]*Batch)
	}
	s.inactiveSets[target] = []*Batch{dest}
}

// Wake merges set's inactive constraints back into the active batches,
// spec.md §4.8 Activate's "Constraint region copy" step: each constraint
// is re-run through the same conflict-free batch assignment AddContact/
// AddBallSocket use, since the active batches it left behind may have
// changed shape while it was asleep.
func (s *Solver) Wake(store *BodyStore, set int32) {
	batches, ok := s.inactiveSets[set]
	if !ok {
		return
	}
	delete(s.inactiveSets, set)

	for _, batch := range batches {
		for _, slot := range batch.contacts {
			batchIdx := s.findOrCreateBatch(store, slot.bodies)
			dest := s.batches[batchIdx]
			dest.reserve(store, slot.bodies)
			index := int32(len(dest.contacts))
			dest.contacts = append(dest.contacts, slot)
			s.handles.SetLocation(slot.handle, constraintLocation{set: 0, batch: batchIdx, kind: kindContact, index: index})
		}
		for _, slot := range batch.ballSockets {
			batchIdx := s.findOrCreateBatch(store, slot.bodies)
			dest := s.batches[batchIdx]
			dest.reserve(store, slot.bodies)
			index := int32(len(dest.ballSockets))
			dest.ballSockets = append(dest.ballSockets, slot)
			s.handles.SetLocation(slot.handle, constraintLocation{set: 0, batch: batchIdx, kind: kindBallSocket, index: index})
		}
	}
}

// BatchCount returns the number of batches currently allocated, mainly
// for tests asserting the placement-minimality invariant.
func (s *Solver) BatchCount() int32 {
	return int32(len(s.batches))
}

// ActiveConstraintCount returns the number of contact and ball-socket
// constraints currently held in the active set, mainly for tests asserting
// the sleep/wake round trip restores the constraint graph.
func (s *Solver) ActiveConstraintCount() int {
	n := 0
	for _, b := range s.batches {
		n += len(b.contacts) + len(b.ballSockets)
	}
	return n
}

// ResetContacts discards every contact constraint currently held, keeping
// ball-socket constraints (and their handles) intact. The narrow phase
// rebuilds contact constraints fresh every step from the pair cache's
// warm-start data, so contacts don't need the same persistent handle
// lifetime user-added constraints do; this is the per-step reset that
// makes that rebuild cheap instead of accumulating stale batch
// reservations frame over frame.
func (s *Solver) ResetContacts(store *BodyStore) {
	for _, b := range s.batches {
		for _, slot := range b.contacts {
			s.handles.Free(slot.handle)
		}
		b.contacts = b.contacts[:0]
		b.referenced = make(map[Handle]bool)
		for _, slot := range b.ballSockets {
			b.reserve(store, slot.bodies)
		}
	}
	for len(s.batches) > 0 {
		last := s.batches[len(s.batches)-1]
		if len(last.contacts) == 0 && len(last.ballSockets) == 0 {
			s.batches = s.batches[:len(s.batches)-1]
			continue
		}
		break
	}
}

// EachEdge visits the two body handles of every constraint currently held,
// the adjacency the sleeper's island flood fill walks to find connected
// components (spec.md §4.8).
func (s *Solver) EachEdge(visit func(a, b Handle)) {
	for _, batch := range s.batches {
		for _, slot := range batch.contacts {
			visit(slot.bodies[0], slot.bodies[1])
		}
		for _, slot := range batch.ballSockets {
			visit(slot.bodies[0], slot.bodies[1])
		}
	}
}

// Step runs prestep, warm start, and Iterations solve passes over every
// batch and type batch, per spec.md §4.7's per-step sequence and §5's
// "parallel within a batch, barrier between batches" ordering guarantee.
// dispatcher may be nil, meaning single-threaded.
func (s *Solver) Step(store *BodyStore, dt, slop, biasRate float64, dispatcher *ThreadDispatcher) {
	if dispatcher == nil {
		dispatcher = NewThreadDispatcher(1)
		dispatcher.Deterministic = true
	}

	for _, batch := range s.batches {
		dispatcher.For(len(batch.contacts), func(worker, job int) {
			batch.contacts[job].c.PreStep(store, dt, slop, biasRate)
		})
		dispatcher.For(len(batch.ballSockets), func(worker, job int) {
			batch.ballSockets[job].c.PreStep(store, dt, biasRate)
		})
	}

	for _, batch := range s.batches {
		dispatcher.For(len(batch.contacts), func(worker, job int) {
			batch.contacts[job].c.ApplyCachedImpulse(store)
		})
		dispatcher.For(len(batch.ballSockets), func(worker, job int) {
			batch.ballSockets[job].c.ApplyCachedImpulse(store)
		})
	}

	for iter := 0; iter < s.Iterations; iter++ {
		for _, batch := range s.batches {
			dispatcher.For(len(batch.contacts), func(worker, job int) {
				batch.contacts[job].c.ApplyImpulse(store)
			})
			dispatcher.For(len(batch.ballSockets), func(worker, job int) {
				batch.ballSockets[job].c.ApplyImpulse(store)
			})
		}
	}
}
