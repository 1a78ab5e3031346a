package rigid3d

// Sleeper finds connected islands of active bodies and migrates any
// island where every body has been sleep-candidate for long enough into a
// fresh inactive set, spec.md §4.8's Sleep paragraph ("when a connected
// island of bodies all exhibit sleep-candidate = true for enough steps,
// migrate them into a fresh inactive set together with their constraints
// and pair-cache entries; remove their active broadphase leaves and
// insert into the static tree").
//
// Grounded on the teacher's Space sleeping-component bookkeeping
// (Space.sleepingComponents, Body.ComponentRoot union-find via
// sleepingNext/Next pointers), reimplemented with an explicit
// union-find array instead of an intrusive linked list since bodies here
// live in a dense per-set slice rather than individually heap-allocated.
type Sleeper struct {
	Broadphase *BroadPhase
	PairCache  *PairCache
	Statics    *StaticStore
	Solver     *Solver
}

// NewSleeper returns a sleeper wired to the given broadphase, pair cache,
// solver, and static store. statics may be nil if the simulation never
// mixes sleeping bodies into the static tree's leaf-compaction path (tests
// that never exercise a populated static tree alongside sleep).
func NewSleeper(broadphase *BroadPhase, pairCache *PairCache, solver *Solver, statics *StaticStore) *Sleeper {
	return &Sleeper{Broadphase: broadphase, PairCache: pairCache, Solver: solver, Statics: statics}
}

// patchMovedLeaf fixes up whichever entity's back-reference needs updating
// after a tree Remove relocated a different leaf into the vacated slot:
// either a body (active or sleeping) or an actual static.
func patchMovedLeaf(store *BodyStore, statics *StaticStore, leaf LeafIndex, movedData any) {
	ref, ok := movedData.(CollidableRef)
	if !ok {
		return
	}
	if ref.Static {
		if statics != nil {
			statics.Get(ref.Handle).Collidable.BroadphaseLeaf = int32(leaf)
		}
		return
	}
	store.Body(ref.Handle).Collidable.BroadphaseLeaf = int32(leaf)
}

// Islands partitions every body in the active set into connected
// components, walking the solver's constraint edges with union-find.
// Static/kinematic bodies never merge two islands: a shared platform
// anchoring many independent stacks must not keep the whole world awake.
func (s *Sleeper) Islands(store *BodyStore, solver *Solver) [][]Handle {
	active := store.Active()
	index := make(map[Handle]int, len(active))
	parent := make([]int, 0, len(active))
	handles := make([]Handle, 0, len(active))
	for _, body := range active {
		if body.IsKinematic() {
			// Kinematic bodies (including static anchors) never sleep and
			// never form an island of their own; they only matter as
			// edges other bodies' constraints pass through.
			continue
		}
		index[body.Handle] = len(parent)
		parent = append(parent, len(parent))
		handles = append(handles, body.Handle)
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(x, y int) {
		rx, ry := find(x), find(y)
		if rx != ry {
			parent[rx] = ry
		}
	}

	solver.EachEdge(func(a, b Handle) {
		if a == NilHandle || b == NilHandle {
			return
		}
		ia, aok := index[a]
		ib, bok := index[b]
		if !aok || !bok {
			return
		}
		if store.Body(a).IsKinematic() || store.Body(b).IsKinematic() {
			return
		}
		union(ia, ib)
	})

	groups := make(map[int][]Handle)
	for i, h := range handles {
		root := find(i)
		groups[root] = append(groups[root], h)
	}

	islands := make([][]Handle, 0, len(groups))
	for _, group := range groups {
		islands = append(islands, group)
	}
	return islands
}

// ReadyToSleep reports whether every body in an island is a sleep
// candidate (kinematic bodies never block sleep: they have no activity
// counter of their own to exhaust).
func (s *Sleeper) ReadyToSleep(store *BodyStore, island []Handle) bool {
	for _, h := range island {
		body := store.Body(h)
		if body.IsKinematic() {
			continue
		}
		if !body.Activity.Candidate {
			return false
		}
	}
	return true
}

// Sleep migrates island into a freshly allocated inactive set: bodies move
// out of the active BodyStore set, their active broadphase leaves are
// removed and re-inserted into the static tree, and the solver's
// constraints and pair-cache entries touching the island move into that
// same set's inactive storage (spec.md §4.6's "on sleep, entries migrate
// to per-set inactive pair caches" and §4.8's "migrate them into a fresh
// inactive set together with their constraints and pair-cache entries").
// Returns the new inactive set id.
func (s *Sleeper) Sleep(store *BodyStore, island []Handle) int32 {
	target := store.AllocateSet()
	inIsland := make(map[Handle]bool, len(island))
	for _, h := range island {
		inIsland[h] = true
	}

	for _, h := range island {
		body := store.Body(h)
		if body.Collidable.Present && LeafIndex(body.Collidable.BroadphaseLeaf) != NoLeaf {
			leaf := LeafIndex(body.Collidable.BroadphaseLeaf)
			bounds := s.Broadphase.Active.Bounds(leaf)
			userData := s.Broadphase.Active.UserData(leaf)

			if _, movedData, moved := s.Broadphase.Active.Remove(leaf); moved {
				patchMovedLeaf(store, s.Statics, leaf, movedData)
			}
			newLeaf := s.Broadphase.Static.Add(bounds, userData)
			body.Collidable.BroadphaseLeaf = int32(newLeaf)
		}
		store.MoveBody(h, target)
	}

	s.Solver.Sleep(store, island, target)
	s.PairCache.MigrateOut(target, func(pair CollidablePair) bool {
		return (!pair.A.Static && inIsland[pair.A.Handle]) || (!pair.B.Static && inIsland[pair.B.Handle])
	})
	return target
}
