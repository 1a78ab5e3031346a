package rigid3d

// PairCache maps ordered collidable pairs to their persistent contact
// constraint, surviving frames so warm-start impulses carry over, spec.md
// §4.6's Constraint Graph & Pair Cache. Grounded on the teacher's
// Space.cachedArbiters HashSet[ShapePair, *Arbiter], generalized from a
// shape-pointer key to a handle-based CollidablePair key and from
// arbiter-per-shape-pair to constraint-per-collidable-pair.
//
// Structural add/remove is deferred and flushed serially once narrow phase
// has run (spec.md §9's "deferred structural mutations" design note), so a
// narrow-phase worker never mutates the graph directly; it only enqueues.
type PairCache struct {
	entries map[CollidablePair]*ContactConstraint
	pending []pairCacheOp

	// inactive holds one bucket per sleeping set, populated by MigrateOut
	// and drained by MigrateIn, spec.md §4.6's "on sleep, entries migrate
	// to per-set inactive pair caches; on wake they migrate back".
	inactive map[int32]map[CollidablePair]*ContactConstraint
}

type pairCacheOp struct {
	pair    CollidablePair
	remove  bool
	replace *ContactConstraint
}

// NewPairCache returns an empty cache.
func NewPairCache() *PairCache {
	return &PairCache{entries: make(map[CollidablePair]*ContactConstraint)}
}

// Lookup returns the persisted constraint for pair, if one survived from a
// previous frame, for warm-start impulse inheritance.
func (pc *PairCache) Lookup(pair CollidablePair) (*ContactConstraint, bool) {
	c, ok := pc.entries[pair]
	return c, ok
}

// Enqueue defers inserting or overwriting pair's constraint until Flush
// runs, so concurrent narrow-phase workers never race on the map.
func (pc *PairCache) Enqueue(pair CollidablePair, constraint *ContactConstraint) {
	pc.pending = append(pc.pending, pairCacheOp{pair: pair, replace: constraint})
}

// EnqueueRemove defers dropping pair, used when a manifold stops touching.
func (pc *PairCache) EnqueueRemove(pair CollidablePair) {
	pc.pending = append(pc.pending, pairCacheOp{pair: pair, remove: true})
}

// Flush applies every deferred operation in enqueue order. Call once per
// step after narrow phase, before the solver reads the graph.
func (pc *PairCache) Flush() {
	for _, op := range pc.pending {
		if op.remove {
			delete(pc.entries, op.pair)
			continue
		}
		pc.entries[op.pair] = op.replace
	}
	pc.pending = pc.pending[:0]
}

// Prune drops every entry whose pair is not in live, used after a step to
// forget constraints for manifolds that stopped touching and were never
// re-enqueued.
func (pc *PairCache) Prune(live map[CollidablePair]bool) {
	for pair := range pc.entries {
		if !live[pair] {
			delete(pc.entries, pair)
		}
	}
}

// Count returns the number of persisted pairs, mainly for tests and
// diagnostics.
func (pc *PairCache) Count() int {
	return len(pc.entries)
}

// MigrateOut removes every live entry matching match from the pair cache
// and files it under set's inactive bucket, spec.md §4.6's sleep-side pair
// cache migration. A pair moved out this way survives Prune untouched
// until MigrateIn brings it back, instead of being discarded on the very
// next step because narrow phase never re-enumerates a sleeping pair.
func (pc *PairCache) MigrateOut(set int32, match func(pair CollidablePair) bool) {
	bucket := make(map[CollidablePair]*ContactConstraint)
	for pair, c := range pc.entries {
		if match(pair) {
			bucket[pair] = c
			delete(pc.entries, pair)
		}
	}
	if len(bucket) == 0 {
		return
	}
	if pc.inactive == nil {
		pc.inactive = make(map[int32]map[CollidablePair]*ContactConstraint)
	}
	pc.inactive[set] = bucket
}

// MigrateIn merges set's inactive bucket back into the live map, spec.md
// §4.6's wake-side "Pair cache activation" step. Handles inside a
// CollidablePair key are stable body/static handles rather than raw
// active-set indices (see DESIGN.md's paircache.go entry), so no
// translation is needed on the way back in.
func (pc *PairCache) MigrateIn(set int32) {
	bucket := pc.inactive[set]
	delete(pc.inactive, set)
	for pair, c := range bucket {
		pc.entries[pair] = c
	}
}
