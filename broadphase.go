package rigid3d

import "github.com/go-gl/mathgl/mgl64"

// LeafIndex addresses a leaf within a BoundsTree. Unlike Handle, a
// LeafIndex is not stable across a Remove of a different leaf: Remove
// swap-compacts the dense leaf array, so callers must apply the returned
// moved-leaf report to fix up their own back-reference (Collidable's
// BroadphaseLeaf field), per spec.md §4.3's remove contract.
type LeafIndex int32

// NoLeaf marks the absence of a broadphase leaf, e.g. a body or static with
// no collidable.
const NoLeaf LeafIndex = -1

const nilNode int32 = -1

type treeNode struct {
	bounds         Bounds
	parent         int32
	childA, childB int32
	leaf           LeafIndex // >= 0 for a leaf node, NoLeaf for an internal node
}

func (n *treeNode) isLeaf() bool { return n.leaf != NoLeaf }

// BoundsTree is a dynamic bounding-volume tree over 3D AABBs, generalized
// from the teacher's bb_tree.go: the same cost-based (surface-area) subtree
// insertion and pooled-node free list, but addressed by dense integer leaf
// index rather than a HashSet keyed on shape identity, since spec.md §4.3
// hands the leaf index itself back to the caller as the addressing key.
type BoundsTree struct {
	nodes     []treeNode
	freeNodes []int32
	leafNodes []int32 // leafNodes[leaf] = node index
	userData  []any
	root      int32
}

// NewBoundsTree returns an empty tree.
func NewBoundsTree() *BoundsTree {
	return &BoundsTree{root: nilNode}
}

// Count returns the number of leaves currently in the tree.
func (t *BoundsTree) Count() int {
	return len(t.leafNodes)
}

func (t *BoundsTree) allocNode() int32 {
	if n := len(t.freeNodes); n > 0 {
		idx := t.freeNodes[n-1]
		t.freeNodes = t.freeNodes[:n-1]
		return idx
	}
	t.nodes = append(t.nodes, treeNode{})
	return int32(len(t.nodes) - 1)
}

func (t *BoundsTree) freeNode(i int32) {
	t.nodes[i] = treeNode{leaf: NoLeaf}
	t.freeNodes = append(t.freeNodes, i)
}

func (t *BoundsTree) setChildA(node, child int32) {
	t.nodes[node].childA = child
	t.nodes[child].parent = node
}

func (t *BoundsTree) setChildB(node, child int32) {
	t.nodes[node].childB = child
	t.nodes[child].parent = node
}

func (t *BoundsTree) other(parent, child int32) int32 {
	if t.nodes[parent].childA == child {
		return t.nodes[parent].childB
	}
	return t.nodes[parent].childA
}

// insert grafts leaf node into subtree, choosing the cheaper of the two
// children by merged surface area, breaking ties by center proximity, the
// same heuristic as the teacher's SubtreeInsert generalized to 3D surface
// area instead of 2D perimeter.
func (t *BoundsTree) insert(subtree, leaf int32) int32 {
	if subtree == nilNode {
		return leaf
	}
	if t.nodes[subtree].isLeaf() {
		node := t.allocNode()
		t.nodes[node] = treeNode{
			bounds: t.nodes[subtree].bounds.Merge(t.nodes[leaf].bounds),
			parent: nilNode,
			leaf:   NoLeaf,
		}
		t.setChildA(node, subtree)
		t.setChildB(node, leaf)
		return node
	}

	a, b := t.nodes[subtree].childA, t.nodes[subtree].childB
	leafBounds := t.nodes[leaf].bounds
	costA := t.nodes[b].bounds.SurfaceArea() + t.nodes[a].bounds.MergedArea(leafBounds)
	costB := t.nodes[a].bounds.SurfaceArea() + t.nodes[b].bounds.MergedArea(leafBounds)
	if costA == costB {
		costA = t.nodes[a].bounds.Proximity(leafBounds)
		costB = t.nodes[b].bounds.Proximity(leafBounds)
	}

	if costB < costA {
		t.setChildB(subtree, t.insert(b, leaf))
	} else {
		t.setChildA(subtree, t.insert(a, leaf))
	}
	t.nodes[subtree].bounds = t.nodes[t.nodes[subtree].childA].bounds.Merge(t.nodes[t.nodes[subtree].childB].bounds)
	return subtree
}

func (t *BoundsTree) replaceInParent(parent, child, replacement int32) {
	if t.nodes[parent].childA == child {
		t.setChildA(parent, replacement)
	} else {
		t.setChildB(parent, replacement)
	}
	for n := parent; n != nilNode; n = t.nodes[n].parent {
		t.nodes[n].bounds = t.nodes[t.nodes[n].childA].bounds.Merge(t.nodes[t.nodes[n].childB].bounds)
	}
}

// detach removes node from wherever it sits in the tree without freeing
// node itself, leaving it ready for reinsertion (used by Update's refit
// path) or immediate release (used by Remove).
func (t *BoundsTree) detach(node int32) {
	parent := t.nodes[node].parent
	if parent == nilNode {
		t.root = nilNode
		return
	}
	grandparent := t.nodes[parent].parent
	sibling := t.other(parent, node)
	if grandparent == nilNode {
		t.root = sibling
		t.nodes[sibling].parent = nilNode
	} else {
		t.replaceInParent(grandparent, parent, sibling)
	}
	t.freeNode(parent)
	t.nodes[node].parent = nilNode
}

// Add inserts a new leaf with the given bounds and opaque user data
// (typically a body or static handle), returning its leaf index.
func (t *BoundsTree) Add(bounds Bounds, userData any) LeafIndex {
	node := t.allocNode()
	leaf := LeafIndex(len(t.leafNodes))
	t.nodes[node] = treeNode{bounds: bounds, parent: nilNode, childA: nilNode, childB: nilNode, leaf: leaf}
	t.leafNodes = append(t.leafNodes, node)
	t.userData = append(t.userData, userData)
	t.root = t.insert(t.root, node)
	return leaf
}

// Remove deletes leaf from the tree. If a different leaf was relocated to
// fill leaf's now-vacant slot in the dense leaf array, moved reports true
// and movedLeaf/movedUserData describe it so the caller can patch its own
// back-reference (spec.md §4.3's remove contract).
func (t *BoundsTree) Remove(leaf LeafIndex) (movedLeaf LeafIndex, movedUserData any, moved bool) {
	node := t.leafNodes[leaf]
	t.detach(node)
	t.freeNode(node)

	last := LeafIndex(len(t.leafNodes) - 1)
	if leaf != last {
		movedNode := t.leafNodes[last]
		t.leafNodes[leaf] = movedNode
		t.nodes[movedNode].leaf = leaf
		t.userData[leaf] = t.userData[last]
		movedLeaf = leaf
		movedUserData = t.userData[leaf]
		moved = true
	}
	t.leafNodes = t.leafNodes[:last]
	t.userData = t.userData[:last]
	return
}

// Update refits leaf to newBounds. If newBounds still lies within the
// leaf's cached (deliberately loose) bounds, nothing happens and false is
// returned — small motions don't retrigger a tree rebalance. Otherwise the
// leaf is detached and reinserted with the tightened bounds and true is
// returned, mirroring the teacher's LeafUpdate refit-trigger threshold.
func (t *BoundsTree) Update(leaf LeafIndex, newBounds Bounds) bool {
	node := t.leafNodes[leaf]
	if t.nodes[node].bounds.Contains(newBounds) {
		return false
	}
	t.detach(node)
	t.nodes[node].bounds = newBounds
	t.root = t.insert(t.root, node)
	return true
}

// Bounds returns the tree's cached (possibly loose) bounds for leaf.
func (t *BoundsTree) Bounds(leaf LeafIndex) Bounds {
	return t.nodes[t.leafNodes[leaf]].bounds
}

// UserData returns the opaque value passed to Add for leaf.
func (t *BoundsTree) UserData(leaf LeafIndex) any {
	return t.userData[leaf]
}

// EnumerateSelfOverlaps visits every unordered pair of leaves within t
// whose bounds intersect, each pair exactly once. Grounded on the
// teacher's MarkLeaf/MarkLeafQuery mark-and-sweep, but restructured as the
// classic dynamic-tree pairwise-subtree recursion: duplicate suppression
// falls out of visiting each pair of subtrees exactly once rather than
// from a per-frame stamp.
func (t *BoundsTree) EnumerateSelfOverlaps(visit func(a, b LeafIndex)) {
	if t.root == nilNode {
		return
	}
	t.selfQuery(t.root, visit)
}

func (t *BoundsTree) selfQuery(node int32, visit func(a, b LeafIndex)) {
	n := &t.nodes[node]
	if n.isLeaf() {
		return
	}
	t.selfQuery(n.childA, visit)
	t.selfQuery(n.childB, visit)
	t.pairQuery(n.childA, n.childB, visit)
}

func (t *BoundsTree) pairQuery(nodeA, nodeB int32, visit func(a, b LeafIndex)) {
	na, nb := &t.nodes[nodeA], &t.nodes[nodeB]
	if !na.bounds.Intersects(nb.bounds) {
		return
	}
	switch {
	case na.isLeaf() && nb.isLeaf():
		visit(na.leaf, nb.leaf)
	case na.isLeaf():
		t.pairQuery(nodeA, nb.childA, visit)
		t.pairQuery(nodeA, nb.childB, visit)
	case nb.isLeaf():
		t.pairQuery(na.childA, nodeB, visit)
		t.pairQuery(na.childB, nodeB, visit)
	default:
		t.pairQuery(na.childA, nb.childA, visit)
		t.pairQuery(na.childA, nb.childB, visit)
		t.pairQuery(na.childB, nb.childA, visit)
		t.pairQuery(na.childB, nb.childB, visit)
	}
}

// EnumerateCrossOverlaps visits every pair (a in t, b in other) whose
// bounds intersect, exactly once, for the active-tree-vs-static-tree
// candidate pairs spec.md §4.3 requires.
func (t *BoundsTree) EnumerateCrossOverlaps(other *BoundsTree, visit func(a, b LeafIndex)) {
	if t.root == nilNode || other.root == nilNode {
		return
	}
	t.crossQuery(t.root, other, other.root, visit)
}

func (t *BoundsTree) crossQuery(nodeA int32, other *BoundsTree, nodeB int32, visit func(a, b LeafIndex)) {
	na, nb := &t.nodes[nodeA], &other.nodes[nodeB]
	if !na.bounds.Intersects(nb.bounds) {
		return
	}
	switch {
	case na.isLeaf() && nb.isLeaf():
		visit(na.leaf, nb.leaf)
	case na.isLeaf():
		t.crossQuery(nodeA, other, nb.childA, visit)
		t.crossQuery(nodeA, other, nb.childB, visit)
	case nb.isLeaf():
		t.crossQuery(na.childA, other, nodeB, visit)
		t.crossQuery(na.childB, other, nodeB, visit)
	default:
		t.crossQuery(na.childA, other, nb.childA, visit)
		t.crossQuery(na.childA, other, nb.childB, visit)
		t.crossQuery(na.childB, other, nb.childA, visit)
		t.crossQuery(na.childB, other, nb.childB, visit)
	}
}

// QueryPoint visits every leaf whose bounds contain p, the broadphase-only
// precision a point query can offer when concrete shapes are out of scope
// (spec.md §1): this reports "p is inside this collidable's AABB", not an
// exact point-in-shape test. Grounded on the teacher's Space.PointQueryNearest
// tree descent, generalized from a nearest-result accumulator to a visitor so
// the caller decides how to rank multiple hits.
func (t *BoundsTree) QueryPoint(p mgl64.Vec3, visit func(leaf LeafIndex)) {
	if t.root == nilNode {
		return
	}
	t.queryPointNode(t.root, p, visit)
}

func (t *BoundsTree) queryPointNode(node int32, p mgl64.Vec3, visit func(leaf LeafIndex)) {
	n := &t.nodes[node]
	if !n.bounds.ContainsPoint(p) {
		return
	}
	if n.isLeaf() {
		visit(n.leaf)
		return
	}
	t.queryPointNode(n.childA, p, visit)
	t.queryPointNode(n.childB, p, visit)
}

// QuerySegment visits every leaf whose bounds the segment [start, end]
// crosses, grounded on the teacher's Space.SegmentQuery tree descent.
func (t *BoundsTree) QuerySegment(start, end mgl64.Vec3, visit func(leaf LeafIndex)) {
	if t.root == nilNode {
		return
	}
	t.querySegmentNode(t.root, start, end, visit)
}

func (t *BoundsTree) querySegmentNode(node int32, start, end mgl64.Vec3, visit func(leaf LeafIndex)) {
	n := &t.nodes[node]
	if _, hit := n.bounds.IntersectsSegment(start, end); !hit {
		return
	}
	if n.isLeaf() {
		visit(n.leaf)
		return
	}
	t.querySegmentNode(n.childA, start, end, visit)
	t.querySegmentNode(n.childB, start, end, visit)
}

// CandidatePair is a broadphase-produced candidate for narrow phase. B is
// drawn from the static tree when BStatic is true, otherwise from the same
// active tree as A.
type CandidatePair struct {
	A, B    LeafIndex
	BStatic bool
}

// BroadPhase owns the two trees spec.md §4.3 calls for: one over active
// dynamic collidables, one over statics. Sleep moves an active leaf to the
// static tree; activation moves a static leaf back.
type BroadPhase struct {
	Active *BoundsTree
	Static *BoundsTree
}

// NewBroadPhase returns a BroadPhase with two empty trees.
func NewBroadPhase() *BroadPhase {
	return &BroadPhase{Active: NewBoundsTree(), Static: NewBoundsTree()}
}

// EnumerateOverlaps produces every active-self and active×static candidate
// pair, with no duplicates.
func (bp *BroadPhase) EnumerateOverlaps(visit func(CandidatePair)) {
	bp.Active.EnumerateSelfOverlaps(func(a, b LeafIndex) {
		visit(CandidatePair{A: a, B: b})
	})
	bp.Active.EnumerateCrossOverlaps(bp.Static, func(a, b LeafIndex) {
		visit(CandidatePair{A: a, B: b, BStatic: true})
	})
}
