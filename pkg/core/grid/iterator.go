package grid

// Iterator is a mutable cursor over the implicit tree of a sparse grid.
//
// The cursor holds a coordinate tuple that need not be stored: descents move
// it to hypothetical children and probe them with Seq. Every motion is O(1)
// integer arithmetic on a single dimension.
//
// An Iterator is bound to exactly one Storage and is owned by a single
// traversal. It is not safe for concurrent use; parallel readers each create
// their own Iterator over a storage that is no longer modified. Recursive
// algorithms that share one Iterator must restore the coordinates they change
// before returning.
type Iterator struct {
	storage *Storage
	point   *Point
	seq     int
}

// NewIterator returns a cursor positioned at the root (level 1, index 1 in
// every dimension).
func NewIterator(s *Storage) *Iterator {
	it := &Iterator{
		storage: s,
		point:   NewPoint(s.Dimension()),
	}
	it.update()
	return it
}

// NewIteratorAt returns a cursor positioned at p.
func NewIteratorAt(s *Storage, p *Point) *Iterator {
	it := &Iterator{
		storage: s,
		point:   p.Copy(),
	}
	it.update()
	return it
}

// update re-resolves the cached sequence number after a motion.
func (it *Iterator) update() {
	it.seq = it.storage.Find(it.point)
}

// ResetToLevelZero moves the cursor to (0, 0) in every dimension.
func (it *Iterator) ResetToLevelZero() {
	for d := 0; d < it.point.Dim(); d++ {
		it.point.Set(d, 0, 0)
	}
	it.update()
}

// ResetToLeftLevelZero moves dimension d to the left boundary (0, 0).
func (it *Iterator) ResetToLeftLevelZero(d int) {
	it.point.Set(d, 0, 0)
	it.update()
}

// ResetToRightLevelZero moves dimension d to the right boundary (0, 1).
func (it *Iterator) ResetToRightLevelZero(d int) {
	it.point.Set(d, 0, 1)
	it.update()
}

// ResetToLevelOne moves dimension d to the root (1, 1).
func (it *Iterator) ResetToLevelOne(d int) {
	it.point.Set(d, 1, 1)
	it.update()
}

// LeftChild moves dimension d to its left child: level+1, 2i-1. Both level 0
// points have the single child (1, 1).
func (it *Iterator) LeftChild(d int) {
	l, i := it.point.Get(d)
	if l == 0 {
		it.point.Set(d, 1, 1)
	} else {
		it.point.Set(d, l+1, 2*i-1)
	}
	it.update()
}

// RightChild moves dimension d to its right child: level+1, 2i+1. Both level 0
// points have the single child (1, 1).
func (it *Iterator) RightChild(d int) {
	l, i := it.point.Get(d)
	if l == 0 {
		it.point.Set(d, 1, 1)
	} else {
		it.point.Set(d, l+1, 2*i+1)
	}
	it.update()
}

// Up moves dimension d to its hierarchical parent: level-1, (i>>1)|1.
// It is the inverse of LeftChild and RightChild above level 1. From level 1
// it moves to the right boundary (0, 1); at level 0 it does nothing.
func (it *Iterator) Up(d int) {
	l, i := it.point.Get(d)
	if l == 0 {
		return
	}
	it.point.Set(d, l-1, (i>>1)|1)
	it.update()
}

// StepLeft moves dimension d to the left sibling on the same level: i-2.
func (it *Iterator) StepLeft(d int) {
	l, i := it.point.Get(d)
	it.point.Set(d, l, i-2)
	it.update()
}

// StepRight moves dimension d to the right sibling on the same level: i+2.
func (it *Iterator) StepRight(d int) {
	l, i := it.point.Get(d)
	it.point.Set(d, l, i+2)
	it.update()
}

// Get returns the cursor's level and index in dimension d.
func (it *Iterator) Get(d int) (level, index uint32) {
	return it.point.Get(d)
}

// Set jumps dimension d of the cursor to (level, index).
func (it *Iterator) Set(d int, level, index uint32) {
	it.point.Set(d, level, index)
	it.update()
}

// SetPoint jumps the cursor to p.
func (it *Iterator) SetPoint(p *Point) {
	it.point.Assign(p)
	it.update()
}

// Point returns a copy of the cursor's current coordinates.
func (it *Iterator) Point() *Point { return it.point.Copy() }

// Seq returns the sequence number of the current position, or NotFound.
func (it *Iterator) Seq() int { return it.seq }

// Hint reports whether the current position is stored and flagged as a leaf.
// Recursive descents use it to stop without probing children.
func (it *Iterator) Hint() bool {
	if it.seq == NotFound {
		return false
	}
	return it.storage.At(it.seq).IsLeaf()
}

// IsInnerPoint reports whether the current position has no level-0 coordinate.
func (it *Iterator) IsInnerPoint() bool { return it.point.IsInnerPoint() }

// GridDepth returns the deepest level reachable from the current position in
// dimension d by following stored children. The cursor is left unchanged.
func (it *Iterator) GridDepth(d int) uint32 {
	return it.depth(it.point.Copy(), d)
}

func (it *Iterator) depth(probe *Point, d int) uint32 {
	l, i := probe.Get(d)
	best := l
	if l == 0 {
		probe.Set(d, 1, 1)
		if it.storage.IsContaining(probe) {
			best = max(best, it.depth(probe, d))
		}
	} else {
		for _, child := range [2]uint32{2*i - 1, 2*i + 1} {
			probe.Set(d, l+1, child)
			if it.storage.IsContaining(probe) {
				best = max(best, it.depth(probe, d))
			}
		}
	}
	probe.Set(d, l, i)
	return best
}
