// Package grid provides the hierarchical grid point, the hash based grid
// storage and the navigation cursor used by every sparse grid algorithm.
//
// This file implements Storage, a bijective index between grid points and
// dense sequence numbers. Points live in an arena slice indexed by sequence
// number; lookups go through a hash map keyed on the coordinate hash, with
// collisions chained through a parallel slice of sequence numbers.
// Parent/child relations are never stored; they are recomputed from the
// (level, index) arithmetic and resolved through Find.
//
// Storage is not safe for concurrent use. Concurrent readers are fine once
// the storage is no longer modified.
package grid

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// NotFound is the sequence number reported for points that are not stored.
const NotFound = -1

// Storage owns the grid points of one sparse grid.
type Storage struct {
	dim int

	list  []*Point       // sequence number -> point
	heads map[uint64]int // coordinate hash -> first sequence number with that hash
	next  []int          // sequence number -> next sequence number with the same hash

	algoDims []int
	box      *BoundingBox
}

// NewStorage creates an empty storage for points of the given dimension on the
// unit hypercube.
func NewStorage(dim int) *Storage {
	return NewStorageWithBoundingBox(NewBoundingBox(dim))
}

// NewStorageWithBoundingBox creates an empty storage whose dimension is taken
// from the bounding box.
func NewStorageWithBoundingBox(bb *BoundingBox) *Storage {
	s := &Storage{
		dim:   bb.Dimension(),
		heads: make(map[uint64]int),
		box:   bb.Copy(),
	}
	s.resetAlgorithmicDimensions()
	return s
}

func (s *Storage) resetAlgorithmicDimensions() {
	s.algoDims = make([]int, s.dim)
	for d := range s.algoDims {
		s.algoDims[d] = d
	}
}

// Clone returns a deep copy of the storage with identical sequence numbers.
func (s *Storage) Clone() *Storage {
	c := &Storage{
		dim:      s.dim,
		list:     make([]*Point, 0, len(s.list)),
		heads:    make(map[uint64]int, len(s.heads)),
		next:     make([]int, 0, len(s.next)),
		algoDims: slices.Clone(s.algoDims),
		box:      s.box.Copy(),
	}
	for _, p := range s.list {
		c.store(p.Copy())
	}
	return c
}

// --- Size and shape ---

// Size returns the number of stored points.
func (s *Storage) Size() int { return len(s.list) }

// Dimension returns the dimension of the grid.
func (s *Storage) Dimension() int { return s.dim }

// NumberOfInnerPoints counts the points without a level-0 coordinate.
func (s *Storage) NumberOfInnerPoints() int {
	n := 0
	for _, p := range s.list {
		if p.IsInnerPoint() {
			n++
		}
	}
	return n
}

// MaxLevel returns the largest level of any stored point in any dimension.
func (s *Storage) MaxLevel() int {
	var maxLevel uint32
	for _, p := range s.list {
		maxLevel = max(maxLevel, p.LevelMax())
	}
	return int(maxLevel)
}

// --- Lookup ---

// Find returns the sequence number of p, or NotFound.
func (s *Storage) Find(p *Point) int {
	if p.Dim() != s.dim {
		return NotFound
	}
	seq, ok := s.heads[p.Hash()]
	if !ok {
		return NotFound
	}
	for ; seq != NotFound; seq = s.next[seq] {
		if s.list[seq].Equals(p) {
			return seq
		}
	}
	return NotFound
}

// IsContaining reports whether an equal point is stored.
func (s *Storage) IsContaining(p *Point) bool {
	return s.Find(p) != NotFound
}

// SequenceNumber returns the sequence number of p.
func (s *Storage) SequenceNumber(p *Point) (int, error) {
	seq := s.Find(p)
	if seq == NotFound {
		return NotFound, fmt.Errorf("%v: %w", p, ErrPointNotFound)
	}
	return seq, nil
}

// Point returns the stored point with the given sequence number. The returned
// point is owned by the storage: callers may change its leaf flag but must not
// change its coordinates.
func (s *Storage) Point(seq int) (*Point, error) {
	if seq < 0 || seq >= len(s.list) {
		return nil, fmt.Errorf("sequence number %d, size %d: %w", seq, len(s.list), ErrSequenceOutOfRange)
	}
	return s.list[seq], nil
}

// At is the unchecked form of Point for callers iterating over [0, Size()).
func (s *Storage) At(seq int) *Point { return s.list[seq] }

// All iterates over the points present when All is called, in insertion
// order. Points inserted during the iteration are not visited.
func (s *Storage) All() iter.Seq2[int, *Point] {
	n := len(s.list)
	return func(yield func(int, *Point) bool) {
		for seq := 0; seq < n; seq++ {
			if !yield(seq, s.list[seq]) {
				return
			}
		}
	}
}

// --- Mutation ---

// Insert stores a copy of p under the next free sequence number. Points
// violating the midpoint encoding are rejected with ErrInvalidCoordinate.
func (s *Storage) Insert(p *Point) (int, error) {
	if p.Dim() != s.dim {
		return NotFound, fmt.Errorf("point of dimension %d into storage of dimension %d: %w", p.Dim(), s.dim, ErrDimensionMismatch)
	}
	if err := p.Validate(); err != nil {
		return NotFound, fmt.Errorf("insert %v: %w", p, err)
	}
	if s.Find(p) != NotFound {
		return NotFound, fmt.Errorf("%v: %w", p, ErrDuplicatePoint)
	}
	return s.store(p.Copy()), nil
}

// store appends an owned point without the duplicate check.
func (s *Storage) store(p *Point) int {
	seq := len(s.list)
	h := p.Hash()
	head, ok := s.heads[h]
	if !ok {
		head = NotFound
	}
	s.list = append(s.list, p)
	s.next = append(s.next, head)
	s.heads[h] = seq
	return seq
}

func (s *Storage) unlink(seq int) {
	h := s.list[seq].Hash()
	head := s.heads[h]
	if head == seq {
		if s.next[seq] == NotFound {
			delete(s.heads, h)
		} else {
			s.heads[h] = s.next[seq]
		}
		return
	}
	for prev := head; prev != NotFound; prev = s.next[prev] {
		if s.next[prev] == seq {
			s.next[prev] = s.next[seq]
			return
		}
	}
}

// Update replaces the point stored under seq with a copy of p. The previous
// point is dropped from the index.
func (s *Storage) Update(p *Point, seq int) error {
	if seq < 0 || seq >= len(s.list) {
		return fmt.Errorf("update %d: %w", seq, ErrSequenceOutOfRange)
	}
	if p.Dim() != s.dim {
		return fmt.Errorf("update %d: %w", seq, ErrDimensionMismatch)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("update %d: %w", seq, err)
	}
	if other := s.Find(p); other != NotFound && other != seq {
		return fmt.Errorf("update %d with %v: %w", seq, p, ErrDuplicatePoint)
	}
	s.unlink(seq)
	np := p.Copy()
	h := np.Hash()
	head, ok := s.heads[h]
	if !ok {
		head = NotFound
	}
	s.list[seq] = np
	s.next[seq] = head
	s.heads[h] = seq
	return nil
}

// DeleteLast removes the point with the highest sequence number.
func (s *Storage) DeleteLast() {
	n := len(s.list)
	if n == 0 {
		return
	}
	s.unlink(n - 1)
	s.list[n-1] = nil
	s.list = s.list[:n-1]
	s.next = s.next[:n-1]
}

// DeletePoints removes the given sequence numbers, renumbers the survivors
// densely in their previous relative order and recalculates the leaf flags.
// It returns, for every new sequence number, the old one.
func (s *Storage) DeletePoints(remove []int) []int {
	drop := make(map[int]struct{}, len(remove))
	for _, seq := range remove {
		drop[seq] = struct{}{}
	}

	old := s.list
	s.list = make([]*Point, 0, len(old))
	s.next = make([]int, 0, len(old))
	s.heads = make(map[uint64]int, len(old))

	remaining := make([]int, 0, len(old))
	for seq, p := range old {
		if _, ok := drop[seq]; ok {
			continue
		}
		s.store(p)
		remaining = append(remaining, seq)
	}
	s.RecalcLeafProperty()
	return remaining
}

// Clear removes every point.
func (s *Storage) Clear() {
	s.list = nil
	s.next = nil
	s.heads = make(map[uint64]int)
}

// RecalcLeafProperty sets the leaf flag of every point from the children
// actually stored. On the boundary level the only child is (1, 1).
func (s *Storage) RecalcLeafProperty() {
	for _, p := range s.list {
		probe := p.Copy()
		leaf := true
		for d := 0; d < s.dim && leaf; d++ {
			l, i := p.Get(d)
			if l == 0 {
				probe.Set(d, 1, 1)
				leaf = !s.IsContaining(probe)
			} else {
				probe.Set(d, l+1, 2*i-1)
				leaf = !s.IsContaining(probe)
				if leaf {
					probe.Set(d, l+1, 2*i+1)
					leaf = !s.IsContaining(probe)
				}
			}
			probe.Set(d, l, i)
		}
		p.SetLeaf(leaf)
	}
}

// --- Algorithmic dimensions ---

// AlgorithmicDimensions returns the dimensions operators should act on.
func (s *Storage) AlgorithmicDimensions() []int {
	return slices.Clone(s.algoDims)
}

// SetAlgorithmicDimensions restricts operators to the given dimensions.
func (s *Storage) SetAlgorithmicDimensions(dims []int) error {
	if len(dims) > s.dim {
		return fmt.Errorf("%d of %d: %w", len(dims), s.dim, ErrTooManyAlgorithmicDimensions)
	}
	s.algoDims = slices.Clone(dims)
	return nil
}

// --- Geometry ---

// BoundingBox returns the domain of the grid.
func (s *Storage) BoundingBox() *BoundingBox { return s.box }

// SetBoundingBox replaces the domain of the grid.
func (s *Storage) SetBoundingBox(bb *BoundingBox) error {
	if bb.Dimension() != s.dim {
		return fmt.Errorf("bounding box of dimension %d: %w", bb.Dimension(), ErrDimensionMismatch)
	}
	s.box = bb.Copy()
	return nil
}

// Coordinate returns the position of p in dimension d inside the bounding box.
func (s *Storage) Coordinate(p *Point, d int) float64 {
	return s.box.IntervalWidth(d)*p.StandardCoordinate(d) + s.box.IntervalOffset(d)
}

// Coordinates returns the position of p inside the bounding box.
func (s *Storage) Coordinates(p *Point) []float64 {
	x := make([]float64, s.dim)
	for d := range x {
		x[d] = s.Coordinate(p, d)
	}
	return x
}

// LevelIndexArrays returns two Size() x Dimension() matrices holding 2^l and
// i of every point, the layout used by streaming evaluation kernels.
// Both are nil for an empty storage.
func (s *Storage) LevelIndexArrays() (level, index *mat.Dense) {
	if len(s.list) == 0 || s.dim == 0 {
		return nil, nil
	}
	level = mat.NewDense(len(s.list), s.dim, nil)
	index = mat.NewDense(len(s.list), s.dim, nil)
	for seq, p := range s.list {
		for d := 0; d < s.dim; d++ {
			l, i := p.Get(d)
			level.Set(seq, d, math.Ldexp(1, int(l)))
			index.Set(seq, d, float64(i))
		}
	}
	return level, index
}

// LevelForIntegral returns a Size() x Dimension() matrix holding 2^-l, or nil
// for an empty storage.
func (s *Storage) LevelForIntegral() *mat.Dense {
	if len(s.list) == 0 || s.dim == 0 {
		return nil
	}
	level := mat.NewDense(len(s.list), s.dim, nil)
	for seq, p := range s.list {
		for d := 0; d < s.dim; d++ {
			level.Set(seq, d, math.Ldexp(1, -int(p.Level(d))))
		}
	}
	return level
}

// String renders the index as "[ point -> seq, ... ]" for debugging.
func (s *Storage) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for seq, p := range s.list {
		if seq > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, " %v -> %d", p, seq)
	}
	sb.WriteString(" ]")
	return sb.String()
}
