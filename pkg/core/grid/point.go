// Package grid provides the hierarchical grid point, the hash based grid
// storage and the navigation cursor used by every sparse grid algorithm.
//
// This file defines Point, the per-point entity. A point carries one
// (level, index) pair per dimension and a leaf flag. Its identity and hash
// depend on the coordinate pairs only; the leaf flag is bookkeeping.
package grid

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Point is a grid point of a d-dimensional sparse grid.
//
// For level l >= 1 the index i is odd with 1 <= i <= 2^l - 1 and the point sits
// at i * 2^-l. Level 0 is the boundary level, where index 0 and 1 are the two
// endpoints of the unit interval.
type Point struct {
	level  []uint32
	index  []uint32
	leaf   bool
	hash   uint64
	hashed bool
}

// NewPoint returns a point of the given dimension located at the root
// (level 1, index 1) in every dimension.
func NewPoint(dim int) *Point {
	p := &Point{
		level: make([]uint32, dim),
		index: make([]uint32, dim),
	}
	for d := 0; d < dim; d++ {
		p.level[d] = 1
		p.index[d] = 1
	}
	return p
}

// PointOf builds a point from per-dimension levels and indices.
func PointOf(levels, indices []uint32) (*Point, error) {
	if len(levels) != len(indices) {
		return nil, fmt.Errorf("%d levels for %d indices: %w", len(levels), len(indices), ErrDimensionMismatch)
	}
	p := &Point{
		level: append([]uint32(nil), levels...),
		index: append([]uint32(nil), indices...),
	}
	return p, nil
}

// Copy returns a deep copy of the point, including the leaf flag.
func (p *Point) Copy() *Point {
	return &Point{
		level:  append([]uint32(nil), p.level...),
		index:  append([]uint32(nil), p.index...),
		leaf:   p.leaf,
		hash:   p.hash,
		hashed: p.hashed,
	}
}

// Assign overwrites the coordinates and leaf flag of p with those of o.
// Both points must have the same dimension.
func (p *Point) Assign(o *Point) {
	copy(p.level, o.level)
	copy(p.index, o.index)
	p.leaf = o.leaf
	p.hash = o.hash
	p.hashed = o.hashed
}

// Dim returns the number of dimensions of the point.
func (p *Point) Dim() int { return len(p.level) }

// Get returns the level and index of dimension d.
func (p *Point) Get(d int) (level, index uint32) {
	return p.level[d], p.index[d]
}

// Level returns the level of dimension d.
func (p *Point) Level(d int) uint32 { return p.level[d] }

// Index returns the index of dimension d.
func (p *Point) Index(d int) uint32 { return p.index[d] }

// Set changes the coordinate pair of dimension d. It does not touch any storage
// the point may have been copied from.
func (p *Point) Set(d int, level, index uint32) {
	p.level[d] = level
	p.index[d] = index
	p.hashed = false
}

// SetWithLeaf changes the coordinate pair of dimension d and the leaf flag.
func (p *Point) SetWithLeaf(d int, level, index uint32, leaf bool) {
	p.Set(d, level, index)
	p.leaf = leaf
}

// IsLeaf reports whether the point is flagged as having no stored children.
func (p *Point) IsLeaf() bool { return p.leaf }

// SetLeaf sets the leaf flag.
func (p *Point) SetLeaf(leaf bool) { p.leaf = leaf }

// IsInnerPoint reports whether no dimension is on the boundary level.
func (p *Point) IsInnerPoint() bool {
	for _, l := range p.level {
		if l == 0 {
			return false
		}
	}
	return true
}

// Hash returns the hash of the coordinate tuple. Points that are Equal have the
// same hash; the leaf flag does not participate.
func (p *Point) Hash() uint64 {
	if !p.hashed {
		p.rehash()
	}
	return p.hash
}

func (p *Point) rehash() {
	var stack [64]byte
	buf := stack[:0]
	if need := 8 * len(p.level); need > len(stack) {
		buf = make([]byte, 0, need)
	}
	for d := range p.level {
		buf = binary.LittleEndian.AppendUint32(buf, p.level[d])
		buf = binary.LittleEndian.AppendUint32(buf, p.index[d])
	}
	p.hash = xxhash.Sum64(buf)
	p.hashed = true
}

// Equals reports whether both points have identical (level, index) pairs in
// every dimension.
func (p *Point) Equals(o *Point) bool {
	if len(p.level) != len(o.level) {
		return false
	}
	for d := range p.level {
		if p.level[d] != o.level[d] || p.index[d] != o.index[d] {
			return false
		}
	}
	return true
}

// Validate checks the midpoint encoding of every dimension.
func (p *Point) Validate() error {
	for d := range p.level {
		l, i := p.level[d], p.index[d]
		if l == 0 {
			if i > 1 {
				return fmt.Errorf("dimension %d: level 0 index %d: %w", d, i, ErrInvalidCoordinate)
			}
			continue
		}
		if l >= 32 || i%2 == 0 || i >= uint32(1)<<l {
			return fmt.Errorf("dimension %d: level %d index %d: %w", d, l, i, ErrInvalidCoordinate)
		}
	}
	return nil
}

// StandardCoordinate returns the position of the point in dimension d inside
// the unit interval.
func (p *Point) StandardCoordinate(d int) float64 {
	if p.level[d] == 0 {
		return float64(p.index[d])
	}
	return math.Ldexp(float64(p.index[d]), -int(p.level[d]))
}

// LevelSum returns the sum of all levels (the |l|_1 norm).
func (p *Point) LevelSum() uint32 {
	var sum uint32
	for _, l := range p.level {
		sum += l
	}
	return sum
}

// LevelMax returns the largest level over all dimensions.
func (p *Point) LevelMax() uint32 {
	var maxLevel uint32
	for _, l := range p.level {
		maxLevel = max(maxLevel, l)
	}
	return maxLevel
}

// LevelMin returns the smallest level over all dimensions.
func (p *Point) LevelMin() uint32 {
	if len(p.level) == 0 {
		return 0
	}
	minLevel := p.level[0]
	for _, l := range p.level[1:] {
		minLevel = min(minLevel, l)
	}
	return minLevel
}

// String renders the point as "[l0 i0, l1 i1, ...]".
func (p *Point) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for d := range p.level {
		if d > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d %d", p.level[d], p.index[d])
	}
	sb.WriteByte(']')
	return sb.String()
}

// Parent moves p to its hierarchical parent in dimension d: one level up, the
// odd index of the neighbouring coarser node. It reports false, leaving p
// unchanged, when the level is 0 or 1 and there is no parent.
func (p *Point) Parent(d int) bool {
	l, i := p.level[d], p.index[d]
	if l <= 1 {
		return false
	}
	p.Set(d, l-1, (i>>1)|1)
	return true
}
