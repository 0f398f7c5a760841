package refinement

import (
	"math"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// HashRefinement refines the points with the largest absolute functor values
// by creating all of their missing children. Missing ancestors of new points
// are created as well.
type HashRefinement struct {
	creator creator
}

// NewHashRefinement returns the standard engine for grids without boundary.
func NewHashRefinement() *HashRefinement {
	return &HashRefinement{}
}

// Refine implements Refinement.
func (r *HashRefinement) Refine(s *grid.Storage, f Functor) (*Report, error) {
	return refinePoints(s, f, r)
}

// NumberOfRefinablePoints implements Refinement.
func (r *HashRefinement) NumberOfRefinablePoints(s *grid.Storage) int {
	return countRefinable(s)
}

func (r *HashRefinement) eligible(s *grid.Storage, p *grid.Point) bool {
	return p.IsLeaf() || hasMissingChild(s, p)
}

func (r *HashRefinement) priority(s *grid.Storage, f Functor, seq int) float64 {
	v := f.Value(s, seq)
	if minimizes(f) {
		return v
	}
	return math.Abs(v)
}

func (r *HashRefinement) refineGridpoint(s *grid.Storage, seq int) error {
	return r.creator.refineGridpoint(s, seq)
}

// HashRefinementBoundaries refines grids that carry points on the boundary of
// the domain. A level 0 coordinate has the single child (1, 1), creating a
// level 1 coordinate creates both level 0 points of that dimension, and level
// 0 points are always stored in pairs.
type HashRefinementBoundaries struct {
	HashRefinement
}

// NewHashRefinementBoundaries returns the engine for grids with boundary.
func NewHashRefinementBoundaries() *HashRefinementBoundaries {
	return &HashRefinementBoundaries{HashRefinement{creator: creator{boundaries: true}}}
}

// Refine implements Refinement.
func (r *HashRefinementBoundaries) Refine(s *grid.Storage, f Functor) (*Report, error) {
	return refinePoints(s, f, r)
}

// MaxLevelRefinement is a boundary refinement that never creates a coordinate
// above a fixed level.
type MaxLevelRefinement struct {
	HashRefinement
	maxLevel uint32
}

// NewMaxLevelRefinement returns a boundary refinement capped at maxLevel.
func NewMaxLevelRefinement(maxLevel uint32) *MaxLevelRefinement {
	return &MaxLevelRefinement{
		HashRefinement: HashRefinement{creator: creator{boundaries: true}},
		maxLevel:       maxLevel,
	}
}

// MaxLevel returns the cap.
func (r *MaxLevelRefinement) MaxLevel() uint32 { return r.maxLevel }

// Refine implements Refinement.
func (r *MaxLevelRefinement) Refine(s *grid.Storage, f Functor) (*Report, error) {
	return refinePoints(s, f, r)
}

// NumberOfRefinablePoints counts the points with a missing child below the cap.
func (r *MaxLevelRefinement) NumberOfRefinablePoints(s *grid.Storage) int {
	n := 0
	for _, p := range s.All() {
		if r.eligible(s, p) {
			n++
		}
	}
	return n
}

func (r *MaxLevelRefinement) eligible(s *grid.Storage, p *grid.Point) bool {
	probe := p.Copy()
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		if l >= r.maxLevel {
			continue
		}
		missing := false
		children(l, i, func(cl, ci uint32, _ bool) {
			probe.Set(d, cl, ci)
			missing = missing || !s.IsContaining(probe)
		})
		probe.Set(d, l, i)
		if missing {
			return true
		}
	}
	return false
}

func (r *MaxLevelRefinement) refineGridpoint(s *grid.Storage, seq int) error {
	p := s.At(seq).Copy()
	if err := r.creator.closeDownward(s, p); err != nil {
		return err
	}
	for d := 0; d < p.Dim(); d++ {
		if p.Level(d) >= r.maxLevel {
			continue
		}
		if err := r.creator.refine1D(s, p, d); err != nil {
			return err
		}
	}
	return nil
}
