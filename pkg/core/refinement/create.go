package refinement

import (
	"fmt"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// creator inserts points so that the storage stays downward closed and every
// leaf flag reflects whether a child of the point is stored.
//
// With boundaries set, a level 1 coordinate also requires both level 0 points
// of its dimension, and level 0 points always come in pairs.
type creator struct {
	boundaries bool
}

// children calls fn with the child coordinates of (l, i) in one dimension.
// The only child of a level 0 coordinate is (1, 1).
func children(l, i uint32, fn func(cl, ci uint32, right bool)) {
	if l == 0 {
		fn(1, 1, i == 1)
		return
	}
	fn(l+1, 2*i-1, false)
	fn(l+1, 2*i+1, true)
}

// hasStoredChild reports whether any child of p in any dimension is stored.
func hasStoredChild(s *grid.Storage, p *grid.Point) bool {
	probe := p.Copy()
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		found := false
		children(l, i, func(cl, ci uint32, _ bool) {
			probe.Set(d, cl, ci)
			found = found || s.IsContaining(probe)
		})
		probe.Set(d, l, i)
		if found {
			return true
		}
	}
	return false
}

// hasMissingChild reports whether at least one child of p is not stored.
func hasMissingChild(s *grid.Storage, p *grid.Point) bool {
	probe := p.Copy()
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
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

// parents calls fn for every hierarchical parent coordinate of (l, i). A level
// 1 coordinate has the two level 0 endpoints as parents when boundaries are
// in use.
func (c creator) parents(l, i uint32, fn func(pl, pi uint32)) {
	switch {
	case l > 1:
		fn(l-1, (i>>1)|1)
	case l == 1 && c.boundaries:
		fn(0, 0)
		fn(0, 1)
	}
}

// refineGridpoint creates every missing child of the stored point seq.
func (c creator) refineGridpoint(s *grid.Storage, seq int) error {
	p := s.At(seq).Copy()
	if c.boundaries {
		// A boundary grid may have been seeded without its level 0 points.
		if err := c.closeDownward(s, p); err != nil {
			return err
		}
	}
	for d := 0; d < p.Dim(); d++ {
		if err := c.refine1D(s, p, d); err != nil {
			return err
		}
	}
	return nil
}

// refine1D creates the missing children of p in dimension d.
func (c creator) refine1D(s *grid.Storage, p *grid.Point, d int) error {
	l, i := p.Get(d)
	var err error
	children(l, i, func(cl, ci uint32, _ bool) {
		if err != nil {
			return
		}
		p.Set(d, cl, ci)
		err = c.ensure(s, p)
	})
	p.Set(d, l, i)
	return err
}

// ensure makes sure p is stored, creating it together with its missing
// ancestors. p is restored before returning.
func (c creator) ensure(s *grid.Storage, p *grid.Point) error {
	if s.IsContaining(p) {
		return nil
	}
	return c.createGridpoint(s, p)
}

// createGridpoint inserts the missing point p after its ancestors.
func (c creator) createGridpoint(s *grid.Storage, p *grid.Point) error {
	if err := c.closeDownward(s, p); err != nil {
		return err
	}

	p.SetLeaf(!hasStoredChild(s, p))
	if _, err := s.Insert(p); err != nil {
		return fmt.Errorf("create %v: %w", p, err)
	}
	c.clearParentLeaves(s, p)

	if c.boundaries {
		return c.levelZeroConsistency(s, p)
	}
	return nil
}

// closeDownward ensures every parent of p is stored.
func (c creator) closeDownward(s *grid.Storage, p *grid.Point) error {
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		var err error
		c.parents(l, i, func(pl, pi uint32) {
			if err != nil {
				return
			}
			p.Set(d, pl, pi)
			err = c.ensure(s, p)
		})
		p.Set(d, l, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// clearParentLeaves marks every stored parent of p as an inner node of the tree.
func (c creator) clearParentLeaves(s *grid.Storage, p *grid.Point) {
	probe := p.Copy()
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		// Level 0 endpoints also count as parents of level 1 in grids
		// without boundary closure.
		if l == 1 {
			for _, bi := range []uint32{0, 1} {
				probe.Set(d, 0, bi)
				if seq := s.Find(probe); seq != grid.NotFound {
					s.At(seq).SetLeaf(false)
				}
			}
		} else if l > 1 {
			probe.Set(d, l-1, (i>>1)|1)
			if seq := s.Find(probe); seq != grid.NotFound {
				s.At(seq).SetLeaf(false)
			}
		}
		probe.Set(d, l, i)
	}
}

// levelZeroConsistency stores the twin of every level 0 coordinate of p.
func (c creator) levelZeroConsistency(s *grid.Storage, p *grid.Point) error {
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		if l != 0 {
			continue
		}
		p.Set(d, 0, 1-i)
		err := c.ensure(s, p)
		p.Set(d, l, i)
		if err != nil {
			return err
		}
	}
	return nil
}
