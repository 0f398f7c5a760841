// Package operation implements the piecewise linear hat basis on a sparse grid:
// conversion of nodal values to hierarchical surpluses and evaluation of the
// resulting interpolant.
//
// Inner points use phi_{l,i}(x) = max(0, 1 - |2^l x - i|). Level 0 points, when
// present, use 1 - x and x. Grids without level 0 points vanish on the
// boundary.
package operation

import (
	"fmt"
	"math"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// Hierarchize converts the nodal values of s into hierarchical surpluses in
// place. values is indexed by sequence number.
func Hierarchize(s *grid.Storage, values []float64) error {
	if len(values) != s.Size() {
		return fmt.Errorf("hierarchize %d values on %d points: %w", len(values), s.Size(), grid.ErrDimensionMismatch)
	}
	for d := 0; d < s.Dimension(); d++ {
		sweep(s, d, values, hierarchize1D)
	}
	return nil
}

// Dehierarchize converts surpluses back to nodal values in place.
func Dehierarchize(s *grid.Storage, alpha []float64) error {
	if len(alpha) != s.Size() {
		return fmt.Errorf("dehierarchize %d values on %d points: %w", len(alpha), s.Size(), grid.ErrDimensionMismatch)
	}
	for d := s.Dimension() - 1; d >= 0; d-- {
		sweep(s, d, alpha, dehierarchize1D)
	}
	return nil
}

type poleFunc func(it *grid.Iterator, d int, values []float64, fl, fr float64)

// sweep applies fn to every one dimensional pole of dimension d. A pole is
// identified by its member at (1, 1) in dimension d.
func sweep(s *grid.Storage, d int, values []float64, fn poleFunc) {
	for _, p := range s.All() {
		if l, i := p.Get(d); l != 1 || i != 1 {
			continue
		}
		it := grid.NewIteratorAt(s, p)
		var fl, fr float64
		it.ResetToLeftLevelZero(d)
		if seq := it.Seq(); seq != grid.NotFound {
			fl = values[seq]
		}
		it.ResetToRightLevelZero(d)
		if seq := it.Seq(); seq != grid.NotFound {
			fr = values[seq]
		}
		it.ResetToLevelOne(d)
		fn(it, d, values, fl, fr)
	}
}

// hierarchize1D walks the pole below the iterator position. fl and fr are the
// nodal values at the ends of the current support.
func hierarchize1D(it *grid.Iterator, d int, values []float64, fl, fr float64) {
	seq := it.Seq()
	if seq == grid.NotFound {
		return
	}
	fm := values[seq]
	values[seq] = fm - (fl+fr)/2

	it.LeftChild(d)
	hierarchize1D(it, d, values, fl, fm)
	it.Up(d)
	it.RightChild(d)
	hierarchize1D(it, d, values, fm, fr)
	it.Up(d)
}

// dehierarchize1D is the inverse of hierarchize1D.
func dehierarchize1D(it *grid.Iterator, d int, values []float64, fl, fr float64) {
	seq := it.Seq()
	if seq == grid.NotFound {
		return
	}
	fm := values[seq] + (fl+fr)/2
	values[seq] = fm

	it.LeftChild(d)
	dehierarchize1D(it, d, values, fl, fm)
	it.Up(d)
	it.RightChild(d)
	dehierarchize1D(it, d, values, fm, fr)
	it.Up(d)
}

// basis returns phi_{l,i}(x) for x in the unit interval.
func basis(l, i uint32, x float64) float64 {
	if l == 0 {
		if i == 0 {
			return 1 - x
		}
		return x
	}
	return math.Max(0, 1-math.Abs(math.Ldexp(x, int(l))-float64(i)))
}
