package refinement

import (
	"fmt"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// MultipleClassRefinement refines a combined grid and mirrors every refined
// point, together with the children it gained, into the per-class grids that
// are relevant for it: its top classes and the dominating classes of its
// border neighbours.
type MultipleClassRefinement struct {
	HashRefinement
	grids      []*grid.Storage
	table      *ClassTable
	topPercent float64
}

// NewMultipleClassRefinement returns an engine propagating into grids, one
// storage per class.
func NewMultipleClassRefinement(grids []*grid.Storage, table *ClassTable, topPercent float64) *MultipleClassRefinement {
	return &MultipleClassRefinement{
		grids:      grids,
		table:      table,
		topPercent: topPercent,
	}
}

// SetTable replaces the class table, typically after densities were
// recomputed for the grown combined grid.
func (r *MultipleClassRefinement) SetTable(t *ClassTable) { r.table = t }

// Grids returns the per-class grids.
func (r *MultipleClassRefinement) Grids() []*grid.Storage { return r.grids }

// Refine implements Refinement on the combined grid.
func (r *MultipleClassRefinement) Refine(combined *grid.Storage, f Functor) (*Report, error) {
	return refinePoints(combined, f, r)
}

// classesFor returns the classes whose grids receive the refinement of seq.
// A point without a table record is propagated to every class.
func (r *MultipleClassRefinement) classesFor(seq int) ([]int, error) {
	var cp *ClassPoint
	if r.table != nil {
		cp = r.table.Point(seq)
	}
	if cp == nil {
		all := make([]int, len(r.grids))
		for c := range all {
			all[c] = c
		}
		return all, nil
	}

	seen := make(map[int]bool)
	var out []int
	add := func(c int) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range cp.TopClasses(r.topPercent) {
		add(c)
	}
	for _, b := range cp.Borders() {
		if n := r.table.Point(b.Seq); n != nil {
			add(n.DominateClass())
		}
	}
	for _, c := range out {
		if c >= len(r.grids) {
			return nil, fmt.Errorf("class %d with %d grids: %w", c, len(r.grids), ErrClassOutOfRange)
		}
	}
	return out, nil
}

func (r *MultipleClassRefinement) refineGridpoint(combined *grid.Storage, seq int) error {
	classes, err := r.classesFor(seq)
	if err != nil {
		return err
	}
	before := combined.Size()
	if err := r.creator.refineGridpoint(combined, seq); err != nil {
		return err
	}

	p := combined.At(seq).Copy()
	for _, c := range classes {
		g := r.grids[c]
		if err := r.creator.ensure(g, p); err != nil {
			return fmt.Errorf("class %d: %w", c, err)
		}
		for k := before; k < combined.Size(); k++ {
			if err := r.creator.ensure(g, combined.At(k).Copy()); err != nil {
				return fmt.Errorf("class %d: %w", c, err)
			}
		}
	}
	return nil
}
