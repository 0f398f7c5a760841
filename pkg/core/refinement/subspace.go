package refinement

import (
	"log/slog"
	"math"
	"slices"

	"github.com/tidwall/btree"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/types"
)

// SubspaceRefinement refines whole hierarchical subspaces instead of single
// points. The priority of a point is credited to every subspace that would
// receive one of its missing children; the subspaces with the highest
// accumulated priority are then created completely.
type SubspaceRefinement struct {
	creator creator
}

// NewSubspaceRefinement returns a subspace engine for grids without boundary.
func NewSubspaceRefinement() *SubspaceRefinement {
	return &SubspaceRefinement{}
}

// subspaceItem accumulates the priority credited to one level vector.
type subspaceItem struct {
	levels   []uint32
	priority float64
}

func subspaceLess(a, b subspaceItem) bool {
	return slices.Compare(a.levels, b.levels) < 0
}

// NumberOfRefinablePoints implements Refinement.
func (r *SubspaceRefinement) NumberOfRefinablePoints(s *grid.Storage) int {
	return countRefinable(s)
}

// Refine implements Refinement. Report.Subspaces lists the created level
// vectors and the sequence numbers in Report.Selected are positions in the
// ordered set of candidate subspaces.
func (r *SubspaceRefinement) Refine(s *grid.Storage, f Functor) (*Report, error) {
	if s.Size() == 0 {
		return nil, ErrEmptyStorage
	}
	minimize := minimizes(f)

	subspaces := btree.NewBTreeG[subspaceItem](subspaceLess)
	levels := make([]uint32, s.Dimension())
	for seq, p := range s.All() {
		v := f.Value(s, seq)
		if math.IsNaN(v) {
			continue
		}
		if !minimize {
			v = math.Abs(v)
		}
		probe := p.Copy()
		for d := 0; d < p.Dim(); d++ {
			l, i := p.Get(d)
			missing := false
			children(l, i, func(cl, ci uint32, _ bool) {
				probe.Set(d, cl, ci)
				missing = missing || !s.IsContaining(probe)
			})
			probe.Set(d, l, i)
			if !missing {
				continue
			}
			for k := range levels {
				levels[k] = p.Level(k)
			}
			levels[d]++
			key := subspaceItem{levels: levels}
			if item, ok := subspaces.Get(key); ok {
				item.priority += v
				subspaces.Set(item)
			} else {
				subspaces.Set(subspaceItem{levels: slices.Clone(levels), priority: v})
			}
		}
	}

	sel := newSelector(f.RefinementsNum(), candidateOrder(minimize))
	ordered := make([]subspaceItem, 0, subspaces.Len())
	subspaces.Scan(func(item subspaceItem) bool {
		if exceeds(item.priority, f.Threshold(), minimize) {
			sel.offer(types.Candidate{Seq: len(ordered), Priority: item.priority})
		}
		ordered = append(ordered, item)
		return true
	})

	report := &Report{Selected: sel.best(), SizeBefore: s.Size()}
	for _, c := range report.Selected {
		lv := ordered[c.Seq].levels
		if err := r.CreateSubspace(s, lv); err != nil {
			return nil, err
		}
		report.Subspaces = append(report.Subspaces, lv)
	}
	report.Created = s.Size() - report.SizeBefore

	slog.Debug("subspace refinement pass finished",
		"candidates", len(ordered),
		"selected", len(report.Selected),
		"created", report.Created)
	return report, nil
}

// CreateSubspace stores every point of the subspace with the given level
// vector, together with any missing ancestors.
func (r *SubspaceRefinement) CreateSubspace(s *grid.Storage, levels []uint32) error {
	if len(levels) != s.Dimension() {
		return grid.ErrDimensionMismatch
	}
	p := grid.NewPoint(len(levels))
	var fill func(d int) error
	fill = func(d int) error {
		if d == len(levels) {
			return r.creator.ensure(s, p)
		}
		l := levels[d]
		first, step := uint32(1), uint32(2)
		if l == 0 {
			first, step = 0, 1
		}
		for i := first; i < max(uint32(1)<<l, 2); i += step {
			p.Set(d, l, i)
			if err := fill(d + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return fill(0)
}
