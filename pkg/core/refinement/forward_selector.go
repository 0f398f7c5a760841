package refinement

import (
	"log/slog"
	"math"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/types"
)

// ForwardSelectorRefinement ranks every missing child of every stored point
// on its own and creates only the selected children, each together with its
// missing ancestors.
type ForwardSelectorRefinement struct {
	creator creator
}

// NewForwardSelectorRefinement returns a forward selector for grids without
// boundary.
func NewForwardSelectorRefinement() *ForwardSelectorRefinement {
	return &ForwardSelectorRefinement{}
}

// Refine implements Refinement. f must implement ForwardSelectorIndicator.
func (r *ForwardSelectorRefinement) Refine(s *grid.Storage, f Functor) (*Report, error) {
	ind, ok := f.(ForwardSelectorIndicator)
	if !ok {
		return nil, ErrFunctorType
	}
	return r.RefineChildren(s, ind)
}

// NumberOfRefinablePoints implements Refinement.
func (r *ForwardSelectorRefinement) NumberOfRefinablePoints(s *grid.Storage) int {
	return countRefinable(s)
}

// RefineChildren runs one pass selecting at most ind.RefinementsNum() children.
func (r *ForwardSelectorRefinement) RefineChildren(s *grid.Storage, ind ForwardSelectorIndicator) (*Report, error) {
	if s.Size() == 0 {
		return nil, ErrEmptyStorage
	}
	minimize := minimizes(ind)
	threshold := ind.Threshold()
	sel := newSelector(ind.RefinementsNum(), childOrder(minimize))

	for seq, p := range s.All() {
		child := p.Copy()
		for d := 0; d < p.Dim(); d++ {
			l, i := p.Get(d)
			children(l, i, func(cl, ci uint32, right bool) {
				child.Set(d, cl, ci)
				if s.IsContaining(child) {
					return
				}
				v := ind.ChildValue(s, seq, child)
				if math.IsNaN(v) || !exceeds(v, threshold, minimize) {
					return
				}
				sel.offer(types.ChildCandidate{
					Candidate: types.Candidate{Seq: seq, Priority: v},
					Dim:       d,
					Right:     right,
				})
			})
			child.Set(d, l, i)
		}
	}

	chosen := sel.best()
	report := &Report{SizeBefore: s.Size(), Selected: make([]types.Candidate, 0, len(chosen))}
	for _, c := range chosen {
		child := s.At(c.Seq).Copy()
		l, i := child.Get(c.Dim)
		children(l, i, func(cl, ci uint32, right bool) {
			if right == c.Right {
				child.Set(c.Dim, cl, ci)
			}
		})
		// An earlier child may already have created this one as an ancestor.
		if err := r.creator.ensure(s, child); err != nil {
			return nil, err
		}
		report.Selected = append(report.Selected, c.Candidate)
	}
	report.Created = s.Size() - report.SizeBefore

	slog.Debug("forward selection pass finished",
		"selected", len(report.Selected),
		"created", report.Created)
	return report, nil
}
