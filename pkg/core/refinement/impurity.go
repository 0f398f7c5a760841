package refinement

import (
	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// ImpurityRefinement refines the leaves whose support shows the highest
// impurity, as reported by an ImpurityIndicator.
type ImpurityRefinement struct {
	HashRefinement
}

// NewImpurityRefinement returns an impurity driven engine for grids without
// boundary.
func NewImpurityRefinement() *ImpurityRefinement {
	return &ImpurityRefinement{}
}

// Refine implements Refinement. f must implement ImpurityIndicator.
func (r *ImpurityRefinement) Refine(s *grid.Storage, f Functor) (*Report, error) {
	ind, ok := f.(ImpurityIndicator)
	if !ok {
		return nil, ErrFunctorType
	}
	return r.RefineImpurity(s, ind)
}

// RefineImpurity runs one pass ranked by ind.Impurity.
func (r *ImpurityRefinement) RefineImpurity(s *grid.Storage, ind ImpurityIndicator) (*Report, error) {
	return refinePoints(s, ind, r)
}

func (r *ImpurityRefinement) eligible(_ *grid.Storage, p *grid.Point) bool {
	return p.IsLeaf()
}

func (r *ImpurityRefinement) priority(s *grid.Storage, f Functor, seq int) float64 {
	return f.(ImpurityIndicator).Impurity(s, seq)
}
