// Package refinement implements adaptive refinement of sparse grids.
//
// Every engine runs the same two phase pass over a grid.Storage: candidates
// are collected and ranked over a stable snapshot of the storage, and only
// then are the selected points refined, appending new points with new
// sequence numbers. The engines differ in which points are eligible, where
// the priority comes from and how children are created.
package refinement

import (
	"errors"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

var (
	// ErrEmptyStorage is returned when refining a storage without points.
	ErrEmptyStorage = errors.New("storage empty")
	// ErrFunctorType is returned when an engine receives a functor that lacks
	// the indicator interface it requires.
	ErrFunctorType = errors.New("functor does not implement the required indicator")
	// ErrClassOutOfRange is returned when a multi-class table names a class
	// without a grid.
	ErrClassOutOfRange = errors.New("class out of range")
)

// Functor supplies the per-point priority and the parameters of a pass.
type Functor interface {
	// Value returns the refinement priority of the stored point seq.
	Value(s *grid.Storage, seq int) float64
	// RefinementsNum is the maximum number of candidates refined per pass.
	RefinementsNum() int
	// Threshold is the value a priority has to exceed to be eligible.
	Threshold() float64
}

// Minimizer is implemented by cost-style functors. When Minimize reports true,
// lower values are preferred and a priority must be below the threshold.
type Minimizer interface {
	Minimize() bool
}

// ForwardSelectorIndicator ranks individual missing children instead of whole
// points. It is required by ForwardSelectorRefinement.
type ForwardSelectorIndicator interface {
	Functor
	// ChildValue returns the priority of creating child, a missing child of
	// the stored point parentSeq.
	ChildValue(s *grid.Storage, parentSeq int, child *grid.Point) float64
}

// ImpurityIndicator ranks leaves by the impurity of their support. It is
// required by ImpurityRefinement.
type ImpurityIndicator interface {
	Functor
	// Impurity returns the impurity measured around the stored point seq.
	Impurity(s *grid.Storage, seq int) float64
}

func minimizes(f Functor) bool {
	m, ok := f.(Minimizer)
	return ok && m.Minimize()
}
