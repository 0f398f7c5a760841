package refinement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// childFunctor scores children through a closure over the child point.
type childFunctor struct {
	funcFunctor
	child func(parent int, child *grid.Point) float64
}

func (f childFunctor) ChildValue(_ *grid.Storage, parent int, child *grid.Point) float64 {
	return f.child(parent, child)
}

type impurityFunctor struct {
	funcFunctor
	impurity func(seq int) float64
}

func (f impurityFunctor) Impurity(_ *grid.Storage, seq int) float64 { return f.impurity(seq) }

func TestForwardSelectorCreatesOnlyChosenChild(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))
	f := childFunctor{
		funcFunctor: constant(0, 1),
		child: func(_ int, c *grid.Point) float64 {
			if c.Equals(point(t, 1, 1, 2, 3)) {
				return 2
			}
			return 1
		},
	}

	report, err := NewForwardSelectorRefinement().Refine(s, f)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Size())
	assert.Equal(t, 1, report.Created)
	assert.True(t, s.IsContaining(point(t, 1, 1, 2, 3)))
	assert.False(t, s.At(0).IsLeaf())
	requireConsistent(t, s, false)
}

func TestForwardSelectorChildTieBreak(t *testing.T) {
	s := storageOf(t, 1, point(t, 1, 1))
	report, err := NewForwardSelectorRefinement().RefineChildren(s, childFunctor{
		funcFunctor: constant(0, 1),
		child:       func(int, *grid.Point) float64 { return 1 },
	})
	require.NoError(t, err)
	require.Len(t, report.Selected, 1)
	assert.True(t, s.IsContaining(point(t, 2, 1)))
	assert.False(t, s.IsContaining(point(t, 2, 3)))
}

func TestForwardSelectorRejectsPlainFunctor(t *testing.T) {
	s := storageOf(t, 1, point(t, 1, 1))
	_, err := NewForwardSelectorRefinement().Refine(s, constant(1, 1))
	assert.ErrorIs(t, err, ErrFunctorType)
	assert.Equal(t, 1, s.Size())
}

func TestForwardSelectorRepeatedPasses(t *testing.T) {
	s := storageOf(t, 3, point(t, 1, 1, 1, 1, 1, 1))
	r := NewForwardSelectorRefinement()
	f := childFunctor{
		funcFunctor: constant(0, 3),
		child: func(parent int, c *grid.Point) float64 {
			return float64(c.LevelSum()) + float64(parent%3)
		},
	}
	for pass := 0; pass < 5; pass++ {
		report, err := r.Refine(s, f)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(report.Selected), 3)
		requireConsistent(t, s, false)
	}
}

func TestImpurityRefinementOnlyLeaves(t *testing.T) {
	s := regular(t, 1, 2)
	f := impurityFunctor{
		funcFunctor: constant(0, 1),
		impurity: func(seq int) float64 {
			// The root would win if inner points were eligible.
			return []float64{10, 1, 2}[seq]
		},
	}

	report, err := NewImpurityRefinement().Refine(s, f)
	require.NoError(t, err)
	require.Len(t, report.Selected, 1)
	assert.Equal(t, 2, report.Selected[0].Seq)
	assert.True(t, s.IsContaining(point(t, 3, 5)))
	assert.True(t, s.IsContaining(point(t, 3, 7)))
	assert.False(t, s.IsContaining(point(t, 3, 1)))
	requireConsistent(t, s, false)
}

func TestImpurityRefinementRejectsPlainFunctor(t *testing.T) {
	_, err := NewImpurityRefinement().Refine(regular(t, 1, 2), constant(1, 1))
	assert.ErrorIs(t, err, ErrFunctorType)
}

func TestSubspaceRefinement(t *testing.T) {
	t.Run("one dimension", func(t *testing.T) {
		s := storageOf(t, 1, point(t, 1, 1))
		report, err := NewSubspaceRefinement().Refine(s, constant(1, 1))
		require.NoError(t, err)
		assert.Equal(t, [][]uint32{{2}}, report.Subspaces)
		assert.Equal(t, 3, s.Size())
	})

	t.Run("ties go to the smaller level vector", func(t *testing.T) {
		s := storageOf(t, 2, point(t, 1, 1, 1, 1))
		report, err := NewSubspaceRefinement().Refine(s, constant(1, 1))
		require.NoError(t, err)
		assert.Equal(t, [][]uint32{{1, 2}}, report.Subspaces)
		assert.True(t, s.IsContaining(point(t, 1, 1, 2, 1)))
		assert.True(t, s.IsContaining(point(t, 1, 1, 2, 3)))
		assert.Equal(t, 3, s.Size())
	})

	t.Run("accumulated priority", func(t *testing.T) {
		s := regular(t, 2, 2)
		values := map[int]float64{1: 1, 2: 1, 3: 1.5}
		report, err := NewSubspaceRefinement().Refine(s, funcFunctor{
			value: func(seq int) float64 { return values[seq] },
			k:     1,
		})
		require.NoError(t, err)
		// [2 2] collects from the level 2 points of both dimensions and
		// outweighs [3 1] although seq 3 holds the largest single value.
		assert.Equal(t, [][]uint32{{2, 2}}, report.Subspaces)
		assert.Equal(t, s.Size()-report.SizeBefore, report.Created)
		assert.Equal(t, 4, report.Created)
		requireConsistent(t, s, false)
	})
}

func TestCreateSubspaceWithAncestors(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))
	require.NoError(t, NewSubspaceRefinement().CreateSubspace(s, []uint32{2, 2}))
	// The subspace [2 2] plus its parents in [1 2] and [2 1].
	assert.Equal(t, 9, s.Size())
	requireConsistent(t, s, false)

	assert.ErrorIs(t, NewSubspaceRefinement().CreateSubspace(s, []uint32{1}), grid.ErrDimensionMismatch)
}
