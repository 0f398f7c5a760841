package refinement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// funcFunctor adapts a closure over sequence numbers to Functor.
type funcFunctor struct {
	value     func(seq int) float64
	k         int
	threshold float64
	minimize  bool
}

func (f funcFunctor) Value(_ *grid.Storage, seq int) float64 { return f.value(seq) }
func (f funcFunctor) RefinementsNum() int                    { return f.k }
func (f funcFunctor) Threshold() float64                     { return f.threshold }
func (f funcFunctor) Minimize() bool                         { return f.minimize }

func constant(v float64, k int) funcFunctor {
	return funcFunctor{value: func(int) float64 { return v }, k: k}
}

func point(t testing.TB, pairs ...uint32) *grid.Point {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	levels := make([]uint32, 0, len(pairs)/2)
	indices := make([]uint32, 0, len(pairs)/2)
	for k := 0; k < len(pairs); k += 2 {
		levels = append(levels, pairs[k])
		indices = append(indices, pairs[k+1])
	}
	p, err := grid.PointOf(levels, indices)
	require.NoError(t, err)
	return p
}

func storageOf(t testing.TB, dim int, points ...*grid.Point) *grid.Storage {
	t.Helper()
	s := grid.NewStorage(dim)
	for _, p := range points {
		_, err := s.Insert(p)
		require.NoError(t, err)
	}
	s.RecalcLeafProperty()
	return s
}

// regular returns the inner grid with level sum at most n + dim - 1.
func regular(t testing.TB, dim int, n uint32) *grid.Storage {
	t.Helper()
	s := grid.NewStorage(dim)
	var rec func(p *grid.Point, d int, budget uint32)
	rec = func(p *grid.Point, d int, budget uint32) {
		if d == dim {
			_, err := s.Insert(p)
			require.NoError(t, err)
			return
		}
		for l := uint32(1); l <= budget; l++ {
			for i := uint32(1); i < uint32(1)<<l; i += 2 {
				p.Set(d, l, i)
				rec(p, d+1, budget-l+1)
			}
		}
	}
	rec(grid.NewPoint(dim), 0, n)
	s.RecalcLeafProperty()
	return s
}

// requireConsistent checks downward closure and exact leaf flags.
func requireConsistent(t *testing.T, s *grid.Storage, boundaries bool) {
	t.Helper()
	for _, p := range s.All() {
		probe := p.Copy()
		hasChild := false
		for d := 0; d < s.Dimension(); d++ {
			l, i := p.Get(d)
			switch {
			case l > 1:
				probe.Set(d, l-1, (i>>1)|1)
				require.True(t, s.IsContaining(probe), "parent of %v in dim %d missing", p, d)
			case l == 1 && boundaries:
				probe.Set(d, 0, 0)
				require.True(t, s.IsContaining(probe), "left boundary of %v in dim %d missing", p, d)
				probe.Set(d, 0, 1)
				require.True(t, s.IsContaining(probe), "right boundary of %v in dim %d missing", p, d)
			case l == 0:
				probe.Set(d, 0, 1-i)
				require.True(t, s.IsContaining(probe), "twin of %v in dim %d missing", p, d)
			}
			if l == 0 {
				probe.Set(d, 1, 1)
				hasChild = hasChild || s.IsContaining(probe)
			} else {
				for _, c := range []uint32{2*i - 1, 2*i + 1} {
					probe.Set(d, l+1, c)
					hasChild = hasChild || s.IsContaining(probe)
				}
			}
			probe.Set(d, l, i)
		}
		assert.Equal(t, !hasChild, p.IsLeaf(), "leaf flag of %v", p)
	}
}

func TestHashRefinementRoot(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))

	report, err := NewHashRefinement().Refine(s, constant(1, 1))
	require.NoError(t, err)

	assert.Equal(t, 5, s.Size())
	assert.Equal(t, 4, report.Created)
	require.Len(t, report.Selected, 1)
	assert.Equal(t, 0, report.Selected[0].Seq)
	assert.False(t, s.At(0).IsLeaf())
	for _, p := range []*grid.Point{
		point(t, 2, 1, 1, 1), point(t, 2, 3, 1, 1),
		point(t, 1, 1, 2, 1), point(t, 1, 1, 2, 3),
	} {
		seq := s.Find(p)
		require.NotEqual(t, grid.NotFound, seq, "missing %v", p)
		assert.True(t, s.At(seq).IsLeaf())
	}
	requireConsistent(t, s, false)
}

func TestHashRefinementEmptyStorage(t *testing.T) {
	_, err := NewHashRefinement().Refine(grid.NewStorage(2), constant(1, 1))
	assert.ErrorIs(t, err, ErrEmptyStorage)
}

func TestHashRefinementNoEligibleCandidates(t *testing.T) {
	s := regular(t, 2, 3)
	before := s.String()

	report, err := NewHashRefinement().Refine(s, funcFunctor{
		value:     func(int) float64 { return 1 },
		k:         4,
		threshold: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Empty(t, report.Selected)
	assert.Equal(t, before, s.String())
}

func TestHashRefinementBoundedGrowth(t *testing.T) {
	s := regular(t, 3, 3)
	n := s.Size()
	const k = 3

	report, err := NewHashRefinement().Refine(s, funcFunctor{
		value: func(seq int) float64 { return float64(seq % 7) },
		k:     k,
	})
	require.NoError(t, err)
	require.Len(t, report.Selected, k)
	// Without missing ancestors every refined point adds at most 2 children per dimension.
	assert.LessOrEqual(t, s.Size()-n, k*2*3)
	assert.Equal(t, s.Size()-n, report.Created)
	requireConsistent(t, s, false)

	for j := 1; j < len(report.Selected); j++ {
		assert.GreaterOrEqual(t, report.Selected[j-1].Priority, report.Selected[j].Priority)
	}
}

func TestHashRefinementTieBreaksOnSequence(t *testing.T) {
	s := regular(t, 1, 2)
	report, err := NewHashRefinement().Refine(s, constant(1, 1))
	require.NoError(t, err)
	require.Len(t, report.Selected, 1)
	// The root already has both children, so the first leaf wins.
	assert.Equal(t, 1, report.Selected[0].Seq)
}

func TestHashRefinementUsesAbsoluteValue(t *testing.T) {
	s := regular(t, 1, 2)
	values := map[int]float64{1: 0.5, 2: -3}
	report, err := NewHashRefinement().Refine(s, funcFunctor{
		value: func(seq int) float64 { return values[seq] },
		k:     1,
	})
	require.NoError(t, err)
	require.Len(t, report.Selected, 1)
	assert.Equal(t, 2, report.Selected[0].Seq)
	assert.Equal(t, 3.0, report.Selected[0].Priority)
}

func TestHashRefinementMinimizer(t *testing.T) {
	s := regular(t, 1, 2)
	values := map[int]float64{1: 0.5, 2: 0.1}
	report, err := NewHashRefinement().Refine(s, funcFunctor{
		value:     func(seq int) float64 { return values[seq] },
		k:         1,
		threshold: 1,
		minimize:  true,
	})
	require.NoError(t, err)
	require.Len(t, report.Selected, 1)
	assert.Equal(t, 2, report.Selected[0].Seq)
}

func TestHashRefinementRepeatedPasses(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))
	r := NewHashRefinement()
	for pass := 0; pass < 6; pass++ {
		_, err := r.Refine(s, funcFunctor{
			value: func(seq int) float64 { return float64((seq*31)%11) + 1 },
			k:     2,
		})
		require.NoError(t, err)
		requireConsistent(t, s, false)
	}
}

func TestNumberOfRefinablePoints(t *testing.T) {
	s := regular(t, 1, 2)
	assert.Equal(t, 2, NewHashRefinement().NumberOfRefinablePoints(s))
}

func TestCreatorClosesDownward(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))
	c := creator{}

	require.NoError(t, c.ensure(s, point(t, 3, 3, 2, 1)))

	assert.Equal(t, 6, s.Size())
	requireConsistent(t, s, false)
	leaves := 0
	for _, p := range s.All() {
		if p.IsLeaf() {
			leaves++
			assert.True(t, p.Equals(point(t, 3, 3, 2, 1)))
		}
	}
	assert.Equal(t, 1, leaves)
}

func TestBoundariesCreateLevelZero(t *testing.T) {
	s := storageOf(t, 1, point(t, 1, 1))

	_, err := NewHashRefinementBoundaries().Refine(s, constant(1, 1))
	require.NoError(t, err)

	assert.Equal(t, 5, s.Size())
	for _, p := range []*grid.Point{point(t, 0, 0), point(t, 0, 1), point(t, 2, 1), point(t, 2, 3)} {
		assert.True(t, s.IsContaining(p), "missing %v", p)
	}
	requireConsistent(t, s, true)
}

func TestBoundariesTwoDimensions(t *testing.T) {
	s := storageOf(t, 2, point(t, 1, 1, 1, 1))
	r := NewHashRefinementBoundaries()

	_, err := r.Refine(s, constant(1, 1))
	require.NoError(t, err)
	// The 3x3 level 1 boundary grid, the four children of the root and the
	// boundary points each child needs in its other dimension.
	assert.Equal(t, 21, s.Size())
	requireConsistent(t, s, true)

	for pass := 0; pass < 4; pass++ {
		_, err := r.Refine(s, funcFunctor{
			value: func(seq int) float64 { return float64(seq%5) + 1 },
			k:     2,
		})
		require.NoError(t, err)
		requireConsistent(t, s, true)
	}
}

func TestBoundariesRefineLevelZero(t *testing.T) {
	s := storageOf(t, 1, point(t, 0, 0), point(t, 0, 1))

	_, err := NewHashRefinementBoundaries().Refine(s, constant(1, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Size())
	assert.True(t, s.IsContaining(point(t, 1, 1)))
	requireConsistent(t, s, true)
}

func TestMaxLevelRefinement(t *testing.T) {
	s := storageOf(t, 1, point(t, 0, 0), point(t, 0, 1), point(t, 1, 1))
	r := NewMaxLevelRefinement(2)

	for pass := 0; pass < 5; pass++ {
		_, err := r.Refine(s, constant(1, 4))
		require.NoError(t, err)
	}

	assert.Equal(t, uint32(2), r.MaxLevel())
	assert.Equal(t, 2, s.MaxLevel())
	assert.Equal(t, 5, s.Size())
	assert.Zero(t, r.NumberOfRefinablePoints(s))
	requireConsistent(t, s, true)
}

// BenchmarkHashRefinement measures a pass that refines the 100 best of a
// regular 3D grid of level 6.
func BenchmarkHashRefinement(b *testing.B) {
	base := regular(b, 3, 6)
	f := funcFunctor{value: func(seq int) float64 { return float64(seq % 97) }, k: 100}
	r := NewHashRefinement()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		s := base.Clone()
		b.StartTimer()
		if _, err := r.Refine(s, f); err != nil {
			b.Fatal(err)
		}
	}
}
