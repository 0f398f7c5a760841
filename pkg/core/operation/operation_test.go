package operation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/sparsegrid/pkg/core/generation"
	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/refinement"
)

func nodal(s *grid.Storage, f func(x []float64) float64) []float64 {
	values := make([]float64, s.Size())
	for seq, p := range s.All() {
		values[seq] = f(s.Coordinates(p))
	}
	return values
}

func bump(x []float64) float64 {
	v := 1.0
	for _, xi := range x {
		v *= 4 * xi * (1 - xi)
	}
	return v
}

func TestHierarchize1D(t *testing.T) {
	s := grid.NewStorage(1)
	require.NoError(t, generation.Regular(s, 2))
	alpha := nodal(s, func(x []float64) float64 { return x[0] * (1 - x[0]) })

	require.NoError(t, Hierarchize(s, alpha))
	want := map[string]float64{"[1 1]": 0.25, "[2 1]": 0.0625, "[2 3]": 0.0625}
	for seq, p := range s.All() {
		assert.InDelta(t, want[p.String()], alpha[seq], 1e-12, "surplus of %v", p)
	}
}

func TestHierarchizeInterpolates(t *testing.T) {
	s := grid.NewStorage(3)
	require.NoError(t, generation.Regular(s, 4))
	values := nodal(s, bump)
	alpha := append([]float64(nil), values...)
	require.NoError(t, Hierarchize(s, alpha))

	for seq, p := range s.All() {
		got, err := EvaluateAt(s, alpha, s.Coordinates(p))
		require.NoError(t, err)
		assert.InDelta(t, values[seq], got, 1e-12, "node %v", p)
	}
}

func TestDehierarchizeInverts(t *testing.T) {
	s := grid.NewStorage(2)
	require.NoError(t, generation.RegularWithBoundaries(s, 3))
	values := nodal(s, func(x []float64) float64 { return x[0]*x[0] + x[1] })
	alpha := append([]float64(nil), values...)

	require.NoError(t, Hierarchize(s, alpha))
	assert.False(t, floats.EqualApprox(values, alpha, 1e-12))
	require.NoError(t, Dehierarchize(s, alpha))
	assert.True(t, floats.EqualApprox(values, alpha, 1e-12))
}

func TestBoundaryGridReproducesBilinear(t *testing.T) {
	s := grid.NewStorage(2)
	require.NoError(t, generation.RegularWithBoundaries(s, 2))
	f := func(x []float64) float64 { return 1 + x[0] + 2*x[1] + x[0]*x[1] }
	alpha := nodal(s, f)
	require.NoError(t, Hierarchize(s, alpha))

	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 50; n++ {
		x := []float64{rng.Float64(), rng.Float64()}
		got, err := EvaluateAt(s, alpha, x)
		require.NoError(t, err)
		assert.InDelta(t, f(x), got, 1e-12, "at %v", x)
	}
}

// pick rates a single sequence number above the threshold.
type pick int

func (p pick) Value(_ *grid.Storage, seq int) float64 {
	if seq == int(p) {
		return 1
	}
	return 0
}
func (pick) RefinementsNum() int { return 1 }
func (pick) Threshold() float64  { return 0 }

func TestRefinedBoundaryGridInterpolates(t *testing.T) {
	s := grid.NewStorage(2)
	require.NoError(t, generation.RegularWithBoundaries(s, 1))
	edge, err := grid.PointOf([]uint32{1, 0}, []uint32{1, 0})
	require.NoError(t, err)
	seq := s.Find(edge)
	require.NotEqual(t, grid.NotFound, seq)

	_, err = refinement.NewHashRefinementBoundaries().Refine(s, pick(seq))
	require.NoError(t, err)
	child, err := grid.PointOf([]uint32{2, 0}, []uint32{1, 0})
	require.NoError(t, err)
	require.True(t, s.IsContaining(child))
	projection, err := grid.PointOf([]uint32{2, 1}, []uint32{1, 1})
	require.NoError(t, err)
	require.False(t, s.IsContaining(projection))

	f := func(x []float64) float64 { return math.Exp(x[0]) * (1 + x[1]*x[1]) }
	values := nodal(s, f)
	alpha := append([]float64(nil), values...)
	require.NoError(t, Hierarchize(s, alpha))

	coords := make([]float64, 0, 2*s.Size())
	for _, p := range s.All() {
		got, err := EvaluateAt(s, alpha, s.Coordinates(p))
		require.NoError(t, err)
		assert.InDelta(t, f(s.Coordinates(p)), got, 1e-12, "node %v", p)
		coords = append(coords, s.Coordinates(p)...)
	}

	got, err := NewEvaluator(s, 2).Evaluate(context.Background(), alpha, mat.NewDense(s.Size(), 2, coords))
	require.NoError(t, err)
	assert.InDeltaSlice(t, values, got, 1e-12)
}

func TestEvaluatorMatchesSequential(t *testing.T) {
	s := grid.NewStorage(2)
	require.NoError(t, generation.Regular(s, 5))
	alpha := nodal(s, bump)
	require.NoError(t, Hierarchize(s, alpha))

	rng := rand.New(rand.NewSource(7))
	const rows = 101
	data := make([]float64, rows*2)
	for k := range data {
		data[k] = rng.Float64()
	}
	points := mat.NewDense(rows, 2, data)

	got, err := NewEvaluator(s, 3).Evaluate(context.Background(), alpha, points)
	require.NoError(t, err)
	require.Len(t, got, rows)
	for r := 0; r < rows; r++ {
		want, err := EvaluateAt(s, alpha, points.RawRowView(r))
		require.NoError(t, err)
		assert.Equal(t, want, got[r])
		// The interpolant of a bump stays close to it.
		assert.InDelta(t, bump(points.RawRowView(r)), got[r], 0.1)
	}
}

func TestEvaluatorBoundingBox(t *testing.T) {
	bb := grid.NewBoundingBox(1)
	bb.SetBoundary(0, grid.DimensionBoundary{Left: 2, Right: 4})
	s := grid.NewStorageWithBoundingBox(bb)
	require.NoError(t, generation.Regular(s, 1))

	got, err := NewEvaluator(s, 1).Evaluate(context.Background(), []float64{1}, mat.NewDense(2, 1, []float64{3, 2.5}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.5}, got, 1e-12)
}

func TestEvaluatorErrors(t *testing.T) {
	s := grid.NewStorage(2)
	require.NoError(t, generation.Regular(s, 2))
	e := NewEvaluator(s, 0)

	_, err := e.Evaluate(context.Background(), []float64{1}, mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, grid.ErrDimensionMismatch)

	_, err = e.Evaluate(context.Background(), make([]float64, s.Size()), mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, grid.ErrDimensionMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, make([]float64, s.Size()), mat.NewDense(4, 2, nil))
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, Hierarchize(s, nil), grid.ErrDimensionMismatch)
}

func BenchmarkEvaluate(b *testing.B) {
	s := grid.NewStorage(3)
	if err := generation.Regular(s, 6); err != nil {
		b.Fatal(err)
	}
	alpha := nodal(s, bump)
	if err := Hierarchize(s, alpha); err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	data := make([]float64, 3000)
	for k := range data {
		data[k] = rng.Float64()
	}
	points := mat.NewDense(1000, 3, data)

	for _, workers := range []int{1, 4} {
		ev := NewEvaluator(s, workers)
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := ev.Evaluate(context.Background(), alpha, points); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
