package operation

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// Evaluator evaluates the interpolant of a fixed storage at many points in
// parallel. Each worker owns its own Iterator; the storage must not be
// modified while Evaluate runs.
type Evaluator struct {
	storage *grid.Storage
	workers int
}

// NewEvaluator returns an evaluator for s. workers <= 0 selects GOMAXPROCS.
func NewEvaluator(s *grid.Storage, workers int) *Evaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Evaluator{storage: s, workers: workers}
}

// Evaluate returns sum_k alpha[k] phi_k(x) for every row x of points. Rows are
// given in the coordinates of the storage's bounding box.
func (e *Evaluator) Evaluate(ctx context.Context, alpha []float64, points *mat.Dense) ([]float64, error) {
	if len(alpha) != e.storage.Size() {
		return nil, fmt.Errorf("evaluate %d surpluses on %d points: %w", len(alpha), e.storage.Size(), grid.ErrDimensionMismatch)
	}
	rows, cols := points.Dims()
	if cols != e.storage.Dimension() {
		return nil, fmt.Errorf("evaluate points of dimension %d on grid of dimension %d: %w", cols, e.storage.Dimension(), grid.ErrDimensionMismatch)
	}
	out := make([]float64, rows)
	if e.storage.Size() == 0 {
		return out, nil
	}

	chunk := (rows + e.workers - 1) / e.workers
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		g.Go(func() error {
			it := entryIterator(e.storage)
			bb := e.storage.BoundingBox()
			x := make([]float64, cols)
			for r := start; r < end; r++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for d := range x {
					x[d] = bb.TransformPointToUnitCube(d, points.At(r, d))
				}
				out[r] = evaluate(it, alpha, x, 0, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateAt evaluates the interpolant at a single point in unit coordinates.
func EvaluateAt(s *grid.Storage, alpha []float64, x []float64) (float64, error) {
	if len(alpha) != s.Size() || len(x) != s.Dimension() {
		return 0, grid.ErrDimensionMismatch
	}
	if s.Size() == 0 {
		return 0, nil
	}
	return evaluate(entryIterator(s), alpha, x, 0, 1), nil
}

// entryIterator positions a cursor where every descent starts. Grids are
// closed downward, so the projection of a stored point onto the coarsest
// coordinate of the remaining dimensions is stored as well: (0, 0) for grids
// with boundary points and (1, 1) otherwise.
func entryIterator(s *grid.Storage) *grid.Iterator {
	it := grid.NewIterator(s)
	it.ResetToLevelZero()
	if it.Seq() == grid.NotFound {
		return grid.NewIterator(s)
	}
	return it
}

// evaluate descends dimension d toward x[d], recursing into the next
// dimension for every stored point whose basis function does not vanish.
// Dimensions after d are at their entry coordinate and the iterator is
// restored on return.
func evaluate(it *grid.Iterator, alpha, x []float64, d int, prod float64) float64 {
	last := d == len(x)-1
	l0, i0 := it.Get(d)
	sum := 0.0

	visit := func(l, i uint32) {
		seq := it.Seq()
		if seq == grid.NotFound {
			return
		}
		phi := basis(l, i, x[d])
		if phi == 0 {
			return
		}
		if last {
			sum += prod * phi * alpha[seq]
		} else {
			sum += evaluate(it, alpha, x, d+1, prod*phi)
		}
	}

	it.ResetToLeftLevelZero(d)
	visit(0, 0)
	it.ResetToRightLevelZero(d)
	visit(0, 1)

	it.ResetToLevelOne(d)
	for it.Seq() != grid.NotFound {
		l, i := it.Get(d)
		visit(l, i)
		if math.Ldexp(x[d], int(l)) < float64(i) {
			it.LeftChild(d)
		} else {
			it.RightChild(d)
		}
	}

	it.Set(d, l0, i0)
	return sum
}
