package refinement

import (
	"fmt"
	"slices"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// Neighbor names a stored point adjacent to another one on the same level of
// a single dimension.
type Neighbor struct {
	Seq  int
	Dim  int
	Left bool
}

// ClassPoint holds the per-class density of one point of a combined grid and
// its relation to the neighbouring points.
type ClassPoint struct {
	densities   []float64
	dominate    int
	neighbors   []Neighbor
	borders     []Neighbor
	borderScore float64
}

// NewClassPoint returns a record for the given per-class densities.
func NewClassPoint(densities []float64) *ClassPoint {
	cp := &ClassPoint{densities: slices.Clone(densities)}
	for c, d := range densities {
		if d > densities[cp.dominate] {
			cp.dominate = c
		}
	}
	return cp
}

// DominateClass returns the class with the highest density. Ties go to the
// lower class index.
func (cp *ClassPoint) DominateClass() int { return cp.dominate }

// Density returns the density of class, or 0 for an unknown class.
func (cp *ClassPoint) Density(class int) float64 {
	if class < 0 || class >= len(cp.densities) {
		return 0
	}
	return cp.densities[class]
}

// TopClasses returns the classes whose density is within topPercent of the
// dominating density, highest density first. topPercent is a fraction in
// [0, 1]: 0 keeps only the dominating class.
func (cp *ClassPoint) TopClasses(topPercent float64) []int {
	if len(cp.densities) == 0 {
		return nil
	}
	limit := cp.densities[cp.dominate] * (1 - topPercent)
	out := []int{}
	for c, d := range cp.densities {
		if c == cp.dominate || d >= limit {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b int) int {
		switch {
		case cp.densities[a] > cp.densities[b]:
			return -1
		case cp.densities[a] < cp.densities[b]:
			return 1
		}
		return a - b
	})
	return out
}

// Neighbors returns the stored points adjacent to this one.
func (cp *ClassPoint) Neighbors() []Neighbor { return cp.neighbors }

// Borders returns the neighbours dominated by a different class.
func (cp *ClassPoint) Borders() []Neighbor { return cp.borders }

// BorderScore is the fraction of neighbours that are borders.
func (cp *ClassPoint) BorderScore() float64 { return cp.borderScore }

// ClassTable maps the sequence numbers of a combined grid to ClassPoint records.
type ClassTable struct {
	points  []*ClassPoint
	classes int
}

// NewClassTable builds the table for s from one density row per point. The
// neighbours of every point are the stored points one step to the left and to
// the right on the same level of each dimension.
func NewClassTable(s *grid.Storage, densities [][]float64) (*ClassTable, error) {
	if len(densities) != s.Size() {
		return nil, fmt.Errorf("class table: %d density rows for %d points: %w",
			len(densities), s.Size(), grid.ErrDimensionMismatch)
	}
	t := &ClassTable{points: make([]*ClassPoint, len(densities))}
	for seq, row := range densities {
		if seq > 0 && len(row) != t.classes {
			return nil, fmt.Errorf("class table: row %d has %d classes, want %d: %w",
				seq, len(row), t.classes, grid.ErrDimensionMismatch)
		}
		t.classes = len(row)
		t.points[seq] = NewClassPoint(row)
	}

	for seq, p := range s.All() {
		cp := t.points[seq]
		it := grid.NewIteratorAt(s, p)
		for d := 0; d < s.Dimension(); d++ {
			l, i := p.Get(d)
			if l == 0 {
				continue
			}
			for _, left := range []bool{true, false} {
				if left && i == 1 || !left && i == (uint32(1)<<l)-1 {
					continue
				}
				if left {
					it.StepLeft(d)
				} else {
					it.StepRight(d)
				}
				if n := it.Seq(); n != grid.NotFound {
					nb := Neighbor{Seq: n, Dim: d, Left: left}
					cp.neighbors = append(cp.neighbors, nb)
					if t.points[n].DominateClass() != cp.DominateClass() {
						cp.borders = append(cp.borders, nb)
					}
				}
				it.Set(d, l, i)
			}
		}
		if len(cp.neighbors) > 0 {
			cp.borderScore = float64(len(cp.borders)) / float64(len(cp.neighbors))
		}
	}
	return t, nil
}

// Len returns the number of records.
func (t *ClassTable) Len() int { return len(t.points) }

// Classes returns the number of classes.
func (t *ClassTable) Classes() int { return t.classes }

// Point returns the record of seq, or nil when the table has none.
func (t *ClassTable) Point(seq int) *ClassPoint {
	if seq < 0 || seq >= len(t.points) {
		return nil
	}
	return t.points[seq]
}
