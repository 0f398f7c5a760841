// Package functor provides refinement functors for the engines in package
// refinement.
package functor

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/refinement"
)

// Params holds the pass parameters shared by all functors.
type Params struct {
	// Refinements is the number of candidates refined per pass.
	Refinements int
	// Limit is the threshold a value has to exceed.
	Limit float64
}

// RefinementsNum implements refinement.Functor.
func (p Params) RefinementsNum() int { return p.Refinements }

// Threshold implements refinement.Functor.
func (p Params) Threshold() float64 { return p.Limit }

// Constant rates every point with the same value.
type Constant struct {
	Params
	V float64
}

// Value implements refinement.Functor.
func (c Constant) Value(*grid.Storage, int) float64 { return c.V }

// Surplus rates a point by the absolute value of its hierarchical surplus.
// Points created after the surplus vector was taken have no value yet and
// rate 0.
type Surplus struct {
	Params
	alpha *mat.VecDense
}

// NewSurplus returns a surplus functor over a copy of alpha.
func NewSurplus(alpha []float64, p Params) *Surplus {
	s := &Surplus{Params: p}
	if len(alpha) > 0 {
		s.alpha = mat.NewVecDense(len(alpha), append([]float64(nil), alpha...))
	}
	return s
}

// Len returns the number of surpluses.
func (s *Surplus) Len() int {
	if s.alpha == nil {
		return 0
	}
	return s.alpha.Len()
}

// MaxAbs returns the largest absolute surplus, or 0 without surpluses.
func (s *Surplus) MaxAbs() float64 {
	if s.alpha == nil {
		return 0
	}
	return floats.Norm(s.alpha.RawVector().Data, math.Inf(1))
}

func (s *Surplus) at(seq int) float64 {
	if s.alpha == nil || seq < 0 || seq >= s.alpha.Len() {
		return 0
	}
	return s.alpha.AtVec(seq)
}

// Value implements refinement.Functor.
func (s *Surplus) Value(_ *grid.Storage, seq int) float64 { return math.Abs(s.at(seq)) }

// ChildValue implements refinement.ForwardSelectorIndicator: a child inherits
// the surplus of its parent scaled by the support volume of the child.
func (s *Surplus) ChildValue(_ *grid.Storage, parentSeq int, child *grid.Point) float64 {
	return math.Abs(s.at(parentSeq)) * math.Ldexp(1, -int(child.LevelSum()))
}

// Volume rates a point by its absolute surplus times the volume of its
// support, 2^-|l|_1.
type Volume struct {
	*Surplus
}

// NewVolume returns a volume weighted surplus functor.
func NewVolume(alpha []float64, p Params) *Volume {
	return &Volume{NewSurplus(alpha, p)}
}

// Value implements refinement.Functor.
func (v *Volume) Value(s *grid.Storage, seq int) float64 {
	return math.Abs(v.at(seq)) * math.Ldexp(1, -int(s.At(seq).LevelSum()))
}

// Gini rates the leaves of a combined multi-class grid by the Gini impurity
// of their class densities. It implements refinement.ImpurityIndicator.
type Gini struct {
	Params
	table *refinement.ClassTable
}

// NewGini returns an impurity indicator over table.
func NewGini(table *refinement.ClassTable, p Params) *Gini {
	return &Gini{Params: p, table: table}
}

// Value implements refinement.Functor.
func (g *Gini) Value(s *grid.Storage, seq int) float64 { return g.Impurity(s, seq) }

// Impurity returns 1 - sum(p_c^2) over the normalized class densities of seq.
// Points without a record or without density are pure.
func (g *Gini) Impurity(_ *grid.Storage, seq int) float64 {
	cp := g.table.Point(seq)
	if cp == nil {
		return 0
	}
	p := make([]float64, g.table.Classes())
	for c := range p {
		p[c] = math.Max(cp.Density(c), 0)
	}
	sum := floats.Sum(p)
	if sum == 0 {
		return 0
	}
	floats.Scale(1/sum, p)
	return 1 - floats.Dot(p, p)
}

var (
	_ refinement.Functor                  = Constant{}
	_ refinement.ForwardSelectorIndicator = (*Surplus)(nil)
	_ refinement.Functor                  = (*Volume)(nil)
	_ refinement.ImpurityIndicator        = (*Gini)(nil)
)
