package refinement

import (
	"log/slog"
	"math"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/types"
)

// Refinement is implemented by every refinement engine.
type Refinement interface {
	// Refine runs one pass over s, refining at most f.RefinementsNum() of the
	// best eligible candidates.
	Refine(s *grid.Storage, f Functor) (*Report, error)
	// NumberOfRefinablePoints counts the points with at least one missing child.
	NumberOfRefinablePoints(s *grid.Storage) int
}

// Report describes the outcome of one refinement pass.
type Report struct {
	// Selected holds the refined candidates, best first.
	Selected []types.Candidate
	// SizeBefore is the storage size when the pass started. Points created by
	// the pass occupy the sequence numbers [SizeBefore, SizeBefore+Created).
	SizeBefore int
	Created    int
	// Subspaces holds the level vectors created by a subspace pass.
	Subspaces [][]uint32
}

// pointHooks are the steps that vary between point-wise engines.
type pointHooks interface {
	eligible(s *grid.Storage, p *grid.Point) bool
	priority(s *grid.Storage, f Functor, seq int) float64
	refineGridpoint(s *grid.Storage, seq int) error
}

// refinePoints runs the collect and apply phases shared by the point-wise
// engines. Candidates are ranked over the points present when the pass starts,
// so points created while applying are never considered in the same pass.
func refinePoints(s *grid.Storage, f Functor, h pointHooks) (*Report, error) {
	if s.Size() == 0 {
		return nil, ErrEmptyStorage
	}
	minimize := minimizes(f)
	threshold := f.Threshold()
	sel := newSelector(f.RefinementsNum(), candidateOrder(minimize))

	for seq, p := range s.All() {
		if !h.eligible(s, p) {
			continue
		}
		v := h.priority(s, f, seq)
		if math.IsNaN(v) || !exceeds(v, threshold, minimize) {
			continue
		}
		sel.offer(types.Candidate{Seq: seq, Priority: v})
	}

	report := &Report{Selected: sel.best(), SizeBefore: s.Size()}
	for _, c := range report.Selected {
		if err := h.refineGridpoint(s, c.Seq); err != nil {
			return nil, err
		}
	}
	report.Created = s.Size() - report.SizeBefore

	slog.Debug("refinement pass finished",
		"selected", len(report.Selected),
		"created", report.Created,
		"size", s.Size())
	return report, nil
}

func countRefinable(s *grid.Storage) int {
	n := 0
	for _, p := range s.All() {
		if hasMissingChild(s, p) {
			n++
		}
	}
	return n
}
