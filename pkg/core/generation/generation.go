// Package generation fills empty storages with standard sparse grids.
package generation

import (
	"errors"
	"fmt"
	"math"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// ErrStorageNotEmpty is returned when generating into a storage that already
// holds points.
var ErrStorageNotEmpty = errors.New("storage not empty")

// ErrInvalidLevel is returned for a level below 1.
var ErrInvalidLevel = errors.New("level must be at least 1")

// Regular creates the regular sparse grid of the given level without
// boundary: every inner point with |l|_1 <= level + d - 1.
func Regular(s *grid.Storage, level uint32) error {
	return generate(s, level, false, regularSum(s, level))
}

// RegularWithBoundaries creates the regular sparse grid with boundary points.
// A level 0 coordinate counts as level 1 in the level sum, so each inner
// subspace is completed by its projections onto the boundary.
func RegularWithBoundaries(s *grid.Storage, level uint32) error {
	return generate(s, level, true, regularSum(s, level))
}

// Full creates the full grid with every level from 1 to level in each
// dimension.
func Full(s *grid.Storage, level uint32) error {
	return generate(s, level, false, math.MaxUint32)
}

func regularSum(s *grid.Storage, level uint32) uint32 {
	return level + uint32(s.Dimension()) - 1
}

// generate enumerates the level vectors with coordinates in [0 or 1, level]
// whose level sum, counting level 0 as 1, is at most maxSum, and inserts
// every point of each such subspace.
func generate(s *grid.Storage, level uint32, boundaries bool, maxSum uint32) error {
	if s.Size() > 0 {
		return fmt.Errorf("generate into storage of size %d: %w", s.Size(), ErrStorageNotEmpty)
	}
	if level < 1 {
		return ErrInvalidLevel
	}
	dim := s.Dimension()
	minLevel := uint32(1)
	if boundaries {
		minLevel = 0
	}

	levels := make([]uint32, dim)
	p := grid.NewPoint(dim)

	var points func(d int) error
	points = func(d int) error {
		if d == dim {
			_, err := s.Insert(p)
			return err
		}
		l := levels[d]
		if l == 0 {
			for i := uint32(0); i <= 1; i++ {
				p.Set(d, 0, i)
				if err := points(d + 1); err != nil {
					return err
				}
			}
			return nil
		}
		for i := uint32(1); i < uint32(1)<<l; i += 2 {
			p.Set(d, l, i)
			if err := points(d + 1); err != nil {
				return err
			}
		}
		return nil
	}

	var subspaces func(d int, sum uint32) error
	subspaces = func(d int, sum uint32) error {
		if d == dim {
			return points(0)
		}
		// Every remaining dimension adds at least 1.
		rest := uint32(dim - d - 1)
		for l := minLevel; l <= level && uint64(sum)+uint64(max(l, 1))+uint64(rest) <= uint64(maxSum); l++ {
			levels[d] = l
			if err := subspaces(d+1, sum+max(l, 1)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := subspaces(0, 0); err != nil {
		s.Clear()
		return err
	}
	s.RecalcLeafProperty()
	return nil
}

// RegularSize returns the number of points of the regular sparse grid of the
// given level and dimension without boundary.
func RegularSize(dim int, level uint32) int {
	// Count level vectors by sum with a small dynamic program.
	counts := map[uint32]int{0: 1}
	for d := 0; d < dim; d++ {
		next := make(map[uint32]int)
		for sum, n := range counts {
			for l := uint32(1); sum+l <= level+uint32(dim)-1; l++ {
				next[sum+l] += n << (l - 1)
			}
		}
		counts = next
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
