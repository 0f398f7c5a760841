package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/sparsegrid/pkg/core/generation"
	"github.com/sanonone/sparsegrid/pkg/core/operation"
	"github.com/sanonone/sparsegrid/pkg/core/refinement"
	"github.com/sanonone/sparsegrid/pkg/metrics"
	"github.com/sanonone/sparsegrid/pkg/persistence"
)

// --- Refinement ---

// Refine runs one pass of the configured refinement variant with f and
// journals the created points before returning.
func (e *Engine) Refine(ctx context.Context, f refinement.Functor) (*refinement.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	report, err := e.refiner.Refine(e.storage, f)
	if err != nil {
		return nil, err
	}
	if err := e.journalLocked(report.SizeBefore); err != nil {
		return nil, err
	}

	id := e.ID.String()
	metrics.RefinementPasses.WithLabelValues(id, e.variant()).Inc()
	metrics.PointsCreated.WithLabelValues(id).Add(float64(report.Created))
	metrics.RefinementDuration.WithLabelValues(id, e.variant()).Observe(time.Since(start).Seconds())
	e.updateGauges()

	if e.opts.AutoSaveThreshold > 0 && e.dirty >= e.opts.AutoSaveThreshold {
		if err := e.saveLocked(); err != nil {
			// The pass itself is durable in the journal.
			slog.Error("automatic snapshot failed", "error", err)
		}
	}
	return report, nil
}

// NumberOfRefinablePoints counts the points the configured variant could refine.
func (e *Engine) NumberOfRefinablePoints() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refiner.NumberOfRefinablePoints(e.storage)
}

func (e *Engine) variant() string {
	if e.opts.Variant == "" {
		return VariantHash
	}
	return e.opts.Variant
}

// journalLocked appends the points from seq on and a pass marker, then syncs.
func (e *Engine) journalLocked(from int) error {
	if err := e.journal.AppendRange(e.storage, from); err != nil {
		return fmt.Errorf("persistence error (journal write failed): %w", err)
	}
	if err := e.journal.AppendPass(e.storage.Size()); err != nil {
		return fmt.Errorf("persistence error (journal write failed): %w", err)
	}
	if err := e.journal.Sync(); err != nil {
		return fmt.Errorf("CRITICAL: journal sync failed: %w", err)
	}
	e.dirty += e.storage.Size() - from
	return nil
}

func (e *Engine) generateLocked(level uint32) error {
	var err error
	if e.opts.Boundaries || e.opts.Variant == VariantBoundaries || e.opts.Variant == VariantMaxLevel {
		err = generation.RegularWithBoundaries(e.storage, level)
	} else {
		err = generation.Regular(e.storage, level)
	}
	if err != nil {
		return err
	}
	slog.Info("grid generated", "level", level, "points", e.storage.Size())
	return e.journalLocked(0)
}

func (e *Engine) updateGauges() {
	id := e.ID.String()
	metrics.GridPoints.WithLabelValues(id).Set(float64(e.storage.Size()))
	metrics.GridMaxLevel.WithLabelValues(id).Set(float64(e.storage.MaxLevel()))
}

// --- Snapshots ---

// Save writes a snapshot and truncates the journal.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.saveLocked()
}

func (e *Engine) saveLocked() error {
	if err := persistence.WriteSnapshot(e.snapPath, e.ID, e.storage); err != nil {
		return err
	}
	if err := e.journal.Truncate(); err != nil {
		return err
	}
	slog.Info("snapshot written", "path", e.snapPath, "points", e.storage.Size())
	metrics.Snapshots.WithLabelValues(e.ID.String()).Inc()
	e.dirty = 0
	return nil
}

// --- Interpolation ---

// Interpolate samples fn at every grid point, in bounding box coordinates,
// and returns the hierarchical surpluses indexed by sequence number.
func (e *Engine) Interpolate(fn func(x []float64) float64) ([]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	alpha := make([]float64, e.storage.Size())
	for seq, p := range e.storage.All() {
		alpha[seq] = fn(e.storage.Coordinates(p))
	}
	if err := operation.Hierarchize(e.storage, alpha); err != nil {
		return nil, err
	}
	return alpha, nil
}

// Evaluate evaluates the interpolant with surpluses alpha at the rows of points.
func (e *Engine) Evaluate(ctx context.Context, alpha []float64, points *mat.Dense, workers int) ([]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return operation.NewEvaluator(e.storage, workers).Evaluate(ctx, alpha, points)
}
