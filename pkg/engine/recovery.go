package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/persistence"
)

// recover loads the snapshot and replays the journal at journalPath. It
// reports whether a snapshot was found.
func (e *Engine) recover(journalPath string) (bool, error) {
	id, s, err := persistence.ReadSnapshot(e.snapPath)
	hadSnapshot := err == nil
	switch {
	case hadSnapshot:
		slog.Info("snapshot loaded", "path", e.snapPath, "id", id, "points", s.Size())
	case errors.Is(err, os.ErrNotExist):
		if e.opts.Dimension < 1 {
			return false, fmt.Errorf("new grid of dimension %d: %w", e.opts.Dimension, grid.ErrDimensionMismatch)
		}
		id, s = uuid.New(), grid.NewStorage(e.opts.Dimension)
	default:
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	e.ID, e.storage = id, s

	stats, err := persistence.Replay(journalPath, e.storage)
	if err != nil {
		return false, fmt.Errorf("failed to replay journal: %w", err)
	}
	if err := persistence.RepairTail(journalPath, stats); err != nil {
		return false, err
	}
	if stats.Applied > 0 || stats.Truncated {
		slog.Info("journal replayed",
			"path", journalPath,
			"applied", stats.Applied,
			"skipped", stats.Skipped,
			"passes", stats.Passes,
			"truncated", stats.Truncated)
	}
	e.dirty = stats.Applied
	return hadSnapshot, nil
}
