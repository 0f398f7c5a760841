// Package engine provides an embedded, persistent sparse grid.
//
// An Engine owns one grid.Storage together with its snapshot and journal on
// disk. Every refinement pass appends the new points to the journal before it
// returns, so a restarted Engine reproduces the grid with the same sequence
// numbers.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data", 2)
//	e, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/refinement"
	"github.com/sanonone/sparsegrid/pkg/core/types"
	"github.com/sanonone/sparsegrid/pkg/persistence"
)

// Refinement variants selectable through Options.Variant.
const (
	VariantHash            = "hash"
	VariantBoundaries      = "boundaries"
	VariantMaxLevel        = "max_level"
	VariantForwardSelector = "forward_selector"
	VariantImpurity        = "impurity"
	VariantSubspace        = "subspace"
)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("engine closed")
	// ErrUnknownVariant is returned by Open for an unsupported refinement variant.
	ErrUnknownVariant = errors.New("unknown refinement variant")
)

// Options configures an Engine.
type Options struct {
	// DataDir holds the snapshot and the journal. It is created if missing.
	DataDir string
	// SnapshotFilename defaults to "grid.snap".
	SnapshotFilename string
	// JournalFilename defaults to "grid.journal".
	JournalFilename string

	// Dimension of a newly created grid. Ignored when a snapshot exists.
	Dimension int
	// InitialLevel, when positive, fills a new empty grid with the regular
	// sparse grid of that level.
	InitialLevel uint32
	// Boundaries selects grids with level 0 points.
	Boundaries bool

	// Variant is one of the Variant constants.
	Variant string
	// MaxLevel caps the max_level variant.
	MaxLevel uint32

	// AutoSaveThreshold triggers a snapshot from Refine once this many points
	// were journaled since the last one. 0 disables it.
	AutoSaveThreshold int
}

// DefaultOptions returns options for a grid of dimension dim without boundary
// in dataDir.
//
// Defaults:
//   - SnapshotFilename: "grid.snap"
//   - JournalFilename: "grid.journal"
//   - InitialLevel: 1 (the root point)
//   - Variant: "hash"
//   - AutoSave: after 10000 journaled points
func DefaultOptions(dataDir string, dim int) Options {
	return Options{
		DataDir:           dataDir,
		SnapshotFilename:  "grid.snap",
		JournalFilename:   "grid.journal",
		Dimension:         dim,
		InitialLevel:      1,
		Variant:           VariantHash,
		MaxLevel:          10,
		AutoSaveThreshold: 10000,
	}
}

// Engine is a sparse grid persisted as snapshot plus journal.
//
// Engine methods are safe for concurrent use. Refinement passes are serialized;
// read-only operations run concurrently with each other.
type Engine struct {
	// ID identifies the grid across restarts. It is stored in the snapshot.
	ID uuid.UUID

	mu       sync.RWMutex
	storage  *grid.Storage
	refiner  refinement.Refinement
	journal  *persistence.Journal
	opts     Options
	snapPath string

	// dirty counts points journaled since the last snapshot.
	dirty int

	closed    bool
	closeOnce sync.Once
}

// Open loads the grid from opts.DataDir, or creates it.
//
// It performs the following actions:
// 1. Creates DataDir if missing.
// 2. Loads the snapshot if available, otherwise creates an empty grid.
// 3. Replays the journal to recover points created after the snapshot.
// 4. Generates the initial grid if the storage is still empty.
// 5. Writes a snapshot if none existed, fixing the engine id.
func Open(opts Options) (*Engine, error) {
	if opts.SnapshotFilename == "" {
		opts.SnapshotFilename = "grid.snap"
	}
	if opts.JournalFilename == "" {
		opts.JournalFilename = "grid.journal"
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	refiner, err := newRefinement(opts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		refiner:  refiner,
		opts:     opts,
		snapPath: filepath.Join(opts.DataDir, opts.SnapshotFilename),
	}

	journalPath := filepath.Join(opts.DataDir, opts.JournalFilename)
	hadSnapshot, err := e.recover(journalPath)
	if err != nil {
		return nil, err
	}

	e.journal, err = persistence.OpenJournal(journalPath)
	if err != nil {
		return nil, err
	}

	if e.storage.Size() == 0 && opts.InitialLevel > 0 {
		if err := e.generateLocked(opts.InitialLevel); err != nil {
			_ = e.journal.Close()
			return nil, err
		}
	}
	if !hadSnapshot {
		if err := e.saveLocked(); err != nil {
			_ = e.journal.Close()
			return nil, err
		}
	}
	e.updateGauges()
	return e, nil
}

func newRefinement(opts Options) (refinement.Refinement, error) {
	switch opts.Variant {
	case VariantHash, "":
		if opts.Boundaries {
			return refinement.NewHashRefinementBoundaries(), nil
		}
		return refinement.NewHashRefinement(), nil
	case VariantBoundaries:
		return refinement.NewHashRefinementBoundaries(), nil
	case VariantMaxLevel:
		return refinement.NewMaxLevelRefinement(opts.MaxLevel), nil
	case VariantForwardSelector:
		return refinement.NewForwardSelectorRefinement(), nil
	case VariantImpurity:
		return refinement.NewImpurityRefinement(), nil
	case VariantSubspace:
		return refinement.NewSubspaceRefinement(), nil
	}
	return nil, fmt.Errorf("%q: %w", opts.Variant, ErrUnknownVariant)
}

// Close flushes and closes the journal. It does not write a snapshot; the
// journal already holds every point created since the last one.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		if e.journal != nil {
			err = e.journal.Close()
		}
	})
	return err
}

// Info summarizes the grid.
func (e *Engine) Info() types.StorageInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return types.StorageInfo{
		ID:          e.ID.String(),
		Dimension:   e.storage.Dimension(),
		Size:        e.storage.Size(),
		InnerPoints: e.storage.NumberOfInnerPoints(),
		MaxLevel:    e.storage.MaxLevel(),
	}
}

// View calls fn with the storage under the read lock. fn must not modify the
// storage or retain it.
func (e *Engine) View(fn func(s *grid.Storage) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return fn(e.storage)
}

// Snapshot returns a deep copy of the storage.
func (e *Engine) Snapshot() *grid.Storage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.storage.Clone()
}
