package persistence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// WriteSnapshot stores s under the engine id at path. The snapshot is written
// to a temporary file in the same directory and renamed over path, so a crash
// leaves either the old or the new snapshot.
func WriteSnapshot(path string, id uuid.UUID, s *grid.Storage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := NewFrameWriter(buf).WriteFrame(OpSnapshot, encodeSnapshot(id, s)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the snapshot at path.
func ReadSnapshot(path string) (uuid.UUID, *grid.Storage, error) {
	file, err := os.Open(path)
	if err != nil {
		return uuid.Nil, nil, err
	}
	defer file.Close()

	op, payload, _, err := ReadFrame(bufio.NewReader(file))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	if op != OpSnapshot {
		return uuid.Nil, nil, fmt.Errorf("snapshot %s: op 0x%02x: %w", path, op, ErrUnexpectedOp)
	}
	return decodeSnapshot(payload)
}
