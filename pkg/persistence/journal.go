package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// ErrJournalGap is returned when a journal entry does not continue the
// sequence numbers of the storage it is replayed into.
var ErrJournalGap = errors.New("journal entry out of sequence")

// Journal is an append-only log of the points inserted into a storage since
// its last snapshot. One frame holds one point together with its sequence
// number, so replaying reproduces the same numbering.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	fw   *FrameWriter
	path string
}

// OpenJournal opens or creates the journal at path for appending.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &Journal{
		file: file,
		buf:  buf,
		fw:   NewFrameWriter(buf),
		path: path,
	}, nil
}

// AppendPoint records that p was stored under seq.
func (j *Journal) AppendPoint(seq int, p *grid.Point) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fw.WriteFrame(OpPoint, encodeJournalEntry(seq, p))
}

// AppendRange records the points of s with sequence numbers in [from, s.Size()).
func (j *Journal) AppendRange(s *grid.Storage, from int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for seq := from; seq < s.Size(); seq++ {
		if err := j.fw.WriteFrame(OpPoint, encodeJournalEntry(seq, s.At(seq))); err != nil {
			return err
		}
	}
	return nil
}

// AppendPass writes a pass marker carrying the storage size after the pass.
func (j *Journal) AppendPass(size int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], uint32(size))
	return j.fw.WriteFrame(OpPass, payload[:])
}

// Flush writes buffered frames to the file.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buf.Flush()
}

// Sync flushes and fsyncs the journal.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Truncate empties the journal, typically right after a snapshot.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf.Reset(j.file)
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	_, err := j.file.Seek(0, io.SeekStart)
	return err
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// Path returns the file path.
func (j *Journal) Path() string {
	return j.path
}

// ReplayStats describes a journal replay.
type ReplayStats struct {
	Applied int
	Skipped int
	Passes  int
	// Truncated is set when the journal ended inside a frame or with a corrupt
	// frame; everything before it was applied.
	Truncated bool
	// ValidSize is the byte offset just past the last intact frame. Appending
	// to a truncated journal must start there, or the damaged frame would hide
	// every later entry from the next replay.
	ValidSize int64
}

// Replay applies the journal at path to s. Entries whose sequence number is
// already covered by s are skipped, so replaying over a snapshot taken after
// the journal was written is harmless. Leaf flags are recalculated when any
// entry was applied. A missing journal is an empty one.
func Replay(path string, s *grid.Storage) (ReplayStats, error) {
	var stats ReplayStats
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for {
		op, payload, n, err := ReadFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A crash during a write leaves a partial tail; keep what came before.
			slog.Warn("journal ends with a damaged frame", "path", path, "error", err, "applied", stats.Applied)
			stats.Truncated = true
			break
		}
		stats.ValidSize += int64(n)

		switch op {
		case OpPass:
			stats.Passes++
			continue
		case OpPoint:
		default:
			return stats, fmt.Errorf("journal op 0x%02x: %w", op, ErrUnexpectedOp)
		}

		seq, p, err := decodeJournalEntry(payload)
		if err != nil {
			return stats, err
		}
		if seq < s.Size() {
			stats.Skipped++
			continue
		}
		if seq != s.Size() {
			return stats, fmt.Errorf("entry %d on storage of size %d: %w", seq, s.Size(), ErrJournalGap)
		}
		if _, err := s.Insert(p); err != nil {
			return stats, fmt.Errorf("journal entry %d: %w", seq, err)
		}
		stats.Applied++
	}

	if stats.Applied > 0 {
		s.RecalcLeafProperty()
	}
	return stats, nil
}

// RepairTail cuts the journal at path back to stats.ValidSize when the replay
// found a damaged tail. It must run before the journal is opened for appending.
func RepairTail(path string, stats ReplayStats) error {
	if !stats.Truncated {
		return nil
	}
	if err := os.Truncate(path, stats.ValidSize); err != nil {
		return fmt.Errorf("failed to cut damaged journal tail: %w", err)
	}
	slog.Warn("damaged journal tail removed", "path", path, "size", stats.ValidSize)
	return nil
}
