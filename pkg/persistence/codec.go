package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sanonone/sparsegrid/pkg/core/grid"
)

// ErrShortPayload is returned when a payload ends before its declared content.
var ErrShortPayload = errors.New("short payload")

// appendPoint encodes p as [dim u16][leaf u8] followed by dim (level, index)
// pairs of u32.
func appendPoint(buf []byte, p *grid.Point) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(p.Dim()))
	leaf := byte(0)
	if p.IsLeaf() {
		leaf = 1
	}
	buf = append(buf, leaf)
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		buf = binary.LittleEndian.AppendUint32(buf, l)
		buf = binary.LittleEndian.AppendUint32(buf, i)
	}
	return buf
}

// decoder consumes a payload front to back.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = ErrShortPayload
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u8() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) point() (*grid.Point, error) {
	dim := int(d.u16())
	leaf := d.u8() == 1
	levels := make([]uint32, dim)
	indices := make([]uint32, dim)
	for k := 0; k < dim; k++ {
		levels[k] = d.u32()
		indices[k] = d.u32()
	}
	if d.err != nil {
		return nil, d.err
	}
	p, err := grid.PointOf(levels, indices)
	if err != nil {
		return nil, err
	}
	p.SetLeaf(leaf)
	return p, nil
}

// encodeJournalEntry encodes the insertion of p under seq.
func encodeJournalEntry(seq int, p *grid.Point) []byte {
	buf := make([]byte, 0, 4+3+8*p.Dim())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(seq))
	return appendPoint(buf, p)
}

func decodeJournalEntry(payload []byte) (int, *grid.Point, error) {
	d := &decoder{buf: payload}
	seq := int(d.u32())
	p, err := d.point()
	if err != nil {
		return 0, nil, fmt.Errorf("journal entry: %w", err)
	}
	return seq, p, nil
}

// encodeSnapshot encodes id, the bounding box, the algorithmic dimensions and
// every point of s in sequence order.
func encodeSnapshot(id uuid.UUID, s *grid.Storage) []byte {
	dim := s.Dimension()
	buf := make([]byte, 0, 16+8+dim*17+s.Size()*(3+8*dim))
	buf = append(buf, id[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.Size()))

	bb := s.BoundingBox()
	for k := 0; k < dim; k++ {
		b := bb.Boundary(k)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(b.Left))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(b.Right))
		var flags byte
		if b.DirichletLeft {
			flags |= 1
		}
		if b.DirichletRight {
			flags |= 2
		}
		buf = append(buf, flags)
	}

	algo := s.AlgorithmicDimensions()
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(algo)))
	for _, a := range algo {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(a))
	}

	for _, p := range s.All() {
		buf = appendPoint(buf, p)
	}
	return buf
}

func decodeSnapshot(payload []byte) (uuid.UUID, *grid.Storage, error) {
	d := &decoder{buf: payload}
	var id uuid.UUID
	copy(id[:], d.take(16))
	dim := int(d.u32())
	count := int(d.u32())
	if d.err != nil {
		return uuid.Nil, nil, fmt.Errorf("snapshot header: %w", d.err)
	}

	bb := grid.NewBoundingBox(dim)
	for k := 0; k < dim; k++ {
		left, right := d.f64(), d.f64()
		flags := d.u8()
		bb.SetBoundary(k, grid.DimensionBoundary{
			Left:           left,
			Right:          right,
			DirichletLeft:  flags&1 != 0,
			DirichletRight: flags&2 != 0,
		})
	}
	s := grid.NewStorageWithBoundingBox(bb)

	algo := make([]int, d.u16())
	for k := range algo {
		algo[k] = int(d.u16())
	}
	if d.err != nil {
		return uuid.Nil, nil, fmt.Errorf("snapshot header: %w", d.err)
	}
	if err := s.SetAlgorithmicDimensions(algo); err != nil {
		return uuid.Nil, nil, err
	}

	for k := 0; k < count; k++ {
		p, err := d.point()
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("snapshot point %d: %w", k, err)
		}
		if _, err := s.Insert(p); err != nil {
			return uuid.Nil, nil, fmt.Errorf("snapshot point %d: %w", k, err)
		}
	}
	return id, s, nil
}
