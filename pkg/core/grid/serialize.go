package grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SerializationVersion is the version written by Serialize.
//
// Version history:
//
//	1, 2  header and points only, unit cube
//	3     bounding box line after the header
//	4     as 3, leaf flags are recomputed on load
//	5     as 3 with a domain mode token before the bounding box (0 = box)
const SerializationVersion = 5

// Serialize writes the textual form of the storage:
//
//	<version> <dim> <count>
//	0
//	<left> <right> <dirichletLeft> <dirichletRight> ... (one quadruple per dimension)
//	<dim> <l0> <i0> <l1> <i1> ... <leaf>               (one line per point)
//
// Points are written in sequence number order so that Parse restores the
// same numbering.
func (s *Storage) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", SerializationVersion, s.dim, len(s.list))
	fmt.Fprintf(bw, "%d\n", 0)
	for d := 0; d < s.dim; d++ {
		b := s.box.Boundary(d)
		fmt.Fprintf(bw, "%s %s %d %d ",
			strconv.FormatFloat(b.Left, 'e', -1, 64),
			strconv.FormatFloat(b.Right, 'e', -1, 64),
			boolToInt(b.DirichletLeft), boolToInt(b.DirichletRight))
	}
	bw.WriteByte('\n')
	for _, p := range s.list {
		writePoint(bw, p)
	}
	return bw.Flush()
}

// MarshalText implements encoding.TextMarshaler.
func (s *Storage) MarshalText() ([]byte, error) {
	var sb strings.Builder
	if err := s.Serialize(&sb); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writePoint(w *bufio.Writer, p *Point) {
	w.WriteString(strconv.Itoa(p.Dim()))
	for d := 0; d < p.Dim(); d++ {
		l, i := p.Get(d)
		w.WriteByte(' ')
		w.WriteString(strconv.FormatUint(uint64(l), 10))
		w.WriteByte(' ')
		w.WriteString(strconv.FormatUint(uint64(i), 10))
	}
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(boolToInt(p.IsLeaf())))
	w.WriteByte('\n')
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Parse reads a storage written by Serialize, or by any older version listed
// at SerializationVersion.
func Parse(r io.Reader) (*Storage, error) {
	tr := newTokenReader(r)

	version, err := tr.readInt()
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version < 1 {
		return nil, fmt.Errorf("version %d: %w", version, ErrMalformedInput)
	}
	if version > SerializationVersion {
		return nil, fmt.Errorf("version %d, newest known %d: %w", version, SerializationVersion, ErrUnsupportedVersion)
	}
	dim, err := tr.readInt()
	if err != nil {
		return nil, fmt.Errorf("reading dimension: %w", err)
	}
	count, err := tr.readInt()
	if err != nil {
		return nil, fmt.Errorf("reading point count: %w", err)
	}
	if dim < 0 || count < 0 {
		return nil, fmt.Errorf("dimension %d, count %d: %w", dim, count, ErrMalformedInput)
	}

	box := NewBoundingBox(dim)
	if version >= 5 {
		mode, err := tr.readInt()
		if err != nil {
			return nil, fmt.Errorf("reading domain mode: %w", err)
		}
		if mode != 0 {
			return nil, fmt.Errorf("domain mode %d: %w", mode, ErrUnsupportedVersion)
		}
	}
	if version >= 3 {
		for d := 0; d < dim; d++ {
			var b DimensionBoundary
			if b.Left, err = tr.readFloat(); err != nil {
				return nil, fmt.Errorf("reading bounding box: %w", err)
			}
			if b.Right, err = tr.readFloat(); err != nil {
				return nil, fmt.Errorf("reading bounding box: %w", err)
			}
			if b.DirichletLeft, err = tr.readBool(); err != nil {
				return nil, fmt.Errorf("reading bounding box: %w", err)
			}
			if b.DirichletRight, err = tr.readBool(); err != nil {
				return nil, fmt.Errorf("reading bounding box: %w", err)
			}
			box.SetBoundary(d, b)
		}
	}

	s := NewStorageWithBoundingBox(box)
	for n := 0; n < count; n++ {
		p, err := readPoint(tr, dim, version >= 2)
		if err != nil {
			return nil, fmt.Errorf("reading point %d: %w", n, err)
		}
		if _, err := s.Insert(p); err != nil {
			return nil, fmt.Errorf("reading point %d: %w", n, err)
		}
	}
	if version == 1 || version == 4 {
		s.RecalcLeafProperty()
	}
	return s, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It replaces the contents
// of s.
func (s *Storage) UnmarshalText(text []byte) error {
	parsed, err := Parse(strings.NewReader(string(text)))
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func readPoint(tr *tokenReader, dim int, withLeaf bool) (*Point, error) {
	pdim, err := tr.readInt()
	if err != nil {
		return nil, err
	}
	if pdim != dim {
		return nil, fmt.Errorf("point dimension %d in grid of dimension %d: %w", pdim, dim, ErrDimensionMismatch)
	}
	p := NewPoint(dim)
	for d := 0; d < dim; d++ {
		l, err := tr.readUint32()
		if err != nil {
			return nil, err
		}
		i, err := tr.readUint32()
		if err != nil {
			return nil, err
		}
		p.Set(d, l, i)
	}
	if withLeaf {
		leaf, err := tr.readBool()
		if err != nil {
			return nil, err
		}
		p.SetLeaf(leaf)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// tokenReader splits the input on white space.
type tokenReader struct {
	sc *bufio.Scanner
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &tokenReader{sc: sc}
}

func (tr *tokenReader) next() (string, error) {
	if !tr.sc.Scan() {
		if err := tr.sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected end of input: %w", ErrMalformedInput)
	}
	return tr.sc.Text(), nil
}

func (tr *tokenReader) readInt() (int, error) {
	tok, err := tr.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Join(ErrMalformedInput, err)
	}
	return v, nil
}

func (tr *tokenReader) readUint32() (uint32, error) {
	tok, err := tr.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, errors.Join(ErrMalformedInput, err)
	}
	return uint32(v), nil
}

func (tr *tokenReader) readFloat() (float64, error) {
	tok, err := tr.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, errors.Join(ErrMalformedInput, err)
	}
	return v, nil
}

func (tr *tokenReader) readBool() (bool, error) {
	v, err := tr.readInt()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("flag %d: %w", v, ErrMalformedInput)
}
