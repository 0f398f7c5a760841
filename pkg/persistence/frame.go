// Package persistence stores sparse grids on disk: a binary snapshot of a
// whole storage and an append-only journal of the points inserted since.
//
// Both files are sequences of frames:
//
//	[Magic(1)][OpCode(1)][Length(4)][CRC32(4)][Payload(Length)]
package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

const (
	// MagicByte marks the start of a frame.
	MagicByte = 0xA5

	// HeaderSize is 1 byte magic + 1 byte op code + 4 bytes length + 4 bytes CRC32.
	HeaderSize = 10

	// OpPoint is a journaled point insertion.
	OpPoint byte = 0x01
	// OpSnapshot carries a whole storage.
	OpSnapshot byte = 0x02
	// OpPass marks the end of a refinement pass in the journal.
	OpPass byte = 0x03
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization or is not a frame file.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates a corrupted payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended inside a frame.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnexpectedOp indicates a frame with an op code the reader does not accept.
	ErrUnexpectedOp = errors.New("unexpected frame op code")
)

// FrameWriter writes frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w. w should be buffered so that header and payload end
// up in a single write.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes payload as one frame with the given op code.
func (fw *FrameWriter) WriteFrame(op byte, payload []byte) error {
	var header [HeaderSize]byte
	header[0] = MagicByte
	header[1] = op
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	if _, err := fw.w.Write(header[:]); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// ReadFrame reads the next frame, validating magic byte and checksum. It
// returns io.EOF only at a clean frame boundary.
func ReadFrame(r io.Reader) (op byte, payload []byte, n int, err error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, ErrIncompleteFrame
	}
	if header[0] != MagicByte {
		return 0, nil, HeaderSize, ErrInvalidMagic
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	expected := binary.LittleEndian.Uint32(header[6:10])

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}
	if crc32.ChecksumIEEE(payload) != expected {
		return 0, nil, HeaderSize + int(length), ErrChecksumMismatch
	}
	return header[1], payload, HeaderSize + int(length), nil
}
