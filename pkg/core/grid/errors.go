package grid

import "errors"

var (
	// ErrDuplicatePoint is returned by Insert when an equal point is already stored.
	ErrDuplicatePoint = errors.New("grid point already stored")
	// ErrPointNotFound is returned by SequenceNumber for a point that is not stored.
	ErrPointNotFound = errors.New("grid point not found")
	// ErrSequenceOutOfRange is returned when a sequence number is not in [0, Size()).
	ErrSequenceOutOfRange = errors.New("sequence number out of range")
	// ErrDimensionMismatch is returned when a point and a storage disagree on the dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidCoordinate reports a (level, index) pair violating the midpoint encoding.
	ErrInvalidCoordinate = errors.New("invalid level/index pair")
	// ErrTooManyAlgorithmicDimensions is returned when more algorithmic
	// dimensions than real dimensions are requested.
	ErrTooManyAlgorithmicDimensions = errors.New("more algorithmic dimensions than real dimensions")
	// ErrUnsupportedVersion is returned when parsing a serialization newer than this package understands.
	ErrUnsupportedVersion = errors.New("unsupported serialization version")
	// ErrMalformedInput indicates a serialized grid that cannot be parsed.
	ErrMalformedInput = errors.New("malformed serialized grid")
)
