package grid

// DimensionBoundary describes the extent of one dimension of the domain and
// whether each end carries a Dirichlet condition.
type DimensionBoundary struct {
	Left           float64
	Right          float64
	DirichletLeft  bool
	DirichletRight bool
}

// BoundingBox maps the unit hypercube of the grid onto the actual domain.
type BoundingBox struct {
	bounds []DimensionBoundary
}

// NewBoundingBox returns the unit hypercube of the given dimension.
func NewBoundingBox(dim int) *BoundingBox {
	bb := &BoundingBox{bounds: make([]DimensionBoundary, dim)}
	for d := range bb.bounds {
		bb.bounds[d].Right = 1
	}
	return bb
}

// Copy returns an independent copy of the box.
func (bb *BoundingBox) Copy() *BoundingBox {
	return &BoundingBox{bounds: append([]DimensionBoundary(nil), bb.bounds...)}
}

// Dimension returns the number of dimensions.
func (bb *BoundingBox) Dimension() int { return len(bb.bounds) }

// Boundary returns the boundary of dimension d.
func (bb *BoundingBox) Boundary(d int) DimensionBoundary { return bb.bounds[d] }

// SetBoundary replaces the boundary of dimension d.
func (bb *BoundingBox) SetBoundary(d int, b DimensionBoundary) { bb.bounds[d] = b }

// IntervalWidth returns Right - Left of dimension d.
func (bb *BoundingBox) IntervalWidth(d int) float64 {
	return bb.bounds[d].Right - bb.bounds[d].Left
}

// IntervalOffset returns the left end of dimension d.
func (bb *BoundingBox) IntervalOffset(d int) float64 { return bb.bounds[d].Left }

// IsUnitCube reports whether every dimension spans [0, 1].
func (bb *BoundingBox) IsUnitCube() bool {
	for _, b := range bb.bounds {
		if b.Left != 0 || b.Right != 1 {
			return false
		}
	}
	return true
}

// TransformPointToUnitCube maps x from dimension d of the box into [0, 1].
func (bb *BoundingBox) TransformPointToUnitCube(d int, x float64) float64 {
	return (x - bb.bounds[d].Left) / bb.IntervalWidth(d)
}
