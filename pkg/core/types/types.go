package types

// Candidate is a refinement candidate held by the bounded selection heap:
// the sequence number of a stored grid point and its priority.
type Candidate struct {
	Seq      int
	Priority float64
}

// ChildCandidate is a candidate for a single missing child of a stored point,
// used by refinement variants that select children individually.
type ChildCandidate struct {
	Candidate
	Dim   int
	Right bool // false selects the left child (2i-1), true the right one (2i+1)
}

// StorageInfo models the public-facing information about a grid storage,
// intended for the CLI and serialization in reports.
type StorageInfo struct {
	ID          string `json:"id" yaml:"id"`
	Dimension   int    `json:"dimension" yaml:"dimension"`
	Size        int    `json:"size" yaml:"size"`
	InnerPoints int    `json:"inner_points" yaml:"inner_points"`
	MaxLevel    int    `json:"max_level" yaml:"max_level"`
}
