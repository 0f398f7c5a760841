package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regularGrid fills a storage with every inner point whose level sum is at
// most n + dim - 1.
func regularGrid(t testing.TB, dim int, n uint32) *Storage {
	t.Helper()
	s := NewStorage(dim)
	var rec func(p *Point, d int, budget uint32)
	rec = func(p *Point, d int, budget uint32) {
		if d == dim {
			_, err := s.Insert(p)
			require.NoError(t, err)
			return
		}
		for l := uint32(1); l <= budget; l++ {
			for i := uint32(1); i < uint32(1)<<l; i += 2 {
				p.Set(d, l, i)
				rec(p, d+1, budget-l+1)
			}
		}
	}
	rec(NewPoint(dim), 0, n)
	s.RecalcLeafProperty()
	return s
}

func TestStorageInsertRoot(t *testing.T) {
	s := NewStorage(2)
	seq, err := s.Insert(mustPoint(t, 1, 1, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, seq)
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, 2, s.Dimension())
}

func TestStorageFindMissing(t *testing.T) {
	s := NewStorage(2)
	_, err := s.Insert(mustPoint(t, 1, 1, 1, 1))
	require.NoError(t, err)

	missing := mustPoint(t, 2, 1, 1, 1)
	assert.Equal(t, NotFound, s.Find(missing))
	assert.False(t, s.IsContaining(missing))

	_, err = s.SequenceNumber(missing)
	assert.ErrorIs(t, err, ErrPointNotFound)
}

func TestStorageInnerPoints(t *testing.T) {
	s := NewStorage(2)
	_, err := s.Insert(mustPoint(t, 0, 0, 1, 1))
	require.NoError(t, err)
	_, err = s.Insert(mustPoint(t, 1, 1, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, 1, s.NumberOfInnerPoints())
}

func TestStorageDuplicateInsert(t *testing.T) {
	s := NewStorage(1)
	_, err := s.Insert(mustPoint(t, 1, 1))
	require.NoError(t, err)

	_, err = s.Insert(mustPoint(t, 1, 1))
	require.ErrorIs(t, err, ErrDuplicatePoint)
	assert.Equal(t, 1, s.Size())
}

func TestStorageRejectsInvalidCoordinates(t *testing.T) {
	s := NewStorage(2)
	for _, p := range []*Point{
		mustPoint(t, 1, 2, 1, 1),
		mustPoint(t, 0, 5, 1, 1),
		mustPoint(t, 1, 1, 2, 7),
	} {
		_, err := s.Insert(p)
		assert.ErrorIs(t, err, ErrInvalidCoordinate, p.String())
	}
	assert.Zero(t, s.Size())

	_, err := s.Insert(mustPoint(t, 1, 1, 1, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Update(mustPoint(t, 2, 2, 1, 1), 0), ErrInvalidCoordinate)
	assert.True(t, s.At(0).Equals(mustPoint(t, 1, 1, 1, 1)))
}

func TestStorageDimensionMismatch(t *testing.T) {
	s := NewStorage(2)
	_, err := s.Insert(NewPoint(3))
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, NotFound, s.Find(NewPoint(3)))
}

func TestStorageOutOfRange(t *testing.T) {
	s := regularGrid(t, 2, 2)
	_, err := s.Point(s.Size())
	assert.ErrorIs(t, err, ErrSequenceOutOfRange)
	_, err = s.Point(-1)
	assert.ErrorIs(t, err, ErrSequenceOutOfRange)
}

func TestStorageBijection(t *testing.T) {
	s := regularGrid(t, 3, 4)
	require.Greater(t, s.Size(), 30)

	for k := 0; k < s.Size(); k++ {
		p, err := s.Point(k)
		require.NoError(t, err)
		seq, err := s.SequenceNumber(p)
		require.NoError(t, err)
		assert.Equal(t, k, seq)

		q, err := s.Point(seq)
		require.NoError(t, err)
		assert.True(t, q.Equals(p))
	}
}

func TestStorageInsertStoresCopy(t *testing.T) {
	s := NewStorage(1)
	p := mustPoint(t, 1, 1)
	_, err := s.Insert(p)
	require.NoError(t, err)

	p.Set(0, 2, 1)
	assert.True(t, s.IsContaining(mustPoint(t, 1, 1)))
	assert.False(t, s.IsContaining(p))
}

func TestStorageAllIsSnapshot(t *testing.T) {
	s := regularGrid(t, 1, 2)
	n := s.Size()

	visited := 0
	for seq, p := range s.All() {
		assert.Equal(t, visited, seq)
		visited++
		if p.Level(0) == 2 {
			child := p.Copy()
			child.Set(0, 3, 2*p.Index(0)-1)
			if !s.IsContaining(child) {
				_, err := s.Insert(child)
				require.NoError(t, err)
			}
		}
	}
	assert.Equal(t, n, visited)
	assert.Greater(t, s.Size(), n)
}

func TestStorageRecalcLeafProperty(t *testing.T) {
	s := regularGrid(t, 2, 3)
	for _, p := range s.All() {
		probe := p.Copy()
		hasChild := false
		for d := 0; d < 2; d++ {
			l, i := p.Get(d)
			for _, c := range []uint32{2*i - 1, 2*i + 1} {
				probe.Set(d, l+1, c)
				hasChild = hasChild || s.IsContaining(probe)
			}
			probe.Set(d, l, i)
		}
		assert.Equal(t, !hasChild, p.IsLeaf(), "point %v", p)
	}
}

func TestStorageDeletePoints(t *testing.T) {
	s := regularGrid(t, 1, 3)
	require.Equal(t, 7, s.Size())
	last, _ := s.Point(6)
	lastCopy := last.Copy()

	remaining := s.DeletePoints([]int{1, 3})
	assert.Equal(t, []int{0, 2, 4, 5, 6}, remaining)
	assert.Equal(t, 5, s.Size())

	seq, err := s.SequenceNumber(lastCopy)
	require.NoError(t, err)
	assert.Equal(t, 4, seq)
	for k := 0; k < s.Size(); k++ {
		p, _ := s.Point(k)
		assert.Equal(t, k, s.Find(p))
	}
}

func TestStorageUpdateAndDeleteLast(t *testing.T) {
	s := NewStorage(1)
	for _, p := range []*Point{mustPoint(t, 1, 1), mustPoint(t, 2, 1), mustPoint(t, 2, 3)} {
		_, err := s.Insert(p)
		require.NoError(t, err)
	}

	require.NoError(t, s.Update(mustPoint(t, 3, 1), 1))
	assert.Equal(t, NotFound, s.Find(mustPoint(t, 2, 1)))
	assert.Equal(t, 1, s.Find(mustPoint(t, 3, 1)))
	assert.ErrorIs(t, s.Update(mustPoint(t, 2, 3), 1), ErrDuplicatePoint)

	s.DeleteLast()
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, NotFound, s.Find(mustPoint(t, 2, 3)))

	seq, err := s.Insert(mustPoint(t, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}

func TestStorageClearAndClone(t *testing.T) {
	s := regularGrid(t, 2, 3)
	c := s.Clone()
	s.Clear()

	assert.Equal(t, 0, s.Size())
	assert.Equal(t, NotFound, s.Find(mustPoint(t, 1, 1, 1, 1)))
	require.Greater(t, c.Size(), 0)
	assert.Equal(t, 0, c.Find(mustPoint(t, 1, 1, 1, 1)))
}

func TestStorageAlgorithmicDimensions(t *testing.T) {
	s := NewStorage(3)
	assert.Equal(t, []int{0, 1, 2}, s.AlgorithmicDimensions())
	require.NoError(t, s.SetAlgorithmicDimensions([]int{0, 2}))
	assert.Equal(t, []int{0, 2}, s.AlgorithmicDimensions())
	assert.ErrorIs(t, s.SetAlgorithmicDimensions([]int{0, 1, 2, 0}), ErrTooManyAlgorithmicDimensions)
}

func TestStorageLevelIndexArrays(t *testing.T) {
	s := NewStorage(2)
	_, err := s.Insert(mustPoint(t, 2, 3, 1, 1))
	require.NoError(t, err)

	level, index := s.LevelIndexArrays()
	assert.Equal(t, 4.0, level.At(0, 0))
	assert.Equal(t, 2.0, level.At(0, 1))
	assert.Equal(t, 3.0, index.At(0, 0))
	assert.Equal(t, 0.25, s.LevelForIntegral().At(0, 0))
	assert.Equal(t, 2, s.MaxLevel())

	empty := NewStorage(2)
	level, index = empty.LevelIndexArrays()
	assert.Nil(t, level)
	assert.Nil(t, index)
}

func TestStorageCoordinatesInBoundingBox(t *testing.T) {
	bb := NewBoundingBox(1)
	bb.SetBoundary(0, DimensionBoundary{Left: -2, Right: 2})
	s := NewStorageWithBoundingBox(bb)

	p := mustPoint(t, 2, 3)
	assert.Equal(t, 1.0, s.Coordinate(p, 0))
	assert.Equal(t, []float64{1.0}, s.Coordinates(p))
	assert.False(t, s.BoundingBox().IsUnitCube())
	assert.Equal(t, 0.75, s.BoundingBox().TransformPointToUnitCube(0, 1))
}

func BenchmarkStorageFind(b *testing.B) {
	s := regularGrid(b, 4, 6)
	probes := make([]*Point, s.Size())
	for k := range probes {
		p, _ := s.Point(k)
		probes[k] = p.Copy()
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if s.Find(probes[n%len(probes)]) == NotFound {
			b.Fatal("stored point not found")
		}
	}
}
