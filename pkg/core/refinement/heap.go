package refinement

// This file defines the bounded selection heap used by the collect phase of
// every refinement pass. The heap keeps at most capacity candidates. Its root
// is always the worst kept candidate, so a better newcomer replaces it in
// O(log k).

import (
	"container/heap"
	"slices"

	"github.com/sanonone/sparsegrid/pkg/core/types"
)

// worstFirst is a heap of candidates ordered so that the candidate to evict
// next sits at the top.
type worstFirst[T any] struct {
	items []T
	worse func(a, b T) bool
}

// Len returns the size of the heap.
func (h *worstFirst[T]) Len() int { return len(h.items) }

// Less puts the worse candidate closer to the root.
func (h *worstFirst[T]) Less(i, j int) bool { return h.worse(h.items[i], h.items[j]) }

// Swap swaps the elements at indices i and j.
func (h *worstFirst[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

// Push adds an element to the heap.
func (h *worstFirst[T]) Push(x any) { h.items = append(h.items, x.(T)) }

// Pop removes and returns the last element of the underlying slice.
func (h *worstFirst[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	var zero T
	old[n-1] = zero
	h.items = old[:n-1]
	return x
}

// selector keeps the best capacity candidates offered to it.
type selector[T any] struct {
	heap     *worstFirst[T]
	capacity int
}

func newSelector[T any](capacity int, worse func(a, b T) bool) *selector[T] {
	h := &worstFirst[T]{
		items: make([]T, 0, max(capacity, 0)+1),
		worse: worse,
	}
	heap.Init(h)
	return &selector[T]{heap: h, capacity: capacity}
}

// offer adds c, evicting the worst kept candidate when over capacity.
func (s *selector[T]) offer(c T) {
	if s.capacity <= 0 {
		return
	}
	if s.heap.Len() == s.capacity {
		// Skip the push/pop round trip for candidates that would be evicted at once.
		if !s.heap.worse(s.heap.items[0], c) {
			return
		}
		s.heap.items[0] = c
		heap.Fix(s.heap, 0)
		return
	}
	heap.Push(s.heap, c)
}

// best drains the selector and returns the kept candidates, best first.
func (s *selector[T]) best() []T {
	out := make([]T, 0, s.heap.Len())
	for s.heap.Len() > 0 {
		out = append(out, heap.Pop(s.heap).(T))
	}
	slices.Reverse(out)
	return out
}

// candidateOrder returns the eviction order for point candidates. Among equal
// priorities the higher sequence number is evicted first.
func candidateOrder(minimize bool) func(a, b types.Candidate) bool {
	if minimize {
		return func(a, b types.Candidate) bool {
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.Seq > b.Seq
		}
	}
	return func(a, b types.Candidate) bool {
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Seq > b.Seq
	}
}

// childOrder extends candidateOrder with the dimension and side of the child.
func childOrder(minimize bool) func(a, b types.ChildCandidate) bool {
	byPoint := candidateOrder(minimize)
	return func(a, b types.ChildCandidate) bool {
		if a.Priority != b.Priority || a.Seq != b.Seq {
			return byPoint(a.Candidate, b.Candidate)
		}
		if a.Dim != b.Dim {
			return a.Dim > b.Dim
		}
		return a.Right && !b.Right
	}
}

// exceeds reports whether v passes the threshold in the direction of the functor.
func exceeds(v, threshold float64, minimize bool) bool {
	if minimize {
		return v < threshold
	}
	return v > threshold
}
