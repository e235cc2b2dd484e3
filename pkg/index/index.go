// Package index implements the three ANN strategies behind a single
// contract: brute-force, HNSW, and IVF. Each operates over a packed
// *store.Store and an optional candidate restriction supplied by the
// attribute filter.
package index

import "container/heap"

// Result is a single scored hit. Higher Score is always closer.
type Result struct {
	ID    uint32
	Score float32
}

// Strategy is the common interface every ANN implementation satisfies,
// grounded on the teacher's VectorIndex interface (pkg/index/multi_index.go)
// but keyed on u32 ids and a metric-aware Score instead of a distance.
type Strategy interface {
	// Add incorporates the record already present at id's position in
	// the backing store into the index's auxiliary state.
	Add(id uint32) error
	// Delete removes id from the index's auxiliary state. Implementations
	// that cannot physically compact (HNSW) perform a soft delete.
	Delete(id uint32) error
	// Search returns the top-k results for query, restricted to ids for
	// which allowed returns true (nil allowed means no restriction).
	Search(query []float32, k int, allowed func(id uint32) bool) ([]Result, error)
	// Rebuild performs any compaction or reassignment the strategy
	// supports (HNSW: drop soft-deleted nodes; IVF: reassign every id
	// to its nearest current centroid, without retraining centroids).
	Rebuild() error
}

// resultHeap is a min-heap on Score, used by every strategy to keep a
// bounded top-k during a scan. Grounded on the teacher's flatMaxHeap
// (pkg/index/flat.go), inverted to a min-heap since we keep the
// highest scores.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// offerTopK pushes r into a bounded top-k min-heap of size k.
func offerTopK(h *resultHeap, r Result, k int) {
	if h.Len() < k {
		heap.Push(h, r)
		return
	}
	if k > 0 && r.Score > (*h)[0].Score {
		heap.Pop(h)
		heap.Push(h, r)
	}
}

// drainDesc pops a top-k heap into a descending-by-score slice.
func drainDesc(h *resultHeap) []Result {
	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}
