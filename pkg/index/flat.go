package index

import (
	"container/heap"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/vectorlite/pkg/metric"
	"github.com/liliang-cn/vectorlite/pkg/store"
)

// minShardSize bounds how finely Search splits the scan: shards smaller
// than this aren't worth the goroutine overhead.
const minShardSize = 2048

// Flat is the brute-force ANN strategy (C5): an exhaustive linear
// scan over the backing store, scored under its configured metric.
// It carries no auxiliary state, so Add/Delete/Rebuild are no-ops.
type Flat struct {
	s *store.Store
}

// NewFlat creates a brute-force strategy over s.
func NewFlat(s *store.Store) *Flat {
	return &Flat{s: s}
}

func (f *Flat) Add(uint32) error    { return nil }
func (f *Flat) Delete(uint32) error { return nil }
func (f *Flat) Rebuild() error      { return nil }

// Search scores every allowed record and returns the top-k by metric
// score, highest first. The scan is sharded across GOMAXPROCS
// goroutines via errgroup, each maintaining its own top-k heap; the
// shard heaps are merged into the final result at the end.
func (f *Flat) Search(query []float32, k int, allowed func(id uint32) bool) ([]Result, error) {
	if len(query) != f.s.Dim() {
		return nil, fmt.Errorf("index: query has dim %d, want %d", len(query), f.s.Dim())
	}
	if k <= 0 {
		return nil, nil
	}

	prepared := metric.PrepareForQuery(f.s.Metric(), query)
	count := int(f.s.Len())
	if count == 0 {
		return nil, nil
	}

	shards := runtime.GOMAXPROCS(0)
	if shards < 1 {
		shards = 1
	}
	if want := (count + minShardSize - 1) / minShardSize; want < shards {
		shards = want
	}
	if shards < 1 {
		shards = 1
	}

	chunk := (count + shards - 1) / shards
	partials := make([]*resultHeap, shards)

	var g errgroup.Group
	for s := 0; s < shards; s++ {
		lo := s * chunk
		hi := lo + chunk
		if hi > count {
			hi = count
		}
		if lo >= hi {
			continue
		}
		s := s
		lo, hi := lo, hi
		g.Go(func() error {
			h := &resultHeap{}
			heap.Init(h)
			for pos := lo; pos < hi; pos++ {
				id := f.s.IDAt(uint32(pos))
				if allowed != nil && !allowed(id) {
					continue
				}
				score := metric.Score(f.s.Metric(), prepared, f.s.VectorAt(uint32(pos)))
				offerTopK(h, Result{ID: id, Score: score}, k)
			}
			partials[s] = h
			return nil
		})
	}
	_ = g.Wait() // shard workers never return an error

	merged := &resultHeap{}
	heap.Init(merged)
	for _, h := range partials {
		if h == nil {
			continue
		}
		for _, r := range *h {
			offerTopK(merged, r, k)
		}
	}

	return drainDesc(merged), nil
}
