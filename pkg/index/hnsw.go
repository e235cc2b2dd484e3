package index

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/liliang-cn/vectorlite/pkg/metric"
	"github.com/liliang-cn/vectorlite/pkg/store"
)

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEfSearch       = 50
)

// HNSWConfig parameterizes the hierarchical graph (C6).
type HNSWConfig struct {
	M                   int
	EfConstruction      int
	EfSearch            int
	Seed                int64
	AllowReplaceDeleted bool
}

// DefaultHNSWConfig returns the teacher-sized defaults.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: defaultM, EfConstruction: defaultEfConstruction, EfSearch: defaultEfSearch, Seed: 1}
}

type hnswNode struct {
	level     int
	neighbors [][]uint32
}

// HNSW implements the layered proximity graph strategy. Vectors are
// never copied into the graph; every score lookup reads live through
// the backing store, so an updated vector is reflected without a
// re-insertion.
type HNSW struct {
	s         *store.Store
	cfg       HNSWConfig
	mMax0     int
	levelMult float64
	rng       *rand.Rand

	nodes      map[uint32]*hnswNode
	deleted    map[uint32]struct{}
	entryPoint uint32
	hasEntry   bool
}

// NewHNSW creates an empty HNSW strategy over s.
func NewHNSW(s *store.Store, cfg HNSWConfig) *HNSW {
	if cfg.M < 2 {
		cfg.M = defaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = defaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = defaultEfSearch
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return &HNSW{
		s:         s,
		cfg:       cfg,
		mMax0:     cfg.M * 2,
		levelMult: 1 / math.Log(float64(cfg.M)),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		nodes:     make(map[uint32]*hnswNode),
		deleted:   make(map[uint32]struct{}),
	}
}

func (h *HNSW) selectLevel() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * h.levelMult))
}

func (h *HNSW) vectorOf(id uint32) []float32 {
	pos, _ := h.s.PositionOf(id)
	return h.s.VectorAt(pos)
}

func (h *HNSW) score(query []float32, id uint32) float32 {
	return metric.Score(h.s.Metric(), query, h.vectorOf(id))
}

func (h *HNSW) isDeleted(id uint32) bool {
	_, ok := h.deleted[id]
	return ok
}

// Add inserts id's already-stored vector into the graph, or revives a
// soft-deleted slot in place when AllowReplaceDeleted is set.
func (h *HNSW) Add(id uint32) error {
	if _, ok := h.s.PositionOf(id); !ok {
		return fmt.Errorf("index: id %d not found in store", id)
	}

	if node, exists := h.nodes[id]; exists {
		if h.isDeleted(id) {
			if h.cfg.AllowReplaceDeleted {
				delete(h.deleted, id)
				return nil
			}
			h.detach(id, node)
			delete(h.nodes, id)
		} else {
			return nil
		}
	}

	vec := h.vectorOf(id)
	level := h.selectLevel()
	node := &hnswNode{level: level, neighbors: make([][]uint32, level+1)}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		return nil
	}

	entryLevel := h.nodes[h.entryPoint].level
	curr := []uint32{h.entryPoint}
	for lc := entryLevel; lc > level; lc-- {
		curr = h.searchLayerClosest(vec, curr, 1, lc, false)
	}

	for lc := level; lc >= 0; lc-- {
		m := h.cfg.M
		if lc == 0 {
			m = h.mMax0
		}
		candidates := idsOf(h.searchLayer(vec, curr, h.cfg.EfConstruction, lc, false))
		neighbors := h.selectNeighborsHeuristic(vec, candidates, m)
		node.neighbors[lc] = neighbors
		for _, nb := range neighbors {
			h.connect(nb, id, lc)
			h.pruneIfNeeded(nb, lc)
		}
		curr = neighbors
	}

	if level > entryLevel {
		h.entryPoint = id
	}
	return nil
}

// detach removes id from every neighbor list that references it, used
// when a deleted slot is reused without AllowReplaceDeleted.
func (h *HNSW) detach(id uint32, node *hnswNode) {
	for lc, neighbors := range node.neighbors {
		for _, nb := range neighbors {
			nbNode, ok := h.nodes[nb]
			if !ok || lc >= len(nbNode.neighbors) {
				continue
			}
			kept := nbNode.neighbors[lc][:0]
			for _, x := range nbNode.neighbors[lc] {
				if x != id {
					kept = append(kept, x)
				}
			}
			nbNode.neighbors[lc] = kept
		}
	}
}

func (h *HNSW) connect(from, to uint32, layer int) {
	node, ok := h.nodes[from]
	if !ok || layer >= len(node.neighbors) {
		return
	}
	for _, nb := range node.neighbors[layer] {
		if nb == to {
			return
		}
	}
	node.neighbors[layer] = append(node.neighbors[layer], to)
}

func (h *HNSW) pruneIfNeeded(id uint32, layer int) {
	node := h.nodes[id]
	if layer >= len(node.neighbors) {
		return
	}
	maxConn := h.cfg.M
	if layer == 0 {
		maxConn = h.mMax0
	}
	if len(node.neighbors[layer]) <= maxConn {
		return
	}
	node.neighbors[layer] = h.selectNeighborsHeuristic(h.vectorOf(id), node.neighbors[layer], maxConn)
}

// selectNeighborsHeuristic keeps a candidate c only if no
// already-selected neighbor is closer to c than the query is,
// processing candidates closest-to-query first.
func (h *HNSW) selectNeighborsHeuristic(query []float32, candidateIDs []uint32, m int) []uint32 {
	if len(candidateIDs) <= m {
		out := make([]uint32, len(candidateIDs))
		copy(out, candidateIDs)
		return out
	}

	type scored struct {
		id    uint32
		toQry float32
	}
	list := make([]scored, len(candidateIDs))
	for i, id := range candidateIDs {
		list[i] = scored{id: id, toQry: h.score(query, id)}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].toQry > list[j].toQry })

	selected := make([]uint32, 0, m)
	for _, cand := range list {
		if len(selected) >= m {
			break
		}
		keep := true
		cVec := h.vectorOf(cand.id)
		for _, rid := range selected {
			if metric.Score(h.s.Metric(), cVec, h.vectorOf(rid)) > cand.toQry {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, cand.id)
		}
	}
	return selected
}

// candHeap is a max-heap on Score, used to pop the best unexplored
// candidate first during beam search.
type candHeap []Result

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool  { return h[i].Score > h[j].Score }
func (h candHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *candHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs a beam search of width ef from entryPoints at
// layer, returning candidates sorted by descending score. When
// skipDeleted is set, soft-deleted nodes are still traversed for
// connectivity but never surface as results.
func (h *HNSW) searchLayer(query []float32, entryPoints []uint32, ef int, layer int, skipDeleted bool) []Result {
	visited := make(map[uint32]bool, len(entryPoints))
	candidates := &candHeap{}
	dynamic := &resultHeap{}
	heap.Init(candidates)
	heap.Init(dynamic)

	offer := func(id uint32, deleted bool) {
		s := h.score(query, id)
		heap.Push(candidates, Result{ID: id, Score: s})
		if skipDeleted && deleted {
			return
		}
		if dynamic.Len() < ef || s > (*dynamic)[0].Score {
			heap.Push(dynamic, Result{ID: id, Score: s})
			if dynamic.Len() > ef {
				heap.Pop(dynamic)
			}
		}
	}

	for _, id := range entryPoints {
		if visited[id] {
			continue
		}
		visited[id] = true
		offer(id, h.isDeleted(id))
	}

	for candidates.Len() > 0 {
		if dynamic.Len() > 0 && (*candidates)[0].Score < (*dynamic)[0].Score {
			break
		}
		current := heap.Pop(candidates).(Result)
		node, ok := h.nodes[current.ID]
		if !ok || layer >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			offer(nb, h.isDeleted(nb))
		}
	}

	return drainDesc(dynamic)
}

func (h *HNSW) searchLayerClosest(query []float32, entryPoints []uint32, num, layer int, skipDeleted bool) []uint32 {
	results := h.searchLayer(query, entryPoints, num, layer, skipDeleted)
	if len(results) > num {
		results = results[:num]
	}
	return idsOf(results)
}

func idsOf(results []Result) []uint32 {
	out := make([]uint32, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// Search descends greedily through the upper layers to a single best
// candidate, then runs a beam search at layer 0 with width
// max(EfSearch, k). When allowed restricts candidates, the beam is
// widened to improve recall of the restricted set.
func (h *HNSW) Search(query []float32, k int, allowed func(id uint32) bool) ([]Result, error) {
	if len(query) != h.s.Dim() {
		return nil, fmt.Errorf("index: query has dim %d, want %d", len(query), h.s.Dim())
	}
	if k <= 0 || !h.hasEntry {
		return nil, nil
	}

	prepared := metric.PrepareForQuery(h.s.Metric(), query)

	entryLevel := h.nodes[h.entryPoint].level
	curr := []uint32{h.entryPoint}
	for lc := entryLevel; lc > 0; lc-- {
		curr = h.searchLayerClosest(prepared, curr, 1, lc, true)
	}

	ef := h.cfg.EfSearch
	if k > ef {
		ef = k
	}
	if allowed != nil {
		ef *= 4
	}

	candidates := h.searchLayer(prepared, curr, ef, 0, true)

	out := make([]Result, 0, k)
	for _, r := range candidates {
		if allowed != nil && !allowed(r.ID) {
			continue
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Delete soft-deletes id; search skips it immediately, and a
// successor entry point is chosen if id was the entry point.
func (h *HNSW) Delete(id uint32) error {
	if _, exists := h.nodes[id]; !exists {
		return fmt.Errorf("index: id %d not found", id)
	}
	h.deleted[id] = struct{}{}
	if h.hasEntry && h.entryPoint == id {
		h.reassignEntryPoint()
	}
	return nil
}

func (h *HNSW) reassignEntryPoint() {
	var best uint32
	bestLevel := -1
	found := false
	for nid, node := range h.nodes {
		if h.isDeleted(nid) {
			continue
		}
		if !found || node.level > bestLevel || (node.level == bestLevel && nid < best) {
			best, bestLevel, found = nid, node.level, true
		}
	}
	h.hasEntry = found
	if found {
		h.entryPoint = best
	}
}

// HNSWNodeState is one node's persisted graph shape.
type HNSWNodeState struct {
	ID        uint32
	Level     int
	Neighbors [][]uint32
}

// HNSWState is the full persisted graph, independent of the vectors
// it indexes (those live in the store and are snapshotted separately).
type HNSWState struct {
	Nodes      []HNSWNodeState
	Deleted    []uint32
	EntryPoint uint32
	HasEntry   bool
}

// ExportState captures the graph for serialization.
func (h *HNSW) ExportState() HNSWState {
	st := HNSWState{
		Nodes:      make([]HNSWNodeState, 0, len(h.nodes)),
		EntryPoint: h.entryPoint,
		HasEntry:   h.hasEntry,
	}
	for id, node := range h.nodes {
		neighbors := make([][]uint32, len(node.neighbors))
		for lc, nb := range node.neighbors {
			neighbors[lc] = append([]uint32(nil), nb...)
		}
		st.Nodes = append(st.Nodes, HNSWNodeState{ID: id, Level: node.level, Neighbors: neighbors})
	}
	for id := range h.deleted {
		st.Deleted = append(st.Deleted, id)
	}
	return st
}

// ImportState replaces the graph with a previously exported one. The
// backing store must already hold every id referenced by st.
func (h *HNSW) ImportState(st HNSWState) {
	h.nodes = make(map[uint32]*hnswNode, len(st.Nodes))
	for _, n := range st.Nodes {
		h.nodes[n.ID] = &hnswNode{level: n.Level, neighbors: n.Neighbors}
	}
	h.deleted = make(map[uint32]struct{}, len(st.Deleted))
	for _, id := range st.Deleted {
		h.deleted[id] = struct{}{}
	}
	h.entryPoint = st.EntryPoint
	h.hasEntry = st.HasEntry
}

// Rebuild drops every soft-deleted node, prunes dangling neighbor
// references, and reassigns the entry point if it was dropped.
func (h *HNSW) Rebuild() error {
	for id := range h.deleted {
		delete(h.nodes, id)
	}
	for _, node := range h.nodes {
		for lc := range node.neighbors {
			kept := node.neighbors[lc][:0]
			for _, nb := range node.neighbors[lc] {
				if _, ok := h.nodes[nb]; ok {
					kept = append(kept, nb)
				}
			}
			node.neighbors[lc] = kept
		}
	}
	h.deleted = make(map[uint32]struct{})
	if h.hasEntry {
		if _, ok := h.nodes[h.entryPoint]; !ok {
			h.reassignEntryPoint()
		}
	}
	return nil
}
