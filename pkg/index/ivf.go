package index

import (
	"container/heap"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/vectorlite/pkg/metric"
	"github.com/liliang-cn/vectorlite/pkg/store"
)

// ivfEpsilon bounds how much a centroid may move between Lloyd
// iterations before it still counts as "moved".
const ivfEpsilon = 1e-4

// IVFConfig parameterizes the inverted-file strategy (C7).
type IVFConfig struct {
	NList  int
	NProbe int
}

// DefaultIVFConfig returns a single-list, single-probe configuration;
// callers size NList to their expected corpus before training.
func DefaultIVFConfig() IVFConfig {
	return IVFConfig{NList: 1, NProbe: 1}
}

// IVF implements the inverted-file strategy: vectors are assigned to
// the nearest of nlist centroids, and a query only scans the nprobe
// closest lists before exact re-ranking. Untrained ids live in a
// fallback list scanned in full.
type IVF struct {
	s   *store.Store
	cfg IVFConfig

	centroids [][]float32
	postings  [][]uint32
	fallback  []uint32
	idToList  map[uint32]int // -1 means fallback
	trained   bool
}

// NewIVF creates an untrained IVF strategy over s.
func NewIVF(s *store.Store, cfg IVFConfig) *IVF {
	if cfg.NList < 1 {
		cfg.NList = 1
	}
	if cfg.NProbe < 1 {
		cfg.NProbe = 1
	}
	return &IVF{
		s:        s,
		cfg:      cfg,
		idToList: make(map[uint32]int),
	}
}

func nearestCentroidAmong(m metric.Metric, centroids [][]float32, vec []float32) int {
	best := 0
	bestScore := metric.Score(m, vec, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if s := metric.Score(m, vec, centroids[i]); s > bestScore {
			bestScore, best = s, i
		}
	}
	return best
}

func (ivf *IVF) nearestCentroid(vec []float32) int {
	return nearestCentroidAmong(ivf.s.Metric(), ivf.centroids, vec)
}

// assignNearest computes, for each id in ids, the index of its nearest
// centroid under m. The scan is sharded across GOMAXPROCS goroutines
// via errgroup, mirroring Flat.Search's scan-sharding idiom: each
// shard only reads the store and centroids and writes to its own
// slice range, so no locking is needed beyond the final join.
func assignNearest(s *store.Store, m metric.Metric, centroids [][]float32, ids []uint32) []int {
	n := len(ids)
	out := make([]int, n)
	if n == 0 {
		return out
	}

	shards := runtime.GOMAXPROCS(0)
	if shards < 1 {
		shards = 1
	}
	if want := (n + minShardSize - 1) / minShardSize; want < shards {
		shards = want
	}
	if shards < 1 {
		shards = 1
	}
	chunk := (n + shards - 1) / shards

	var g errgroup.Group
	for sh := 0; sh < shards; sh++ {
		lo := sh * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		lo, hi := lo, hi
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				pos, _ := s.PositionOf(ids[i])
				out[i] = nearestCentroidAmong(m, centroids, s.VectorAt(pos))
			}
			return nil
		})
	}
	_ = g.Wait() // shard workers never return an error
	return out
}

func removeID(list []uint32, id uint32) []uint32 {
	for i, x := range list {
		if x == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (ivf *IVF) removeFromCurrentList(id uint32) {
	li, exists := ivf.idToList[id]
	if !exists {
		return
	}
	if li == -1 {
		ivf.fallback = removeID(ivf.fallback, id)
	} else {
		ivf.postings[li] = removeID(ivf.postings[li], id)
	}
	delete(ivf.idToList, id)
}

// Add assigns id's stored vector to its nearest centroid (or the
// fallback list if untrained), replacing any prior assignment.
func (ivf *IVF) Add(id uint32) error {
	pos, ok := ivf.s.PositionOf(id)
	if !ok {
		return fmt.Errorf("index: id %d not found in store", id)
	}
	ivf.removeFromCurrentList(id)

	if !ivf.trained {
		ivf.fallback = append(ivf.fallback, id)
		ivf.idToList[id] = -1
		return nil
	}

	li := ivf.nearestCentroid(ivf.s.VectorAt(pos))
	ivf.postings[li] = append(ivf.postings[li], id)
	ivf.idToList[id] = li
	return nil
}

// Delete removes id from whichever list currently holds it.
func (ivf *IVF) Delete(id uint32) error {
	if _, exists := ivf.idToList[id]; !exists {
		return fmt.Errorf("index: id %d not found", id)
	}
	ivf.removeFromCurrentList(id)
	return nil
}

// TrainCentroids runs Lloyd's algorithm for up to iters iterations,
// seeded deterministically, initializing centroids by sampling
// distinct stored vectors. It returns how many centroids moved by
// more than ivfEpsilon in the final iteration executed.
func (ivf *IVF) TrainCentroids(iters int, seed int64) (int, error) {
	ids := ivf.s.IDs()
	if len(ids) < ivf.cfg.NList {
		return 0, fmt.Errorf("index: need at least %d vectors to train %d centroids, got %d", ivf.cfg.NList, ivf.cfg.NList, len(ids))
	}
	dim := ivf.s.Dim()

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(ids))
	centroids := make([][]float32, ivf.cfg.NList)
	for i := 0; i < ivf.cfg.NList; i++ {
		pos, _ := ivf.s.PositionOf(ids[perm[i]])
		c := make([]float32, dim)
		copy(c, ivf.s.VectorAt(pos))
		centroids[i] = c
	}

	assignment := make(map[uint32]int, len(ids))
	moved := ivf.cfg.NList

	for iter := 0; iter < iters; iter++ {
		assigned := assignNearest(ivf.s, ivf.s.Metric(), centroids, ids)
		for i, id := range ids {
			assignment[id] = assigned[i]
		}

		newCentroids := make([][]float32, ivf.cfg.NList)
		counts := make([]int, ivf.cfg.NList)
		for i := range newCentroids {
			newCentroids[i] = make([]float32, dim)
		}
		for _, id := range ids {
			li := assignment[id]
			pos, _ := ivf.s.PositionOf(id)
			vec := ivf.s.VectorAt(pos)
			counts[li]++
			for d := 0; d < dim; d++ {
				newCentroids[li][d] += vec[d]
			}
		}

		for i := range newCentroids {
			if counts[i] == 0 {
				worstID, worstScore, first := uint32(0), float32(0), true
				for _, id := range ids {
					li := assignment[id]
					pos, _ := ivf.s.PositionOf(id)
					vec := ivf.s.VectorAt(pos)
					sc := metric.Score(ivf.s.Metric(), vec, centroids[li])
					if first || sc < worstScore {
						worstScore, worstID, first = sc, id, false
					}
				}
				pos, _ := ivf.s.PositionOf(worstID)
				copy(newCentroids[i], ivf.s.VectorAt(pos))
				continue
			}
			for d := 0; d < dim; d++ {
				newCentroids[i][d] /= float32(counts[i])
			}
			if ivf.s.Metric() == metric.Cosine {
				newCentroids[i] = metric.Normalize(newCentroids[i])
			}
		}

		moved = 0
		for i := range centroids {
			if metric.SquaredDistance(centroids[i], newCentroids[i]) > ivfEpsilon*ivfEpsilon {
				moved++
			}
		}
		centroids = newCentroids
		if moved == 0 {
			break
		}
	}

	ivf.centroids = centroids
	ivf.trained = true
	ivf.Reassign()
	return moved, nil
}

// Reassign rebuilds every posting list from the current centroids and
// returns how many ids changed list membership. A no-op returning 0
// if the index has not been trained.
func (ivf *IVF) Reassign() int {
	if !ivf.trained {
		return 0
	}
	old := ivf.idToList
	newIdToList := make(map[uint32]int, len(old))
	newPostings := make([][]uint32, len(ivf.centroids))
	ids := ivf.s.IDs()

	assigned := assignNearest(ivf.s, ivf.s.Metric(), ivf.centroids, ids)
	moved := 0
	for i, id := range ids {
		li := assigned[i]
		newPostings[li] = append(newPostings[li], id)
		newIdToList[id] = li
		if oldLi, existed := old[id]; !existed || oldLi != li {
			moved++
		}
	}

	ivf.postings = newPostings
	ivf.idToList = newIdToList
	ivf.fallback = nil
	return moved
}

// Search scores the nprobe closest centroids, scans their posting
// lists, and exact-scores the collected candidates. allowed is
// applied before re-rank, narrowing the candidate set the heap scores.
func (ivf *IVF) Search(query []float32, k int, allowed func(id uint32) bool) ([]Result, error) {
	if len(query) != ivf.s.Dim() {
		return nil, fmt.Errorf("index: query has dim %d, want %d", len(query), ivf.s.Dim())
	}
	if k <= 0 {
		return nil, nil
	}

	prepared := metric.PrepareForQuery(ivf.s.Metric(), query)

	h := &resultHeap{}
	heap.Init(h)

	offerList := func(list []uint32) {
		for _, id := range list {
			if allowed != nil && !allowed(id) {
				continue
			}
			pos, ok := ivf.s.PositionOf(id)
			if !ok {
				continue
			}
			sc := metric.Score(ivf.s.Metric(), prepared, ivf.s.VectorAt(pos))
			offerTopK(h, Result{ID: id, Score: sc}, k)
		}
	}

	if ivf.trained {
		nprobe := ivf.cfg.NProbe
		if nprobe > len(ivf.centroids) {
			nprobe = len(ivf.centroids)
		}

		type centroidScore struct {
			idx   int
			score float32
		}
		scores := make([]centroidScore, len(ivf.centroids))
		for i, c := range ivf.centroids {
			scores[i] = centroidScore{idx: i, score: metric.Score(ivf.s.Metric(), prepared, c)}
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

		for i := 0; i < nprobe; i++ {
			offerList(ivf.postings[scores[i].idx])
		}
	}
	offerList(ivf.fallback)

	return drainDesc(h), nil
}

// Rebuild retrains nothing but re-derives posting lists from the
// current centroids, dropping any fallback backlog.
func (ivf *IVF) Rebuild() error {
	ivf.Reassign()
	return nil
}

// IVFState is the full persisted inverted-file state.
type IVFState struct {
	Centroids [][]float32
	Postings  [][]uint32
	Fallback  []uint32
	Trained   bool
}

// ExportState captures the centroids and posting lists for serialization.
func (ivf *IVF) ExportState() IVFState {
	st := IVFState{Trained: ivf.trained}
	for _, c := range ivf.centroids {
		st.Centroids = append(st.Centroids, append([]float32(nil), c...))
	}
	for _, p := range ivf.postings {
		st.Postings = append(st.Postings, append([]uint32(nil), p...))
	}
	st.Fallback = append([]uint32(nil), ivf.fallback...)
	return st
}

// ImportState replaces this index's state with a previously exported
// one, rebuilding idToList from the posting lists and fallback.
func (ivf *IVF) ImportState(st IVFState) {
	ivf.centroids = st.Centroids
	ivf.postings = st.Postings
	ivf.fallback = st.Fallback
	ivf.trained = st.Trained
	ivf.idToList = make(map[uint32]int)
	for li, list := range ivf.postings {
		for _, id := range list {
			ivf.idToList[id] = li
		}
	}
	for _, id := range ivf.fallback {
		ivf.idToList[id] = -1
	}
}

// Evaluate compares this index's results against brute-force search
// on the same store for each query, returning the average recall@k.
func (ivf *IVF) Evaluate(queries [][]float32, k int) (float64, error) {
	if len(queries) == 0 {
		return 0, nil
	}
	flat := NewFlat(ivf.s)

	var total float64
	for _, q := range queries {
		exact, err := flat.Search(q, k, nil)
		if err != nil {
			return 0, err
		}
		if len(exact) == 0 {
			continue
		}
		approx, err := ivf.Search(q, k, nil)
		if err != nil {
			return 0, err
		}

		exactSet := make(map[uint32]bool, len(exact))
		for _, r := range exact {
			exactSet[r.ID] = true
		}
		hits := 0
		for _, r := range approx {
			if exactSet[r.ID] {
				hits++
			}
		}
		total += float64(hits) / float64(len(exact))
	}
	return total / float64(len(queries)), nil
}
