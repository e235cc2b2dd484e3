package index

import (
	"math/rand"
	"testing"

	"github.com/liliang-cn/vectorlite/pkg/metric"
	"github.com/liliang-cn/vectorlite/pkg/store"
)

func buildIVFCorpus(t *testing.T, n, dim int, seed int64) (*store.Store, []uint32, [][]float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	s := store.New(dim, metric.Dot, uint32(n))
	ids := make([]uint32, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = uint32(i + 1)
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vecs[i] = v
		if _, err := s.AddOrUpdate(ids[i], v, nil); err != nil {
			t.Fatalf("AddOrUpdate(%d): %v", ids[i], err)
		}
	}
	return s, ids, vecs
}

func TestIVF_SearchBeforeTrainUsesFallback(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 10, 4, 1)
	ivf := NewIVF(s, IVFConfig{NList: 3, NProbe: 1})
	for _, id := range ids {
		if err := ivf.Add(id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	pos, _ := s.PositionOf(ids[0])
	results, err := ivf.Search(s.VectorAt(pos), 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3 (fallback scan covers everything)", len(results))
	}
}

func TestIVF_TrainRequiresEnoughVectors(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 2, 4, 1)
	ivf := NewIVF(s, IVFConfig{NList: 5, NProbe: 1})
	for _, id := range ids {
		_ = ivf.Add(id)
	}
	if _, err := ivf.TrainCentroids(10, 1); err == nil {
		t.Fatal("expected error training more centroids than vectors")
	}
}

func TestIVF_TrainAndSearch(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 200, 8, 7)
	ivf := NewIVF(s, IVFConfig{NList: 8, NProbe: 3})
	for _, id := range ids {
		if err := ivf.Add(id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if _, err := ivf.TrainCentroids(15, 7); err != nil {
		t.Fatalf("TrainCentroids: %v", err)
	}

	pos, _ := s.PositionOf(ids[0])
	results, err := ivf.Search(s.VectorAt(pos), 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result after training")
	}
}

func TestIVF_DeleteRemovesFromPostings(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 30, 4, 3)
	ivf := NewIVF(s, IVFConfig{NList: 4, NProbe: 4})
	for _, id := range ids {
		if err := ivf.Add(id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if _, err := ivf.TrainCentroids(10, 3); err != nil {
		t.Fatalf("TrainCentroids: %v", err)
	}

	target := ids[0]
	if err := ivf.Delete(target); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	pos, _ := s.PositionOf(target)
	results, err := ivf.Search(s.VectorAt(pos), len(ids), nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == target {
			t.Fatalf("deleted id %d still present in results", target)
		}
	}
}

func TestIVF_DeleteMissing(t *testing.T) {
	s, _, _ := buildIVFCorpus(t, 5, 4, 1)
	ivf := NewIVF(s, IVFConfig{NList: 2, NProbe: 1})
	if err := ivf.Delete(999); err == nil {
		t.Fatal("expected error deleting id never added")
	}
}

func TestIVF_EvaluateRecall(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 400, 16, 11)
	ivf := NewIVF(s, IVFConfig{NList: 16, NProbe: 6})
	for _, id := range ids {
		if err := ivf.Add(id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if _, err := ivf.TrainCentroids(20, 11); err != nil {
		t.Fatalf("TrainCentroids: %v", err)
	}

	rng := rand.New(rand.NewSource(99))
	queries := make([][]float32, 15)
	for i := range queries {
		q := make([]float32, 16)
		for j := range q {
			q[j] = float32(rng.NormFloat64())
		}
		queries[i] = q
	}

	recall, err := ivf.Evaluate(queries, 10)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if recall < 0.6 {
		t.Fatalf("recall = %.3f, want >= 0.6", recall)
	}
}

func TestIVF_ReassignCountsMoves(t *testing.T) {
	s, ids, _ := buildIVFCorpus(t, 60, 4, 5)
	ivf := NewIVF(s, IVFConfig{NList: 4, NProbe: 4})
	for _, id := range ids {
		if err := ivf.Add(id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if _, err := ivf.TrainCentroids(10, 5); err != nil {
		t.Fatalf("TrainCentroids: %v", err)
	}
	if moved := ivf.Reassign(); moved != 0 {
		t.Fatalf("Reassign() right after training = %d, want 0 (already converged)", moved)
	}
}
