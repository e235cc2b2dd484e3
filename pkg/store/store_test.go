package store

import (
	"math"
	"testing"

	"github.com/liliang-cn/vectorlite/pkg/metric"
)

func TestAddOrUpdate_NewAndExisting(t *testing.T) {
	s := New(3, metric.Dot, 1)

	outcome, err := s.AddOrUpdate(1, []float32{1, 2, 3}, "a")
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if outcome != Added {
		t.Fatalf("outcome = %v, want Added", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	outcome, err = s.AddOrUpdate(1, []float32{4, 5, 6}, "b")
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if outcome != Updated {
		t.Fatalf("outcome = %v, want Updated", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after update, want 1", s.Len())
	}

	vec, meta, ok := s.Get(1)
	if !ok {
		t.Fatal("Get(1) not found")
	}
	if meta != "b" {
		t.Fatalf("meta = %v, want b", meta)
	}
	if vec[0] != 4 || vec[1] != 5 || vec[2] != 6 {
		t.Fatalf("vec = %v, want [4 5 6]", vec)
	}
}

func TestAddOrUpdate_DimMismatch(t *testing.T) {
	s := New(3, metric.Dot, 1)
	if _, err := s.AddOrUpdate(1, []float32{1, 2}, nil); err == nil {
		t.Fatal("expected error for dim mismatch")
	}
}

func TestAddOrUpdate_CosineNormalizes(t *testing.T) {
	s := New(2, metric.Cosine, 1)
	if _, err := s.AddOrUpdate(1, []float32{3, 4}, nil); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	vec, _, _ := s.Get(1)
	n := math.Hypot(float64(vec[0]), float64(vec[1]))
	if math.Abs(n-1) > 1e-5 {
		t.Fatalf("norm = %v, want ~1", n)
	}
}

func TestAddOrUpdate_CosineZeroVectorStaysZero(t *testing.T) {
	s := New(2, metric.Cosine, 1)
	if _, err := s.AddOrUpdate(1, []float32{0, 0}, nil); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	vec, _, _ := s.Get(1)
	if vec[0] != 0 || vec[1] != 0 {
		t.Fatalf("vec = %v, want [0 0]", vec)
	}
}

func TestGrowth(t *testing.T) {
	s := New(1, metric.Dot, 1)
	for i := uint32(1); i <= 5; i++ {
		if _, err := s.AddOrUpdate(i, []float32{float32(i)}, nil); err != nil {
			t.Fatalf("AddOrUpdate(%d): %v", i, err)
		}
	}
	if s.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", s.Len())
	}
	if s.Capacity() < s.Len() {
		t.Fatalf("Capacity() = %d < Len() = %d", s.Capacity(), s.Len())
	}
	for i := uint32(1); i <= 5; i++ {
		vec, _, ok := s.Get(i)
		if !ok {
			t.Fatalf("Get(%d) missing", i)
		}
		if vec[0] != float32(i) {
			t.Fatalf("Get(%d) = %v, want [%d]", i, vec, i)
		}
	}
}

func TestRemoveByID_SwapAndPop(t *testing.T) {
	s := New(1, metric.Dot, 4)
	for i := uint32(1); i <= 4; i++ {
		if _, err := s.AddOrUpdate(i, []float32{float32(i)}, nil); err != nil {
			t.Fatalf("AddOrUpdate(%d): %v", i, err)
		}
	}

	rec, ok := s.RemoveByID(2)
	if !ok {
		t.Fatal("RemoveByID(2) not found")
	}
	if rec.Vector[0] != 2 {
		t.Fatalf("removed vector = %v, want [2]", rec.Vector)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.Has(2) {
		t.Fatal("id 2 still present after removal")
	}

	for _, id := range []uint32{1, 3, 4} {
		if !s.Has(id) {
			t.Fatalf("id %d missing after unrelated removal", id)
		}
		p, _ := s.PositionOf(id)
		if s.IDAt(p) != id {
			t.Fatalf("pos invariant broken for id %d: ids[pos]=%d", id, s.IDAt(p))
		}
	}
}

func TestRemoveByID_Missing(t *testing.T) {
	s := New(1, metric.Dot, 1)
	if _, ok := s.RemoveByID(99); ok {
		t.Fatal("expected RemoveByID to report not-found")
	}
}

func TestShrinkToFit(t *testing.T) {
	s := New(1, metric.Dot, 16)
	for i := uint32(1); i <= 3; i++ {
		if _, err := s.AddOrUpdate(i, []float32{float32(i)}, nil); err != nil {
			t.Fatalf("AddOrUpdate(%d): %v", i, err)
		}
	}
	s.ShrinkToFit()
	if s.Capacity() != s.Len() {
		t.Fatalf("Capacity() = %d, want %d after shrink", s.Capacity(), s.Len())
	}
	for i := uint32(1); i <= 3; i++ {
		if !s.Has(i) {
			t.Fatalf("id %d lost after shrink", i)
		}
	}
}

func TestResizeCapacity_ClampsToCount(t *testing.T) {
	s := New(1, metric.Dot, 1)
	for i := uint32(1); i <= 3; i++ {
		if _, err := s.AddOrUpdate(i, []float32{float32(i)}, nil); err != nil {
			t.Fatalf("AddOrUpdate(%d): %v", i, err)
		}
	}
	s.ResizeCapacity(1)
	if s.Capacity() != s.Len() {
		t.Fatalf("Capacity() = %d, want clamp to %d", s.Capacity(), s.Len())
	}
}

func TestWriteVectorAt_OutOfRange(t *testing.T) {
	s := New(2, metric.Dot, 1)
	if _, err := s.AddOrUpdate(1, []float32{1, 2}, nil); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if err := s.WriteVectorAt(5, []float32{1, 2}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestIDs_CopyIsIndependent(t *testing.T) {
	s := New(1, metric.Dot, 1)
	if _, err := s.AddOrUpdate(1, []float32{1}, nil); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	ids := s.IDs()
	ids[0] = 999
	if !s.Has(1) {
		t.Fatal("mutating IDs() copy affected store")
	}
}
