package filter

import (
	"testing"

	"github.com/liliang-cn/vectorlite/pkg/attr"
)

func setup() (*attr.Index, attr.IDSet) {
	idx := attr.New()
	idx.SetAttrs(1, map[string]any{"color": "red", "price": 10.0})
	idx.SetAttrs(2, map[string]any{"color": "blue", "price": 20.0})
	idx.SetAttrs(3, map[string]any{"color": "red", "price": 30.0})
	universe := attr.IDSet{1: {}, 2: {}, 3: {}}
	return idx, universe
}

func ids(r Result) map[uint32]bool {
	out := make(map[uint32]bool, len(r.IDs))
	for id := range r.IDs {
		out[id] = true
	}
	return out
}

func TestEval_NilIsUniversal(t *testing.T) {
	idx, universe := setup()
	r := Eval(nil, idx, universe)
	if !r.Universal {
		t.Fatal("nil expr should be Universal")
	}
}

func TestEval_Eq(t *testing.T) {
	idx, universe := setup()
	r := Eval(Eq{Key: "color", Value: "red"}, idx, universe)
	if r.Universal {
		t.Fatal("eq should not be Universal")
	}
	got := ids(r)
	if len(got) != 2 || !got[1] || !got[3] {
		t.Fatalf("got %v, want {1,3}", got)
	}
}

func TestEval_And(t *testing.T) {
	idx, universe := setup()
	r := Eval(And{Exprs: []Expr{
		Eq{Key: "color", Value: "red"},
		Range{Key: "price", Bounds: attr.RangeBounds{Gt: f64p(15)}},
	}}, idx, universe)

	got := ids(r)
	if len(got) != 1 || !got[3] {
		t.Fatalf("got %v, want {3}", got)
	}
}

func TestEval_AndAllUniversalIsUniversal(t *testing.T) {
	idx, universe := setup()
	r := Eval(And{}, idx, universe)
	if !r.Universal {
		t.Fatal("empty And should be Universal")
	}
}

func TestEval_Or(t *testing.T) {
	idx, universe := setup()
	r := Eval(Or{Exprs: []Expr{
		Eq{Key: "color", Value: "blue"},
		Range{Key: "price", Bounds: attr.RangeBounds{Gte: f64p(30)}},
	}}, idx, universe)

	got := ids(r)
	if len(got) != 2 || !got[2] || !got[3] {
		t.Fatalf("got %v, want {2,3}", got)
	}
}

func TestEval_OrWithUniversalOperandIsUniversal(t *testing.T) {
	idx, universe := setup()
	r := Eval(Or{Exprs: []Expr{nil, Eq{Key: "color", Value: "red"}}}, idx, universe)
	if !r.Universal {
		t.Fatal("Or with a Universal operand should be Universal")
	}
}

func TestEval_Not(t *testing.T) {
	idx, universe := setup()
	r := Eval(Not{Expr: Eq{Key: "color", Value: "red"}}, idx, universe)
	got := ids(r)
	if len(got) != 1 || !got[2] {
		t.Fatalf("got %v, want {2}", got)
	}
}

func TestEval_NotOfUniversalIsEmpty(t *testing.T) {
	idx, universe := setup()
	r := Eval(Not{Expr: nil}, idx, universe)
	if r.Universal {
		t.Fatal("Not of Universal should not itself be Universal")
	}
	if len(r.IDs) != 0 {
		t.Fatalf("got %v, want empty", r.IDs)
	}
}

func TestEval_UnknownKeyEqIsEmptySet(t *testing.T) {
	idx, universe := setup()
	r := Eval(Eq{Key: "nope", Value: "x"}, idx, universe)
	if r.Universal {
		t.Fatal("eq on unindexed key should be Some(empty), not Universal")
	}
	if len(r.IDs) != 0 {
		t.Fatalf("got %v, want empty", r.IDs)
	}
}

func f64p(v float64) *float64 { return &v }
