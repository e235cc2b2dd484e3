// Package filter implements the boolean filter expression tree: a
// small grammar of and/or/not combinators over eq/in/exists/range
// leaves, compiled against an attribute index into an id-set
// restriction. It is the C4 component search narrows its candidate
// set through before ANN scoring.
package filter

import "github.com/liliang-cn/vectorlite/pkg/attr"

// Expr is a node in the filter expression tree.
type Expr interface {
	isExpr()
}

type And struct{ Exprs []Expr }
type Or struct{ Exprs []Expr }
type Not struct{ Expr Expr }
type Eq struct {
	Key   string
	Value any
}
type In struct {
	Key    string
	Values []any
}
type Exists struct{ Key string }
type Range struct {
	Key    string
	Bounds attr.RangeBounds
}

func (And) isExpr()    {}
func (Or) isExpr()     {}
func (Not) isExpr()    {}
func (Eq) isExpr()     {}
func (In) isExpr()     {}
func (Exists) isExpr() {}
func (Range) isExpr()  {}

// Result is Option<Set<id>>: Universal=true means "no restriction from
// this subtree" (every id currently in the store passes); otherwise
// IDs holds the exact restricted set.
type Result struct {
	IDs       attr.IDSet
	Universal bool
}

func universal() Result { return Result{Universal: true} }

func some(ids attr.IDSet) Result { return Result{IDs: ids} }

// Eval evaluates expr against idx. universe is the set of every id
// currently present in the store, used to compute Not's complement.
// A nil expr evaluates to Universal (no filter).
func Eval(expr Expr, idx *attr.Index, universe attr.IDSet) Result {
	if expr == nil {
		return universal()
	}
	switch e := expr.(type) {
	case And:
		return evalAnd(e, idx, universe)
	case Or:
		return evalOr(e, idx, universe)
	case Not:
		return evalNot(e, idx, universe)
	case Eq:
		ids, found := idx.Eq(e.Key, e.Value)
		if !found {
			return some(attr.IDSet{})
		}
		return some(ids)
	case In:
		ids, found := idx.In(e.Key, e.Values)
		if !found {
			return some(attr.IDSet{})
		}
		return some(ids)
	case Exists:
		ids, found := idx.Exists(e.Key)
		if !found {
			return some(attr.IDSet{})
		}
		return some(ids)
	case Range:
		ids, found := idx.Range(e.Key, e.Bounds)
		if !found {
			return some(attr.IDSet{})
		}
		return some(ids)
	default:
		return universal()
	}
}

// evalAnd intersects the defined (non-Universal) operands. An
// all-Universal And is itself Universal. Short-circuits to an empty
// set the moment the running intersection is exhausted.
func evalAnd(e And, idx *attr.Index, universe attr.IDSet) Result {
	var acc attr.IDSet
	hasRestriction := false

	for _, sub := range e.Exprs {
		r := Eval(sub, idx, universe)
		if r.Universal {
			continue
		}
		if !hasRestriction {
			acc = r.IDs.Clone()
			hasRestriction = true
			continue
		}
		acc = intersect(acc, r.IDs)
		if len(acc) == 0 {
			return some(attr.IDSet{})
		}
	}

	if !hasRestriction {
		return universal()
	}
	return some(acc)
}

// evalOr unions the defined operands. Any Universal operand makes the
// whole Or Universal (union with "everything" is everything).
func evalOr(e Or, idx *attr.Index, universe attr.IDSet) Result {
	acc := attr.IDSet{}
	for _, sub := range e.Exprs {
		r := Eval(sub, idx, universe)
		if r.Universal {
			return universal()
		}
		for id := range r.IDs {
			acc[id] = struct{}{}
		}
	}
	return some(acc)
}

// evalNot complements the child's result against universe. Not of a
// Universal subtree (no restriction) is the empty set; Not of a
// concrete set S is universe \ S.
func evalNot(e Not, idx *attr.Index, universe attr.IDSet) Result {
	r := Eval(e.Expr, idx, universe)
	if r.Universal {
		return some(attr.IDSet{})
	}
	out := attr.IDSet{}
	for id := range universe {
		if _, excluded := r.IDs[id]; !excluded {
			out[id] = struct{}{}
		}
	}
	return some(out)
}

func intersect(a, b attr.IDSet) attr.IDSet {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	out := make(attr.IDSet, len(small))
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
