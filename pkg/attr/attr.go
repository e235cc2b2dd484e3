// Package attr implements the per-key secondary indexes over record
// metadata: equality, existence, and sorted-numeric range. It is the
// C3 component the filter expression tree compiles leaf predicates
// against.
package attr

import (
	"fmt"
	"sort"
	"strconv"
)

// IDSet is a set of record ids.
type IDSet map[uint32]struct{}

func newIDSet() IDSet { return make(IDSet) }

func (s IDSet) add(id uint32) { s[id] = struct{}{} }

// Clone returns an independent copy of s.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

type numEntry struct {
	v  float64
	id uint32
}

type numIndex struct {
	entries []numEntry
	byID    map[uint32]float64
	dirty   bool
}

func newNumIndex() *numIndex {
	return &numIndex{byID: make(map[uint32]float64)}
}

func (n *numIndex) ensureSorted() {
	if !n.dirty {
		return
	}
	sort.Slice(n.entries, func(i, j int) bool {
		if n.entries[i].v != n.entries[j].v {
			return n.entries[i].v < n.entries[j].v
		}
		return n.entries[i].id < n.entries[j].id
	})
	n.dirty = false
}

// Index holds all three secondary index structures plus the reverse
// map needed to make SetAttrs/RemoveID idempotent replace operations.
type Index struct {
	eq     map[string]map[string]IDSet
	exists map[string]IDSet
	num    map[string]*numIndex

	attrsByID map[uint32]map[string]any
}

// New creates an empty attribute index.
func New() *Index {
	return &Index{
		eq:        make(map[string]map[string]IDSet),
		exists:    make(map[string]IDSet),
		num:       make(map[string]*numIndex),
		attrsByID: make(map[uint32]map[string]any),
	}
}

// typedKey hashes a scalar attribute value as "typeof:string", per
// the C3 contract. Arrays are not hashed directly; callers fan them
// out element-by-element before calling this.
func typedKey(v any) (kind string, key string, numeric float64, isNumeric bool) {
	switch t := v.(type) {
	case string:
		return "string", "string:" + t, 0, false
	case float64:
		return "number", "number:" + strconv.FormatFloat(t, 'g', -1, 64), t, true
	case bool:
		return "bool", "bool:" + strconv.FormatBool(t), 0, false
	case nil:
		return "null", "null:", 0, false
	default:
		return "unknown", fmt.Sprintf("unknown:%v", t), 0, false
	}
}

// SetAttrs removes any prior attributes recorded for id, then installs
// the new set. Passing nil attrs is equivalent to RemoveID.
func (idx *Index) SetAttrs(id uint32, attrs map[string]any) {
	idx.RemoveID(id)
	if attrs == nil {
		return
	}

	stored := make(map[string]any, len(attrs))
	for key, v := range attrs {
		stored[key] = v
		idx.indexExists(key, id)

		switch arr := v.(type) {
		case []string:
			for _, e := range arr {
				idx.indexEq(key, e, id)
			}
		case []float64:
			for _, e := range arr {
				idx.indexEq(key, e, id)
				idx.indexNum(key, e, id)
			}
		default:
			idx.indexEq(key, v, id)
			if _, _, numeric, isNum := typedKey(v); isNum {
				idx.indexNum(key, numeric, id)
			}
		}
	}
	idx.attrsByID[id] = stored
}

func (idx *Index) indexEq(key string, v any, id uint32) {
	_, hashed, _, _ := typedKey(v)
	byVal, ok := idx.eq[key]
	if !ok {
		byVal = make(map[string]IDSet)
		idx.eq[key] = byVal
	}
	set, ok := byVal[hashed]
	if !ok {
		set = newIDSet()
		byVal[hashed] = set
	}
	set.add(id)
}

func (idx *Index) indexExists(key string, id uint32) {
	set, ok := idx.exists[key]
	if !ok {
		set = newIDSet()
		idx.exists[key] = set
	}
	set.add(id)
}

func (idx *Index) indexNum(key string, v float64, id uint32) {
	n, ok := idx.num[key]
	if !ok {
		n = newNumIndex()
		idx.num[key] = n
	}
	n.entries = append(n.entries, numEntry{v: v, id: id})
	n.byID[id] = v
	n.dirty = true
}

// RemoveID idempotently removes any trace of id from every index
// structure. Calling it on an id with no recorded attributes is a
// no-op.
func (idx *Index) RemoveID(id uint32) {
	prior, ok := idx.attrsByID[id]
	if !ok {
		return
	}
	delete(idx.attrsByID, id)

	for key, v := range prior {
		if set, ok := idx.exists[key]; ok {
			delete(set, id)
		}

		switch arr := v.(type) {
		case []string:
			for _, e := range arr {
				idx.removeEq(key, e, id)
			}
		case []float64:
			for _, e := range arr {
				idx.removeEq(key, e, id)
				idx.removeNum(key, id)
			}
		default:
			idx.removeEq(key, v, id)
			idx.removeNum(key, id)
		}
	}
}

func (idx *Index) removeEq(key string, v any, id uint32) {
	_, hashed, _, _ := typedKey(v)
	if byVal, ok := idx.eq[key]; ok {
		if set, ok := byVal[hashed]; ok {
			delete(set, id)
		}
	}
}

func (idx *Index) removeNum(key string, id uint32) {
	n, ok := idx.num[key]
	if !ok {
		return
	}
	if _, has := n.byID[id]; !has {
		return
	}
	delete(n.byID, id)
	kept := n.entries[:0]
	for _, e := range n.entries {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	n.entries = kept
}

// Eq returns the ids whose value for key equals v. found is false if
// key has never been indexed at all (no information), as distinct
// from a known key matching zero ids.
func (idx *Index) Eq(key string, v any) (ids IDSet, found bool) {
	byVal, ok := idx.eq[key]
	if !ok {
		return nil, false
	}
	_, hashed, _, _ := typedKey(v)
	set, ok := byVal[hashed]
	if !ok {
		return newIDSet(), true
	}
	return set.Clone(), true
}

// In returns the union of Eq(key, v) across values, with the same
// found semantics as Eq (found if key is indexed at all).
func (idx *Index) In(key string, values []any) (ids IDSet, found bool) {
	byVal, ok := idx.eq[key]
	if !ok {
		return nil, false
	}
	out := newIDSet()
	for _, v := range values {
		_, hashed, _, _ := typedKey(v)
		if set, ok := byVal[hashed]; ok {
			for id := range set {
				out.add(id)
			}
		}
	}
	return out, true
}

// Exists returns the ids that have key recorded at all (regardless of
// value, including an explicit null).
func (idx *Index) Exists(key string) (ids IDSet, found bool) {
	set, ok := idx.exists[key]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

// RangeBounds holds independently-optional numeric bounds; strict
// bounds (gt/lt) exclude the boundary value, non-strict (gte/lte)
// include it.
type RangeBounds struct {
	Gt, Gte, Lt, Lte *float64
}

// Range returns the ids whose numeric value for key falls within
// bounds, via binary search over the lazily-resorted entry array.
// found is false if key was never indexed numerically.
func (idx *Index) Range(key string, bounds RangeBounds) (ids IDSet, found bool) {
	n, ok := idx.num[key]
	if !ok {
		return nil, false
	}
	n.ensureSorted()

	lo := 0
	if bounds.Gte != nil {
		lo = lowerBound(n.entries, *bounds.Gte, false)
	}
	if bounds.Gt != nil {
		b := lowerBound(n.entries, *bounds.Gt, true)
		if b > lo {
			lo = b
		}
	}

	hi := len(n.entries)
	if bounds.Lte != nil {
		hi = upperBound(n.entries, *bounds.Lte, false)
	}
	if bounds.Lt != nil {
		b := upperBound(n.entries, *bounds.Lt, true)
		if b < hi {
			hi = b
		}
	}

	out := newIDSet()
	for i := lo; i < hi && i < len(n.entries); i++ {
		if i < 0 {
			continue
		}
		out.add(n.entries[i].id)
	}
	return out, true
}

// Export returns every id's currently recorded attributes, for
// serialization. The returned maps are independent of the index's
// internal state.
func (idx *Index) Export() map[uint32]map[string]any {
	out := make(map[uint32]map[string]any, len(idx.attrsByID))
	for id, attrs := range idx.attrsByID {
		copied := make(map[string]any, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
		out[id] = copied
	}
	return out
}

// lowerBound returns the index of the first entry with value >= x
// (strict=false) or > x (strict=true).
func lowerBound(entries []numEntry, x float64, strict bool) int {
	return sort.Search(len(entries), func(i int) bool {
		if strict {
			return entries[i].v > x
		}
		return entries[i].v >= x
	})
}

// upperBound returns the index one past the last entry with value <= x
// (strict=false) or < x (strict=true).
func upperBound(entries []numEntry, x float64, strict bool) int {
	return sort.Search(len(entries), func(i int) bool {
		if strict {
			return entries[i].v >= x
		}
		return entries[i].v > x
	})
}
