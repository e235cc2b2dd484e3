package vectorlite

import "github.com/liliang-cn/vectorlite/pkg/filter"

// FilterPredicate is a caller-supplied predicate over a candidate's id
// and metadata, evaluated during FindMany's result extraction.
type FilterPredicate func(id uint32, meta any) bool

// SearchOptions configures FindMany. Expr and Predicate may both be
// set, in which case a candidate must satisfy both (logical AND).
type SearchOptions struct {
	// K is the number of results to return. Default 5.
	K int
	// Expr restricts candidates via the attribute index (§4.3).
	Expr filter.Expr
	// Predicate restricts candidates via an arbitrary Go function,
	// evaluated against the record's live metadata.
	Predicate FilterPredicate
}

// SearchResult is one ranked hit from FindMany, sorted by Score
// descending.
type SearchResult struct {
	ID    uint32
	Score float32
	Meta  any
}

const defaultK = 5
