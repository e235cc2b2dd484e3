// Package encoding holds small validation helpers shared by the
// façade's write path. The wire encodings for vectors and metadata
// are fixed by pkg/wal and pkg/snapshot directly (length-prefixed
// little-endian floats, length-prefixed UTF-8 JSON); this package is
// not a generic codec.
package encoding

import (
	"errors"
	"math"
)

// ErrInvalidVector is returned by ValidateVector for a nil, empty, or
// non-finite vector.
var ErrInvalidVector = errors.New("invalid vector")

// ValidateVector rejects nil/empty vectors and any vector containing a
// NaN or infinite component.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, val := range vector {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
