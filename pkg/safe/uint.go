// Package safe provides overflow-checked numeric conversions.
package safe

import (
	"fmt"
	"math"
)

// Uint32 converts v to uint32, rejecting negatives and overflow.
func Uint32[T ~int | ~int32 | ~int64 | ~uint | ~uint64](v T) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("value %d out of uint32 range", v)
	}
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("value %d out of uint32 range", v)
	}
	return uint32(v), nil
}

// Uint64 converts v to uint64, rejecting negatives.
func Uint64[T ~int | ~int32 | ~int64 | ~uint | ~uint64](v T) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("value %d out of uint64 range", v)
	}
	return uint64(v), nil
}
