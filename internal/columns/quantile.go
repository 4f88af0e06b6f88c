package columns

import "math"

// Quantile reduces an ascending-sorted distribution to the value at
// quantile q in [0, 100] using linear interpolation between the two
// bracketing ranks. An empty distribution yields zero.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
