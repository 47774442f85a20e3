// Package distribution splits a received quantity into integer pack sizes.
package distribution

import "math"

// RoundHalfUp rounds to the nearest integer with .5 always rounding up,
// away from zero. Banker's rounding would systematically lose half a unit
// across many distributions.
func RoundHalfUp(value float64) int64 {
	if value < 0 {
		return -int64(math.Floor(-value + 0.5))
	}
	return int64(math.Floor(value + 0.5))
}

// Distribute splits total across packCount packs so that the integer
// quantities sum exactly to RoundHalfUp(total). The remainder is
// front-loaded: the first packs carry one extra unit each, so quantities
// are non-increasing in pack order.
//
// packCount <= 0 yields an empty sequence; callers treat that as "no
// packs", not an error, to keep single-label fallback paths working.
func Distribute(total float64, packCount int) []int64 {
	if packCount <= 0 {
		return []int64{}
	}
	sum := RoundHalfUp(total)
	if sum < 0 {
		sum = 0
	}
	base := sum / int64(packCount)
	remainder := sum % int64(packCount)
	quantities := make([]int64, packCount)
	for i := range quantities {
		quantities[i] = base
		if int64(i) < remainder {
			quantities[i]++
		}
	}
	return quantities
}

// Sum adds up a distribution, used by callers asserting conservation.
func Sum(quantities []int64) int64 {
	var total int64
	for _, qty := range quantities {
		total += qty
	}
	return total
}
