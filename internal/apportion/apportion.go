// Package apportion implements exact-sum integer apportionment using the
// largest remainder method.
package apportion

import (
	"errors"
	"math"
	"sort"
)

// ErrMinimumsExceedTotal is returned when the per-claimant minimums cannot be
// satisfied within the total.
var ErrMinimumsExceedTotal = errors.New("sum of minimums exceeds total")

// Shares splits total into whole units proportional to weights. The result
// has one entry per weight, every entry is a non-negative integer, and the
// entries sum exactly to total. Negative weights count as zero; when every
// weight is zero the split is even.
func Shares(total int64, weights []float64) []int64 {
	out, _ := SharesWithMinimums(total, weights, nil)
	return out
}

// SharesWithMinimums is Shares with an optional per-claimant floor. It fails
// when the minimums sum to more than total; callers that pass no minimums
// never see an error.
func SharesWithMinimums(total int64, weights []float64, minimums []int64) ([]int64, error) {
	n := len(weights)
	out := make([]int64, n)
	if n == 0 || total <= 0 {
		return out, nil
	}

	mins := make([]int64, n)
	var minSum int64
	for i := range mins {
		if minimums != nil && i < len(minimums) && minimums[i] > 0 {
			mins[i] = minimums[i]
		}
		minSum += mins[i]
	}
	if minSum > total {
		return nil, ErrMinimumsExceedTotal
	}

	clean := make([]float64, n)
	var weightSum float64
	for i, w := range weights {
		if w > 0 {
			clean[i] = w
		}
		weightSum += clean[i]
	}

	remainders := make([]float64, n)
	var assigned int64
	for i := range clean {
		var ideal float64
		if weightSum > 0 {
			ideal = float64(total) * clean[i] / weightSum
		} else {
			ideal = float64(total) / float64(n)
		}

		floor := int64(math.Floor(ideal))
		remainders[i] = ideal - float64(floor)
		if floor < mins[i] {
			floor = mins[i]
		}
		out[i] = floor
		assigned += floor
	}

	leftover := total - assigned

	if leftover > 0 {
		order := indicesByRemainder(remainders, clean, true)
		for leftover > 0 {
			for _, idx := range order {
				if leftover == 0 {
					break
				}
				out[idx]++
				leftover--
			}
		}
	}

	// Minimum enforcement can overshoot; walk units back off the smallest
	// remainders without dropping anyone below their floor.
	if leftover < 0 {
		order := indicesByRemainder(remainders, clean, false)
		for leftover < 0 {
			removed := false
			for _, idx := range order {
				if leftover == 0 {
					break
				}
				if out[idx] > mins[idx] && out[idx] > 0 {
					out[idx]--
					leftover++
					removed = true
				}
			}
			if !removed {
				break
			}
		}
	}

	for i := range out {
		if out[i] < 0 {
			out[i] = 0
		}
	}

	return out, nil
}

// indicesByRemainder orders claimant indices by fractional remainder, then by
// weight in the same direction, then by input position.
func indicesByRemainder(remainders, weights []float64, descending bool) []int {
	order := make([]int, len(remainders))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if remainders[i] != remainders[j] {
			if descending {
				return remainders[i] > remainders[j]
			}
			return remainders[i] < remainders[j]
		}
		if weights[i] != weights[j] {
			if descending {
				return weights[i] > weights[j]
			}
			return weights[i] < weights[j]
		}
		return i < j
	})

	return order
}
