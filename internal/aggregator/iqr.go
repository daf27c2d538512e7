// Package aggregator implements the consensus core: signature validation,
// IQR outlier filtering, the consensus check, weighted-median computation,
// and confidence scoring — grounded on the reference implementation's
// median_with_iqr_filtering pipeline.
package aggregator

import (
	"math"
	"sort"
)

// iqrFilter applies the 1.5*IQR rule to values, returning the retained
// subset and the number removed. Values below 4 samples are returned
// unfiltered. If the filter would empty the set it falls back to the
// unfiltered set instead (both per spec).
//
// Idempotent: re-applying the filter to its own output returns the same
// set (the IQR bounds of an already-filtered set only ever widen relative
// to dropping more points, never narrow below what's retained).
func iqrFilter(values []float64) (retained []float64, removed int) {
	idx := iqrRetainIndices(values)
	if len(idx) == len(values) {
		return values, 0
	}
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out, len(values) - len(out)
}

// iqrRetainIndices applies the 1.5*IQR rule to values and returns the
// indices (in original order) of the values it retains. Below 4 samples,
// or if the rule would empty the set, every index is retained. Index
// preserving so callers that carry parallel per-reading data (node IDs,
// second coordinates) can filter in lock-step with iqrFilter.
func iqrRetainIndices(values []float64) []int {
	all := make([]int, len(values))
	for i := range values {
		all[i] = i
	}
	if len(values) < 4 {
		return all
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	q1 := sorted[n/4]
	q3 := sorted[3*n/4]
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	var out []int
	for i, v := range values {
		if v >= lo && v <= hi {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// median returns the sorted-median of values, lower-index tie-break for
// even-length inputs is the average of the two central elements per the
// conventional definition; quartile selection (in iqrFilter) uses the lower
// index explicitly as specified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// weightedMedian returns the value at which cumulative weight first crosses
// 0.5, values and weights must be the same length and are sorted together
// by value.
func weightedMedian(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}
	type pair struct {
		v, w float64
	}
	pairs := make([]pair, len(values))
	for i := range values {
		pairs[i] = pair{values[i], weights[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	total := 0.0
	for _, p := range pairs {
		total += p.w
	}
	if total == 0 {
		return median(values)
	}
	cum := 0.0
	for _, p := range pairs {
		cum += p.w
		if cum/total >= 0.5 {
			return p.v
		}
	}
	return pairs[len(pairs)-1].v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func abs(v float64) float64 {
	return math.Abs(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
