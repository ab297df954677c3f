package enrich

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNonMonotonicAxis is returned when the distance axis decreases.
// The forward search is only correct on a non-decreasing axis.
var ErrNonMonotonicAxis = errors.New("distance axis is not non-decreasing")

// EstimateSlopes computes the terrain grade (percent) at each point over a
// forward distance window.
//
// For point i the end point j is the first index >= i whose distance
// reaches axis[i]+windowM, or the last index when the trace ends first.
// The grade is the altitude change over the distance change between i and
// j; it is 0 when no distance separates them and nil when either altitude
// is absent.
//
// This is a lookahead: the whole axis must be materialized first.
func EstimateSlopes(axis []float64, altitude []*float64, windowM float64) ([]*float64, error) {
	n := len(axis)
	for i := 1; i < n; i++ {
		if !(axis[i] >= axis[i-1]) {
			return nil, fmt.Errorf("%w: index %d (%.2f < %.2f)", ErrNonMonotonicAxis, i, axis[i], axis[i-1])
		}
	}

	slopes := make([]*float64, n)
	for i := 0; i < n; i++ {
		target := axis[i] + windowM
		j := i + sort.Search(n-i, func(k int) bool { return axis[i+k] >= target })
		if j >= n {
			j = n - 1
		}

		if altitude[i] == nil || altitude[j] == nil {
			continue
		}

		var grade float64
		if dist := axis[j] - axis[i]; dist != 0 {
			grade = (*altitude[j] - *altitude[i]) / dist * 100
		}
		slopes[i] = &grade
	}
	return slopes, nil
}
