package enrich

import "sort"

// oddWindow normalizes a configured window width: an even width is rounded
// up, and 0 means "disabled" (width 1).
func oddWindow(window int) int {
	if window <= 1 {
		return 1
	}
	if window%2 == 0 {
		return window + 1
	}
	return window
}

// halfWidth returns the half-width of the centered window at index i of n
// samples. The window shrinks symmetrically near both ends, down to a
// single sample at the first and last index.
func halfWidth(window, i, n int) int {
	return min(window/2, i, n-1-i)
}

// SmoothAltitude applies a centered rolling median to altitude.
// Absent samples are left out of each window; a window with no samples
// yields an absent value. A window of 1 or less is a pass-through.
func SmoothAltitude(altitudes []*float64, window int) []*float64 {
	w := oddWindow(window)
	n := len(altitudes)
	smoothed := make([]*float64, n)

	buf := make([]float64, 0, w)
	for i := range altitudes {
		h := halfWidth(w, i, n)
		buf = buf[:0]
		for j := i - h; j <= i+h; j++ {
			if altitudes[j] != nil {
				buf = append(buf, *altitudes[j])
			}
		}
		if len(buf) == 0 {
			continue
		}
		m := medianFloat(buf)
		smoothed[i] = &m
	}
	return smoothed
}

// medianFloat returns the median of values, averaging the two middle
// values for an even count. values is reordered.
func medianFloat(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
