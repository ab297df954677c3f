package enrich

import "math"

// Steps holds the per-point increments of one trace
type Steps struct {
	Distance []float64  // meters, >= 0
	Altitude []*float64 // meters, nil when either end is absent
	Axis     []float64  // cumulative distance rebuilt from Distance
	Clipped  int        // steps zeroed as teleport artifacts
}

// ComputeSteps derives distance and altitude increments between consecutive
// points. Negative distance steps are clamped to 0 and steps longer than
// maxStep are treated as GPS jumps and zeroed. Point 0 is the trace origin
// and always has a zero distance step and no altitude step.
//
// Axis starts at the first raw cumulative distance and adds only the kept
// steps, so it is non-decreasing for any input.
func ComputeSteps(distance []float64, altitude []*float64, maxStep float64) Steps {
	n := len(distance)
	s := Steps{
		Distance: make([]float64, n),
		Altitude: make([]*float64, n),
		Axis:     make([]float64, n),
	}
	if n == 0 {
		return s
	}

	if !math.IsNaN(distance[0]) && !math.IsInf(distance[0], 0) {
		s.Axis[0] = distance[0]
	}
	for i := 1; i < n; i++ {
		step := distance[i] - distance[i-1]
		if step < 0 {
			step = 0
		}
		// also catches NaN from unusable readings
		if !(step <= maxStep) {
			step = 0
			s.Clipped++
		}
		s.Distance[i] = step
		s.Axis[i] = s.Axis[i-1] + step

		if altitude[i] != nil && altitude[i-1] != nil {
			d := *altitude[i] - *altitude[i-1]
			s.Altitude[i] = &d
		}
	}
	return s
}
