package enrich

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// MotionParams are the tunables the motion classifier needs
type MotionParams struct {
	Threshold      float64 // km/h, strictly above means moving
	MaxPlausible   float64 // km/h, raw speeds above are rejected
	SmoothingWidth int     // rolling mean width, points
}

// Motion holds the time and speed series of one trace
type Motion struct {
	RelativeTime  []float64 // seconds since the first timestamp
	MovingTime    []float64 // cumulative seconds spent above the threshold
	Speed         []float64 // resolved speed, km/h
	SpeedSmoothed []float64 // km/h
	Implausible   int       // raw speeds rejected
	SyntheticTime bool      // fewer than two timestamps: point index used as seconds
}

// ClassifyMotion resolves a speed for every point and accumulates moving
// time.
//
// Relative time is measured from the first present timestamp. A point with
// no timestamp carries the previous relative time, so it adds no duration.
// When the trace has fewer than two timestamps the point index stands in
// for seconds (degraded mode, flagged by SyntheticTime).
//
// Speed prefers the raw reading when it is finite and within
// [0, MaxPlausible]; otherwise it is estimated from the clipped distance
// step over the elapsed time, or 0 when no time elapsed.
func ClassifyMotion(times []*time.Time, distanceSteps []float64, rawSpeeds []*float64, p MotionParams) Motion {
	n := len(times)
	m := Motion{
		RelativeTime: relativeTimes(times),
		MovingTime:   make([]float64, n),
		Speed:        make([]float64, n),
	}
	m.SyntheticTime = n > 0 && countPresent(times) < 2

	var moving float64
	for i := 0; i < n; i++ {
		var dt float64
		if i > 0 {
			dt = max(0, m.RelativeTime[i]-m.RelativeTime[i-1])
		}

		speed, ok := plausibleSpeed(rawSpeeds[i], p.MaxPlausible)
		if !ok {
			if rawSpeeds[i] != nil {
				m.Implausible++
			}
			if dt > 0 {
				speed = distanceSteps[i] / dt * MetersPerSecondToKmh
			}
		}
		m.Speed[i] = speed

		if i > 0 && speed > p.Threshold {
			moving += dt
		}
		m.MovingTime[i] = moving
	}

	m.SpeedSmoothed = rollingMean(m.Speed, p.SmoothingWidth)
	return m
}

// relativeTimes returns seconds since the first present timestamp, or the
// point index when fewer than two timestamps exist
func relativeTimes(times []*time.Time) []float64 {
	rel := make([]float64, len(times))
	if countPresent(times) < 2 {
		for i := range rel {
			rel[i] = float64(i)
		}
		return rel
	}

	var t0 *time.Time
	var last float64
	for i, t := range times {
		if t != nil {
			if t0 == nil {
				t0 = t
			}
			last = t.Sub(*t0).Seconds()
		}
		rel[i] = last
	}
	return rel
}

func countPresent(times []*time.Time) int {
	n := 0
	for _, t := range times {
		if t != nil {
			n++
		}
	}
	return n
}

func plausibleSpeed(raw *float64, maxKmh float64) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	v := *raw
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxKmh {
		return 0, false
	}
	return v, true
}

// rollingMean is a centered moving average with the same symmetric edge
// shrink as SmoothAltitude
func rollingMean(values []float64, window int) []float64 {
	w := oddWindow(window)
	n := len(values)
	out := make([]float64, n)
	for i := range values {
		h := halfWidth(w, i, n)
		out[i] = stat.Mean(values[i-h:i+h+1], nil)
	}
	return out
}
