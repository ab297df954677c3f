package service

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trailmetrics/internal/store"
)

// PointStats holds aggregated values from the enriched points of a trace
type PointStats struct {
	MinAltitude    *float64 // smoothed, meters
	MaxAltitude    *float64
	MaxSlope       *float64 // percent
	MinSlope       *float64
	MaxSpeed       float64 // smoothed, km/h
	AvgMovingSpeed float64 // mean smoothed speed over moving points, km/h
	MovingPoints   int
}

// AggregatePoints computes trace-level statistics from enriched points.
// A point counts as moving when it added moving time.
func AggregatePoints(points []store.EnrichedPoint) PointStats {
	var stats PointStats
	var altitudes, slopes, speeds, moving []float64

	for i, p := range points {
		if p.AltitudeSmoothed != nil {
			altitudes = append(altitudes, *p.AltitudeSmoothed)
		}
		if p.Slope != nil {
			slopes = append(slopes, *p.Slope)
		}
		speeds = append(speeds, p.SpeedSmoothed)
		if i > 0 && p.MovingTime > points[i-1].MovingTime {
			moving = append(moving, p.SpeedSmoothed)
		}
	}

	if len(altitudes) > 0 {
		lo, hi := floats.Min(altitudes), floats.Max(altitudes)
		stats.MinAltitude, stats.MaxAltitude = &lo, &hi
	}
	if len(slopes) > 0 {
		lo, hi := floats.Min(slopes), floats.Max(slopes)
		stats.MinSlope, stats.MaxSlope = &lo, &hi
	}
	if len(speeds) > 0 {
		stats.MaxSpeed = floats.Max(speeds)
	}
	if len(moving) > 0 {
		stats.AvgMovingSpeed = stat.Mean(moving, nil)
		stats.MovingPoints = len(moving)
	}
	return stats
}
