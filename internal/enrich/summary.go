package enrich

import (
	"gonum.org/v1/gonum/floats"

	"trailmetrics/internal/store"
)

// Summarize aggregates one enriched trace into a TraceSummary
func Summarize(trace store.Trace, points []store.EnrichedPoint, quality store.Quality) store.TraceSummary {
	s := store.TraceSummary{
		TraceID:  trace.ID,
		SourceID: trace.SourceID,
		Points:   len(points),
		Quality:  quality,
	}
	if len(points) == 0 {
		return s
	}

	first, last := points[0], points[len(points)-1]
	s.Activity = first.Activity
	s.ActivityShort = first.ActivityShort
	s.LatStart = first.Lat
	s.LonStart = first.Lon
	s.TotalGain = last.GainCumulative
	s.MovingTime = last.MovingTime

	axis := make([]float64, len(points))
	for i, p := range points {
		axis[i] = p.DistanceClean
	}
	s.TotalDistance = floats.Max(axis)

	for i := range points {
		t := points[i].Time
		if t == nil {
			continue
		}
		if s.StartTime == nil || t.Before(*s.StartTime) {
			s.StartTime = t
		}
		if s.EndTime == nil || t.After(*s.EndTime) {
			s.EndTime = t
		}
	}
	if s.StartTime != nil {
		s.Duration = s.EndTime.Sub(*s.StartTime).Seconds()
	} else {
		s.Duration = last.RelativeTime
	}
	return s
}
