package enrich

import (
	"sort"

	"trailmetrics/internal/store"
)

// GroupTraces partitions a flat point stream into traces.
//
// Points are stably sorted by source id, then timestamp, with missing
// timestamps after all present ones; equal keys keep their input order.
// Trace ids are assigned 0..K-1 in lexicographic source id order, so the
// same input always yields the same ids. The returned slice is indexed by
// trace id. The input slice is not modified.
func GroupTraces(points []store.RawPoint) []store.Trace {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]store.RawPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return timeBefore(a, b)
	})

	var traces []store.Trace
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].SourceID == sorted[start].SourceID {
			continue
		}
		traces = append(traces, store.Trace{
			ID:       len(traces),
			SourceID: sorted[start].SourceID,
			Points:   sorted[start:i:i],
		})
		start = i
	}
	return traces
}

// timeBefore orders present timestamps ascending and puts missing ones last
func timeBefore(a, b store.RawPoint) bool {
	switch {
	case a.Time == nil:
		return false
	case b.Time == nil:
		return true
	default:
		return a.Time.Before(*b.Time)
	}
}
