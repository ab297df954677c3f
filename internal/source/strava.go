package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"trailmetrics/internal/store"
	"trailmetrics/internal/strava"
)

// StravaAPI is the part of the Strava client the source needs
type StravaAPI interface {
	GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]strava.Activity, error)
	GetActivityStreams(ctx context.Context, activityID int64) (*strava.Streams, error)
}

// StravaSource loads the GPS streams of the athlete's activities
type StravaSource struct {
	API    StravaAPI
	After  time.Time // only activities started after this, zero for all
	Limit  int       // most recent activities to fetch, 0 for no limit
	Logger *slog.Logger
}

func (s *StravaSource) Name() string {
	return "strava"
}

// Load lists activities and fetches their streams one by one. Activities
// without GPS and failed stream requests are reported in Batch.Skipped.
func (s *StravaSource) Load(ctx context.Context) (*Batch, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	activities, err := s.API.GetAllActivities(ctx, s.After, func(n int) {
		logger.Debug("listing activities", "fetched", n)
	})
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	slices.SortStableFunc(activities, func(a, b strava.Activity) int {
		return a.StartDate.Compare(b.StartDate)
	})
	if s.Limit > 0 && len(activities) > s.Limit {
		activities = activities[len(activities)-s.Limit:]
	}

	batch := &Batch{}
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := StravaSourceID(a.ID)
		if !a.Recorded() {
			batch.Skipped = append(batch.Skipped, Skip{Ref: ref, Err: errors.New("manual or trainer activity has no GPS")})
			continue
		}

		streams, err := s.API.GetActivityStreams(ctx, a.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			batch.Skipped = append(batch.Skipped, Skip{Ref: ref, Err: err})
			continue
		}
		if !streams.HasGPS() {
			batch.Skipped = append(batch.Skipped, Skip{Ref: ref, Err: errors.New("no GPS stream")})
			continue
		}

		points := ConvertStreams(a, streams)
		logger.Debug("fetched streams", "activity_id", a.ID, "points", len(points))
		batch.Points = append(batch.Points, points...)
	}
	return batch, nil
}

// StravaSourceID is the source id of a Strava activity
func StravaSourceID(activityID int64) string {
	return fmt.Sprintf("strava_%d", activityID)
}

// ConvertStreams turns activity streams into raw points. Timestamps are
// the activity start plus the time offset. velocity_smooth is converted to
// km/h. Where the distance stream is missing or ends early, distance is
// cumulated from positions, continuing from the last streamed distance.
func ConvertStreams(a strava.Activity, s *strava.Streams) []store.RawPoint {
	n := s.Len()
	if n == 0 && s.HasGPS() {
		n = len(s.LatLng.Data)
	}

	sourceID := StravaSourceID(a.ID)
	points := make([]store.RawPoint, 0, n)
	var cumulative float64
	for i := 0; i < n; i++ {
		p := store.RawPoint{SourceID: sourceID, Activity: a.Kind()}

		if ll, ok := s.LatLng.At(i); ok {
			p.Lat, p.Lon = ll[0], ll[1]
		}
		if alt, ok := s.Altitude.At(i); ok {
			p.Altitude = &alt
		}
		if offset, ok := s.Time.At(i); ok && !a.StartDate.IsZero() {
			t := a.StartDate.UTC().Add(time.Duration(offset) * time.Second)
			p.Time = &t
		}
		if v, ok := s.VelocitySmooth.At(i); ok {
			kmh := v * 3.6
			p.Speed = &kmh
		}

		if d, ok := s.Distance.At(i); ok {
			p.Distance = d
			cumulative = d
		} else {
			if i > 0 {
				prev := points[i-1]
				cumulative += geo.Distance(orb.Point{prev.Lon, prev.Lat}, orb.Point{p.Lon, p.Lat})
			}
			p.Distance = cumulative
		}
		points = append(points, p)
	}
	return points
}
