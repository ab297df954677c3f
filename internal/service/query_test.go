package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailmetrics/internal/store"
)

func TestFormatPace(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0:00"},
		{30, "0:30"},
		{60, "1:00"},
		{359, "5:59"},
		{600, "10:00"},
		{3600, "60:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatPace(tt.seconds)
			if result != tt.expected {
				t.Errorf("formatPace(%d) = %q, want %q", tt.seconds, result, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.seconds)
			if result != tt.expected {
				t.Errorf("formatDuration(%d) = %q, want %q", tt.seconds, result, tt.expected)
			}
		})
	}
}

func TestFormatQuality(t *testing.T) {
	tests := []struct {
		name     string
		quality  store.Quality
		expected string
	}{
		{"clean", store.Quality{}, "ok"},
		{"clipped", store.Quality{ClippedSteps: 2}, "2 clipped"},
		{"several", store.Quality{ImplausibleSpeeds: 1, SyntheticTime: true}, "1 bad speeds, no time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatQuality(tt.quality))
		})
	}
}

func TestNewTraceRow(t *testing.T) {
	start := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	row := newTraceRow(store.TraceSummary{
		TotalDistance: 12000,
		TotalGain:     849.6,
		MovingTime:    3600,
		Duration:      4000,
		StartTime:     &start,
	})

	assert.Equal(t, "Jun 01, 2024", row.Date)
	assert.Equal(t, "12.00 km", row.Distance)
	assert.Equal(t, "850 m", row.Gain)
	assert.Equal(t, "1:00:00", row.Moving)
	assert.Equal(t, "1:06:40", row.Elapsed)
	assert.Equal(t, "5:00/km", row.Pace)
	assert.Equal(t, "ok", row.Quality)

	empty := newTraceRow(store.TraceSummary{})
	assert.Equal(t, "-", empty.Date)
	assert.Equal(t, "-", empty.Pace)
}

func TestQueryService_GetRunReport(t *testing.T) {
	db := setupTestDB(t)
	res, err := newTestService(t, db).Run(context.Background(), writeDataset(t), nil)
	require.NoError(t, err)

	q := NewQueryService(db)

	latest, err := q.GetRunReport("")
	require.NoError(t, err)
	assert.Equal(t, res.Run.ID, latest.Run.ID)
	require.Len(t, latest.Traces, 2)
	assert.Equal(t, "a.gpx", latest.Traces[0].Summary.SourceID)
	assert.Equal(t, "1 no alt", latest.Traces[0].Quality)
	assert.InDelta(t, 31.0, latest.TotalDistance, 1e-9)
	assert.Empty(t, latest.Failures)

	byID, err := q.GetRunReport(res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.Run, byID.Run)

	_, err = q.GetRunReport("missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	rows, err := q.ListRuns(0, res.Run.StartedAt.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2 hours ago", rows[0].Age)
}

func TestQueryService_GetTraceDetail(t *testing.T) {
	db := setupTestDB(t)
	res, err := newTestService(t, db).Run(context.Background(), writeDataset(t), nil)
	require.NoError(t, err)

	detail, err := NewQueryService(db).GetTraceDetail(res.Run.ID, 1)
	require.NoError(t, err)
	require.Len(t, detail.Points, 2)
	require.NotNil(t, detail.Stats.MaxAltitude)
	assert.Equal(t, 1003.0, *detail.Stats.MaxAltitude)

	_, err = NewQueryService(db).GetTraceDetail(res.Run.ID, 9)
	assert.Error(t, err)
}

func TestQueryService_DeleteRun(t *testing.T) {
	db := setupTestDB(t)
	res, err := newTestService(t, db).Run(context.Background(), writeDataset(t), nil)
	require.NoError(t, err)

	q := NewQueryService(db)
	require.NoError(t, q.DeleteRun(res.Run.ID))

	_, err = q.GetRunReport(res.Run.ID)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.ErrorIs(t, q.DeleteRun(res.Run.ID), store.ErrRunNotFound)
}

func TestAggregatePoints(t *testing.T) {
	alt := func(v float64) *float64 { return &v }
	points := []store.EnrichedPoint{
		{AltitudeSmoothed: alt(100), Slope: alt(5), SpeedSmoothed: 0},
		{AltitudeSmoothed: alt(110), Slope: alt(-3), SpeedSmoothed: 10, MovingTime: 4},
		{SpeedSmoothed: 12, MovingTime: 8},
		{AltitudeSmoothed: alt(90), SpeedSmoothed: 0.5, MovingTime: 8},
	}

	stats := AggregatePoints(points)
	assert.Equal(t, 90.0, *stats.MinAltitude)
	assert.Equal(t, 110.0, *stats.MaxAltitude)
	assert.Equal(t, -3.0, *stats.MinSlope)
	assert.Equal(t, 5.0, *stats.MaxSlope)
	assert.Equal(t, 12.0, stats.MaxSpeed)
	assert.Equal(t, 2, stats.MovingPoints)
	assert.InDelta(t, 11.0, stats.AvgMovingSpeed, 1e-9)

	empty := AggregatePoints(nil)
	assert.Nil(t, empty.MinAltitude)
	assert.Zero(t, empty.MovingPoints)
}
