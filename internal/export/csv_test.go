package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailmetrics/internal/store"
)

func floatPtr(f float64) *float64 {
	return &f
}

func samplePoints() []store.EnrichedPoint {
	t0 := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)
	return []store.EnrichedPoint{
		{
			RawPoint: store.RawPoint{
				SourceID: "a.gpx", Activity: "TrailRun", Lat: 45.1, Lon: 5.7,
				Altitude: floatPtr(1200.25), Distance: 0, Time: &t0, Speed: floatPtr(7.2),
			},
			AltitudeSmoothed: floatPtr(1200.25), Slope: floatPtr(12.345678),
			Speed: 7.2, SpeedSmoothed: 7.35, ActivityShort: "Trail", LocalDate: "2024-06-01",
		},
		{
			RawPoint: store.RawPoint{SourceID: "a.gpx", Activity: "TrailRun", Lat: 45.1001, Lon: 5.7, Distance: 11.1},
			PointIndex: 1, DistanceStep: 11.1, DistanceClean: 11.1, GainCumulative: 1.5,
			ActivityShort: "Trail",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samplePoints(), DefaultOptions()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, PointHeader, records[0])

	row := map[string]string{}
	for i, h := range PointHeader {
		row[h] = records[1][i]
	}
	assert.Equal(t, "a.gpx", row["file_name"])
	assert.Equal(t, "1200.25", row["altitude_m"])
	assert.Equal(t, "2024-06-01T07:30:00Z", row["time"])
	assert.Equal(t, "0", row["track_id"])
	assert.Equal(t, "12.345678", row["slope_pct"])
	assert.Equal(t, "Trail", row["activity_short"])
	assert.Equal(t, "2024-06-01", row["date"])

	// absent values are empty cells
	second := records[2]
	assert.Empty(t, second[4])  // altitude_m
	assert.Empty(t, second[7])  // time
	assert.Empty(t, second[13]) // altitude_step_m
	assert.Empty(t, second[20]) // slope_pct
	assert.Equal(t, "1.5", second[15])
}

func TestWriteCSV_Precision(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samplePoints(), Options{Precision: 2}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	fields := strings.Split(lines[1], ",")
	assert.Equal(t, "12.35", fields[20])
	assert.Equal(t, "45.1", fields[2], "raw values keep their precision")
	assert.Equal(t, "7.35", fields[19])
}

func TestWriteCSV_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteCSV(&a, samplePoints(), DefaultOptions()))
	require.NoError(t, WriteCSV(&b, samplePoints(), DefaultOptions()))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, DefaultOptions()))
	assert.Equal(t, strings.Join(PointHeader, ",")+"\n", buf.String())
}

func TestWriteSummaryCSV(t *testing.T) {
	start := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	summaries := []store.TraceSummary{{
		TraceID: 3, SourceID: "a.gpx", Activity: "Hike", ActivityShort: "Hike", Points: 900,
		TotalDistance: 12345.678, TotalGain: 812.4, MovingTime: 4800, Duration: 5400,
		StartTime: &start, EndTime: &end, LatStart: 45.1, LonStart: 5.7,
		Quality: store.Quality{ClippedSteps: 2, SyntheticTime: false},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, summaries, Options{Precision: 1}))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{
		"3", "a.gpx", "Hike", "Hike", "900", "12345.7", "812.4", "4800.0", "5400.0",
		"2024-06-01T07:30:00Z", "2024-06-01T09:00:00Z", "45.1", "5.7", "2", "0", "0", "false",
	}, records[1])
}
