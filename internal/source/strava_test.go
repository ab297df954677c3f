package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailmetrics/internal/strava"
)

func stravaServer(t *testing.T) *httptest.Server {
	t.Helper()
	start := time.Date(2024, 5, 4, 8, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]strava.Activity{
			{ID: 11, Type: "Ride", SportType: "GravelRide", StartDate: start},
			{ID: 12, Type: "Run", StartDate: start.Add(24 * time.Hour), Manual: true},
			{ID: 15, Type: "VirtualRide", StartDate: start.Add(36 * time.Hour), Trainer: true},
			{ID: 13, Type: "Walk", StartDate: start.Add(48 * time.Hour)},
			{ID: 14, Type: "Run", StartDate: start.Add(72 * time.Hour)},
		})
	})
	mux.HandleFunc("/activities/11/streams", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"time": {"data": [0, 10, 20]},
			"latlng": {"data": [[45.0, 6.0], [45.0001, 6.0], [45.0002, 6.0]]},
			"altitude": {"data": [300.0, 301.0, 302.5]},
			"velocity_smooth": {"data": [0.0, 1.0, 5.0]},
			"distance": {"data": [0.0, 11.1, 22.2]}
		}`)
	})
	mux.HandleFunc("/activities/13/streams", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"time": {"data": [0, 1]}}`)
	})
	mux.HandleFunc("/activities/14/streams", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStravaSource_Load(t *testing.T) {
	srv := stravaServer(t)
	src := &StravaSource{API: strava.NewClientWithHTTP(srv.Client(), srv.URL)}
	assert.Equal(t, "strava", src.Name())

	batch, err := src.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Points, 3)
	p := batch.Points[2]
	assert.Equal(t, "strava_11", p.SourceID)
	assert.Equal(t, "GravelRide", p.Activity)
	assert.Equal(t, 22.2, p.Distance)
	require.NotNil(t, p.Speed)
	assert.InDelta(t, 18.0, *p.Speed, 1e-9)
	require.NotNil(t, p.Time)
	assert.Equal(t, time.Date(2024, 5, 4, 8, 0, 20, 0, time.UTC), *p.Time)
	require.NotNil(t, p.Altitude)
	assert.Equal(t, 302.5, *p.Altitude)

	refs := map[string]bool{}
	for _, s := range batch.Skipped {
		refs[s.Ref] = true
	}
	assert.Equal(t, map[string]bool{"strava_12": true, "strava_13": true, "strava_14": true, "strava_15": true}, refs)
}

func TestStravaSource_Limit(t *testing.T) {
	srv := stravaServer(t)
	src := &StravaSource{API: strava.NewClientWithHTTP(srv.Client(), srv.URL), Limit: 1}

	batch, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Points)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, "strava_14", batch.Skipped[0].Ref)
}

func TestConvertStreams_DistanceFromPositions(t *testing.T) {
	a := strava.Activity{ID: 5, Type: "Hike"}
	s := &strava.Streams{
		LatLng: &strava.StreamData[[2]float64]{Data: [][2]float64{{45, 6}, {45.0001, 6}, {45.0002, 6}}},
	}

	points := ConvertStreams(a, s)
	require.Len(t, points, 3)
	assert.Zero(t, points[0].Distance)
	assert.InDelta(t, 11.13, points[1].Distance, 0.05)
	assert.InDelta(t, 2*points[1].Distance, points[2].Distance, 1e-6)
	assert.Nil(t, points[0].Time, "no start date means no absolute time")
	assert.Nil(t, points[0].Altitude)
	assert.Nil(t, points[0].Speed)
}

func TestConvertStreams_ShortDistanceStream(t *testing.T) {
	s := &strava.Streams{
		Time:     &strava.StreamData[int]{Data: []int{0, 5, 10, 15}},
		LatLng:   &strava.StreamData[[2]float64]{Data: [][2]float64{{45, 6}, {45.0009, 6}, {45.0010, 6}, {45.0011, 6}}},
		Distance: &strava.StreamData[float64]{Data: []float64{0, 100}},
	}

	points := ConvertStreams(strava.Activity{ID: 6, Type: "Run"}, s)
	require.Len(t, points, 4)
	assert.Equal(t, 100.0, points[1].Distance)
	assert.InDelta(t, 111.13, points[2].Distance, 0.05, "continues from the last streamed distance")
	assert.InDelta(t, 122.26, points[3].Distance, 0.1)
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Distance, points[i-1].Distance)
	}
}

func TestConvertStreams_Nil(t *testing.T) {
	assert.Empty(t, ConvertStreams(strava.Activity{ID: 1}, nil))
}
