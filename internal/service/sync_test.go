package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailmetrics/internal/strava"
)

type stravaFake struct {
	mu     sync.Mutex
	afters []string
}

func (f *stravaFake) server(t *testing.T) *httptest.Server {
	t.Helper()
	start := time.Date(2024, 9, 1, 6, 30, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.afters = append(f.afters, r.URL.Query().Get("after"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode([]strava.Activity{
			{ID: 7, Type: "Run", SportType: "TrailRun", StartDate: start},
			{ID: 8, Type: "Ride", StartDate: start.Add(time.Hour)},
		})
	})
	mux.HandleFunc("/activities/7/streams", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"time": {"data": [0, 5, 10, 15]},
			"latlng": {"data": [[45.0, 6.0], [45.0001, 6.0], [45.0002, 6.0], [45.0003, 6.0]]},
			"altitude": {"data": [800.0, 802.0, 805.0, 806.0]},
			"distance": {"data": [0.0, 11.0, 22.0, 33.0]}
		}`)
	})
	mux.HandleFunc("/activities/8/streams", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Record Not Found"}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncService_Sync(t *testing.T) {
	db := setupTestDB(t)
	fake := &stravaFake{}
	srv := fake.server(t)
	client := strava.NewClientWithHTTP(srv.Client(), srv.URL)
	svc := NewSyncService(client, db, newTestService(t, db), 0, nil)

	last, err := svc.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	res, err := svc.Sync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "strava", res.Run.Source)
	assert.Equal(t, 1, res.Run.Traces)
	assert.Equal(t, 4, res.Run.Points)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "strava_8", res.Skipped[0].Ref)

	summaries, err := db.ListTraceSummaries(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "strava_7", summaries[0].SourceID)
	assert.Equal(t, "Trail", summaries[0].ActivityShort)
	assert.InDelta(t, 6.0, summaries[0].TotalGain, 1e-9)

	last, err = svc.LastSync()
	require.NoError(t, err)
	assert.False(t, last.IsZero())

	// An incremental sync asks only for newer activities
	_, err = svc.Sync(context.Background(), false, nil)
	require.NoError(t, err)
	_, err = svc.Sync(context.Background(), true, nil)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.afters, 3)
	assert.Empty(t, fake.afters[0])
	assert.Equal(t, fmt.Sprint(last.Unix()), fake.afters[1])
	assert.Empty(t, fake.afters[2])
}

func TestSyncService_BadSyncState(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.SetSyncState(LastActivitySyncKey, "yesterday"))
	svc := NewSyncService(strava.NewClientWithHTTP(http.DefaultClient, "http://127.0.0.1:0"), db, newTestService(t, db), 0, nil)

	progress := make(chan RunProgress)
	_, err := svc.Sync(context.Background(), false, progress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LastActivitySyncKey)

	_, open := <-progress
	assert.False(t, open)
}
