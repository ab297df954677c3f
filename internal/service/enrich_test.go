package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailmetrics/internal/enrich"
	"trailmetrics/internal/source"
	"trailmetrics/internal/store"
)

const testDataset = `file_name,activity_type,lat,lon,altitude_m,distance_m,dplus_m_cum,speed_kmh,time
b.gpx,Hike,45.0,6.0,1000,0,0,,2024-06-02T08:00:00Z
b.gpx,Hike,45.0001,6.0,1003,11,3,,2024-06-02T08:00:10Z
a.gpx,TrailRun,44.0,5.0,500,0,0,9.5,2024-06-01T07:00:00Z
a.gpx,TrailRun,44.0001,5.0,501,10,1,9.5,2024-06-01T07:00:04Z
a.gpx,TrailRun,44.0002,5.0,,20,1,,2024-06-01T07:00:08Z
a.gpx,TrailRun,not-a-number,5.0,503,30,3,9.5,2024-06-01T07:00:12Z
`

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func writeDataset(t *testing.T) source.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(testDataset), 0644))
	return source.NewCSVSource(path)
}

func newTestService(t *testing.T, db *store.DB) *EnrichService {
	t.Helper()
	cfg := enrich.DefaultConfig()
	cfg.Workers = 2
	engine, err := enrich.NewEngine(cfg, nil)
	require.NoError(t, err)
	return NewEnrichService(engine, db, nil)
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Load(context.Context) (*source.Batch, error) {
	return nil, errors.New("disk on fire")
}

// pointSource serves fixed points, including values no file parser lets
// through
type pointSource []store.RawPoint

func (pointSource) Name() string { return "points" }
func (p pointSource) Load(context.Context) (*source.Batch, error) {
	return &source.Batch{Points: p}, nil
}

func TestEnrichService_RunPersists(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	progress := make(chan RunProgress)
	var phases []string
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
				phases = append(phases, p.Phase)
			}
		}
	}()

	res, err := svc.Run(context.Background(), writeDataset(t), progress)
	require.NoError(t, err)
	<-drained

	assert.Equal(t, []string{PhaseLoad, PhaseEnrich, PhasePersist}, phases)
	assert.NotEmpty(t, res.Run.ID)
	assert.Equal(t, 2, res.Run.Traces)
	assert.Equal(t, 5, res.Run.Points)
	assert.Equal(t, 1, res.Run.Skipped)
	assert.Zero(t, res.Run.Failures)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 7, res.Skipped[0].Line)

	var cfg enrich.Config
	require.NoError(t, json.Unmarshal([]byte(res.Run.Config), &cfg))
	assert.Equal(t, 2, cfg.Workers)

	stored, err := db.GetRun(res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Run.Source, stored.Source)

	summaries, err := db.ListTraceSummaries(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "a.gpx", summaries[0].SourceID)
	assert.Equal(t, "b.gpx", summaries[1].SourceID)
	assert.Equal(t, res.Run.ID, summaries[0].RunID)
	assert.Equal(t, 1, summaries[0].MissingAltitude)

	points, err := db.GetEnrichedPoints(res.Run.ID, 0)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 20.0, points[2].DistanceClean)
	assert.Equal(t, "Trail", points[0].ActivityShort)
}

func TestEnrichService_RunWithoutStore(t *testing.T) {
	svc := newTestService(t, nil)

	res, err := svc.Run(context.Background(), writeDataset(t), nil)
	require.NoError(t, err)
	assert.Len(t, res.Result.Points(), 5)
	assert.Len(t, res.Result.Summaries(), 2)
}

func TestEnrichService_LoadError(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	progress := make(chan RunProgress, 4)
	_, err := svc.Run(context.Background(), failingSource{}, progress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading broken")

	// progress is closed even when the run fails
	for range progress {
	}
}

func TestEnrichService_PersistFailures(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	out := &RunResult{
		Run: store.Run{ID: "run-with-failure", Source: "test", Config: "{}"},
		Result: &enrich.Result{
			Failures: []enrich.TraceFailure{
				{TraceID: 3, SourceID: "broken.gpx", Err: enrich.ErrNonMonotonicAxis},
			},
		},
	}
	require.NoError(t, svc.persist(context.Background(), out, nil))

	failures, err := db.ListFailures("run-with-failure")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 3, failures[0].TraceID)
	assert.Equal(t, "broken.gpx", failures[0].SourceID)
	assert.Equal(t, enrich.ErrNonMonotonicAxis.Error(), failures[0].Message)

	stored, err := db.GetRun("run-with-failure")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Failures)
}

func TestEnrichService_NaNDistanceRowIsSkipped(t *testing.T) {
	db := setupTestDB(t)
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"file_name,activity_type,lat,lon,altitude_m,distance_m,time\n"+
			"good.gpx,Run,45.0,6.0,100,0,2024-06-01T07:00:00Z\n"+
			"good.gpx,Run,45.0001,6.0,101,11,2024-06-01T07:00:05Z\n"+
			"zbad.gpx,Run,45.0,6.0,100,NaN,2024-06-01T08:00:00Z\n"+
			"zbad.gpx,Run,45.0001,6.0,101,11,2024-06-01T08:00:05Z\n"), 0644))

	res, err := newTestService(t, db).Run(context.Background(), source.NewCSVSource(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Run.Traces)
	assert.Equal(t, 1, res.Run.Skipped)

	summaries, err := db.ListTraceSummaries(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[1].Points)
}

func TestEnrichService_RejectedTraceDoesNotSinkRun(t *testing.T) {
	db := setupTestDB(t)
	t0 := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Second)
	src := pointSource{
		{SourceID: "good.gpx", Lat: 45, Lon: 6, Distance: 0, Time: &t0},
		{SourceID: "good.gpx", Lat: 45.0001, Lon: 6, Distance: 11, Time: &t1},
		{SourceID: "zbad.gpx", Lat: math.NaN(), Lon: 6, Distance: 0, Time: &t0},
		{SourceID: "zbad.gpx", Lat: math.NaN(), Lon: 6, Distance: 11, Time: &t1},
	}

	res, err := newTestService(t, db).Run(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Run.Traces)
	assert.Equal(t, 1, res.Run.Failures)
	require.Len(t, res.Result.Traces, 1)
	assert.Equal(t, "good.gpx", res.Result.Traces[0].Trace.SourceID)
	require.Len(t, res.Result.Failures, 1)
	assert.Equal(t, "zbad.gpx", res.Result.Failures[0].SourceID)

	stored, err := db.GetRun(res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Traces)
	assert.Equal(t, 1, stored.Failures)

	summaries, err := db.ListTraceSummaries(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good.gpx", summaries[0].SourceID)

	failures, err := db.ListFailures(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].TraceID)
	assert.Contains(t, failures[0].Message, "saving trace")
}

func TestEnrichService_PersistRemovesRunWhenStopped(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &RunResult{
		Run: store.Run{ID: "run-cancelled", Source: "test", Config: "{}"},
		Result: &enrich.Result{Traces: []enrich.TraceResult{
			{Trace: store.Trace{ID: 0, SourceID: "a.gpx"}},
		}},
	}
	require.ErrorIs(t, svc.persist(ctx, out, nil), context.Canceled)

	_, err := db.GetRun("run-cancelled")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestEnrichService_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(t, nil).Run(ctx, writeDataset(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
