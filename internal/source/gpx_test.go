package source

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stravaGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx creator="StravaGPX" version="1.1" xmlns="http://www.topografix.com/GPX/1/1">
 <trk>
  <name>Morning Trail Run</name>
  <type>TrailRun</type>
  <trkseg>
   <trkpt lat="45.0000" lon="6.0000">
    <ele>1200.0</ele>
    <time>2024-07-14T06:00:00Z</time>
    <extensions><velocity_smooth>2.5</velocity_smooth></extensions>
   </trkpt>
   <trkpt lat="45.0001" lon="6.0000">
    <ele>1203.0</ele>
    <time>2024-07-14T06:00:05Z</time>
   </trkpt>
   <trkpt lat="45.0101" lon="6.0000">
    <time>2024-07-14T06:00:10Z</time>
    <extensions><velocity_smooth>72</velocity_smooth></extensions>
   </trkpt>
  </trkseg>
 </trk>
</gpx>`

const garminGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx creator="Garmin" version="1.1" xmlns="http://www.topografix.com/GPX/1/1"
     xmlns:ns3="http://www.garmin.com/xmlschemas/TrackPointExtension/v1">
 <trk><type>Ride</type><trkseg>
  <trkpt lat="44.0" lon="5.0"><extensions><ns3:TrackPointExtension><ns3:speed>5</ns3:speed></ns3:TrackPointExtension></extensions></trkpt>
 </trkseg></trk>
 <trk><type>Ride</type><trkseg>
  <trkpt lat="44.5" lon="5.5"></trkpt>
 </trkseg></trk>
</gpx>`

func TestParseGPX(t *testing.T) {
	points, err := ParseGPX(strings.NewReader(stravaGPX), "run.gpx")
	require.NoError(t, err)
	require.Len(t, points, 3)

	for _, p := range points {
		assert.Equal(t, "run.gpx", p.SourceID)
		assert.Equal(t, "TrailRun", p.Activity)
	}

	p0, p1, p2 := points[0], points[1], points[2]
	assert.Zero(t, p0.Distance)
	require.NotNil(t, p0.Speed)
	assert.InDelta(t, 9.0, *p0.Speed, 1e-9, "m/s converted to km/h")
	assert.Equal(t, time.Date(2024, 7, 14, 6, 0, 0, 0, time.UTC), *p0.Time)

	flat := geo.Distance(orb.Point{6, 45}, orb.Point{6, 45.0001})
	assert.InDelta(t, math.Hypot(flat, 3), p1.Distance, 1e-9)
	assert.Nil(t, p1.Speed)

	// ~1.1 km jump is dropped and the third point has no elevation
	assert.Nil(t, p2.Altitude)
	assert.InDelta(t, p1.Distance, p2.Distance, 1e-9)
	require.NotNil(t, p2.Speed)
	assert.Equal(t, 72.0, *p2.Speed, "values above the cutoff are already km/h")
}

func TestParseGPX_MultipleTracks(t *testing.T) {
	points, err := ParseGPX(strings.NewReader(garminGPX), "sub/ride.gpx")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "sub/ride.gpx#1", points[0].SourceID)
	assert.Equal(t, "sub/ride.gpx#2", points[1].SourceID)
	require.NotNil(t, points[0].Speed)
	assert.InDelta(t, 18.0, *points[0].Speed, 1e-9)
	assert.Nil(t, points[0].Time)
	assert.Nil(t, points[1].Speed)
}

func TestParseGPX_Invalid(t *testing.T) {
	_, err := ParseGPX(strings.NewReader("<gpx><trk>"), "broken.gpx")
	assert.Error(t, err)
}

func TestGPXSource_Load(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024", "run.gpx"), []byte(stravaGPX), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ride.GPX"), []byte(garminGPX), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.gpx"), []byte("<gpx"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0644))

	src := NewGPXSource(root)
	batch, err := src.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, "broken.gpx", batch.Skipped[0].Ref)

	ids := map[string]int{}
	for _, p := range batch.Points {
		ids[p.SourceID]++
	}
	assert.Equal(t, map[string]int{"2024/run.gpx": 3, "ride.GPX#1": 1, "ride.GPX#2": 1}, ids)
}

func TestGPXSource_Cancelled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "run.gpx"), []byte(stravaGPX), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGPXSource(root).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGPXSource_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.gpx")
	require.NoError(t, os.WriteFile(path, []byte(stravaGPX), 0644))

	batch, err := NewGPXSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Points, 3)
	assert.Equal(t, "run.gpx", batch.Points[0].SourceID)
}
