// Package export writes enrichment results as CSV.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"trailmetrics/internal/store"
)

// PointHeader is the column order of the enriched CSV: the raw input
// columns followed by the derived ones
var PointHeader = []string{
	"file_name", "activity_type", "lat", "lon", "altitude_m", "distance_m", "speed_kmh", "time",
	"track_id", "point_idx", "altitude_smooth_m", "distance_step_m", "distance_clean_m",
	"altitude_step_m", "dplus_step_m", "dplus_cum_m", "time_s", "moving_time_s",
	"speed_resolved_kmh", "speed_smooth_kmh", "slope_pct", "activity_short", "date",
}

// SummaryHeader is the column order of the per-trace summary CSV
var SummaryHeader = []string{
	"track_id", "file_name", "activity_type", "activity_short", "points",
	"distance_m", "dplus_m", "moving_time_s", "duration_s", "start_time", "end_time",
	"lat_start", "lon_start", "clipped_steps", "implausible_speeds", "missing_altitude", "synthetic_time",
}

// Options controls number formatting
type Options struct {
	// Precision is the number of decimals for derived values; negative
	// means the shortest exact representation
	Precision int
}

// DefaultOptions keeps full precision
func DefaultOptions() Options {
	return Options{Precision: -1}
}

type formatter struct {
	prec int
}

func (f formatter) float(v float64) string {
	return strconv.FormatFloat(v, 'f', f.prec, 64)
}

func (f formatter) optional(v *float64) string {
	if v == nil {
		return ""
	}
	return f.float(*v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func exact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func exactOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return exact(*v)
}

// WriteCSV writes one row per enriched point. Raw input values are written
// exactly as read; derived values follow opts.Precision. Absent values are
// empty cells.
func WriteCSV(w io.Writer, points []store.EnrichedPoint, opts Options) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	f := formatter{prec: opts.Precision}

	if err := cw.Write(PointHeader); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}

	row := make([]string, len(PointHeader))
	for _, p := range points {
		row[0] = p.SourceID
		row[1] = p.Activity
		row[2] = exact(p.Lat)
		row[3] = exact(p.Lon)
		row[4] = exactOptional(p.Altitude)
		row[5] = exact(p.Distance)
		row[6] = exactOptional(p.RawPoint.Speed)
		row[7] = formatTime(p.Time)
		row[8] = strconv.Itoa(p.TraceID)
		row[9] = strconv.Itoa(p.PointIndex)
		row[10] = f.optional(p.AltitudeSmoothed)
		row[11] = f.float(p.DistanceStep)
		row[12] = f.float(p.DistanceClean)
		row[13] = f.optional(p.AltitudeStep)
		row[14] = f.float(p.GainStep)
		row[15] = f.float(p.GainCumulative)
		row[16] = f.float(p.RelativeTime)
		row[17] = f.float(p.MovingTime)
		row[18] = f.float(p.Speed)
		row[19] = f.float(p.SpeedSmoothed)
		row[20] = f.optional(p.Slope)
		row[21] = p.ActivityShort
		row[22] = p.LocalDate
		_ = cw.Write(row) // error is buffered; checked on Flush
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return bw.Flush()
}

// WriteSummaryCSV writes one row per trace summary
func WriteSummaryCSV(w io.Writer, summaries []store.TraceSummary, opts Options) error {
	cw := csv.NewWriter(w)
	f := formatter{prec: opts.Precision}

	if err := cw.Write(SummaryHeader); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}
	for _, s := range summaries {
		_ = cw.Write([]string{
			strconv.Itoa(s.TraceID),
			s.SourceID,
			s.Activity,
			s.ActivityShort,
			strconv.Itoa(s.Points),
			f.float(s.TotalDistance),
			f.float(s.TotalGain),
			f.float(s.MovingTime),
			f.float(s.Duration),
			formatTime(s.StartTime),
			formatTime(s.EndTime),
			exact(s.LatStart),
			exact(s.LonStart),
			strconv.Itoa(s.ClippedSteps),
			strconv.Itoa(s.ImplausibleSpeeds),
			strconv.Itoa(s.MissingAltitude),
			strconv.FormatBool(s.SyntheticTime),
		})
	}
	cw.Flush()
	return cw.Error()
}
