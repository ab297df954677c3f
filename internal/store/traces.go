package store

import (
	"database/sql"
	"fmt"
)

// SaveTrace writes a trace summary and its enriched points in one
// transaction, replacing any previous copy of the trace in the same run.
func (db *DB) SaveTrace(s *TraceSummary, points []EnrichedPoint) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// cascades to enriched_points
	if _, err := tx.Exec(`DELETE FROM traces WHERE run_id = ? AND trace_id = ?`, s.RunID, s.TraceID); err != nil {
		return fmt.Errorf("deleting existing trace: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO traces (
			run_id, trace_id, source_id, activity, activity_short, points,
			total_distance, total_gain, moving_time, duration, start_time, end_time,
			lat_start, lon_start, clipped_steps, implausible_speeds, missing_altitude, synthetic_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.RunID, s.TraceID, s.SourceID, s.Activity, s.ActivityShort, s.Points,
		s.TotalDistance, s.TotalGain, s.MovingTime, s.Duration,
		timeToNullString(s.StartTime), timeToNullString(s.EndTime),
		s.LatStart, s.LonStart, s.ClippedSteps, s.ImplausibleSpeeds, s.MissingAltitude,
		boolToInt64(s.SyntheticTime),
	)
	if err != nil {
		return fmt.Errorf("inserting trace %d: %w", s.TraceID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO enriched_points (
			run_id, trace_id, point_index, source_id, activity, lat, lon, altitude,
			distance, time, speed, altitude_smoothed, distance_step, distance_clean,
			altitude_step, gain_step, gain_cumulative, relative_time, moving_time,
			speed_resolved, speed_smoothed, slope, activity_short, local_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(
			s.RunID, p.TraceID, p.PointIndex, p.SourceID, p.Activity, p.Lat, p.Lon,
			ptrToNullFloat64(p.Altitude), p.Distance, timeToNullString(p.Time),
			ptrToNullFloat64(p.RawPoint.Speed), ptrToNullFloat64(p.AltitudeSmoothed),
			p.DistanceStep, p.DistanceClean, ptrToNullFloat64(p.AltitudeStep),
			p.GainStep, p.GainCumulative, p.RelativeTime, p.MovingTime,
			p.Speed, p.SpeedSmoothed, ptrToNullFloat64(p.Slope), p.ActivityShort, p.LocalDate,
		)
		if err != nil {
			return fmt.Errorf("inserting point %d of trace %d: %w", p.PointIndex, p.TraceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListTraceSummaries returns the trace summaries of a run ordered by trace id
func (db *DB) ListTraceSummaries(runID string) ([]TraceSummary, error) {
	rows, err := db.Query(`
		SELECT run_id, trace_id, source_id, activity, activity_short, points,
			total_distance, total_gain, moving_time, duration, start_time, end_time,
			lat_start, lon_start, clipped_steps, implausible_speeds, missing_altitude, synthetic_time
		FROM traces
		WHERE run_id = ?
		ORDER BY trace_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceSummary
	for rows.Next() {
		var s TraceSummary
		var start, end sql.NullString
		var synthetic int64
		err := rows.Scan(
			&s.RunID, &s.TraceID, &s.SourceID, &s.Activity, &s.ActivityShort, &s.Points,
			&s.TotalDistance, &s.TotalGain, &s.MovingTime, &s.Duration, &start, &end,
			&s.LatStart, &s.LonStart, &s.ClippedSteps, &s.ImplausibleSpeeds, &s.MissingAltitude, &synthetic,
		)
		if err != nil {
			return nil, err
		}
		if s.StartTime, err = nullStringToTime(start); err != nil {
			return nil, err
		}
		if s.EndTime, err = nullStringToTime(end); err != nil {
			return nil, err
		}
		s.SyntheticTime = synthetic == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetEnrichedPoints returns the points of one trace in point order
func (db *DB) GetEnrichedPoints(runID string, traceID int) ([]EnrichedPoint, error) {
	rows, err := db.Query(`
		SELECT trace_id, point_index, source_id, activity, lat, lon, altitude,
			distance, time, speed, altitude_smoothed, distance_step, distance_clean,
			altitude_step, gain_step, gain_cumulative, relative_time, moving_time,
			speed_resolved, speed_smoothed, slope, activity_short, local_date
		FROM enriched_points
		WHERE run_id = ? AND trace_id = ?
		ORDER BY point_index
	`, runID, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnrichedPoint
	for rows.Next() {
		var p EnrichedPoint
		var altitude, rawSpeed, smoothed, altStep, slope sql.NullFloat64
		var ts sql.NullString
		err := rows.Scan(
			&p.TraceID, &p.PointIndex, &p.SourceID, &p.Activity, &p.Lat, &p.Lon, &altitude,
			&p.Distance, &ts, &rawSpeed, &smoothed, &p.DistanceStep, &p.DistanceClean,
			&altStep, &p.GainStep, &p.GainCumulative, &p.RelativeTime, &p.MovingTime,
			&p.Speed, &p.SpeedSmoothed, &slope, &p.ActivityShort, &p.LocalDate,
		)
		if err != nil {
			return nil, err
		}
		p.Altitude = nullFloat64ToPtr(altitude)
		p.RawPoint.Speed = nullFloat64ToPtr(rawSpeed)
		p.AltitudeSmoothed = nullFloat64ToPtr(smoothed)
		p.AltitudeStep = nullFloat64ToPtr(altStep)
		p.Slope = nullFloat64ToPtr(slope)
		if p.Time, err = nullStringToTime(ts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
