package store

import "time"

// Auth represents OAuth tokens for Strava API access
type Auth struct {
	AthleteID    int64     `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
	Scope        string    `db:"scope"` // as granted by the athlete, comma separated
}

// RawPoint is a single GPS sample as delivered by a trace source.
// Optional readings are nil when the source did not record them.
type RawPoint struct {
	SourceID string     `db:"source_id"` // groups points into a trace
	Activity string     `db:"activity"`  // free-form label from the source
	Lat      float64    `db:"lat"`
	Lon      float64    `db:"lon"`
	Altitude *float64   `db:"altitude"` // meters
	Distance float64    `db:"distance"` // cumulative meters, as supplied
	Time     *time.Time `db:"time"`     // UTC
	Speed    *float64   `db:"speed"`    // km/h
}

// Trace is the ordered point sequence of one recorded activity.
// ID is dense and only stable within a single run.
type Trace struct {
	ID       int
	SourceID string
	Points   []RawPoint
}

// EnrichedPoint is a RawPoint plus every derived per-point metric.
type EnrichedPoint struct {
	RawPoint

	TraceID          int      `db:"trace_id"`
	PointIndex       int      `db:"point_index"`
	AltitudeSmoothed *float64 `db:"altitude_smoothed"` // meters
	DistanceStep     float64  `db:"distance_step"`     // meters, clipped
	DistanceClean    float64  `db:"distance_clean"`    // cumulative meters rebuilt from clipped steps
	AltitudeStep     *float64 `db:"altitude_step"`     // meters
	GainStep         float64  `db:"gain_step"`         // meters
	GainCumulative   float64  `db:"gain_cumulative"`   // meters
	RelativeTime     float64  `db:"relative_time"`     // seconds since trace start
	MovingTime       float64  `db:"moving_time"`       // cumulative seconds
	Speed            float64  `db:"speed_resolved"`    // km/h
	SpeedSmoothed    float64  `db:"speed_smoothed"`    // km/h
	Slope            *float64 `db:"slope"`             // percent
	ActivityShort    string   `db:"activity_short"`
	LocalDate        string   `db:"local_date"` // YYYY-MM-DD, configured timezone
}

// Quality counts data-quality events seen while enriching one trace
type Quality struct {
	ClippedSteps      int  `db:"clipped_steps"`      // distance jumps above the plausible step
	ImplausibleSpeeds int  `db:"implausible_speeds"` // raw speeds rejected
	MissingAltitude   int  `db:"missing_altitude"`   // points without a raw altitude
	SyntheticTime     bool `db:"synthetic_time"`     // point index used as time axis
}

// TraceSummary holds per-trace aggregates derived from the enriched points
type TraceSummary struct {
	RunID         string     `db:"run_id"`
	TraceID       int        `db:"trace_id"`
	SourceID      string     `db:"source_id"`
	Activity      string     `db:"activity"`
	ActivityShort string     `db:"activity_short"`
	Points        int        `db:"points"`
	TotalDistance float64    `db:"total_distance"` // meters
	TotalGain     float64    `db:"total_gain"`     // meters
	MovingTime    float64    `db:"moving_time"`    // seconds
	Duration      float64    `db:"duration"`       // seconds
	StartTime     *time.Time `db:"start_time"`
	EndTime       *time.Time `db:"end_time"`
	LatStart      float64    `db:"lat_start"`
	LonStart      float64    `db:"lon_start"`
	Quality
}

// Run describes one enrichment batch
type Run struct {
	ID        string    `db:"id"` // uuid
	Source    string    `db:"source"`
	Config    string    `db:"config"` // engine configuration as JSON
	Traces    int       `db:"traces"`
	Points    int       `db:"points"`
	Failures  int       `db:"failures"`
	Skipped   int       `db:"skipped"`
	StartedAt time.Time `db:"started_at"`
}

// TraceError records a trace that failed during a run
type TraceError struct {
	RunID    string `db:"run_id"`
	TraceID  int    `db:"trace_id"`
	SourceID string `db:"source_id"`
	Message  string `db:"error"`
}
