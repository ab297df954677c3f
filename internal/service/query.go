package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"trailmetrics/internal/store"
)

// QueryService provides read-only queries over stored runs
type QueryService struct {
	store *store.DB
}

// NewQueryService creates a new query service
func NewQueryService(store *store.DB) *QueryService {
	return &QueryService{store: store}
}

// RunReport contains everything needed to print a run
type RunReport struct {
	Run      store.Run
	Traces   []TraceRow
	Failures []store.TraceError

	TotalDistance float64 // meters
	TotalGain     float64 // meters
	MovingTime    float64 // seconds
}

// TraceRow is a trace summary formatted for display
type TraceRow struct {
	Summary  store.TraceSummary
	Date     string // "Jan 02, 2006", "-" without timestamps
	Distance string // "12.34 km"
	Gain     string // "850 m"
	Moving   string // "H:MM:SS"
	Elapsed  string // "H:MM:SS"
	Pace     string // "M:SS/km", "-" when not moving
	Quality  string // "ok" or a short list of issues
}

// RunRow is a stored run formatted for a listing
type RunRow struct {
	Run store.Run
	Age string // "3 hours ago"
}

// GetRunReport loads a run with its trace summaries and failures.
// An empty id selects the most recent run.
func (q *QueryService) GetRunReport(id string) (*RunReport, error) {
	var run *store.Run
	var err error
	if id == "" {
		run, err = q.store.LatestRun()
	} else {
		run, err = q.store.GetRun(id)
	}
	if err != nil {
		return nil, err
	}

	summaries, err := q.store.ListTraceSummaries(run.ID)
	if err != nil {
		return nil, fmt.Errorf("listing traces: %w", err)
	}
	failures, err := q.store.ListFailures(run.ID)
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}

	report := &RunReport{Run: *run, Failures: failures}
	for _, s := range summaries {
		report.Traces = append(report.Traces, newTraceRow(s))
		report.TotalDistance += s.TotalDistance
		report.TotalGain += s.TotalGain
		report.MovingTime += s.MovingTime
	}
	return report, nil
}

// ListRuns returns the most recent runs, newest first
func (q *QueryService) ListRuns(limit int, now time.Time) ([]RunRow, error) {
	if limit == 0 {
		limit = RecentRunsLimit
	}
	runs, err := q.store.ListRuns(limit)
	if err != nil {
		return nil, err
	}
	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = RunRow{Run: r, Age: humanize.RelTime(r.StartedAt, now, "ago", "from now")}
	}
	return rows, nil
}

// TraceDetail holds a stored trace's points and their aggregates
type TraceDetail struct {
	Points []store.EnrichedPoint
	Stats  PointStats
}

// GetTraceDetail loads the enriched points of one trace of a run
func (q *QueryService) GetTraceDetail(runID string, traceID int) (*TraceDetail, error) {
	points, err := q.store.GetEnrichedPoints(runID, traceID)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, errors.New("trace has no points")
	}
	return &TraceDetail{Points: points, Stats: AggregatePoints(points)}, nil
}

// DeleteRun removes a stored run with its traces, points and failures
func (q *QueryService) DeleteRun(id string) error {
	if err := q.store.DeleteRun(id); err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	return nil
}

func newTraceRow(s store.TraceSummary) TraceRow {
	row := TraceRow{
		Summary:  s,
		Date:     "-",
		Distance: formatKm(s.TotalDistance),
		Gain:     fmt.Sprintf("%s m", humanize.Comma(int64(s.TotalGain+0.5))),
		Moving:   formatDuration(int(s.MovingTime)),
		Elapsed:  formatDuration(int(s.Duration)),
		Pace:     "-",
		Quality:  formatQuality(s.Quality),
	}
	if s.StartTime != nil {
		row.Date = s.StartTime.Format("Jan 02, 2006")
	}
	if s.TotalDistance > 0 && s.MovingTime > 0 {
		row.Pace = formatPace(int(s.MovingTime/(s.TotalDistance/MetersPerKm))) + "/km"
	}
	return row
}

func formatKm(meters float64) string {
	return fmt.Sprintf("%s km", humanize.FormatFloat("#,###.##", meters/MetersPerKm))
}

func formatPace(seconds int) string {
	mins := seconds / SecondsPerMinute
	secs := seconds % SecondsPerMinute
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// formatDuration formats seconds as "H:MM:SS" or "M:SS"
func formatDuration(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatQuality(q store.Quality) string {
	var issues []string
	if q.ClippedSteps > 0 {
		issues = append(issues, fmt.Sprintf("%d clipped", q.ClippedSteps))
	}
	if q.ImplausibleSpeeds > 0 {
		issues = append(issues, fmt.Sprintf("%d bad speeds", q.ImplausibleSpeeds))
	}
	if q.MissingAltitude > 0 {
		issues = append(issues, fmt.Sprintf("%d no alt", q.MissingAltitude))
	}
	if q.SyntheticTime {
		issues = append(issues, "no time")
	}
	if len(issues) == 0 {
		return "ok"
	}
	return strings.Join(issues, ", ")
}
