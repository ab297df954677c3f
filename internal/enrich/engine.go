package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"trailmetrics/internal/store"
)

// Engine runs the per-trace enrichment pipeline
type Engine struct {
	cfg    Config
	loc    *time.Location
	logger *slog.Logger

	enrichTrace func(store.Trace) (TraceResult, error)
}

// Progress reports batch progress, one message per finished trace
type Progress struct {
	Total     int
	Completed int
	Failed    int
	SourceID  string
}

// TraceResult is the output of one trace
type TraceResult struct {
	Trace   store.Trace
	Points  []store.EnrichedPoint
	Summary store.TraceSummary
	Quality store.Quality
}

// TraceFailure records a trace whose enrichment was abandoned
type TraceFailure struct {
	TraceID  int
	SourceID string
	Err      error
}

func (f TraceFailure) Error() string {
	return fmt.Sprintf("trace %d (%s): %v", f.TraceID, f.SourceID, f.Err)
}

// Result contains the output of a batch, ordered by trace id
type Result struct {
	Traces   []TraceResult
	Failures []TraceFailure
}

// Points flattens the enriched points of all successful traces
func (r *Result) Points() []store.EnrichedPoint {
	var n int
	for _, t := range r.Traces {
		n += len(t.Points)
	}
	points := make([]store.EnrichedPoint, 0, n)
	for _, t := range r.Traces {
		points = append(points, t.Points...)
	}
	return points
}

// Summaries returns the summaries of all successful traces
func (r *Result) Summaries() []store.TraceSummary {
	summaries := make([]store.TraceSummary, 0, len(r.Traces))
	for _, t := range r.Traces {
		summaries = append(summaries, t.Summary)
	}
	return summaries
}

// NewEngine validates cfg and creates an engine. A nil logger discards logs.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{cfg: cfg, loc: loc, logger: logger}
	e.enrichTrace = e.EnrichTrace
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Enrich groups points into traces and enriches every trace independently.
//
// Traces run on a bounded worker pool. A failing trace is reported in
// Result.Failures and never affects the others; only cancellation of ctx
// aborts the batch. progress may be nil; when set it must be drained by
// the caller and is closed when Enrich returns.
func (e *Engine) Enrich(ctx context.Context, points []store.RawPoint, progress chan<- Progress) (*Result, error) {
	if progress != nil {
		defer close(progress)
	}

	traces := GroupTraces(points)
	results := make([]*TraceResult, len(traces))
	failures := make([]error, len(traces))

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	type outcome struct {
		sourceID string
		err      error
	}
	done := make(chan outcome, len(traces))
	for i := range traces {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.safeEnrich(traces[i])
			if err != nil {
				failures[i] = err
			} else {
				results[i] = &res
			}
			done <- outcome{sourceID: traces[i].SourceID, err: err}
			return nil
		})
	}

	// Progress is reported from this goroutine only, in completion order.
	// done is closed once every worker has returned, so each outcome is
	// reported even after the errgroup context ends.
	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		var completed, failed int
		for o := range done {
			completed++
			if o.err != nil {
				failed++
			}
			if progress == nil {
				continue
			}
			p := Progress{Total: len(traces), Completed: completed, Failed: failed, SourceID: o.sourceID}
			select {
			case progress <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	werr := g.Wait()
	close(done)
	<-reportDone
	if werr != nil {
		return nil, werr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Result{}
	for i, t := range traces {
		if failures[i] != nil {
			f := TraceFailure{TraceID: t.ID, SourceID: t.SourceID, Err: failures[i]}
			out.Failures = append(out.Failures, f)
			e.logger.Warn("trace enrichment failed", "trace_id", t.ID, "source_id", t.SourceID, "error", failures[i])
			continue
		}
		out.Traces = append(out.Traces, *results[i])
	}
	return out, nil
}

func (e *Engine) safeEnrich(trace store.Trace) (res TraceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = TraceResult{}
			err = fmt.Errorf("enriching trace %d: panic: %v", trace.ID, r)
		}
	}()
	return e.enrichTrace(trace)
}

// EnrichTrace runs the full pipeline on one trace. It either returns every
// enriched point or an error, never partial output.
func (e *Engine) EnrichTrace(trace store.Trace) (res TraceResult, err error) {
	n := len(trace.Points)
	res.Trace = trace
	if n == 0 {
		res.Summary = Summarize(trace, nil, res.Quality)
		return res, nil
	}

	distance := make([]float64, n)
	altitude := make([]*float64, n)
	times := make([]*time.Time, n)
	speeds := make([]*float64, n)
	for i, p := range trace.Points {
		distance[i] = p.Distance
		altitude[i] = p.Altitude
		times[i] = p.Time
		speeds[i] = p.Speed
		if p.Altitude == nil {
			res.Quality.MissingAltitude++
		}
	}

	smoothed := SmoothAltitude(altitude, e.cfg.AltitudeWindow)
	steps := ComputeSteps(distance, smoothed, e.cfg.MaxStepDistance)
	gainSteps, gainCum := AccumulateGain(steps.Altitude, e.cfg.GainEpsilon)
	motion := ClassifyMotion(times, steps.Distance, speeds, MotionParams{
		Threshold:      e.cfg.MotionThreshold,
		MaxPlausible:   e.cfg.MaxPlausibleSpeedKmh,
		SmoothingWidth: e.cfg.SpeedWindow,
	})
	slopes, err := EstimateSlopes(steps.Axis, smoothed, e.cfg.SlopeWindow)
	if err != nil {
		return TraceResult{}, fmt.Errorf("estimating slopes: %w", err)
	}

	res.Quality.ClippedSteps = steps.Clipped
	res.Quality.ImplausibleSpeeds = motion.Implausible
	res.Quality.SyntheticTime = motion.SyntheticTime

	res.Points = make([]store.EnrichedPoint, n)
	for i, p := range trace.Points {
		res.Points[i] = store.EnrichedPoint{
			RawPoint:         p,
			TraceID:          trace.ID,
			PointIndex:       i,
			AltitudeSmoothed: smoothed[i],
			DistanceStep:     steps.Distance[i],
			DistanceClean:    steps.Axis[i],
			AltitudeStep:     steps.Altitude[i],
			GainStep:         gainSteps[i],
			GainCumulative:   gainCum[i],
			RelativeTime:     motion.RelativeTime[i],
			MovingTime:       motion.MovingTime[i],
			Speed:            motion.Speed[i],
			SpeedSmoothed:    motion.SpeedSmoothed[i],
			Slope:            slopes[i],
			ActivityShort:    ShortActivity(p.Activity),
			LocalDate:        LocalDate(p.Time, e.loc),
		}
	}
	res.Summary = Summarize(trace, res.Points, res.Quality)

	e.logQuality(trace, res.Quality)
	return res, nil
}

func (e *Engine) logQuality(trace store.Trace, q store.Quality) {
	attrs := []any{
		"trace_id", trace.ID,
		"source_id", trace.SourceID,
		"points", len(trace.Points),
	}
	if q.ClippedSteps > 0 || q.ImplausibleSpeeds > 0 || q.SyntheticTime {
		e.logger.Warn("data quality",
			append(attrs,
				"clipped_steps", q.ClippedSteps,
				"implausible_speeds", q.ImplausibleSpeeds,
				"missing_altitude", q.MissingAltitude,
				"synthetic_time", q.SyntheticTime,
			)...)
		return
	}
	e.logger.Debug("trace enriched", attrs...)
}
