package service

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"trailmetrics/internal/enrich"
	"trailmetrics/internal/source"
	"trailmetrics/internal/store"
)

// EnrichService runs a batch from a source through the engine and records
// the outcome in the run store
type EnrichService struct {
	engine *enrich.Engine
	store  *store.DB // nil disables persistence
	logger *slog.Logger
}

// NewEnrichService creates a new enrichment service. db and logger may be nil.
func NewEnrichService(engine *enrich.Engine, db *store.DB, logger *slog.Logger) *EnrichService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EnrichService{engine: engine, store: db, logger: logger}
}

// RunProgress reports progress during a run
type RunProgress struct {
	Phase string // "load", "enrich", "persist"
	enrich.Progress
}

// RunResult contains the results of one enrichment run
type RunResult struct {
	Run     store.Run
	Result  *enrich.Result
	Skipped []source.Skip
	Elapsed time.Duration
}

// Run loads src, enriches every trace and, when a store is configured,
// saves the run with its summaries, points and failures.
//
// progress may be nil. When set it must be drained by the caller and is
// closed when Run returns.
func (s *EnrichService) Run(ctx context.Context, src source.Source, progress chan<- RunProgress) (*RunResult, error) {
	if progress != nil {
		defer close(progress)
	}

	started := time.Now()
	send(progress, RunProgress{Phase: PhaseLoad})

	batch, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src.Name(), err)
	}
	for _, skip := range batch.Skipped {
		s.logger.Warn("skipped input", "source", src.Name(), "ref", skip.Ref, "line", skip.Line, "error", skip.Err)
	}
	s.logger.Info("source loaded", "source", src.Name(), "points", len(batch.Points), "skipped", len(batch.Skipped))

	res, err := s.enrich(ctx, batch.Points, progress)
	if err != nil {
		return nil, fmt.Errorf("enriching: %w", err)
	}

	cfgJSON, err := json.Marshal(s.engine.Config())
	if err != nil {
		return nil, fmt.Errorf("encoding engine config: %w", err)
	}

	out := &RunResult{
		Run: store.Run{
			ID:        uuid.NewString(),
			Source:    src.Name(),
			Config:    string(cfgJSON),
			Traces:    len(res.Traces),
			Points:    len(batch.Points),
			Failures:  len(res.Failures),
			Skipped:   len(batch.Skipped),
			StartedAt: started.UTC(),
		},
		Result:  res,
		Skipped: batch.Skipped,
	}

	if s.store != nil {
		if err := s.persist(ctx, out, progress); err != nil {
			return nil, fmt.Errorf("saving run %s: %w", out.Run.ID, err)
		}
	}

	out.Elapsed = time.Since(started)
	s.logger.Info("run complete",
		"run_id", out.Run.ID,
		"traces", out.Run.Traces,
		"failures", out.Run.Failures,
		"skipped", out.Run.Skipped,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

// enrich forwards engine progress to the run progress channel
func (s *EnrichService) enrich(ctx context.Context, points []store.RawPoint, progress chan<- RunProgress) (*enrich.Result, error) {
	if progress == nil {
		return s.engine.Enrich(ctx, points, nil)
	}

	engineProgress := make(chan enrich.Progress)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range engineProgress {
			progress <- RunProgress{Phase: PhaseEnrich, Progress: p}
		}
	}()

	res, err := s.engine.Enrich(ctx, points, engineProgress)
	<-forwarded
	return res, err
}

// persist writes the run first so traces can reference it, then one
// transaction per trace. A trace the store rejects becomes a failure of the
// run and the others are still written. The run row is rewritten last so
// its counts describe what was stored; when persisting stops early the run
// is removed again.
func (s *EnrichService) persist(ctx context.Context, out *RunResult, progress chan<- RunProgress) (err error) {
	if err := s.store.SaveRun(&out.Run); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if derr := s.store.DeleteRun(out.Run.ID); derr != nil {
			s.logger.Warn("removing incomplete run", "run_id", out.Run.ID, "error", derr)
		}
	}()

	res := out.Result
	total := len(res.Traces)
	saved := res.Traces[:0]
	var rejected int
	for i := range res.Traces {
		if err := ctx.Err(); err != nil {
			return err
		}
		tr := res.Traces[i]
		tr.Summary.RunID = out.Run.ID
		if err := s.store.SaveTrace(&tr.Summary, tr.Points); err != nil {
			s.logger.Warn("trace not saved", "run_id", out.Run.ID, "trace_id", tr.Trace.ID, "source_id", tr.Trace.SourceID, "error", err)
			res.Failures = append(res.Failures, enrich.TraceFailure{
				TraceID:  tr.Trace.ID,
				SourceID: tr.Trace.SourceID,
				Err:      fmt.Errorf("saving trace: %w", err),
			})
			rejected++
		} else {
			saved = append(saved, tr)
		}
		send(progress, RunProgress{
			Phase:    PhasePersist,
			Progress: enrich.Progress{Total: total, Completed: i + 1, Failed: rejected, SourceID: tr.Trace.SourceID},
		})
	}
	res.Traces = saved
	slices.SortStableFunc(res.Failures, func(a, b enrich.TraceFailure) int {
		return cmp.Compare(a.TraceID, b.TraceID)
	})

	if len(res.Failures) > 0 {
		failures := make([]store.TraceError, len(res.Failures))
		for i, f := range res.Failures {
			failures[i] = store.TraceError{
				RunID:    out.Run.ID,
				TraceID:  f.TraceID,
				SourceID: f.SourceID,
				Message:  f.Err.Error(),
			}
		}
		if err := s.store.SaveFailures(failures); err != nil {
			return fmt.Errorf("saving failures: %w", err)
		}
	}

	out.Run.Traces = len(res.Traces)
	out.Run.Failures = len(res.Failures)
	if err := s.store.SaveRun(&out.Run); err != nil {
		return fmt.Errorf("updating run counts: %w", err)
	}
	return nil
}

func send(progress chan<- RunProgress, p RunProgress) {
	if progress != nil {
		progress <- p
	}
}
