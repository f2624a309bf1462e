package safety

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

// Job is one deep evaluation scheduled after the response was written.
type Job struct {
	Input  ports.EvalInput      `json:"input"`
	Record domain.MetricsRecord `json:"record"`
}

// Scheduler accepts fire-and-forget deep evaluation jobs.
type Scheduler interface {
	Schedule(job Job)
}

// Runner executes one job.
type Runner func(ctx context.Context, job Job)

// Recorder persists an enriched metrics record.
type Recorder interface {
	Persist(ctx context.Context, rec *domain.MetricsRecord)
}

// NewDeepRunner re-scores a narrative with the deep evaluator and writes the
// enriched record. It never affects what the user already received.
func NewDeepRunner(evaluator ports.Evaluator, recorder Recorder, logger *slog.Logger) Runner {
	return func(ctx context.Context, job Job) {
		ev, err := evaluator.Evaluate(ctx, job.Input)
		if err != nil {
			logger.WarnContext(ctx, "deep evaluation failed", "request_id", job.Record.RequestID, "error", err)
			ev = domain.Evaluation{Mode: domain.EvalModeError, Notes: err.Error()}
		} else {
			ev = Decide(ev).Evaluation
		}
		rec := job.Record
		rec.DeepEvaluation = &ev
		recorder.Persist(ctx, &rec)
	}
}

// GoScheduler runs jobs on background goroutines, bounded by maxInFlight.
// Jobs beyond the bound are dropped; completion is best-effort.
type GoScheduler struct {
	run     Runner
	sem     chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewGoScheduler(run Runner, maxInFlight int, timeout time.Duration, logger *slog.Logger) *GoScheduler {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &GoScheduler{
		run:     run,
		sem:     make(chan struct{}, maxInFlight),
		timeout: timeout,
		logger:  logger,
	}
}

func (s *GoScheduler) Schedule(job Job) {
	if s.closed.Load() {
		s.logger.Warn("scheduler closed, dropping deep evaluation", "request_id", job.Record.RequestID)
		return
	}
	select {
	case s.sem <- struct{}{}:
	default:
		s.logger.Warn("deep evaluation queue full, dropping job", "request_id", job.Record.RequestID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		s.run(ctx, job)
	}()
}

// Shutdown stops accepting jobs and waits for running ones until ctx is done.
func (s *GoScheduler) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
