// Package telemetry persists per-request metrics records.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

// Pipeline is the best-effort metrics writer. It never fails a request.
type Pipeline struct {
	store  ports.MetricsStore
	mode   Mode
	logger *slog.Logger
	now    func() time.Time
}

func NewPipeline(store ports.MetricsStore, mode Mode, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, mode: mode, logger: logger, now: time.Now}
}

// Mode reports the configured redaction mode.
func (p *Pipeline) Mode() Mode {
	if p == nil {
		return ModeMinimal
	}
	return p.mode
}

// Persist scrubs the record and saves it under its request id. Saving the
// same id again replaces the earlier version.
func (p *Pipeline) Persist(ctx context.Context, rec *domain.MetricsRecord) {
	if p == nil || p.store == nil || rec == nil {
		return
	}
	now := p.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	out := *rec
	out.Excerpts = p.scrub(rec.Excerpts)
	out.Evaluation = scrubNotes(rec.Evaluation)
	out.DeepEvaluation = scrubNotes(rec.DeepEvaluation)

	if err := p.store.SaveMetrics(ctx, out); err != nil {
		p.logger.WarnContext(ctx, "save metrics failed", "request_id", rec.RequestID, "error", err)
		return
	}
	p.logger.DebugContext(ctx, "metrics saved", "request_id", rec.RequestID, "status", rec.Status)
}

func (p *Pipeline) scrub(in map[string]string) map[string]string {
	if p.mode == ModeMinimal || len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		v = RedactPII(v)
		if p.mode == ModeRedact {
			v = truncate(v, excerptLimit)
		}
		out[k] = v
	}
	return out
}

func scrubNotes(ev *domain.Evaluation) *domain.Evaluation {
	if ev == nil {
		return nil
	}
	c := *ev
	c.Notes = RedactPII(c.Notes)
	return &c
}
