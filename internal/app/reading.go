package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/fallback"
	"github.com/randomtoy/tarot-reading/internal/ports"
	"github.com/randomtoy/tarot-reading/internal/quality"
	"github.com/randomtoy/tarot-reading/internal/quota"
	"github.com/randomtoy/tarot-reading/internal/safety"
	"github.com/randomtoy/tarot-reading/internal/telemetry"
)

// Options are the feature flags of the reading pipeline.
type Options struct {
	DeepEvalEnabled bool
	// MaxPromptChars bounds backend user prompts; zero means unbounded.
	MaxPromptChars int
}

// Deps are the collaborators of ReadingService. Analyzer, Verifier and
// Scheduler are optional.
type Deps struct {
	Catalog   ports.SpreadCatalog
	Analyzer  ports.Analyzer
	Verifier  ports.VisionVerifier
	Quota     *quota.Manager
	Chain     *fallback.Chain
	Gate      *safety.Gate
	Scheduler safety.Scheduler
	Telemetry *telemetry.Pipeline
	RNG       domain.RNG
	Logger    *slog.Logger
}

// Outcome is the application-level result of one reading.
type Outcome struct {
	RequestID        string
	Reading          string
	Provider         string
	Spread           domain.SpreadDef
	Cards            []domain.DrawnCard
	Context          string
	Themes           map[string]any
	SpreadAnalysis   map[string]any
	NarrativeMetrics *domain.QualityResult
	Evaluation       *domain.Evaluation
	GateBlocked      bool
	GateReason       string
	Crisis           bool

	record    domain.MetricsRecord
	evalInput ports.EvalInput
}

// ReadingService orchestrates admission, generation, gating and telemetry
// for a single reading.
type ReadingService struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewReadingService(deps Deps, opts Options) *ReadingService {
	return &ReadingService{deps: deps, opts: opts, now: time.Now}
}

// Draw lays out a random spread server-side.
func (s *ReadingService) Draw(ctx context.Context, spreadKey string, style domain.DeckStyle) (domain.SpreadDef, []domain.DrawnCard, error) {
	def, err := s.spread(ctx, spreadKey)
	if err != nil {
		return domain.SpreadDef{}, nil, err
	}
	cards, err := domain.DrawSpread(def, style, s.deps.RNG)
	if err != nil {
		return domain.SpreadDef{}, nil, fmt.Errorf("draw spread: %w", err)
	}
	return def, cards, nil
}

// Spreads lists the catalog.
func (s *ReadingService) Spreads(ctx context.Context) ([]domain.SpreadDef, error) {
	return s.deps.Catalog.ListSpreads(ctx)
}

// Read runs the full pipeline. A reserved quota unit is refunded when no
// backend could produce an acceptable narrative and on the crisis path;
// every other outcome after admission keeps it.
func (s *ReadingService) Read(ctx context.Context, requestID string, req domain.ReadingRequest) (*Outcome, error) {
	start := s.now()
	log := s.deps.Logger.With("request_id", requestID)

	if req.DeckStyle == "" {
		req.DeckStyle = domain.DeckRWS
	}
	def, err := s.spread(ctx, req.Spread.Key)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRequest(req, def); err != nil {
		return nil, err
	}
	if !req.User.Tier.AtLeast(def.MinTier) {
		return nil, fmt.Errorf("%w: %q needs %s", domain.ErrTierRequired, def.Key, def.MinTier)
	}

	var vision []domain.VisionInsight
	if req.VisionProof != "" && s.deps.Verifier != nil {
		vision, err = s.deps.Verifier.Verify(req.VisionProof)
		if err != nil {
			return nil, fmt.Errorf("verify vision proof: %w", err)
		}
	}

	res, err := s.deps.Quota.Reserve(ctx, req.User)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RequestID: requestID,
		Spread:    def,
		Cards:     req.Cards,
		Context:   domain.InferContext(req.Question),
	}
	rec := s.newRecord(requestID, req, def, out.Context, start)

	if reason := safety.DetectCrisis(req.Question, req.Reflections); reason != "" {
		s.deps.Quota.Release(ctx, res)
		log.WarnContext(ctx, "crisis signal detected, skipping generation", "category", reason)
		out.Reading = safety.CrisisResponse
		out.Provider = safety.ProviderSafeFallback
		out.Crisis = true
		rec.Status = domain.StatusCrisis
		rec.Provider = safety.ProviderSafeFallback
		rec.CrisisReason = reason
		rec.LatencyMS = s.now().Sub(start).Milliseconds()
		out.record = rec
		return out, nil
	}

	analysis := s.analyze(ctx, log, req, def)
	out.Themes = analysis.Themes
	out.SpreadAnalysis = analysis.SpreadAnalysis

	in := ports.GenerateInput{
		Request: req,
		Spread:  def,
		State: &ports.PromptState{
			Analysis:       analysis,
			Vision:         vision,
			MaxPromptChars: s.opts.MaxPromptChars,
		},
	}
	weights := def.CardWeights(req.Cards)
	gate := func(narrative string) domain.QualityResult {
		return quality.Evaluate(quality.Input{
			Narrative: narrative,
			Cards:     req.Cards,
			SpreadKey: def.Key,
			DeckStyle: req.DeckStyle,
			Weights:   weights,
		})
	}

	result, err := s.deps.Chain.Run(ctx, in, gate)
	rec.Attempts = append(rec.Attempts, result.Failed...)
	for _, a := range result.Failed {
		rec.FailedProviders = append(rec.FailedProviders, a.Backend)
		rec.Usage = addUsage(rec.Usage, a.Usage)
	}
	if err != nil {
		if errors.Is(err, domain.ErrAllBackendsFailed) {
			s.deps.Quota.Release(ctx, res)
		}
		rec.Status = domain.StatusBackendsFailed
		rec.LatencyMS = s.now().Sub(start).Milliseconds()
		// No response body follows this record, so it is written right away.
		s.deps.Telemetry.Persist(context.WithoutCancel(ctx), &rec)
		return nil, fmt.Errorf("generate narrative: %w", err)
	}

	accepted := result.Accepted
	rec.Attempts = append(rec.Attempts, accepted)
	rec.Usage = addUsage(rec.Usage, accepted.Usage)
	rec.Provider = accepted.Backend
	rec.Narrative = accepted.Quality

	evalInput := ports.EvalInput{
		RequestID: requestID,
		Request:   req,
		Narrative: accepted.Text,
		Quality:   *accepted.Quality,
	}
	decision := s.deps.Gate.Check(ctx, evalInput)
	rec.Evaluation = &decision.Evaluation

	out.Reading = accepted.Text
	out.Provider = accepted.Backend
	out.NarrativeMetrics = accepted.Quality
	out.Evaluation = &decision.Evaluation
	rec.Status = domain.StatusAccepted
	if decision.Blocked {
		log.WarnContext(ctx, "narrative blocked by safety gate", "reason", decision.Reason, "backend", accepted.Backend)
		out.Reading = safety.SafeFallbackNarrative(req)
		out.Provider = safety.ProviderSafeFallback
		out.GateBlocked = true
		out.GateReason = decision.Reason
		rec.Status = domain.StatusGateBlocked
		rec.Provider = safety.ProviderSafeFallback
		rec.GateBlocked = true
		rec.GateReason = decision.Reason
	}

	rec.Excerpts = telemetry.Excerpts(s.deps.Telemetry.Mode(), req, accepted.Prompts, accepted.Text)
	rec.LatencyMS = s.now().Sub(start).Milliseconds()
	out.record = rec
	out.evalInput = evalInput

	log.InfoContext(ctx, "reading completed",
		"provider", out.Provider, "failed_attempts", len(result.Failed), "latency_ms", rec.LatencyMS)
	return out, nil
}

// Finalize writes the metrics record and schedules the deep evaluation. It is
// called once the response has been sent.
func (s *ReadingService) Finalize(ctx context.Context, out *Outcome) {
	if out == nil {
		return
	}
	s.deps.Telemetry.Persist(ctx, &out.record)
	if out.Crisis || !s.opts.DeepEvalEnabled || s.deps.Scheduler == nil {
		return
	}
	s.deps.Scheduler.Schedule(safety.Job{Input: out.evalInput, Record: out.record})
}

func (s *ReadingService) spread(ctx context.Context, key string) (domain.SpreadDef, error) {
	def, err := s.deps.Catalog.GetSpread(ctx, key)
	if errors.Is(err, domain.ErrSpreadNotFound) {
		return domain.SpreadDef{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if err != nil {
		return domain.SpreadDef{}, fmt.Errorf("get spread: %w", err)
	}
	return def, nil
}

func (s *ReadingService) analyze(ctx context.Context, log *slog.Logger, req domain.ReadingRequest, def domain.SpreadDef) domain.Analysis {
	if s.deps.Analyzer == nil {
		return domain.Analysis{SpreadKey: def.Key}
	}
	a, err := s.deps.Analyzer.Analyze(ctx, req, def)
	if err != nil {
		log.WarnContext(ctx, "thematic analysis failed, continuing without it", "error", err)
		return domain.Analysis{SpreadKey: def.Key}
	}
	return a
}

func (s *ReadingService) newRecord(requestID string, req domain.ReadingRequest, def domain.SpreadDef, readingContext string, start time.Time) domain.MetricsRecord {
	id := req.User.ID
	if req.User.Anonymous {
		id = "anon:" + req.User.ClientID
	}
	return domain.MetricsRecord{
		RequestID:  requestID,
		CreatedAt:  start.UTC(),
		UserHash:   telemetry.HashUser(id),
		Tier:       req.User.Tier,
		SpreadKey:  def.Key,
		SpreadName: def.Name,
		CardCount:  len(req.Cards),
		DeckStyle:  req.DeckStyle,
		Context:    readingContext,
	}
}

func addUsage(a, b domain.TokenUsage) domain.TokenUsage {
	return domain.TokenUsage{Input: a.Input + b.Input, Output: a.Output + b.Output}
}
