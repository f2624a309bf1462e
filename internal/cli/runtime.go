package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/randomtoy/tarot-reading/internal/adapters/analysis"
	"github.com/randomtoy/tarot-reading/internal/adapters/dispatch/natsjobs"
	"github.com/randomtoy/tarot-reading/internal/adapters/llm/bedrock"
	"github.com/randomtoy/tarot-reading/internal/adapters/llm/local"
	"github.com/randomtoy/tarot-reading/internal/adapters/llm/openrouter"
	"github.com/randomtoy/tarot-reading/internal/adapters/spreads"
	"github.com/randomtoy/tarot-reading/internal/adapters/store/memory"
	"github.com/randomtoy/tarot-reading/internal/adapters/store/mongostore"
	"github.com/randomtoy/tarot-reading/internal/adapters/store/natskv"
	"github.com/randomtoy/tarot-reading/internal/adapters/store/sqlite"
	"github.com/randomtoy/tarot-reading/internal/adapters/vision"
	"github.com/randomtoy/tarot-reading/internal/app"
	"github.com/randomtoy/tarot-reading/internal/config"
	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/fallback"
	"github.com/randomtoy/tarot-reading/internal/ports"
	"github.com/randomtoy/tarot-reading/internal/quota"
	"github.com/randomtoy/tarot-reading/internal/safety"
	"github.com/randomtoy/tarot-reading/internal/telemetry"
)

const maxDeepEvalsInFlight = 32

// stdRNG delegates to math/rand/v2 (auto-seeded).
type stdRNG struct{}

func (stdRNG) Intn(n int) int { return rand.IntN(n) }

type seededRNG struct{ r *rand.Rand }

func (g seededRNG) Intn(n int) int { return g.r.IntN(n) }

// newRNG returns a reproducible generator for a non-zero seed.
func newRNG(seed uint64) domain.RNG {
	if seed == 0 {
		return stdRNG{}
	}
	return seededRNG{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// runtime is the assembled service and everything that must be stopped
// with it.
type runtime struct {
	svc     *app.ReadingService
	chain   *fallback.Chain
	drain   func(ctx context.Context) error
	worker  *natsjobs.Worker
	closers []func(ctx context.Context) error
}

func (r *runtime) close(ctx context.Context, logger *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		rt.close(context.Background(), logger)
		return nil, err
	}

	mem := memory.New()
	var (
		usage    ports.UsageStore   = mem
		counters ports.CounterStore = mem
		metrics  ports.MetricsStore = mem
	)

	if cfg.DBPath != "" {
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		usage, counters, metrics = db, db, db
		logger.Info("using sqlite store", "path", cfg.DBPath)
	}

	var js nats.JetStreamContext
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("tarotd"), nats.MaxReconnects(-1))
		if err != nil {
			return fail(fmt.Errorf("connect nats: %w", err))
		}
		rt.closers = append(rt.closers, func(context.Context) error { return nc.Drain() })
		if js, err = nc.JetStream(); err != nil {
			return fail(fmt.Errorf("jetstream: %w", err))
		}
		kv, err := natskv.Open(js, cfg.NATSKVBucket)
		if err != nil {
			return fail(err)
		}
		counters = kv
		logger.Info("using nats counters", "bucket", cfg.NATSKVBucket)
	}

	if cfg.MongoURI != "" {
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, ms.Close)
		metrics = ms
		logger.Info("using mongo metrics store", "database", cfg.MongoDB)
	}

	pipeline := telemetry.NewPipeline(metrics, cfg.MetricsRedaction, logger)

	limits := quota.Limits{
		Tiers: map[domain.Tier]int{
			domain.TierFree: cfg.QuotaFreeLimit,
			domain.TierPlus: cfg.QuotaPlusLimit,
			domain.TierPro:  cfg.QuotaProLimit,
		},
		Anonymous: cfg.QuotaAnonLimit,
	}

	orClient := openrouter.NewClient(&http.Client{Timeout: cfg.LLMTimeout}, cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, logger)
	chain := fallback.NewChain([]ports.Backend{
		bedrock.NewBackend(bedrock.Config{Region: cfg.AWSRegion, ModelID: cfg.BedrockModelID}, logger),
		openrouter.NewBackend(orClient, cfg.LLMModel, cfg.LLMFallbackModels, logger),
	}, local.NewComposer(), logger)
	rt.chain = chain

	var gateEval ports.Evaluator
	if ev := openrouter.NewEvaluator(orClient, cfg.EvalModel, logger); ev.Configured() {
		gateEval = ev
	}
	var deepEval ports.Evaluator = safety.HeuristicEvaluator{}
	if ev := openrouter.NewEvaluator(orClient, cfg.DeepEvalModel, logger); ev.Configured() {
		deepEval = ev
	}
	runner := safety.NewDeepRunner(deepEval, pipeline, logger)

	var scheduler safety.Scheduler
	if js != nil {
		jobs := natsjobs.Config{
			Stream:  "TAROT_EVAL",
			Subject: cfg.EvalSubject,
			Durable: "tarotd-deep-eval",
			MaxAge:  24 * time.Hour,
			Timeout: cfg.DeepEvalTimeout,
		}
		if err := natsjobs.EnsureStream(js, jobs, logger); err != nil {
			return fail(err)
		}
		w, err := natsjobs.NewWorker(js, jobs, runner, logger)
		if err != nil {
			return fail(err)
		}
		rt.worker = w
		scheduler = natsjobs.NewPublisher(js, cfg.EvalSubject, logger)
	} else {
		gs := safety.NewGoScheduler(runner, maxDeepEvalsInFlight, cfg.DeepEvalTimeout, logger)
		rt.drain = gs.Shutdown
		scheduler = gs
	}

	var verifier ports.VisionVerifier
	if cfg.VisionProofSecret != "" {
		verifier = vision.NewVerifier(cfg.VisionProofSecret)
	}

	rt.svc = app.NewReadingService(app.Deps{
		Catalog:   spreads.NewEmbeddedStore(),
		Analyzer:  analysis.New(),
		Verifier:  verifier,
		Quota:     quota.NewManager(usage, counters, limits, logger),
		Chain:     chain,
		Gate:      safety.NewGate(gateEval, cfg.EvalFailureMode, cfg.EvalTimeout, logger),
		Scheduler: scheduler,
		Telemetry: pipeline,
		RNG:       stdRNG{},
		Logger:    logger,
	}, app.Options{
		DeepEvalEnabled: cfg.DeepEvalEnabled,
		MaxPromptChars:  cfg.MaxPromptChars,
	})
	return rt, nil
}
