package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/randomtoy/tarot-reading/internal/safety"
	"github.com/randomtoy/tarot-reading/internal/telemetry"
)

type Config struct {
	HTTPAddr   string
	LogLevel   slog.Level
	Env        string
	Production bool

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	LLMModel          string
	LLMFallbackModels []string
	LLMTimeout        time.Duration
	MaxPromptChars    int

	BedrockModelID string
	AWSRegion      string

	EvalModel       string
	EvalTimeout     time.Duration
	EvalFailureMode safety.FailureMode
	DeepEvalEnabled bool
	DeepEvalModel   string
	DeepEvalTimeout time.Duration

	DBPath       string
	NATSURL      string
	NATSKVBucket string
	EvalSubject  string
	MongoURI     string
	MongoDB      string

	MetricsRedaction telemetry.Mode

	QuotaFreeLimit int
	QuotaPlusLimit int
	QuotaProLimit  int
	QuotaAnonLimit int

	VisionProofSecret string
}

// Load reads configuration from the environment. Values from an optional
// .env file (ENV_FILE, default ".env") never override the real environment.
func Load() (Config, error) {
	if err := godotenv.Load(envOr("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	c := Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		Env:               envOr("APP_ENV", "development"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: envOr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		LLMFallbackModels: parseFallbackModels(os.Getenv("LLM_FALLBACK_MODELS")),
		BedrockModelID:    os.Getenv("BEDROCK_MODEL_ID"),
		AWSRegion:         envOr("AWS_REGION", "us-east-1"),
		EvalModel:         os.Getenv("EVAL_MODEL"),
		DeepEvalModel:     os.Getenv("DEEP_EVAL_MODEL"),
		DBPath:            os.Getenv("DB_PATH"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSKVBucket:      envOr("NATS_KV_BUCKET", "tarot_counters"),
		EvalSubject:       envOr("EVAL_SUBJECT", "tarot.eval.deep"),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           envOr("MONGO_DB", "tarot"),
		VisionProofSecret: os.Getenv("VISION_PROOF_SECRET"),
	}
	c.Production = strings.EqualFold(c.Env, "production")

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"LLM_TIMEOUT", 20 * time.Second, &c.LLMTimeout},
		{"EVAL_TIMEOUT", 5 * time.Second, &c.EvalTimeout},
		{"DEEP_EVAL_TIMEOUT", 30 * time.Second, &c.DeepEvalTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"PROMPT_MAX_CHARS", 12000, &c.MaxPromptChars},
		{"QUOTA_FREE_LIMIT", 5, &c.QuotaFreeLimit},
		{"QUOTA_PLUS_LIMIT", 60, &c.QuotaPlusLimit},
		{"QUOTA_PRO_LIMIT", -1, &c.QuotaProLimit},
		{"QUOTA_ANON_LIMIT", 3, &c.QuotaAnonLimit},
	}
	for _, i := range ints {
		if *i.dst, err = intEnv(i.key, i.fallback); err != nil {
			return Config{}, err
		}
	}

	if c.DeepEvalEnabled, err = boolEnv("DEEP_EVAL_ENABLED", true); err != nil {
		return Config{}, err
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	c.LogLevel = level

	if c.EvalFailureMode, err = safety.ParseFailureMode(os.Getenv("EVAL_FAILURE_MODE"), c.Production); err != nil {
		return Config{}, fmt.Errorf("EVAL_FAILURE_MODE: %w", err)
	}
	if c.MetricsRedaction, err = telemetry.ParseMode(os.Getenv("METRICS_REDACTION")); err != nil {
		return Config{}, fmt.Errorf("METRICS_REDACTION: %w", err)
	}

	if c.LLMModel != "" && c.OpenRouterAPIKey == "" {
		return Config{}, fmt.Errorf("OPENROUTER_API_KEY is required when LLM_MODEL is set")
	}
	if c.Production && c.MetricsRedaction == telemetry.ModeFull {
		return Config{}, fmt.Errorf("METRICS_REDACTION=full is not allowed in production")
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func parseFallbackModels(s string) []string {
	if s == "" {
		return nil
	}
	var models []string
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			models = append(models, m)
		}
	}
	return models
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}
