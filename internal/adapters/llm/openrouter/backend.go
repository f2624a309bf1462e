package openrouter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
	"github.com/randomtoy/tarot-reading/internal/prompt"
)

// BackendName identifies OpenRouter in attempts and metrics.
const BackendName = "openrouter"

// Backend implements ports.Backend on top of OpenRouter. Within one attempt
// it walks its own model list until a model answers.
type Backend struct {
	client         *Client
	model          string
	fallbackModels []string
	logger         *slog.Logger
}

func NewBackend(client *Client, model string, fallbackModels []string, logger *slog.Logger) *Backend {
	return &Backend{client: client, model: model, fallbackModels: fallbackModels, logger: logger}
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Configured() bool {
	return b.client != nil && b.client.apiKey != "" && b.model != ""
}

func (b *Backend) Generate(ctx context.Context, in ports.GenerateInput) (ports.GenerateOutput, error) {
	if !b.Configured() {
		return ports.GenerateOutput{}, domain.ErrBackendDisabled
	}
	prompts := prompt.Build(in)

	models := make([]string, 0, 1+len(b.fallbackModels))
	models = append(models, b.model)
	models = append(models, b.fallbackModels...)

	var lastErr error
	for _, model := range models {
		if ctx.Err() != nil {
			return ports.GenerateOutput{Prompts: prompts}, ctx.Err()
		}
		res, err := b.client.complete(ctx, model, prompts.System, prompts.User, nil)
		if err == nil {
			return ports.GenerateOutput{Text: res.Content, Model: res.Model, Prompts: prompts, Usage: res.Usage}, nil
		}
		lastErr = err
		if len(models) > 1 {
			b.logger.WarnContext(ctx, "model failed, trying next", "model", model, "error", err)
		}
	}
	return ports.GenerateOutput{Prompts: prompts}, fmt.Errorf("%w: %w", domain.ErrUpstreamLLM, lastErr)
}
