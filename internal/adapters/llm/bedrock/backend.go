// Package bedrock generates narratives through the Amazon Bedrock Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
	"github.com/randomtoy/tarot-reading/internal/prompt"
)

const BackendName = "bedrock"

type converseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Config struct {
	Region      string
	ModelID     string
	MaxTokens   int32
	Temperature float32
}

type Backend struct {
	mu     sync.Mutex
	client converseClient
	cfg    Config
	logger *slog.Logger
}

func NewBackend(cfg Config, logger *slog.Logger) *Backend {
	return NewBackendWithClient(cfg, nil, logger)
}

// NewBackendWithClient uses the given client instead of one built from the
// default AWS credential chain.
func NewBackendWithClient(cfg Config, client converseClient, logger *slog.Logger) *Backend {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1200
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &Backend{client: client, cfg: cfg, logger: logger}
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Configured() bool { return strings.TrimSpace(b.cfg.ModelID) != "" }

func (b *Backend) Generate(ctx context.Context, in ports.GenerateInput) (ports.GenerateOutput, error) {
	if !b.Configured() {
		return ports.GenerateOutput{}, domain.ErrBackendDisabled
	}
	client, err := b.resolveClient(ctx)
	if err != nil {
		return ports.GenerateOutput{}, err
	}
	prompts := prompt.Build(in)

	out, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.cfg.ModelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: prompts.System}},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompts.User}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(b.cfg.MaxTokens),
			Temperature: aws.Float32(b.cfg.Temperature),
		},
	})
	if err != nil {
		return ports.GenerateOutput{Prompts: prompts}, normalizeError(err)
	}

	res := ports.GenerateOutput{Text: outputText(out), Model: b.cfg.ModelID, Prompts: prompts}
	if out.Usage != nil {
		res.Usage = domain.TokenUsage{
			Input:  int(aws.ToInt32(out.Usage.InputTokens)),
			Output: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return res, nil
}

func outputText(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(t.Value)
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeError keeps context errors intact and tags service faults with
// their error code.
func normalizeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: bedrock %s (%s fault): %s",
			domain.ErrUpstreamLLM, apiErr.ErrorCode(), apiErr.ErrorFault(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: bedrock transport: %w", domain.ErrUpstreamLLM, err)
}

func (b *Backend) resolveClient(ctx context.Context) (converseClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	b.client = bedrockruntime.NewFromConfig(awsCfg)
	return b.client, nil
}
