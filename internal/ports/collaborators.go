package ports

import (
	"context"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// Analyzer annotates a spread with themes and retrieved knowledge.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.ReadingRequest, spread domain.SpreadDef) (domain.Analysis, error)
}

// VisionVerifier checks a signed proof that the cards were photographed.
// Errors wrap domain.ErrVisionProofExpired or domain.ErrVisionProofInvalid.
type VisionVerifier interface {
	Verify(token string) ([]domain.VisionInsight, error)
}

// SpreadCatalog resolves spread keys to layouts.
type SpreadCatalog interface {
	GetSpread(ctx context.Context, key string) (domain.SpreadDef, error)
	ListSpreads(ctx context.Context) ([]domain.SpreadDef, error)
}

// EvalInput is what an evaluator scores.
type EvalInput struct {
	RequestID string
	Request   domain.ReadingRequest
	Narrative string
	Quality   domain.QualityResult
}

// Evaluator scores a narrative for safety and quality.
type Evaluator interface {
	Evaluate(ctx context.Context, in EvalInput) (domain.Evaluation, error)
}
