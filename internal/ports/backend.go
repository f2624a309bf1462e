package ports

import (
	"context"
	"slices"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// PromptState is shared by every attempt of one fallback chain run so later
// backends reuse analysis results and prompt-shrinking decisions instead of
// recomputing them.
type PromptState struct {
	Analysis domain.Analysis
	Vision   []domain.VisionInsight

	// MaxPromptChars bounds the user prompt; zero means unbounded.
	MaxPromptChars int
	dropped        []string
}

// Drop records that a prompt section was removed to fit the budget.
func (s *PromptState) Drop(section string) {
	if !s.Dropped(section) {
		s.dropped = append(s.dropped, section)
	}
}

// Dropped reports whether an earlier attempt removed the section.
func (s *PromptState) Dropped(section string) bool {
	return slices.Contains(s.dropped, section)
}

// DroppedSections lists removed sections in the order they were dropped.
func (s *PromptState) DroppedSections() []string {
	return append([]string(nil), s.dropped...)
}

// GenerateInput holds everything a backend needs to write a narrative.
type GenerateInput struct {
	Request domain.ReadingRequest
	Spread  domain.SpreadDef
	State   *PromptState
}

// GenerateOutput is the raw output of one generation call.
type GenerateOutput struct {
	Text    string
	Model   string
	Prompts domain.PromptsUsed
	Usage   domain.TokenUsage
}

// Backend is one narrative-generation strategy.
type Backend interface {
	Name() string
	// Configured reports whether the backend has the settings it needs.
	Configured() bool
	Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error)
}
