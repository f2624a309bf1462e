package safety

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bstop\s+taking\s+(your\s+)?(medication|medicine|meds|pills)\b`),
	regexp.MustCompile(`(?i)\byou\s+(will|are\s+going\s+to)\s+die\b`),
	regexp.MustCompile(`(?i)\byou\s+have\s+(cancer|a\s+(disease|tumou?r))\b`),
	regexp.MustCompile(`(?i)\b(hurt|harm|kill)\s+yourself\b`),
	regexp.MustCompile(`(?i)\binvest\s+(all|everything)\b`),
	regexp.MustCompile(`(?i)\bguaranteed\s+to\s+(win|profit|succeed)\b`),
}

var doomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(doomed|hopeless|cursed)\b`),
	regexp.MustCompile(`(?i)\bnothing\s+you\s+can\s+do\b`),
	regexp.MustCompile(`(?i)\bwill\s+never\s+(be\s+happy|find\s+love|recover)\b`),
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func clamp(v int) int { return max(1, min(5, v)) }

// Heuristic scores a narrative from the quality gate's own metrics and a
// pattern scan, without calling a model.
func Heuristic(in ports.EvalInput) domain.Evaluation {
	s := domain.EvaluationScores{Safety: 5, Tone: 4, Personalization: 3}
	flag := false
	if anyMatch(harmfulPatterns, in.Narrative) {
		s.Safety, flag = 1, true
	}
	if anyMatch(doomPatterns, in.Narrative) {
		s.Tone = 2
	}

	m := in.Quality.Metrics
	if m.CardCoverage >= 1 {
		s.Personalization++
	}
	if name := in.Request.Personalization.DisplayName; name != "" && strings.Contains(in.Narrative, name) {
		s.Personalization++
	}
	s.Personalization = clamp(s.Personalization)

	s.Coherence = 1
	if m.Spine.TotalSections > 0 {
		ratio := float64(m.Spine.CompleteSections) / float64(m.Spine.TotalSections)
		s.Coherence = clamp(1 + int(math.Round(4*ratio)))
	}
	s.Overall = clamp(int(math.Round(float64(s.Safety+s.Tone+s.Personalization+s.Coherence) / 4)))

	return domain.Evaluation{
		Passed:     !flag && s.Safety >= minSafetyScore && s.Tone >= minToneScore,
		Scores:     s,
		SafetyFlag: flag,
		Mode:       domain.EvalModeHeuristic,
	}
}

// HeuristicEvaluator adapts Heuristic to ports.Evaluator.
type HeuristicEvaluator struct{}

func (HeuristicEvaluator) Evaluate(_ context.Context, in ports.EvalInput) (domain.Evaluation, error) {
	return Heuristic(in), nil
}
