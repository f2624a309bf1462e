// Package quality implements the deterministic narrative acceptance check run
// on every backend output. It performs no I/O.
package quality

import (
	"fmt"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// Thresholds are the acceptance limits for one spread size.
type Thresholds struct {
	MinCoverage       float64
	MaxHallucinations int
	MinSpineRatio     float64
	HighWeight        float64
}

const (
	celticKey       = "celtic"
	largeSpreadSize = 8
)

// ThresholdsFor returns the spread-aware limits. The ten-card Celtic Cross is
// the most tolerant, other large spreads are relaxed slightly.
func ThresholdsFor(spreadKey string, cardCount int) Thresholds {
	t := Thresholds{MinCoverage: 0.9, MaxHallucinations: 0, MinSpineRatio: 0.5, HighWeight: 0.9}
	switch {
	case spreadKey == celticKey:
		t.MinCoverage, t.MaxHallucinations = 0.75, 2
	case cardCount >= largeSpreadSize:
		t.MinCoverage, t.MaxHallucinations = 0.8, 1
	}
	return t
}

// Input is the narrative under test and the spread it must describe.
// Weights holds the importance of each card position, aligned with Cards.
type Input struct {
	Narrative string
	Cards     []domain.DrawnCard
	SpreadKey string
	DeckStyle domain.DeckStyle
	Weights   []float64
}

// Evaluate runs coverage, hallucination, high-weight position and narrative
// spine checks and returns the full metrics bundle.
func Evaluate(in Input) domain.QualityResult {
	text := normalize(in.Narrative)
	th := ThresholdsFor(in.SpreadKey, len(in.Cards))

	res := domain.QualityResult{
		Issues: []string{},
		Metrics: domain.QualityMetrics{
			MissingCards:      []string{},
			HallucinatedCards: []string{},
		},
	}

	if strings.TrimSpace(text) == "" {
		res.Metrics.MissingCards = cardNames(in.Cards)
		res.Issues = append(res.Issues, "empty-narrative")
		return res
	}

	var highWeightMissing []string
	covered := 0
	for i, c := range in.Cards {
		if namesCard(text, in.DeckStyle, c) {
			covered++
			continue
		}
		res.Metrics.MissingCards = append(res.Metrics.MissingCards, c.Name)
		if i < len(in.Weights) && in.Weights[i] >= th.HighWeight {
			highWeightMissing = append(highWeightMissing, c.Name)
		}
	}
	res.Metrics.CardCoverage = 1
	if len(in.Cards) > 0 {
		res.Metrics.CardCoverage = float64(covered) / float64(len(in.Cards))
	}
	res.Metrics.HallucinatedCards = findHallucinations(text, in.DeckStyle, in.Cards)
	res.Metrics.Spine = analyzeSpine(text)

	if res.Metrics.CardCoverage < th.MinCoverage {
		res.Issues = append(res.Issues, fmt.Sprintf("low-card-coverage: %.2f < %.2f",
			res.Metrics.CardCoverage, th.MinCoverage))
	}
	for _, name := range highWeightMissing {
		res.Issues = append(res.Issues, "missing-high-weight-position: "+name)
	}
	if n := len(res.Metrics.HallucinatedCards); n > th.MaxHallucinations {
		res.Issues = append(res.Issues, fmt.Sprintf("hallucinated-cards: %d > %d (%s)",
			n, th.MaxHallucinations, strings.Join(res.Metrics.HallucinatedCards, ", ")))
	}
	spine := res.Metrics.Spine
	switch {
	case spine.TotalSections == 0:
		res.Issues = append(res.Issues, "no-narrative-sections")
	case float64(spine.CompleteSections)/float64(spine.TotalSections) < th.MinSpineRatio:
		res.Issues = append(res.Issues, fmt.Sprintf("incomplete-spine: %d/%d sections complete",
			spine.CompleteSections, spine.TotalSections))
	}

	res.Passed = len(res.Issues) == 0
	return res
}

func namesCard(text string, style domain.DeckStyle, c domain.DrawnCard) bool {
	for _, n := range acceptedNames(style, c) {
		if mentions(text, n) {
			return true
		}
	}
	return false
}

func cardNames(cards []domain.DrawnCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Name
	}
	return out
}
