package quality_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/quality"
)

var celticWeights = []float64{1, 0.95, 0.7, 0.6, 0.7, 0.8, 0.65, 0.6, 0.7, 0.9}

func celticCards() []domain.DrawnCard {
	names := []string{
		"Two of Cups", "Three of Swords", "Ace of Wands", "Four of Pentacles", "The Empress",
		"Six of Cups", "Knight of Swords", "Queen of Wands", "Nine of Cups", "Ten of Pentacles",
	}
	positions := []string{
		"Present", "Challenge", "Foundation", "Recent Past", "Crown",
		"Near Future", "Self", "External Influences", "Hopes and Fears", "Outcome",
	}
	cards := make([]domain.DrawnCard, len(names))
	for i := range names {
		cards[i] = domain.DrawnCard{Position: positions[i], Name: names[i], Orientation: domain.Upright}
	}
	return cards
}

// sectioned writes one complete section per card, skipping the given indexes.
func sectioned(cards []domain.DrawnCard, skip map[int]bool, closing string) string {
	var b strings.Builder
	for i, c := range cards {
		if skip[i] {
			continue
		}
		fmt.Fprintf(&b, "### %s: %s\n", c.Position, c.Name)
		fmt.Fprintf(&b, "%s speaks to this part of your story with clear intent. "+
			"It asks you to notice what is already moving and to respond with patience and care.\n\n", c.Name)
	}
	if closing != "" {
		b.WriteString("### Synthesis\n" + closing + "\n")
	}
	return b.String()
}

func threeCardScenario() []domain.DrawnCard {
	return []domain.DrawnCard{
		{Position: "Past", Name: "The Fool", Orientation: domain.Upright},
		{Position: "Present", Name: "Death", Orientation: domain.Reversed},
		{Position: "Future", Name: "The Star", Orientation: domain.Upright},
	}
}

func TestEvaluate_MissingHighWeightPosition(t *testing.T) {
	narrative := "**Past: The Fool**\n" +
		"The Fool opens this reading with a leap of faith. You began this chapter with curiosity and very little fear of what might come.\n\n" +
		"**Future: The Star**\n" +
		"The Star promises renewal after the storm. Hope returns slowly and you are invited to trust the quiet signs of healing around you.\n"

	res := quality.Evaluate(quality.Input{
		Narrative: narrative,
		Cards:     threeCardScenario(),
		SpreadKey: "threeCard",
		DeckStyle: domain.DeckRWS,
		Weights:   []float64{0.7, 1, 0.85},
	})

	assert.False(t, res.Passed)
	assert.Contains(t, res.Issues, "missing-high-weight-position: Death")
	assert.Equal(t, []string{"Death"}, res.Metrics.MissingCards)
	assert.InDelta(t, 2.0/3.0, res.Metrics.CardCoverage, 0.001)
	assert.Empty(t, res.Metrics.HallucinatedCards)
}

func TestEvaluate_CelticToleratesOneMissingAndOneHallucination(t *testing.T) {
	cards := celticCards()
	narrative := sectioned(cards, map[int]bool{7: true},
		"The energy here echoes The Magician in its focus on skill. Together these cards describe a season of steady growth and honest connection.")

	res := quality.Evaluate(quality.Input{
		Narrative: narrative,
		Cards:     cards,
		SpreadKey: "celtic",
		DeckStyle: domain.DeckRWS,
		Weights:   celticWeights,
	})

	require.True(t, res.Passed, "issues: %v", res.Issues)
	assert.InDelta(t, 0.9, res.Metrics.CardCoverage, 0.001)
	assert.Equal(t, []string{"Queen of Wands"}, res.Metrics.MissingCards)
	assert.Equal(t, []string{"The Magician"}, res.Metrics.HallucinatedCards)
	assert.Equal(t, domain.SpineMetrics{TotalSections: 10, CompleteSections: 10}, res.Metrics.Spine)
}

func TestEvaluate_HighWeightMissingFailsDespiteCoverage(t *testing.T) {
	cards := celticCards()
	narrative := sectioned(cards, map[int]bool{0: true}, "")

	res := quality.Evaluate(quality.Input{
		Narrative: narrative,
		Cards:     cards,
		SpreadKey: "celtic",
		DeckStyle: domain.DeckRWS,
		Weights:   celticWeights,
	})

	assert.InDelta(t, 0.9, res.Metrics.CardCoverage, 0.001)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"missing-high-weight-position: Two of Cups"}, res.Issues)
}

func TestEvaluate_ExcludedTerminologyIsNotHallucination(t *testing.T) {
	cards := []domain.DrawnCard{
		{Position: "Past", Name: "Two of Cups", Orientation: domain.Upright},
		{Position: "Present", Name: "Ace of Wands", Orientation: domain.Upright},
		{Position: "Future", Name: "Six of Swords", Orientation: domain.Reversed},
	}
	base := sectioned(cards, nil, "")

	res := quality.Evaluate(quality.Input{
		Narrative: base + "This moment is one more step on the Fool's Journey through the Major Arcana. " +
			"It is a reminder that every beginning carries its own quiet lesson for you.\n",
		Cards:     cards,
		SpreadKey: "threeCard",
		DeckStyle: domain.DeckRWS,
		Weights:   []float64{0.7, 1, 0.85},
	})
	assert.True(t, res.Passed, "issues: %v", res.Issues)
	assert.Empty(t, res.Metrics.HallucinatedCards)

	res = quality.Evaluate(quality.Input{
		Narrative: base + "Somewhere behind you The Fool still waits at the cliff edge.\n",
		Cards:     cards,
		SpreadKey: "threeCard",
		DeckStyle: domain.DeckRWS,
		Weights:   []float64{0.7, 1, 0.85},
	})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"The Fool"}, res.Metrics.HallucinatedCards)
}

func TestEvaluate_AmbiguousNamesNeedEvidence(t *testing.T) {
	cards := []domain.DrawnCard{{Position: "Focus", Name: "Two of Cups", Orientation: domain.Upright}}
	base := sectioned(cards, nil, "")

	tests := []struct {
		name    string
		extra   string
		flagged []string
	}{
		{"lowercase word", "You have the strength to keep going and the sun will rise again.", []string{}},
		{"sentence initial", "Death is not literal here. Nothing ends that you cannot rebuild.", []string{}},
		{"card framing", "Unlike the Death card, this one is gentle.", []string{"Death"}},
		{"capitalized mid sentence", "You may feel that Justice is slow, but it is coming.", []string{"Justice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := quality.Evaluate(quality.Input{
				Narrative: base + tt.extra + "\n",
				Cards:     cards,
				SpreadKey: "single",
				DeckStyle: domain.DeckRWS,
				Weights:   []float64{1},
			})
			assert.Equal(t, tt.flagged, res.Metrics.HallucinatedCards)
		})
	}
}

func TestEvaluate_DeckAwareCoverage(t *testing.T) {
	cards := []domain.DrawnCard{{Position: "Focus", Name: "Lust", Orientation: domain.Upright}}
	narrative := "Strength, called Lust in this deck, burns through the spread with joy. " +
		"It asks you to meet your own desire with courage instead of shame today.\n"

	res := quality.Evaluate(quality.Input{
		Narrative: narrative,
		Cards:     cards,
		SpreadKey: "single",
		DeckStyle: domain.DeckThoth,
		Weights:   []float64{1},
	})
	assert.True(t, res.Passed, "issues: %v", res.Issues)
	assert.Equal(t, 1.0, res.Metrics.CardCoverage)
}

func TestEvaluate_TypographicApostrophes(t *testing.T) {
	cards := []domain.DrawnCard{{Position: "Focus", Name: "Two of Cups", Orientation: domain.Upright}}
	narrative := sectioned(cards, nil, "") + "Every card here belongs to the Fool’s Journey in some way.\n"

	res := quality.Evaluate(quality.Input{
		Narrative: narrative, Cards: cards, SpreadKey: "single", DeckStyle: domain.DeckRWS, Weights: []float64{1},
	})
	assert.Empty(t, res.Metrics.HallucinatedCards)
}

func TestEvaluate_EmptyNarrative(t *testing.T) {
	res := quality.Evaluate(quality.Input{
		Narrative: "   ",
		Cards:     threeCardScenario(),
		SpreadKey: "threeCard",
		DeckStyle: domain.DeckRWS,
	})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"empty-narrative"}, res.Issues)
	assert.Len(t, res.Metrics.MissingCards, 3)
}

func TestEvaluate_IncompleteSpine(t *testing.T) {
	cards := threeCardScenario()
	narrative := "The Fool.\n\nDeath.\n\nThe Star brings hope. It shines over the water and asks you to rest and trust the slow return of your strength.\n"

	res := quality.Evaluate(quality.Input{
		Narrative: narrative,
		Cards:     cards,
		SpreadKey: "threeCard",
		DeckStyle: domain.DeckRWS,
		Weights:   []float64{0.7, 1, 0.85},
	})
	assert.False(t, res.Passed)
	assert.Equal(t, domain.SpineMetrics{TotalSections: 3, CompleteSections: 1}, res.Metrics.Spine)
	assert.Contains(t, res.Issues, "incomplete-spine: 1/3 sections complete")
}

func TestThresholdsFor(t *testing.T) {
	celtic := quality.ThresholdsFor("celtic", 10)
	large := quality.ThresholdsFor("horseshoe", 8)
	small := quality.ThresholdsFor("threeCard", 3)

	assert.Equal(t, 0.75, celtic.MinCoverage)
	assert.Equal(t, 2, celtic.MaxHallucinations)
	assert.Less(t, large.MinCoverage, small.MinCoverage)
	assert.Greater(t, large.MaxHallucinations, small.MaxHallucinations)
	assert.Greater(t, celtic.MaxHallucinations, large.MaxHallucinations)
}
