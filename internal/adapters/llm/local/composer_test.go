package local_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomtoy/tarot-reading/internal/adapters/llm/local"
	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
	"github.com/randomtoy/tarot-reading/internal/quality"
)

var celtic = []struct {
	position string
	weight   float64
}{
	{"Present", 1.0}, {"Challenge", 0.95}, {"Foundation", 0.7}, {"Recent Past", 0.6}, {"Crown", 0.7},
	{"Near Future", 0.8}, {"Self", 0.65}, {"External Influences", 0.6}, {"Hopes and Fears", 0.7}, {"Outcome", 0.9},
}

func TestCompose_PassesQualityGate(t *testing.T) {
	tests := []struct {
		name   string
		style  domain.DeckStyle
		spread string
		cards  []string
	}{
		{"rws three card", domain.DeckRWS, "threeCard", []string{"Death", "The Star", "Strength"}},
		{"thoth celtic", domain.DeckThoth, "celtic", []string{
			"Lust", "Art", "The Aeon", "Fortune", "Adjustment",
			"Princess of Disks", "The Magus", "Ace of Swords", "Ten of Cups", "The Universe",
		}},
		{"marseille single", domain.DeckMarseille, "single", []string{"The Popess"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := make([]domain.DrawnCard, len(tt.cards))
			weights := make([]float64, len(tt.cards))
			for i, n := range tt.cards {
				or := domain.Upright
				if i%2 == 1 {
					or = domain.Reversed
				}
				cards[i] = domain.DrawnCard{Position: celtic[i].position, Name: n, Orientation: or}
				weights[i] = celtic[i].weight
			}
			req := domain.ReadingRequest{
				Cards:           cards,
				Question:        "What do I need to see?",
				DeckStyle:       tt.style,
				Personalization: domain.Personalization{DisplayName: "Robin"},
			}

			out, err := local.NewComposer().Generate(context.Background(), ports.GenerateInput{Request: req})
			require.NoError(t, err)

			res := quality.Evaluate(quality.Input{
				Narrative: out.Text,
				Cards:     cards,
				SpreadKey: tt.spread,
				DeckStyle: tt.style,
				Weights:   weights,
			})
			assert.True(t, res.Passed, "issues: %v", res.Issues)
			assert.Equal(t, 1.0, res.Metrics.CardCoverage)
			assert.Empty(t, res.Metrics.HallucinatedCards)
			assert.Contains(t, out.Text, "Robin, taken together")
		})
	}
}

func TestComposer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := local.NewComposer().Generate(ctx, ports.GenerateInput{})
	assert.ErrorIs(t, err, context.Canceled)
}
