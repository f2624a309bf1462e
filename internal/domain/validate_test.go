package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

func validRequest() domain.ReadingRequest {
	return domain.ReadingRequest{
		Spread: domain.SpreadRef{Key: "threeCard", Name: "Three-Card Story", Count: 3},
		Cards: []domain.DrawnCard{
			{Position: "Past", Name: "The Fool", Orientation: domain.Upright},
			{Position: "Present", Name: "Death", Orientation: domain.Reversed},
			{Position: "Future", Name: "The Star", Orientation: domain.Upright},
		},
		Question:  "What should I focus on?",
		DeckStyle: domain.DeckRWS,
	}
}

func TestValidateRequest_OK(t *testing.T) {
	assert.NoError(t, domain.ValidateRequest(validRequest(), threeCard()))
}

func TestValidateRequest_CollectsProblems(t *testing.T) {
	req := validRequest()
	req.Spread.Count = 4
	req.Cards[2].Name = "The Fool"
	req.Cards[1].Orientation = "sideways"

	err := domain.ValidateRequest(req, threeCard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 3)
}

func TestValidateRequest_UnknownCard(t *testing.T) {
	req := validRequest()
	req.Cards[0].Name = "The Jester"

	var ve *domain.ValidationError
	require.ErrorAs(t, domain.ValidateRequest(req, threeCard()), &ve)
	assert.Contains(t, ve.Problems[0], "unknown card")
}

func TestCanonicalID_DeckAliases(t *testing.T) {
	rws, ok := domain.CanonicalID(domain.DeckRWS, "Strength")
	require.True(t, ok)
	lust, ok := domain.CanonicalID(domain.DeckThoth, "Lust")
	require.True(t, ok)
	assert.Equal(t, rws, lust)

	king, _ := domain.CanonicalID(domain.DeckRWS, "King of Pentacles")
	thothKnight, _ := domain.CanonicalID(domain.DeckThoth, "Knight of Disks")
	assert.Equal(t, king, thothKnight)

	// RWS names still resolve inside a thoth reading.
	_, ok = domain.CanonicalID(domain.DeckThoth, "The High Priestess")
	assert.True(t, ok)
}

func TestCatalog_Size(t *testing.T) {
	assert.Len(t, domain.Catalog(), 78)
	assert.Len(t, domain.DeckNames(domain.DeckMarseille), 78)
}

func TestInferContext(t *testing.T) {
	assert.Equal(t, "love", domain.InferContext("Will my relationship last?"))
	assert.Equal(t, "career", domain.InferContext("Should I take the new job?"))
	assert.Equal(t, "general", domain.InferContext("What do I need to know?"))
}

func TestTierAtLeast(t *testing.T) {
	assert.True(t, domain.TierPro.AtLeast(domain.TierPlus))
	assert.False(t, domain.TierFree.AtLeast(domain.TierPlus))
	assert.False(t, domain.Tier("mystery").AtLeast(domain.TierPlus))
}

func TestMonthKeys(t *testing.T) {
	ts := time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-12", domain.MonthKey(ts))
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), domain.NextMonthStart(ts))
}
