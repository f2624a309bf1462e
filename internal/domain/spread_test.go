package domain_test

import (
	"testing"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// deterministicRNG returns values from a pre-set sequence.
type deterministicRNG struct {
	values []int
	idx    int
}

func (r *deterministicRNG) Intn(n int) int {
	v := r.values[r.idx%len(r.values)] % n
	r.idx++
	return v
}

func threeCard() domain.SpreadDef {
	return domain.SpreadDef{
		Key:  "threeCard",
		Name: "Three-Card Story",
		Positions: []domain.SpreadPosition{
			{Name: "Past", Weight: 0.7},
			{Name: "Present", Weight: 1},
			{Name: "Future", Weight: 0.85},
		},
	}
}

func zeros(n int) []int { return make([]int, n) }

func TestDrawSpread_UniqueCards(t *testing.T) {
	// 77 swaps with zeros, then orientations.
	rng := &deterministicRNG{values: append(zeros(77), 0, 1, 0)}

	cards, err := domain.DrawSpread(threeCard(), domain.DeckRWS, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}

	seen := make(map[string]bool)
	for _, c := range cards {
		if seen[c.Name] {
			t.Errorf("duplicate card: %s", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestDrawSpread_PositionsAndOrientation(t *testing.T) {
	rng := &deterministicRNG{values: append(zeros(77), 0, 1, 0)}

	cards, err := domain.DrawSpread(threeCard(), domain.DeckRWS, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPos := []string{"Past", "Present", "Future"}
	wantOr := []domain.Orientation{domain.Upright, domain.Reversed, domain.Upright}
	for i, c := range cards {
		if c.Position != wantPos[i] {
			t.Errorf("card %d: expected position %s, got %s", i, wantPos[i], c.Position)
		}
		if c.Orientation != wantOr[i] {
			t.Errorf("card %d: expected %s, got %s", i, wantOr[i], c.Orientation)
		}
	}
}

func TestDrawSpread_UsesDeckNames(t *testing.T) {
	rng := &deterministicRNG{values: zeros(80)}
	def := domain.SpreadDef{Key: "single", Positions: []domain.SpreadPosition{{Name: "Focus", Weight: 1}}}

	cards, err := domain.DrawSpread(def, domain.DeckThoth, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := domain.CanonicalID(domain.DeckThoth, cards[0].Name); !ok {
		t.Errorf("drawn card %q is not a thoth card", cards[0].Name)
	}
}

func TestDrawSpread_InvalidN(t *testing.T) {
	rng := &deterministicRNG{values: []int{0}}

	for _, n := range []int{0, 11} {
		def := domain.SpreadDef{Key: "odd", Positions: make([]domain.SpreadPosition, n)}
		_, err := domain.DrawSpread(def, domain.DeckRWS, rng)
		if err != domain.ErrInvalidN {
			t.Errorf("n=%d: expected ErrInvalidN, got %v", n, err)
		}
	}
}
