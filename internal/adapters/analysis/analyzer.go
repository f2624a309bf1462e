// Package analysis derives themes from the drawn cards without any network
// calls: suit balance, major arcana weight and reversal ratio.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

var suitElements = map[string]string{
	"Wands":     "fire",
	"Cups":      "water",
	"Swords":    "air",
	"Pentacles": "earth",
}

// Analyzer implements ports.Analyzer.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Analyze(ctx context.Context, req domain.ReadingRequest, spread domain.SpreadDef) (domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.Analysis{}, err
	}
	if len(req.Cards) == 0 {
		return domain.Analysis{}, fmt.Errorf("%w: no cards to analyze", domain.ErrInvalidRequest)
	}

	catalog := domain.Catalog()
	byID := make(map[string]domain.CardInfo, len(catalog))
	for _, c := range catalog {
		byID[c.ID] = c
	}

	suitCounts := map[string]int{}
	majors, reversed := 0, 0
	var majorNames []string
	for _, dc := range req.Cards {
		if dc.Orientation == domain.Reversed {
			reversed++
		}
		id, ok := domain.CanonicalID(req.DeckStyle, dc.Name)
		if !ok {
			continue
		}
		info := byID[id]
		if info.Major {
			majors++
			majorNames = append(majorNames, dc.Name)
			continue
		}
		suitCounts[info.Suit]++
	}

	n := len(req.Cards)
	themes := map[string]any{
		"majorCount":    majors,
		"reversedRatio": round2(float64(reversed) / float64(n)),
		"tone":          toneOf(float64(reversed) / float64(n)),
	}
	if suit := dominantSuit(suitCounts); suit != "" {
		themes["dominantSuit"] = suit
		themes["element"] = suitElements[suit]
	}
	if majors*2 > n {
		themes["archetypal"] = true
	}

	return domain.Analysis{
		Themes:         themes,
		SpreadKey:      spread.Key,
		SpreadAnalysis: spreadAnalysis(req, spread, majorNames),
	}, nil
}

// dominantSuit returns the suit with a strict plurality, or "" on ties.
func dominantSuit(counts map[string]int) string {
	type kv struct {
		suit  string
		count int
	}
	list := make([]kv, 0, len(counts))
	for s, c := range counts {
		list = append(list, kv{s, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].suit < list[j].suit
	})
	if len(list) == 0 || (len(list) > 1 && list[0].count == list[1].count) {
		return ""
	}
	return list[0].suit
}

func toneOf(ratio float64) string {
	switch {
	case ratio >= 0.6:
		return "introspective"
	case ratio >= 0.3:
		return "mixed"
	default:
		return "forward"
	}
}

func spreadAnalysis(req domain.ReadingRequest, spread domain.SpreadDef, majors []string) map[string]any {
	out := map[string]any{
		"spread": spread.Name,
		"cards":  len(req.Cards),
	}
	if len(majors) > 0 {
		out["majors"] = strings.Join(majors, ", ")
	}

	// The anchor is the card in the heaviest position.
	best := -1.0
	for i, p := range spread.Positions {
		if i >= len(req.Cards) {
			break
		}
		if p.Weight > best {
			best = p.Weight
			out["anchor"] = req.Cards[i].Position + ": " + req.Cards[i].Name
		}
	}
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
