package domain

import (
	"strings"
	"time"
)

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// Orientation represents the orientation of a drawn tarot card.
type Orientation string

const (
	Upright  Orientation = "upright"
	Reversed Orientation = "reversed"
)

// Tier is the subscription tier of the caller.
type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
	TierPro  Tier = "pro"
)

var tierRank = map[Tier]int{TierFree: 0, TierPlus: 1, TierPro: 2}

// AtLeast reports whether t grants everything min does. Unknown tiers rank as free.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

// User is the caller identity as established by the gateway.
type User struct {
	ID        string
	Tier      Tier
	ClientID  string
	Anonymous bool
}

// DrawnCard is one card placed into a spread position.
type DrawnCard struct {
	Position    string      `json:"position"`
	Name        string      `json:"name"`
	Orientation Orientation `json:"orientation"`
	Meaning     string      `json:"meaning,omitempty"`
}

// SpreadRef identifies the spread the client laid out.
type SpreadRef struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Personalization carries optional tone and naming preferences.
type Personalization struct {
	DisplayName string `json:"displayName,omitempty"`
	Tone        string `json:"tone,omitempty"`
}

// ReadingRequest is the validated input of one reading. It is never mutated
// after validation; components receive it by value.
type ReadingRequest struct {
	Spread          SpreadRef
	Cards           []DrawnCard
	Question        string
	Reflections     string
	DeckStyle       DeckStyle
	VisionProof     string
	Personalization Personalization
	User            User
}

// SpreadPosition is one slot of a spread layout.
type SpreadPosition struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// SpreadDef is a catalog entry describing a spread layout.
type SpreadDef struct {
	Key       string           `yaml:"key" json:"key"`
	Name      string           `yaml:"name" json:"name"`
	MinTier   Tier             `yaml:"min_tier" json:"minTier"`
	Positions []SpreadPosition `yaml:"positions" json:"positions"`
}

// Count returns the declared number of cards.
func (s SpreadDef) Count() int { return len(s.Positions) }

// Weights returns the importance weight of each position in order.
func (s SpreadDef) Weights() []float64 {
	w := make([]float64, len(s.Positions))
	for i, p := range s.Positions {
		w[i] = p.Weight
	}
	return w
}

// WeightFor looks a position up by name, ignoring case and padding.
func (s SpreadDef) WeightFor(position string) (float64, bool) {
	position = strings.TrimSpace(position)
	for _, p := range s.Positions {
		if strings.EqualFold(p.Name, position) {
			return p.Weight, true
		}
	}
	return 0, false
}

// CardWeights aligns weights with cards by position name. A card whose
// position is not in the layout takes the weight of the slot it occupies.
func (s SpreadDef) CardWeights(cards []DrawnCard) []float64 {
	w := make([]float64, len(cards))
	for i, c := range cards {
		if v, ok := s.WeightFor(c.Position); ok {
			w[i] = v
		} else if i < len(s.Positions) {
			w[i] = s.Positions[i].Weight
		}
	}
	return w
}

// VisionInsight is one card recognized by the vision verifier.
type VisionInsight struct {
	Card       string  `json:"card"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the opaque bundle returned by the thematic analyzer. Backends
// receive it unmodified.
type Analysis struct {
	Themes                  map[string]any     `json:"themes,omitempty"`
	SpreadAnalysis          map[string]any     `json:"spreadAnalysis,omitempty"`
	SpreadKey               string             `json:"spreadKey,omitempty"`
	KnowledgeGraphRetrieval []KnowledgePassage `json:"knowledgeGraphRetrieval,omitempty"`
	EphemerisContext        map[string]any     `json:"ephemerisContext,omitempty"`
}

// KnowledgePassage is one retrieved passage about card relationships.
type KnowledgePassage struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// MonthKey returns the calendar month bucket used by usage counters.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextMonthStart returns the first instant of the UTC month after t.
func NextMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
