package domain

import (
	"fmt"
	"strings"
)

// DeckStyle identifies the artwork tradition, which changes card names.
type DeckStyle string

const (
	DeckRWS       DeckStyle = "rws-1909"
	DeckThoth     DeckStyle = "thoth"
	DeckMarseille DeckStyle = "marseille"
)

// ParseDeckStyle normalizes client-supplied deck identifiers. Empty means RWS.
func ParseDeckStyle(s string) (DeckStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rws", "rws-1909", "rider-waite", "rider-waite-smith":
		return DeckRWS, nil
	case "thoth", "thoth-a1":
		return DeckThoth, nil
	case "marseille", "marseille-classic", "tdm":
		return DeckMarseille, nil
	default:
		return "", fmt.Errorf("%w: unknown deck style %q", ErrInvalidRequest, s)
	}
}

// CardInfo is one of the 78 canonical cards.
type CardInfo struct {
	ID     string
	Major  bool
	Number int
	Suit   string
	Rank   string
}

var majorNames = []string{
	"The Fool", "The Magician", "The High Priestess", "The Empress", "The Emperor",
	"The Hierophant", "The Lovers", "The Chariot", "Strength", "The Hermit",
	"Wheel of Fortune", "Justice", "The Hanged Man", "Death", "Temperance",
	"The Devil", "The Tower", "The Star", "The Moon", "The Sun", "Judgement", "The World",
}

var (
	suits = []string{"Wands", "Cups", "Swords", "Pentacles"}
	ranks = []string{"Ace", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten",
		"Page", "Knight", "Queen", "King"}
)

var majorAliases = map[DeckStyle]map[int]string{
	DeckThoth: {
		1: "The Magus", 2: "The Priestess", 8: "Lust", 10: "Fortune", 11: "Adjustment",
		14: "Art", 20: "The Aeon", 21: "The Universe",
	},
	DeckMarseille: {
		2: "The Popess", 5: "The Pope",
	},
}

var suitAliases = map[DeckStyle]map[string]string{
	DeckThoth:     {"Pentacles": "Disks"},
	DeckMarseille: {"Wands": "Batons", "Pentacles": "Coins"},
}

var rankAliases = map[DeckStyle]map[string]string{
	DeckThoth: {"Page": "Princess", "Knight": "Prince", "King": "Knight"},
}

var catalog = buildCatalog()

// per-style lowercase name -> canonical id
var nameIndex = map[DeckStyle]map[string]string{}

func init() {
	for _, style := range []DeckStyle{DeckRWS, DeckThoth, DeckMarseille} {
		idx := make(map[string]string, len(catalog))
		for _, c := range catalog {
			idx[strings.ToLower(CardName(style, c))] = c.ID
		}
		nameIndex[style] = idx
	}
}

func buildCatalog() []CardInfo {
	out := make([]CardInfo, 0, 78)
	for i := range majorNames {
		out = append(out, CardInfo{ID: fmt.Sprintf("major-%02d", i), Major: true, Number: i})
	}
	for _, s := range suits {
		for i, r := range ranks {
			out = append(out, CardInfo{
				ID:     strings.ToLower(r + "-" + s),
				Number: i + 1,
				Suit:   s,
				Rank:   r,
			})
		}
	}
	return out
}

// Catalog returns the 78 canonical cards in deck order.
func Catalog() []CardInfo {
	return append([]CardInfo(nil), catalog...)
}

// CardName returns the name a deck style prints on a card.
func CardName(style DeckStyle, c CardInfo) string {
	if c.Major {
		if n, ok := majorAliases[style][c.Number]; ok {
			return n
		}
		return majorNames[c.Number]
	}
	suit, rank := c.Suit, c.Rank
	if a, ok := suitAliases[style][suit]; ok {
		suit = a
	}
	if a, ok := rankAliases[style][rank]; ok {
		rank = a
	}
	return rank + " of " + suit
}

// DeckNames lists every card name of a deck style in deck order.
func DeckNames(style DeckStyle) []string {
	names := make([]string, len(catalog))
	for i, c := range catalog {
		names[i] = CardName(style, c)
	}
	return names
}

// CanonicalID resolves a card name to its canonical id, preferring the
// deck's own naming and falling back to RWS names.
func CanonicalID(style DeckStyle, name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := nameIndex[style][key]; ok {
		return id, true
	}
	id, ok := nameIndex[DeckRWS][key]
	return id, ok
}
