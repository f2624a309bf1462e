package quality

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

var quoteFixer = strings.NewReplacer(
	"‘", "'", "’", "'", "“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

// normalize returns NFKC text with typographic quotes and dashes folded.
func normalize(s string) string {
	return quoteFixer.Replace(norm.NFKC.String(s))
}

// Tarot terminology that contains a card name without referring to a card.
var exclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfool'?s\s+journey\b`),
	regexp.MustCompile(`(?i)\bmajor\s+arcana\b`),
	regexp.MustCompile(`(?i)\bminor\s+arcana\b`),
	regexp.MustCompile(`(?i)\bcourt\s+cards?\b`),
	regexp.MustCompile(`(?i)\bstar\s+signs?\b`),
	regexp.MustCompile(`(?i)\bwheel\s+of\s+the\s+year\b`),
	regexp.MustCompile(`(?i)\bdevil'?s\s+advocate\b`),
	regexp.MustCompile(`(?i)\bjudgement\s+day\b`),
	regexp.MustCompile(`(?i)\btower\s+of\s+strength\b`),
}

// maskExclusions blanks excluded phrases, keeping byte offsets stable.
func maskExclusions(text string) string {
	for _, re := range exclusionPatterns {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.Repeat(" ", len(m))
		})
	}
	return text
}

// Card names that are also ordinary English and need contextual evidence.
var ambiguousNames = map[string]bool{
	"the fool": true, "the lovers": true, "the chariot": true, "strength": true,
	"the hermit": true, "justice": true, "death": true, "temperance": true,
	"the devil": true, "the tower": true, "the star": true, "the moon": true,
	"the sun": true, "judgement": true, "the world": true, "lust": true,
	"fortune": true, "adjustment": true, "art": true, "the pope": true,
	"the universe": true, "the aeon": true,
}

var (
	patternMu sync.RWMutex
	patterns  = map[string]*regexp.Regexp{}
)

var spellingVariants = strings.NewReplacer("Judgement", "Judg(?:e)?ment")

// namePattern compiles a case-insensitive word-boundary matcher for a name.
func namePattern(name string) *regexp.Regexp {
	patternMu.RLock()
	re, ok := patterns[name]
	patternMu.RUnlock()
	if ok {
		return re
	}

	words := strings.Fields(name)
	for i, w := range words {
		words[i] = spellingVariants.Replace(regexp.QuoteMeta(w))
	}
	re = regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)

	patternMu.Lock()
	patterns[name] = re
	patternMu.Unlock()
	return re
}

// mentions reports whether the name appears anywhere in text.
func mentions(text, name string) bool {
	return namePattern(name).MatchString(text)
}

var cardFraming = regexp.MustCompile(`(?i)^(?:'s)?\s+cards?\b`)

// referencesCard reports whether text contains the name used as a card
// reference. Ambiguous names need the word "card" after them or proper
// capitalization outside a sentence-initial position.
func referencesCard(text, name string) bool {
	locs := namePattern(name).FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return false
	}
	if !ambiguousNames[strings.ToLower(name)] {
		return true
	}
	single := !strings.Contains(name, " ")
	for _, loc := range locs {
		if cardFraming.MatchString(text[loc[1]:]) {
			return true
		}
		if !titleCased(text[loc[0]:loc[1]]) {
			continue
		}
		if single && sentenceInitial(text, loc[0]) {
			continue
		}
		return true
	}
	return false
}

// titleCased requires every word but a leading article to start uppercase.
func titleCased(match string) bool {
	words := strings.Fields(match)
	for i, w := range words {
		if i == 0 && len(words) > 1 && strings.EqualFold(w, "the") {
			continue
		}
		r, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// sentenceInitial reports whether the byte offset starts a sentence, looking
// back over whitespace and markdown decoration.
func sentenceInitial(text string, at int) bool {
	for i := at - 1; i >= 0; i-- {
		switch c := text[i]; c {
		case ' ', '\t', '*', '_', '#', '"', '\'', '>', '-', '(':
			continue
		case '.', '!', '?', ':', '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// drawnIDs resolves the drawn cards to canonical ids.
func drawnIDs(style domain.DeckStyle, cards []domain.DrawnCard) map[string]bool {
	ids := make(map[string]bool, len(cards))
	for _, c := range cards {
		if id, ok := domain.CanonicalID(style, c.Name); ok {
			ids[id] = true
		}
	}
	return ids
}

// acceptedNames lists every spelling that counts as naming a drawn card: the
// name as drawn, plus the deck's and the RWS name for the same canonical card.
func acceptedNames(style domain.DeckStyle, card domain.DrawnCard) []string {
	names := []string{card.Name}
	id, ok := domain.CanonicalID(style, card.Name)
	if !ok {
		return names
	}
	for _, c := range domain.Catalog() {
		if c.ID != id {
			continue
		}
		for _, n := range []string{domain.CardName(style, c), domain.CardName(domain.DeckRWS, c)} {
			if !strings.EqualFold(n, card.Name) {
				names = append(names, n)
			}
		}
		break
	}
	return names
}

// findHallucinations lists deck cards named in text that were not drawn.
func findHallucinations(text string, style domain.DeckStyle, cards []domain.DrawnCard) []string {
	masked := maskExclusions(text)
	drawn := drawnIDs(style, cards)
	out := []string{}
	for _, c := range domain.Catalog() {
		if drawn[c.ID] {
			continue
		}
		name := domain.CardName(style, c)
		if referencesCard(masked, name) {
			out = append(out, name)
		}
	}
	return out
}
