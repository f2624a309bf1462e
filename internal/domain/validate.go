package domain

import (
	"fmt"
	"strings"
)

const (
	MaxQuestionLen    = 500
	MaxReflectionsLen = 2000
)

// ValidateRequest checks a request against its catalog spread. All problems
// are collected into one *ValidationError.
func ValidateRequest(req ReadingRequest, def SpreadDef) error {
	var problems []string

	if req.Spread.Count != def.Count() {
		problems = append(problems, fmt.Sprintf("spread %q declares %d cards, layout has %d",
			def.Key, req.Spread.Count, def.Count()))
	}
	if len(req.Cards) != def.Count() {
		problems = append(problems, fmt.Sprintf("spread %q needs %d cards, got %d",
			def.Key, def.Count(), len(req.Cards)))
	}
	if len(req.Question) > MaxQuestionLen {
		problems = append(problems, fmt.Sprintf("question must be at most %d characters", MaxQuestionLen))
	}
	if len(req.Reflections) > MaxReflectionsLen {
		problems = append(problems, fmt.Sprintf("reflections must be at most %d characters", MaxReflectionsLen))
	}

	seen := make(map[string]bool, len(req.Cards))
	for i, c := range req.Cards {
		if strings.TrimSpace(c.Name) == "" {
			problems = append(problems, fmt.Sprintf("card %d has no name", i+1))
			continue
		}
		id, ok := CanonicalID(req.DeckStyle, c.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("card %d: unknown card %q", i+1, c.Name))
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("card %d: %q drawn twice", i+1, c.Name))
		}
		seen[id] = true
		if c.Orientation != Upright && c.Orientation != Reversed {
			problems = append(problems, fmt.Sprintf("card %d: invalid orientation %q", i+1, c.Orientation))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

var contextKeywords = []struct {
	context  string
	keywords []string
}{
	{"love", []string{"love", "relationship", "partner", "dating", "crush", "marriage", "romance", "ex "}},
	{"career", []string{"career", "job", "work", "boss", "promotion", "business", "interview", "colleague"}},
	{"finance", []string{"money", "finance", "debt", "invest", "salary", "savings"}},
	{"wellbeing", []string{"health", "stress", "anxiety", "energy", "rest", "wellbeing", "healing"}},
	{"spiritual", []string{"spirit", "purpose", "soul", "meditat", "intuition", "path"}},
}

// InferContext maps a question to a coarse reading context.
func InferContext(question string) string {
	q := " " + strings.ToLower(question) + " "
	for _, c := range contextKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(q, kw) {
				return c.context
			}
		}
	}
	return "general"
}
