// Package prompt renders the generation prompts shared by every model-backed
// narrative backend.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

// Optional prompt sections, in the order they are dropped to fit the budget.
const (
	SectionKnowledge = "knowledge_graph"
	SectionEphemeris = "ephemeris"
	SectionVision    = "vision"
	SectionTheme     = "themes"
)

var shrinkOrder = []string{SectionKnowledge, SectionEphemeris, SectionVision, SectionTheme}

// Build renders the system and user prompts. When the user prompt exceeds
// the state's budget, optional sections are dropped one by one and recorded
// on the state so later attempts start from the smaller prompt.
func Build(in ports.GenerateInput) domain.PromptsUsed {
	state := in.State
	if state == nil {
		state = &ports.PromptState{}
	}
	user := renderUser(in.Request, in.Spread, state)
	if state.MaxPromptChars > 0 {
		for _, sec := range shrinkOrder {
			if len(user) <= state.MaxPromptChars {
				break
			}
			if state.Dropped(sec) {
				continue
			}
			state.Drop(sec)
			user = renderUser(in.Request, in.Spread, state)
		}
	}
	return domain.PromptsUsed{System: System(in.Request.Personalization), User: user}
}

// System returns the reader persona and the output contract.
func System(p domain.Personalization) string {
	tone := "warm and grounded"
	if p.Tone != "" {
		tone = p.Tone
	}
	return fmt.Sprintf(`You are a thoughtful tarot reader writing reflective, %s readings.

Rules:
- Never provide medical, legal, or financial advice.
- Never predict deaths, disasters, or guaranteed outcomes.
- Never command actions or diagnose conditions.
- Name every drawn card exactly as written, and no other cards.
- Write one section per card under a bold heading "**Position: Card**", each at least two full sentences.
- Finish with a short synthesis section and a reflective question.`, tone)
}

func renderUser(req domain.ReadingRequest, spread domain.SpreadDef, state *ports.PromptState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spread: %s (%d cards)\nDeck: %s\n\nCards drawn:\n", spread.Name, len(req.Cards), req.DeckStyle)
	weights := spread.CardWeights(req.Cards)
	for i, c := range req.Cards {
		fmt.Fprintf(&b, "- %s: %s (%s), importance %.2f\n", c.Position, c.Name, c.Orientation, weights[i])
		if c.Meaning != "" {
			fmt.Fprintf(&b, "  Meaning: %s\n", c.Meaning)
		}
	}

	if req.Question != "" {
		fmt.Fprintf(&b, "\nThe querent asks: %q\n", req.Question)
	}
	if req.Reflections != "" {
		fmt.Fprintf(&b, "\nThe querent reflects: %q\n", req.Reflections)
	}
	if name := req.Personalization.DisplayName; name != "" {
		fmt.Fprintf(&b, "\nAddress the querent as %s.\n", name)
	}

	a := state.Analysis
	if len(a.Themes) > 0 && !state.Dropped(SectionTheme) {
		b.WriteString("\nThemes:\n")
		writeMap(&b, a.Themes)
	}
	if len(state.Vision) > 0 && !state.Dropped(SectionVision) {
		b.WriteString("\nCards confirmed from the querent's photo:\n")
		for _, v := range state.Vision {
			fmt.Fprintf(&b, "- %s (%.0f%%)\n", v.Card, v.Confidence*100)
		}
	}
	if len(a.EphemerisContext) > 0 && !state.Dropped(SectionEphemeris) {
		b.WriteString("\nSky context:\n")
		writeMap(&b, a.EphemerisContext)
	}
	if len(a.KnowledgeGraphRetrieval) > 0 && !state.Dropped(SectionKnowledge) {
		b.WriteString("\nBackground on these cards:\n")
		for _, p := range a.KnowledgeGraphRetrieval {
			fmt.Fprintf(&b, "- %s: %s\n", p.Title, p.Text)
		}
	}

	b.WriteString("\nWrite the reading now.")
	return b.String()
}

func writeMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, m[k])
	}
}
