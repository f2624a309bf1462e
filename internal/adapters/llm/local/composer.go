// Package local is the deterministic narrative composer of last resort. It
// needs no network and its output always names every drawn card.
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

const (
	BackendName = "local"
	model       = "local-composer"
)

type Composer struct{}

func NewComposer() *Composer { return &Composer{} }

func (*Composer) Name() string { return BackendName }

func (*Composer) Configured() bool { return true }

func (*Composer) Generate(ctx context.Context, in ports.GenerateInput) (ports.GenerateOutput, error) {
	if err := ctx.Err(); err != nil {
		return ports.GenerateOutput{}, err
	}
	return ports.GenerateOutput{Text: Compose(in.Request), Model: model}, nil
}

// Compose writes one complete section per card plus a closing synthesis.
func Compose(req domain.ReadingRequest) string {
	focus := "your current situation"
	if strings.TrimSpace(req.Question) != "" {
		focus = "the question you brought"
	}

	var b strings.Builder
	for _, c := range req.Cards {
		heading := c.Name
		if c.Orientation == domain.Reversed {
			heading += " (reversed)"
		}
		fmt.Fprintf(&b, "**%s: %s**\n", c.Position, heading)
		fmt.Fprintf(&b, "%s appears in the %s position. %s Consider how this card speaks to %s, "+
			"and what one small step would honour its message.\n\n",
			c.Name, strings.ToLower(c.Position), orientationLine(c.Orientation), focus)
	}

	b.WriteString("**Bringing it together**\n")
	if name := strings.TrimSpace(req.Personalization.DisplayName); name != "" {
		fmt.Fprintf(&b, "%s, taken together these cards sketch a story that is still unfolding. ", name)
	} else {
		b.WriteString("Taken together, these cards sketch a story that is still unfolding. ")
	}
	b.WriteString("Notice which image stayed with you most, and let that be the thread you follow this week.")
	return b.String()
}

func orientationLine(o domain.Orientation) string {
	if o == domain.Reversed {
		return "Its energy turns inward here, asking you to look at what may be blocked or delayed."
	}
	return "Its energy flows openly here, inviting you to lean into what it represents."
}
