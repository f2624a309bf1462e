package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randomtoy/tarot-reading/internal/adapters/spreads"
	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/quality"
)

var errGateFailed = errors.New("narrative did not pass the quality gate")

type gateOptions struct {
	spread string
	deck   string
	cards  []string
}

// NewGateCommand scores a narrative offline with the deterministic gate.
func NewGateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &gateOptions{}
	cmd := &cobra.Command{
		Use:   "gate <narrative-file|->",
		Short: "Score a narrative against a card list",
		Long: `Run the deterministic quality gate on a narrative file.

Cards are given as --card "Position=Card Name[:reversed]". The position may
be omitted, in which case the spread layout names it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGate(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.spread, "spread", "threeCard", "spread key")
	cmd.Flags().StringVar(&opts.deck, "deck", "rws", "deck style")
	cmd.Flags().StringArrayVar(&opts.cards, "card", nil, "drawn card, repeatable")
	return cmd
}

func runGate(cmd *cobra.Command, rootOpts *RootOptions, opts *gateOptions, path string) error {
	narrative, err := readNarrative(cmd, path)
	if err != nil {
		return err
	}
	style, err := domain.ParseDeckStyle(opts.deck)
	if err != nil {
		return err
	}
	def, err := spreads.NewEmbeddedStore().GetSpread(cmd.Context(), opts.spread)
	if err != nil {
		return err
	}
	cards, err := parseCards(opts.cards, def)
	if err != nil {
		return err
	}

	in := quality.Input{Narrative: narrative, Cards: cards, SpreadKey: def.Key, DeckStyle: style}
	if len(cards) == def.Count() {
		in.Weights = def.CardWeights(cards)
	}
	res := quality.Evaluate(in)

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printQuality(out, res)
	}
	if !res.Passed {
		return errGateFailed
	}
	return nil
}

func readNarrative(cmd *cobra.Command, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read narrative: %w", err)
	}
	return string(b), nil
}

// parseCards accepts "Position=Name[:orientation]" or "Name[:orientation]".
func parseCards(specs []string, def domain.SpreadDef) ([]domain.DrawnCard, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one --card is required")
	}
	cards := make([]domain.DrawnCard, 0, len(specs))
	for i, s := range specs {
		c := domain.DrawnCard{Orientation: domain.Upright}
		pos, name, ok := strings.Cut(s, "=")
		if !ok {
			name = pos
			pos = ""
			if i < len(def.Positions) {
				pos = def.Positions[i].Name
			}
		}
		if n, o, ok := strings.Cut(name, ":"); ok {
			name = n
			c.Orientation = domain.Orientation(strings.ToLower(strings.TrimSpace(o)))
			if c.Orientation != domain.Upright && c.Orientation != domain.Reversed {
				return nil, fmt.Errorf("card %d: invalid orientation %q", i+1, o)
			}
		}
		c.Position = strings.TrimSpace(pos)
		c.Name = strings.TrimSpace(name)
		if c.Name == "" {
			return nil, fmt.Errorf("card %d: empty name", i+1)
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func printQuality(w io.Writer, r domain.QualityResult) {
	m := r.Metrics
	fmt.Fprintf(w, "passed: %t\n", r.Passed)
	fmt.Fprintf(w, "coverage: %.2f\n", m.CardCoverage)
	fmt.Fprintf(w, "missing: %s\n", listOrDash(m.MissingCards))
	fmt.Fprintf(w, "hallucinated: %s\n", listOrDash(m.HallucinatedCards))
	fmt.Fprintf(w, "sections: %d/%d\n", m.Spine.CompleteSections, m.Spine.TotalSections)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "issue: %s\n", issue)
	}
}

func listOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
