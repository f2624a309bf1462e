package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randomtoy/tarot-reading/internal/adapters/spreads"
	"github.com/randomtoy/tarot-reading/internal/domain"
)

type drawOptions struct {
	spread string
	deck   string
	seed   uint64
}

// NewDrawCommand lays out a random spread without generating a reading.
func NewDrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &drawOptions{}
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw a random spread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraw(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.spread, "spread", "threeCard", "spread key")
	cmd.Flags().StringVar(&opts.deck, "deck", "rws", "deck style")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed, 0 picks one")
	return cmd
}

func runDraw(cmd *cobra.Command, rootOpts *RootOptions, opts *drawOptions) error {
	style, err := domain.ParseDeckStyle(opts.deck)
	if err != nil {
		return err
	}
	def, err := spreads.NewEmbeddedStore().GetSpread(cmd.Context(), opts.spread)
	if err != nil {
		return err
	}
	cards, err := domain.DrawSpread(def, style, newRNG(opts.seed))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return json.NewEncoder(out).Encode(cards)
	}
	fmt.Fprintf(out, "%s (%s)\n", def.Name, style)
	for _, c := range cards {
		fmt.Fprintf(out, "  %s: %s (%s)\n", c.Position, c.Name, c.Orientation)
	}
	return nil
}
