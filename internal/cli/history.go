package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/agentforge/internal/memory"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a user's recent exchanges, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			built, err := flags.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			exchanges, err := built.Memory.For(built.Config.DefaultUserID).RecentExchanges(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if exchanges == nil {
					exchanges = []memory.Exchange{}
				}
				b, err := json.MarshalIndent(exchanges, "", "  ")
				if err != nil {
					return fmt.Errorf("encode history: %w", err)
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			if len(exchanges) == 0 {
				fmt.Fprintf(out, "no exchanges recorded for %s\n", built.Config.DefaultUserID)
				return nil
			}
			fmt.Fprintln(out, memory.FormatExchanges(exchanges))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", memory.DefaultRecentLimit, "number of exchanges")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print exchanges as JSON")
	return cmd
}
