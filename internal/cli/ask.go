package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/agentforge/internal/orchestrator"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [request]",
		Short: "Route one request and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := flags.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			res := built.Engine.Process(cmd.Context(), orchestrator.Request{
				Input:  strings.Join(args, " "),
				UserID: built.Config.DefaultUserID,
			})
			out := cmd.OutOrStdout()
			if asJSON {
				b, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			fmt.Fprintf(out, "Routing to: %s\n", res.Metadata.HandlerID)
			fmt.Fprintln(out, prettyOutput(res.Output))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result with metadata as JSON")
	return cmd
}
