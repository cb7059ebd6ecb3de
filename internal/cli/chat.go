package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/agentforge/internal/orchestrator"
)

var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true}

const separator = "--------------------------------------------------------------------------------"

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	ctx := cmd.Context()
	built, err := flags.buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = built.Cleanup() }()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "agentforge interactive mode (backend: %s)\n", built.Backend.Name())
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, "Type 'exit', 'quit', or 'bye' to stop")
	fmt.Fprintln(out)

	return chatLoop(ctx, cmd.InOrStdin(), out, built.Engine, built.Config.DefaultUserID)
}

// chatLoop reads one request per line until an exit word or end of input.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, engine *orchestrator.Engine, userID string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			fmt.Fprintln(out, "\nThank you for using agentforge!")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res := engine.Process(ctx, orchestrator.Request{Input: input, UserID: userID})
		fmt.Fprintf(out, "\nRouting to: %s\n", res.Metadata.HandlerID)
		fmt.Fprintln(out, prettyOutput(res.Output))
		fmt.Fprintf(out, "\n%s\n\n", separator)
	}
}

// prettyOutput indents JSON responses and returns anything else unchanged.
func prettyOutput(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return text
	}
	return buf.String()
}
