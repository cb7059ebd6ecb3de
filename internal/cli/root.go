// Package cli implements the agentforge commands.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/agentforge/internal/app"
	"github.com/ent0n29/agentforge/internal/config"
	"github.com/ent0n29/agentforge/internal/logging"
)

// globalFlags override the environment configuration for one invocation.
type globalFlags struct {
	userID   string
	llmMode  string
	memory   string
	logLevel string
}

// NewRootCmd builds the command tree. Running it without a subcommand starts
// the interactive chat.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "agentforge",
		Short: "Route free-text requests to specialist handlers with persistent memory",
		Long: `agentforge routes each request to one of its specialist handlers
(prompt optimization, resume rewriting, email triage), assembles recent and
retrieved conversation context, and records every exchange per user.

Run without arguments to start the interactive chat.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.userID, "user", "u", "", "user identity (default: $AGENTFORGE_USER_ID)")
	pf.StringVar(&flags.llmMode, "llm", "", "generation backend: auto, genai, ollama, openai, mock")
	pf.StringVar(&flags.memory, "memory", "", "exchange log backend: sqlite, postgres, redis, memory")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (default: $AGENTFORGE_LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(flags),
		newChatCmd(flags),
		newAskCmd(flags),
		newHistoryCmd(flags),
		newSmokeCmd(flags),
	)
	return root
}

func (f *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if v := strings.TrimSpace(f.userID); v != "" {
		cfg.DefaultUserID = v
	}
	if v := strings.ToLower(strings.TrimSpace(f.llmMode)); v != "" {
		cfg.LLMMode = v
	}
	if v := strings.ToLower(strings.TrimSpace(f.memory)); v != "" {
		cfg.MemoryBackend = v
	}
	if v := strings.ToLower(strings.TrimSpace(f.logLevel)); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// buildApp loads configuration and wires one process context.
func (f *globalFlags) buildApp(ctx context.Context) (*app.BuildResult, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return built, nil
}
