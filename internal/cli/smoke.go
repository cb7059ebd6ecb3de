package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/agentforge/internal/agent"
	"github.com/ent0n29/agentforge/internal/orchestrator"
	"github.com/ent0n29/agentforge/internal/router"
)

// Check is one canned request sent straight to a handler.
type Check struct {
	Module    string
	Name      string
	HandlerID string
	Input     string
}

const (
	smokeUserID = "smoke_test_user"
	fullUserID  = "e2e_test_user"
)

// SmokeChecks exercise every built-in handler once with a short input.
func SmokeChecks() []Check {
	return []Check{
		{Module: "smoke", Name: router.PromptOptimizer, HandlerID: router.PromptOptimizer,
			Input: "Improve this prompt: write a funny tweet about coffee"},
		{Module: "smoke", Name: router.ContentRewriter, HandlerID: router.ContentRewriter,
			Input: "Here is my resume: worked at company X. Improve bullets."},
		{Module: "smoke", Name: router.EmailPrioritizer, HandlerID: router.EmailPrioritizer,
			Input: "Subject: Meeting\nFrom: boss@example.com\nBody: Can you prepare slides?"},
	}
}

// FullChecks send realistic multi-line inputs to every built-in handler.
func FullChecks() []Check {
	return []Check{
		{Module: router.PromptOptimizer, Name: "Prompt Optimizer", HandlerID: router.PromptOptimizer,
			Input: "Optimize this prompt: a photo of a happy shiba inu puppy playing in autumn leaves, studio lighting, cinematic"},
		{Module: router.ContentRewriter, Name: "Content Rewriter", HandlerID: router.ContentRewriter,
			Input: `Here is my resume: Software Engineer with 5 years experience in Python and JavaScript,
expertise in distributed systems and cloud infrastructure.

And here is the job I want: We're looking for a Senior Backend Engineer with
strong experience in Python, REST APIs, and cloud deployment.
Tailor my resume to this job perfectly.`},
		{Module: router.EmailPrioritizer, Name: "Email Prioritizer", HandlerID: router.EmailPrioritizer,
			Input: `--- Email 1 ---
From: boss@company.com
Subject: URGENT - Client demo tomorrow

--- Email 2 ---
From: newsletter@medium.com
Subject: Daily Digest

--- Email 3 ---
From: hr@google.com
Subject: Interview next week - preparation materials`},
	}
}

func newSmokeCmd(flags *globalFlags) *cobra.Command {
	var (
		full       bool
		reportPath string
		parallel   int
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run one canned request per handler and export a JSON report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checks, userID, title := SmokeChecks(), smokeUserID, "SMOKE TEST"
			if full {
				checks, userID, title = FullChecks(), fullUserID, "FULL TEST"
			}
			if reportPath == "" {
				reportPath = "data/test_metrics_smoke.json"
				if full {
					reportPath = "data/test_metrics_full.json"
				}
			}

			built, err := flags.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s (backend: %s)\n%s\n", strings.Repeat("=", 80), title, built.Backend.Name(), strings.Repeat("=", 80))

			collector := &Collector{}
			if err := RunChecks(cmd.Context(), built.Engine, userID, checks, parallel, collector); err != nil {
				return err
			}
			printSummary(out, title, collector)

			if err := collector.Export(reportPath, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nMetrics exported to: %s\n", reportPath)

			if s := collector.Summary(); s.Failed > 0 {
				return fmt.Errorf("%d of %d checks failed", s.Failed, s.TotalTests)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "run the full end-to-end suite")
	cmd.Flags().StringVar(&reportPath, "report", "", "report path (default: data/test_metrics_smoke.json or data/test_metrics_full.json)")
	cmd.Flags().IntVar(&parallel, "parallel", 3, "checks run concurrently")
	return cmd
}

// RunChecks runs checks against their handlers with at most parallel in flight
// and adds their records to collector in check order. A check fails when the
// handler is missing or the backend invocation failed.
func RunChecks(ctx context.Context, engine *orchestrator.Engine, userID string, checks []Check, parallel int, collector *Collector) error {
	if parallel <= 0 {
		parallel = 1
	}
	records := make([]CheckRecord, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, c := range checks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = runCheck(gctx, engine, userID, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	for _, rec := range records {
		if rec.Status == "" {
			continue
		}
		collector.Add(rec)
	}
	return ctx.Err()
}

func runCheck(ctx context.Context, engine *orchestrator.Engine, userID string, c Check) CheckRecord {
	started := time.Now()
	rec := CheckRecord{
		Module:    c.Module,
		TestName:  c.Name,
		HandlerID: c.HandlerID,
		StartTime: unixSeconds(started),
		Status:    StatusPass,
	}
	h, ok := engine.Handler(userID, c.HandlerID)
	if !ok {
		rec.Status, rec.Error = StatusFail, "handler not found"
		rec.Duration = time.Since(started).Seconds()
		return rec
	}
	res := h.Execute(ctx, c.Input, nil)
	rec.OutputChars = len([]rune(res.Output))
	rec.Duration = time.Since(started).Seconds()
	switch {
	case res.Metadata.Failed || agent.IsSentinel(res.Output):
		rec.Status, rec.Error = StatusFail, res.Output
	case strings.TrimSpace(res.Output) == "":
		rec.Status, rec.Error = StatusFail, "empty response"
	}
	return rec
}

func printSummary(out io.Writer, title string, collector *Collector) {
	records := collector.Records()
	summary := collector.Summary()

	fmt.Fprintf(out, "\n%s\n%s SUMMARY\n%s\n", strings.Repeat("=", 80), title, strings.Repeat("=", 80))
	for _, rec := range records {
		line := fmt.Sprintf("[%s]: %s (%d chars in %.2fs)", rec.Status, rec.TestName, rec.OutputChars, rec.Duration)
		if rec.Error != "" {
			line += " - " + rec.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\nResult: %d/%d tests passed\n", summary.Passed, summary.TotalTests)
	fmt.Fprintf(out, "Success Rate: %.2f%%\n", summary.SuccessRate)
	fmt.Fprintf(out, "Total Duration: %.2fs\n", summary.TotalDuration)
	fmt.Fprintf(out, "Average Duration per Test: %.2fs\n", summary.AvgDuration)
	if len(summary.ByModule) > 1 {
		fmt.Fprintln(out, "\nBy Module:")
		for _, rec := range records {
			stats, ok := summary.ByModule[rec.Module]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %s: %d/%d passed\n", rec.Module, stats.Passed, stats.Tests)
			delete(summary.ByModule, rec.Module)
		}
	}
}
