package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/agentforge/internal/agent"
	"github.com/ent0n29/agentforge/internal/generation"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/orchestrator"
	"github.com/ent0n29/agentforge/internal/router"
)

func offlineEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENTFORGE_MEMORY_BACKEND", "memory")
	t.Setenv("AGENTFORGE_LLM_MODE", "mock")
	t.Setenv("AGENTFORGE_SEMANTIC_INDEX", "recency")
	t.Setenv("AGENTFORGE_LOG_LEVEL", "error")
	t.Setenv("AGENTFORGE_ROUTES_FILE", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newEngine(t *testing.T, backend generation.Backend) *orchestrator.Engine {
	t.Helper()
	svc, err := memory.NewService(memory.ServiceConfig{Log: memory.NewInMemoryLog()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	e, err := orchestrator.New(orchestrator.Config{Memory: svc, Deps: agent.Deps{Backend: backend}})
	require.NoError(t, err)
	return e
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Generate(context.Context, []generation.Message) (string, error) {
	return "", errors.New("provider unavailable")
}

func TestAskPrintsRoutedResponse(t *testing.T) {
	offlineEnv(t)

	out, err := execute(t, "ask", "fix", "my", "resume")
	require.NoError(t, err)
	assert.Contains(t, out, "Routing to: "+router.ContentRewriter)
	assert.Contains(t, out, "[stub-llm] I received: fix my resume")
}

func TestAskJSONIncludesMetadata(t *testing.T) {
	offlineEnv(t)

	out, err := execute(t, "ask", "--json", "--user", "cli-user", "check my inbox")
	require.NoError(t, err)

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, router.EmailPrioritizer, res.Metadata.HandlerID)
	assert.Equal(t, "cli-user", res.Metadata.UserID)
	assert.Equal(t, "check my inbox", res.Metadata.OriginalInput)
}

func TestGlobalFlagValidation(t *testing.T) {
	offlineEnv(t)

	_, err := execute(t, "ask", "--memory", "cassandra", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTFORGE_MEMORY_BACKEND")
}

func TestHistoryOnEmptyLog(t *testing.T) {
	offlineEnv(t)

	out, err := execute(t, "history", "--user", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "no exchanges recorded for nobody")

	_, err = execute(t, "history", "--limit", "0")
	require.Error(t, err)
}

func TestChatLoopStopsOnExitWord(t *testing.T) {
	e := newEngine(t, nil)
	in := strings.NewReader("write a haiku\n\n  BYE  \nnever processed\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), in, &out, e, "chat-user"))
	assert.Contains(t, out.String(), "Routing to: "+router.PromptOptimizer)
	assert.Contains(t, out.String(), "[stub-llm] I received: write a haiku")
	assert.Contains(t, out.String(), "Thank you for using agentforge!")
	assert.NotContains(t, out.String(), "never processed")

	recent, err := e.Memory().For("chat-user").RecentExchanges(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestChatLoopEndsAtEOF(t *testing.T) {
	e := newEngine(t, nil)
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), strings.NewReader("sort my mail"), &out, e, "eof-user"))
	assert.Contains(t, out.String(), "Routing to: "+router.EmailPrioritizer)
	assert.NotContains(t, out.String(), "Thank you")
}

func TestPrettyOutput(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", prettyOutput(`{"a":1}`))
	assert.Equal(t, "plain text", prettyOutput("plain text"))
	assert.Equal(t, "{broken", prettyOutput("{broken"))
}

func TestSmokeWritesReport(t *testing.T) {
	offlineEnv(t)
	path := filepath.Join(t.TempDir(), "reports", "smoke.json")

	out, err := execute(t, "smoke", "--report", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Result: 3/3 tests passed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(data, &report))

	require.Len(t, report.Tests, 3)
	assert.Equal(t, router.PromptOptimizer, report.Tests[0].HandlerID)
	assert.Equal(t, router.ContentRewriter, report.Tests[1].HandlerID)
	assert.Equal(t, router.EmailPrioritizer, report.Tests[2].HandlerID)
	assert.Equal(t, 3, report.Summary.TotalTests)
	assert.Equal(t, 100.0, report.Summary.SuccessRate)
	assert.Equal(t, ModuleStats{Tests: 3, Passed: 3}, report.Summary.ByModule["smoke"])
	assert.Greater(t, report.Timestamp, 0.0)
}

func TestFullSuiteGroupsByHandler(t *testing.T) {
	e := newEngine(t, nil)
	collector := &Collector{}

	require.NoError(t, RunChecks(context.Background(), e, fullUserID, FullChecks(), 2, collector))
	summary := collector.Summary()
	assert.Equal(t, 3, summary.Passed)
	assert.Len(t, summary.ByModule, 3)
	assert.Equal(t, ModuleStats{Tests: 1, Passed: 1}, summary.ByModule[router.ContentRewriter])
}

func TestRunChecksMarksBackendFailures(t *testing.T) {
	e := newEngine(t, failingBackend{})
	collector := &Collector{}

	checks := append(SmokeChecks(), Check{Module: "smoke", Name: "ghost", HandlerID: "GhostAgent", Input: "hi"})
	require.NoError(t, RunChecks(context.Background(), e, smokeUserID, checks, 4, collector))

	records := collector.Records()
	require.Len(t, records, 4)
	for _, rec := range records[:3] {
		assert.Equal(t, StatusFail, rec.Status)
		assert.True(t, agent.IsSentinel(rec.Error), rec.Error)
	}
	assert.Equal(t, "handler not found", records[3].Error)
	assert.Equal(t, 0.0, collector.Summary().SuccessRate)
}

func TestCollectorSummaryRounds(t *testing.T) {
	c := &Collector{}
	c.Add(CheckRecord{Module: "a", Status: StatusPass, Duration: 1.004})
	c.Add(CheckRecord{Module: "a", Status: StatusFail, Duration: 0.5})
	c.Add(CheckRecord{Module: "b", Status: StatusPass, Duration: 0.25})

	s := c.Summary()
	assert.Equal(t, 3, s.TotalTests)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 66.67, s.SuccessRate)
	assert.Equal(t, 1.75, s.TotalDuration)
	assert.Equal(t, 0.58, s.AvgDuration)
	assert.Equal(t, ModuleStats{Tests: 2, Passed: 1, Failed: 1}, s.ByModule["a"])

	empty := (&Collector{}).Report(time.Unix(10, 0))
	assert.Equal(t, 0.0, empty.Summary.SuccessRate)
	assert.Equal(t, 10.0, empty.Timestamp)
}
