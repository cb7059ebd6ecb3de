package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// CheckRecord is one timed check in a smoke report.
type CheckRecord struct {
	Module      string  `json:"module"`
	TestName    string  `json:"test_name"`
	HandlerID   string  `json:"handler_id"`
	StartTime   float64 `json:"start_time"`
	Status      string  `json:"status"`
	Duration    float64 `json:"duration"`
	OutputChars int     `json:"output_chars"`
	Error       string  `json:"error,omitempty"`
}

type ModuleStats struct {
	Tests  int `json:"tests"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Summary aggregates a run. Durations are seconds rounded to two decimals.
type Summary struct {
	TotalTests    int                    `json:"total_tests"`
	Passed        int                    `json:"passed"`
	Failed        int                    `json:"failed"`
	SuccessRate   float64                `json:"success_rate"`
	AvgDuration   float64                `json:"avg_duration"`
	TotalDuration float64                `json:"total_duration"`
	ByModule      map[string]ModuleStats `json:"by_module"`
}

type Report struct {
	Tests     []CheckRecord `json:"tests"`
	Summary   Summary       `json:"summary"`
	Timestamp float64       `json:"timestamp"`
}

// Collector accumulates check records. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	records []CheckRecord
}

func (c *Collector) Add(rec CheckRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *Collector) Records() []CheckRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CheckRecord{}, c.records...)
}

func (c *Collector) Summary() Summary {
	records := c.Records()
	s := Summary{TotalTests: len(records), ByModule: make(map[string]ModuleStats)}
	var total float64
	for _, rec := range records {
		total += rec.Duration
		stats := s.ByModule[rec.Module]
		stats.Tests++
		if rec.Status == StatusPass {
			s.Passed++
			stats.Passed++
		} else {
			s.Failed++
			stats.Failed++
		}
		s.ByModule[rec.Module] = stats
	}
	if s.TotalTests > 0 {
		s.SuccessRate = round2(float64(s.Passed) / float64(s.TotalTests) * 100)
		s.AvgDuration = round2(total / float64(s.TotalTests))
	}
	s.TotalDuration = round2(total)
	return s
}

func (c *Collector) Report(now time.Time) Report {
	return Report{
		Tests:     c.Records(),
		Summary:   c.Summary(),
		Timestamp: unixSeconds(now),
	}
}

// Export writes the report as indented JSON, creating parent directories.
func (c *Collector) Export(path string, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	b, err := json.MarshalIndent(c.Report(now), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
