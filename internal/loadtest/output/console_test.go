package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/heigit/isobench/internal/config"
	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/engine"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	if got := renderProgressBar(0.5, 4); got != "[██░░]" {
		t.Errorf("renderProgressBar(0.5, 4) = %q", got)
	}
	if got := renderProgressBar(2, 2); got != "[██]" {
		t.Errorf("renderProgressBar(2, 2) = %q", got)
	}
	if got := renderProgressBar(-1, 2); got != "[░░]" {
		t.Errorf("renderProgressBar(-1, 2) = %q", got)
	}
}

func newTestConsole(buf *bytes.Buffer, quiet bool) *ConsoleOutput {
	return NewConsoleOutput(ConsoleOutputConfig{Writer: buf, Quiet: quiet, NoColor: true})
}

func sampleResult(passed bool) *engine.TestResult {
	return &engine.TestResult{
		RunID:    "3f1c",
		Name:     "Heidelberg isochrones",
		Duration: 2500 * time.Millisecond,
		Scenarios: []*engine.ScenarioResult{
			{
				Name:       "Locations (1) | heidelberg",
				RangeType:  "time",
				Executable: true,
				Iterations: 10,
				Metrics: metrics.ScenarioStats{
					TotalRequests: 10,
					Latency:       metrics.LatencyStats{P95: 120 * time.Millisecond},
				},
			},
			{
				Name:       "Locations (5) | missing",
				RangeType:  "time",
				Executable: false,
				LoadError:  "open missing.csv: no such file or directory",
			},
		},
		Metrics: &metrics.Snapshot{
			TotalRequests:    1200,
			FailedRequests:   12,
			Iterations:       1210,
			FailedIterations: 22,
			ErrorRate:        0.01,
			Errors: map[metrics.ErrorClass]int64{
				metrics.ErrorStatus:        12,
				metrics.ErrorFeedExhausted: 10,
			},
			Latency: metrics.LatencyStats{
				Min:   10 * time.Millisecond,
				P50:   80 * time.Millisecond,
				P95:   120 * time.Millisecond,
				Max:   900 * time.Millisecond,
				Count: 1200,
			},
		},
		Passed: passed,
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 2s", Passed: true, Value: "120ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.001", Passed: passed, Value: "0.0100"},
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintSummary(sampleResult(false))

	out := buf.String()
	for _, want := range []string{
		"Heidelberg isochrones - Failed ✗",
		"Run ID:",
		"1,200",
		"Success Rate:  99.0%",
		"✓ Locations (1) | heidelberg [time]  reqs 10  failed 0  p95 120ms",
		"⚠ Locations (5) | missing skipped: open missing.csv",
		"feed_exhausted   10",
		"status           12",
		"✗ http_req_failed rate < 0.001 (actual: 0.0100)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}

	// failure classes are sorted
	if strings.Index(out, "feed_exhausted") > strings.Index(out, "status   ") {
		t.Error("Expected failure classes in sorted order")
	}
	if strings.Contains(out, "\033[") {
		t.Error("Expected no ANSI codes with NoColor")
	}
}

func TestPrintSummary_MissingScenarioResult(t *testing.T) {
	result := sampleResult(false)
	result.Error = "scenario Locations (1) | heidelberg failed: context canceled"
	result.Scenarios = append(result.Scenarios, nil)

	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintSummary(result)

	out := buf.String()
	if !strings.Contains(out, "context canceled") {
		t.Errorf("Summary missing run error:\n%s", out)
	}
	if !strings.Contains(out, "Locations (1) | heidelberg [time]") {
		t.Errorf("Summary missing completed scenario:\n%s", out)
	}
}

func TestPrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, true).PrintSummary(sampleResult(true))
	if strings.TrimSpace(buf.String()) != "PASSED" {
		t.Errorf("Expected PASSED, got %q", buf.String())
	}

	buf.Reset()
	newTestConsole(&buf, true).PrintSummary(sampleResult(false))
	if strings.TrimSpace(buf.String()) != "FAILED" {
		t.Errorf("Expected FAILED, got %q", buf.String())
	}
}

func TestPrintConfig(t *testing.T) {
	cfg := &config.Config{
		Name:               "Heidelberg isochrones",
		BaseURL:            "http://localhost:8082/ors",
		TargetProfile:      "driving-car",
		SourceFiles:        []string{"a.csv", "b.csv"},
		QuerySizes:         []int{1, 5},
		Ranges:             []float64{300, 600.5},
		TestUnit:           "distance",
		NumConcurrentUsers: 10,
		ParallelExecution:  true,
		FeedStrategy:       "queue",
	}

	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintConfig(cfg, 8)

	out := buf.String()
	for _, want := range []string{
		"Heidelberg isochrones - Running",
		"http://localhost:8082/ors",
		"a.csv, b.csv",
		"1, 5",
		"300, 600.5",
		"10 (all at once)",
		"parallel",
		"Scenarios:     8",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Config echo missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	newTestConsole(&buf, true).PrintConfig(cfg, 8)
	if buf.Len() != 0 {
		t.Errorf("Expected no output in quiet mode, got %q", buf.String())
	}
}

func TestPrintMatrix(t *testing.T) {
	descriptors := isochrones.BuildMatrix(isochrones.MatrixConfig{
		SourceFiles:     []string{"data/heidelberg.csv"},
		BatchSizes:      []int{1, 5},
		Unit:            isochrones.UnitDistance,
		ConcurrentUsers: 2,
		Ranges:          []float64{300},
	}, nil)

	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintMatrix(descriptors)

	out := buf.String()
	for _, want := range []string{
		"Isochrones sequential distance - heidelberg - Users 2 - Ranges [300]",
		"1  Locations (1) | heidelberg",
		"2  Locations (5) | heidelberg",
		"(data/heidelberg.csv, batch 5, distance)",
		"2 scenarios",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Matrix missing %q:\n%s", want, out)
		}
	}
}

func TestNonInteractiveUpdate(t *testing.T) {
	snapshot := &metrics.Snapshot{
		Elapsed:        1500 * time.Millisecond,
		ActiveVUs:      4,
		TotalRequests:  40,
		FailedRequests: 2,
		ErrorRate:      0.05,
		RPS:            26.7,
		Latency:        metrics.LatencyStats{P95: 80 * time.Millisecond},
		CurrentPhase:   metrics.PhaseSteady,
	}
	stats := StatsFromMetrics(snapshot, 0.5, 1, 2)

	var buf bytes.Buffer
	c := newTestConsole(&buf, false)
	c.PrintNonInteractiveUpdate(stats)
	want := "[1.5s] Scenarios: 1/2 | VUs: 4 | Reqs: 40 | RPS: 26.7 | Errors: 2 (5.0%) | P95: 80ms"
	if strings.TrimSpace(buf.String()) != want {
		t.Errorf("Got %q, want %q", strings.TrimSpace(buf.String()), want)
	}

	// live updates only render on a terminal
	buf.Reset()
	c.Update(stats)
	if buf.Len() != 0 {
		t.Errorf("Expected no live output on a non-terminal writer, got %q", buf.String())
	}

	if s := StatsFromMetrics(nil, 0, 0, 3); s.CurrentPhase != "init" || s.TotalScenarios != 3 {
		t.Errorf("Unexpected stats for nil snapshot: %+v", s)
	}
}

func TestUpdate_TTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true, ForceTTY: true})
	stats := &LiveStats{Progress: 0.5, CurrentPhase: "steady", FinishedScenarios: 1, TotalScenarios: 2}

	c.Update(stats)
	first := buf.String()
	if !strings.Contains(first, "Progress: [") || !strings.Contains(first, "50%") {
		t.Errorf("Unexpected live output: %q", first)
	}

	buf.Reset()
	c.Update(stats)
	if !strings.HasPrefix(buf.String(), "\033[3A") {
		t.Errorf("Expected redraw to move the cursor up, got %q", buf.String())
	}
}
