// Package output renders benchmark progress and results.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heigit/isobench/internal/config"
	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/engine"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress float64
	Elapsed  time.Duration

	ActiveVUs         int
	FinishedScenarios int
	TotalScenarios    int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
}

// ConsoleOutput writes the run header, live progress and final summary.
type ConsoleOutput struct {
	writer io.Writer
	colors *ColorScheme
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(cfg ConsoleOutputConfig) *ConsoleOutput {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	var colors *ColorScheme
	switch {
	case cfg.NoColor:
		colors = NoColorScheme()
	case cfg.ForceColors:
		colors = ForcedColorScheme()
	case isTTY && supportsColors():
		colors = DefaultColorScheme()
	default:
		colors = NoColorScheme()
	}

	return &ConsoleOutput{
		writer: cfg.Writer,
		colors: colors,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintConfig echoes the resolved run configuration before the run starts.
func (c *ConsoleOutput) PrintConfig(cfg *config.Config, scenarios int) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rule()
	c.writeln(c.colors.Title.Sprintf("%s - Running", cfg.Name))
	c.rule()
	c.writeln("")

	c.field("Base URL", cfg.BaseURL)
	c.field("Profile", cfg.TargetProfile)
	c.field("Source files", strings.Join(cfg.SourceFiles, ", "))
	c.field("Query sizes", joinInts(cfg.QuerySizes))
	c.field("Ranges", joinFloats(cfg.Ranges))
	c.field("Test unit", cfg.TestUnit)
	c.field("Users", fmt.Sprintf("%d (all at once)", cfg.NumConcurrentUsers))
	c.field("Execution", cfg.Mode().String())
	c.field("Feed", cfg.FeedStrategy)
	c.field("Scenarios", fmt.Sprintf("%d", scenarios))
	c.writeln("")
}

// PrintMatrix prints the scenario matrix without running it.
func (c *ConsoleOutput) PrintMatrix(descriptors []isochrones.ScenarioDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := ""
	for i, d := range descriptors {
		if d.Group != group {
			if group != "" {
				c.writeln("")
			}
			group = d.Group
			c.writeln(c.colors.Highlight.Sprint(group))
		}
		c.writeln(fmt.Sprintf("  %3d  %s  %s",
			i+1,
			c.colors.Scenario.Sprint(d.Name),
			c.colors.Dim.Sprintf("(%s, batch %d, %s)", d.SourceFile, d.BatchSize, d.RangeType)))
	}
	c.writeln("")
	c.writeln(fmt.Sprintf("%s scenarios", c.colors.Value.Sprint(len(descriptors))))
}

// Update redraws the live progress block. It does nothing unless the
// output is a terminal.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Scenarios: %d/%d | VUs: %d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.FinishedScenarios,
		stats.TotalScenarios,
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	bar := renderProgressBar(stats.Progress, 40)
	errColor := c.colors.rateColor(stats.ErrorRate)

	return []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Success.Sprint(bar),
			c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
			c.colors.Dim.Sprint(formatDuration(stats.Elapsed))),
		fmt.Sprintf("Phase:    %s (%d/%d scenarios)",
			c.colors.Highlight.Sprint(stats.CurrentPhase), stats.FinishedScenarios, stats.TotalScenarios),
		fmt.Sprintf("VUs: %s  Requests: %s  RPS: %s  Errors: %s  P95: %s",
			c.colors.Value.Sprint(stats.ActiveVUs),
			c.colors.Value.Sprint(formatNumber(stats.TotalRequests)),
			c.colors.Success.Sprintf("%.1f", stats.CurrentRPS),
			errColor.Sprintf("%d (%.1f%%)", stats.Errors, stats.ErrorRate*100),
			c.colors.Value.Sprint(formatDurationShort(stats.LatencyP95))),
	}
}

// PrintSummary prints the final run summary.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	status := c.colors.Success.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.Error.Sprint("Failed ✗")
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.rule()
	c.writeln("")

	c.field("Run ID", result.RunID)
	c.field("Duration", formatDuration(result.Duration))
	if m := result.Metrics; m != nil {
		c.field("Total Reqs", formatNumber(m.TotalRequests))
		c.field("Iterations", fmt.Sprintf("%s (%s failed)", formatNumber(m.Iterations), formatNumber(m.FailedIterations)))

		successRate := 1.0 - m.ErrorRate
		c.writeln(fmt.Sprintf("%-14s %s", c.colors.Label.Sprint("Success Rate:"),
			c.colors.rateColor(m.ErrorRate).Sprintf("%.1f%%", successRate*100)))
	}
	if result.Error != "" {
		c.writeln(fmt.Sprintf("%-14s %s", c.colors.Label.Sprint("Error:"), c.colors.Error.Sprint(result.Error)))
	}
	c.writeln("")

	if len(result.Scenarios) > 0 {
		c.writeln(c.colors.Title.Sprint("Scenarios:"))
		for _, s := range result.Scenarios {
			if s == nil {
				continue
			}
			c.writeln(c.scenarioLine(s))
		}
		c.writeln("")
	}

	if m := result.Metrics; m != nil && m.Latency.Count > 0 {
		c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	if m := result.Metrics; m != nil && len(m.Errors) > 0 {
		c.writeln(c.colors.Title.Sprint("Failures:"))
		for _, class := range sortedClasses(m.Errors) {
			c.writeln(fmt.Sprintf("  %-16s %s", string(class), c.colors.Error.Sprint(formatNumber(m.Errors[class]))))
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.colors.SuccessIcon()
			if !t.Passed {
				icon = c.colors.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

func (c *ConsoleOutput) scenarioLine(s *engine.ScenarioResult) string {
	if !s.Executable {
		return fmt.Sprintf("  %s %s %s",
			c.colors.WarningIcon(),
			c.colors.Scenario.Sprint(s.Name),
			c.colors.Dim.Sprintf("skipped: %s", s.LoadError))
	}

	icon := c.colors.SuccessIcon()
	if s.FailedIterations > 0 || s.Error != "" {
		icon = c.colors.ErrorIcon()
	}

	return fmt.Sprintf("  %s %s %s  reqs %s  failed %s  p95 %s",
		icon,
		c.colors.Scenario.Sprint(s.Name),
		c.colors.Dim.Sprintf("[%s]", s.RangeType),
		formatNumber(s.Metrics.TotalRequests),
		c.colors.rateColor(s.Metrics.ErrorRate).Sprint(formatNumber(s.FailedIterations)),
		formatDurationShort(s.Metrics.Latency.P95))
}

// clearLive erases the live progress block. Callers hold c.mu.
func (c *ConsoleOutput) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) rule() {
	c.writeln(c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, 56)))
}

func (c *ConsoleOutput) field(label, value string) {
	c.writeln(fmt.Sprintf("%-14s %s", c.colors.Label.Sprint(label+":"), c.colors.Value.Sprint(value)))
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromMetrics creates LiveStats from a metrics snapshot.
func StatsFromMetrics(snapshot *metrics.Snapshot, progress float64, finished, total int) *LiveStats {
	if snapshot == nil {
		return &LiveStats{
			Progress:       progress,
			TotalScenarios: total,
			CurrentPhase:   string(metrics.PhaseInit),
		}
	}

	return &LiveStats{
		Progress:          progress,
		Elapsed:           snapshot.Elapsed,
		ActiveVUs:         snapshot.ActiveVUs,
		FinishedScenarios: finished,
		TotalScenarios:    total,
		CurrentRPS:        snapshot.RPS,
		TotalRequests:     snapshot.TotalRequests,
		Errors:            snapshot.FailedRequests,
		ErrorRate:         snapshot.ErrorRate,
		LatencyP95:        snapshot.Latency.P95,
		LatencyAvg:        snapshot.Latency.Mean,
		CurrentPhase:      string(snapshot.CurrentPhase),
	}
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func sortedClasses(errs map[metrics.ErrorClass]int64) []metrics.ErrorClass {
	classes := make([]metrics.ErrorClass, 0, len(errs))
	for class := range errs {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency value.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ", ")
}
