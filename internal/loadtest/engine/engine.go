// Package engine runs a composed scenario matrix and evaluates the result.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heigit/isobench/internal/config"
	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest"
	"github.com/heigit/isobench/internal/loadtest/check"
	"github.com/heigit/isobench/internal/loadtest/executor"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// Engine runs composed scenarios against the routing service.
//
// It coordinates:
//   - one scheduler and executor per scenario
//   - parallel or sequential execution, in matrix order
//   - metrics collection and threshold evaluation
//
// Example usage:
//
//	eng, _ := engine.NewEngine(cfg, scenarios)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("Run passed: %v\n", result.Passed)
type Engine struct {
	config    *config.Config
	scenarios []*isochrones.Scenario
	checks    []check.Checker

	client        *http.Client
	metricsConfig metrics.EngineConfig
	metricsEngine *metrics.Engine
	logger        *zap.Logger

	runners  []*ScenarioRunner
	finished atomic.Int32
	mu       sync.RWMutex

	startTime time.Time
	running   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client built from the configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithMetricsConfig overrides the metrics engine configuration.
func WithMetricsConfig(cfg metrics.EngineConfig) Option {
	return func(e *Engine) {
		e.metricsConfig = cfg
	}
}

// ScenarioRunner manages the execution of a single scenario.
type ScenarioRunner struct {
	Scenario  *isochrones.Scenario
	Executor  executor.Executor
	Scheduler *loadtest.VUScheduler
	Result    *ScenarioResult
}

// ScenarioResult contains the results of a single scenario.
type ScenarioResult struct {
	Name             string                `json:"name"`
	Group            string                `json:"group"`
	SourceFile       string                `json:"sourceFile"`
	BatchSize        int                   `json:"batchSize"`
	RangeType        string                `json:"rangeType"`
	Executable       bool                  `json:"executable"`
	LoadError        string                `json:"loadError,omitempty"`
	Executor         string                `json:"executor"`
	Users            int                   `json:"users"`
	Duration         time.Duration         `json:"duration"`
	Iterations       int64                 `json:"iterations"`
	FailedIterations int64                 `json:"failedIterations"`
	Metrics          metrics.ScenarioStats `json:"metrics"`
	Error            string                `json:"error,omitempty"`
}

// TestResult contains the complete run results.
type TestResult struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	BaseURL   string        `json:"baseUrl"`
	Profile   string        `json:"profile"`
	Unit      string        `json:"testUnit"`
	Mode      string        `json:"mode"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Scenario results in matrix order
	Scenarios []*ScenarioResult `json:"scenarios"`

	// Aggregated metrics across all scenarios
	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error if the run was interrupted
	Error string `json:"error,omitempty"`
}

// NewEngine creates an engine for the composed scenarios.
//
// Returns an error if the configuration is invalid or a response check
// cannot be built.
func NewEngine(cfg *config.Config, scenarios []*isochrones.Scenario, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var checkOpts check.Options
	if cfg.Checks != nil {
		checkOpts = check.Options{FeatureCount: cfg.Checks.FeatureCount, ResponseSchema: cfg.Checks.ResponseSchema}
	}
	checks, err := check.Build(checkOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to build response checks: %w", err)
	}

	e := &Engine{
		config:        cfg,
		scenarios:     scenarios,
		checks:        checks,
		metricsConfig: metrics.DefaultEngineConfig(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		httpConfig := loadtest.DefaultHTTPClientConfig()
		httpConfig.Timeout = cfg.Timeout.GetDuration(httpConfig.Timeout)
		e.client = loadtest.NewHTTPClient(httpConfig)
	}

	return e, nil
}

// Run executes all scenarios and returns the results.
//
// Scenarios run concurrently when parallel execution is configured and one
// at a time in matrix order otherwise. Cancelling ctx stops in-flight users.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.finished.Store(0)
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	metricsEngine := metrics.NewEngineWithConfig(e.metricsConfig)
	defer metricsEngine.Stop()
	e.mu.Lock()
	e.metricsEngine = metricsEngine
	e.mu.Unlock()

	if err := e.initializeRunners(ctx, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize scenarios: %w", err)
	}

	mode := e.config.Mode()
	logger.Info("Starting run",
		zap.Int("scenarios", len(e.runners)),
		zap.Stringer("mode", mode),
		zap.String("base_url", e.config.BaseURL),
	)

	var runErr error
	if mode == isochrones.Parallel {
		runErr = e.runScenariosConcurrently(ctx, logger)
	} else {
		runErr = e.runScenariosSequentially(ctx, logger)
	}

	e.metricsEngine.SetPhase(metrics.PhaseDone)
	e.metricsEngine.Stop()

	finalMetrics := e.metricsEngine.GetSnapshot()
	thresholdResults := EvaluateThresholds(e.config.Thresholds, finalMetrics)

	passed := runErr == nil
	for _, tr := range thresholdResults {
		if !tr.Passed {
			passed = false
			break
		}
	}

	results := make([]*ScenarioResult, len(e.runners))
	for i, runner := range e.runners {
		if runner.Result == nil {
			runner.Result = newScenarioResult(runner)
			if runErr != nil {
				runner.Result.Error = runErr.Error()
			}
		}
		results[i] = runner.Result
	}

	result := &TestResult{
		RunID:      runID,
		Name:       e.config.Name,
		BaseURL:    e.config.BaseURL,
		Profile:    e.config.TargetProfile,
		Unit:       e.config.Unit().String(),
		Mode:       mode.String(),
		StartTime:  e.startTime,
		EndTime:    time.Now(),
		Duration:   time.Since(e.startTime),
		Scenarios:  results,
		Metrics:    finalMetrics,
		TimeSeries: e.metricsEngine.GetTimeSeries(),
		Passed:     passed,
		Thresholds: thresholdResults,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	logger.Info("Run finished",
		zap.Bool("passed", passed),
		zap.Int64("requests", finalMetrics.TotalRequests),
		zap.Int64("failed_requests", finalMetrics.FailedRequests),
		zap.Duration("duration", result.Duration),
	)

	return result, runErr
}

// initializeRunners creates a scheduler and executor for every scenario.
func (e *Engine) initializeRunners(ctx context.Context, logger *zap.Logger) error {
	target := loadtest.Target{
		BaseURL: e.config.BaseURL,
		APIKey:  e.config.APIKey,
		Headers: e.config.Headers,
	}

	runners := make([]*ScenarioRunner, 0, len(e.scenarios))
	for _, s := range e.scenarios {
		scheduler := loadtest.NewVUScheduler(s, e.metricsEngine, loadtest.SchedulerOptions{
			Client: e.client,
			Target: target,
			Checks: e.checks,
			Logger: logger,
		})

		execConfig := executor.ConfigForScenario(s)
		exec, err := executor.New(execConfig.Type)
		if err != nil {
			return fmt.Errorf("failed to create executor for scenario %s: %w", s.Name(), err)
		}
		if aou, ok := exec.(*executor.AtOnceUsers); ok {
			aou.WithLogger(logger)
		}
		if err := exec.Init(ctx, execConfig); err != nil {
			return fmt.Errorf("failed to initialize executor for scenario %s: %w", s.Name(), err)
		}

		runners = append(runners, &ScenarioRunner{
			Scenario:  s,
			Executor:  exec,
			Scheduler: scheduler,
		})
	}

	e.mu.Lock()
	e.runners = runners
	e.mu.Unlock()
	return nil
}

// runScenariosConcurrently runs all scenarios at the same time. Every
// scenario runs to completion; the first error is returned.
func (e *Engine) runScenariosConcurrently(ctx context.Context, logger *zap.Logger) error {
	var g errgroup.Group
	for _, runner := range e.runners {
		runner := runner
		g.Go(func() error {
			if err := e.runScenario(ctx, runner, logger); err != nil {
				return fmt.Errorf("scenario %s failed: %w", runner.Scenario.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// runScenariosSequentially runs scenarios one at a time in matrix order.
func (e *Engine) runScenariosSequentially(ctx context.Context, logger *zap.Logger) error {
	for i, runner := range e.runners {
		if err := ctx.Err(); err != nil {
			for _, skipped := range e.runners[i:] {
				skipped.Result = newScenarioResult(skipped)
				skipped.Result.Error = err.Error()
			}
			return err
		}

		if err := e.runScenario(ctx, runner, logger); err != nil {
			for _, skipped := range e.runners[i+1:] {
				skipped.Result = newScenarioResult(skipped)
				skipped.Result.Error = err.Error()
			}
			return fmt.Errorf("scenario %s failed: %w", runner.Scenario.Name(), err)
		}
	}
	return nil
}

// runScenario runs a single scenario and stores its result on the runner.
func (e *Engine) runScenario(ctx context.Context, runner *ScenarioRunner, logger *zap.Logger) error {
	s := runner.Scenario
	logger.Info("Starting scenario",
		zap.String("scenario", s.Name()),
		zap.String("group", s.Descriptor.Group),
		zap.Int("users", s.Injection.ConcurrentUsers),
	)

	startTime := time.Now()
	err := runner.Executor.Run(ctx, runner.Scheduler, e.metricsEngine)
	runner.Scheduler.Shutdown(5 * time.Second)

	result := newScenarioResult(runner)
	result.Duration = time.Since(startTime)
	stats := runner.Executor.GetStats()
	result.Iterations = stats.Iterations
	result.FailedIterations = stats.FailedIterations
	result.Metrics = e.metricsEngine.GetScenarioStats(s.Name())
	if err != nil {
		result.Error = err.Error()
	}
	runner.Result = result
	e.finished.Add(1)

	logger.Info("Scenario finished",
		zap.String("scenario", s.Name()),
		zap.Int64("iterations", result.Iterations),
		zap.Int64("failed_iterations", result.FailedIterations),
		zap.Duration("duration", result.Duration),
	)
	return err
}

func newScenarioResult(runner *ScenarioRunner) *ScenarioResult {
	s := runner.Scenario
	result := &ScenarioResult{
		Name:       s.Name(),
		Group:      s.Descriptor.Group,
		SourceFile: s.Descriptor.SourceFile,
		BatchSize:  s.Descriptor.BatchSize,
		RangeType:  s.Descriptor.RangeType.String(),
		Executable: s.Executable(),
		Executor:   string(runner.Executor.Type()),
		Users:      s.Injection.ConcurrentUsers,
	}
	if err := s.LoadErr(); err != nil {
		result.LoadError = err.Error()
	}
	return result
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.GetSnapshot()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop gracefully stops all running scenarios.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	if !e.running {
		e.mu.RUnlock()
		return nil
	}
	runners := e.runners
	e.mu.RUnlock()

	var lastErr error
	for _, runner := range runners {
		if err := runner.Executor.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GetScenarioCounts returns the number of finished scenarios and the total.
func (e *Engine) GetScenarioCounts() (finished, total int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int(e.finished.Load()), len(e.scenarios)
}

// GetProgress returns the overall progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.runners) == 0 {
		return 0.0
	}

	var total float64
	for _, runner := range e.runners {
		total += runner.Executor.GetProgress()
	}
	return total / float64(len(e.runners))
}
