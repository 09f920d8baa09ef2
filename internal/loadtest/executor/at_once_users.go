package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/heigit/isobench/internal/loadtest"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// AtOnceUsers injects all users at once without ramp-up. Each user runs
// exactly one iteration, so the scenario ends when the slowest user does.
//
// A scenario without an executable step completes immediately with zero
// iterations.
type AtOnceUsers struct {
	config *Config
	logger *zap.Logger

	startTime  time.Time
	endTime    atomic.Int64
	activeVUs  atomic.Int32
	iterations atomic.Int64
	failed     atomic.Int64
	running    atomic.Bool

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewAtOnceUsers creates a new at-once-users executor.
func NewAtOnceUsers() *AtOnceUsers {
	return &AtOnceUsers{logger: zap.NewNop()}
}

// WithLogger sets the logger used for lifecycle events.
func (e *AtOnceUsers) WithLogger(logger *zap.Logger) *AtOnceUsers {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Type returns the executor type.
func (e *AtOnceUsers) Type() Type {
	return TypeAtOnceUsers
}

// Init initializes the executor with configuration.
func (e *AtOnceUsers) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeAtOnceUsers {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeAtOnceUsers, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run injects the users and blocks until each has finished its iteration.
func (e *AtOnceUsers) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer func() {
		e.endTime.Store(time.Now().UnixNano())
		e.running.Store(false)
	}()

	scenario := scheduler.Scenario()
	if !scenario.Executable() {
		e.logger.Warn("Skipping scenario without executable step",
			zap.String("scenario", scenario.Name()),
			zap.Error(scenario.LoadErr()),
		)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	metricsEngine.SetPhase(metrics.PhaseInjecting)
	e.logger.Debug("Injecting users",
		zap.String("scenario", scenario.Name()),
		zap.Int("users", e.config.Users),
	)

	for i := 0; i < e.config.Users; i++ {
		vu := scheduler.SpawnVU()
		e.wg.Add(1)
		go e.runVU(runCtx, vu, metricsEngine)
	}
	metricsEngine.SetPhase(metrics.PhaseSteady)

	e.wg.Wait()

	return ctx.Err()
}

// runVU runs a single iteration of one VU.
func (e *AtOnceUsers) runVU(ctx context.Context, vu *loadtest.VirtualUser, metricsEngine *metrics.Engine) {
	defer e.wg.Done()
	defer vu.MarkStopped()

	e.activeVUs.Add(1)
	metricsEngine.AddActiveVUs(1)
	defer func() {
		e.activeVUs.Add(-1)
		metricsEngine.AddActiveVUs(-1)
	}()

	err := vu.RunIteration(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}

	e.iterations.Add(1)
	if err != nil {
		e.failed.Add(1)
	}
}

// GetProgress returns the fraction of users that finished.
func (e *AtOnceUsers) GetProgress() float64 {
	if e.config == nil || e.config.Users == 0 {
		return 0
	}
	if !e.running.Load() && e.endTime.Load() != 0 {
		return 1
	}

	progress := float64(e.iterations.Load()) / float64(e.config.Users)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *AtOnceUsers) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *AtOnceUsers) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.startTime.IsZero() {
		if end := e.endTime.Load(); end != 0 {
			elapsed = time.Unix(0, end).Sub(e.startTime)
		} else {
			elapsed = time.Since(e.startTime)
		}
	}

	var target int
	if e.config != nil {
		target = e.config.Users
	}

	return &Stats{
		StartTime:        e.startTime,
		Elapsed:          elapsed,
		ActiveVUs:        int(e.activeVUs.Load()),
		TargetVUs:        target,
		Iterations:       e.iterations.Load(),
		FailedIterations: e.failed.Load(),
		TotalIterations:  int64(target),
	}
}

// Stop cancels in-flight requests and waits for the users to exit.
func (e *AtOnceUsers) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	graceful := 30 * time.Second
	if e.config != nil && e.config.GracefulStop > 0 {
		graceful = e.config.GracefulStop
	}

	select {
	case <-done:
		return nil
	case <-time.After(graceful):
		return fmt.Errorf("graceful stop timeout after %v", graceful)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Executor = (*AtOnceUsers)(nil)
