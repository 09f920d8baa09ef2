package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine aggregates request latencies and iteration outcomes using HDR
// histograms, overall and per scenario.
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms are guarded by mutexes and the bucket emitter runs in its own
// goroutine until Stop.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	scenarios   map[string]*scenarioMetrics
	scenariosMu sync.RWMutex

	totalRequests    atomic.Int64
	successRequests  atomic.Int64
	failedRequests   atomic.Int64
	totalBytes       atomic.Int64
	iterations       atomic.Int64
	failedIterations atomic.Int64

	errors   map[ErrorClass]int64
	errorsMu sync.Mutex

	activeVUs atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

// scenarioMetrics holds the counters of one scenario.
type scenarioMetrics struct {
	mu               sync.Mutex
	hist             *hdrhistogram.Histogram
	requests         int64
	failed           int64
	bytes            int64
	iterations       int64
	failedIterations int64
	errors           map[ErrorClass]int64
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		scenarios:     make(map[string]*scenarioMetrics),
		errors:        make(map[ErrorClass]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	engine.emitterWg.Add(1)
	go engine.runEmitter()

	return engine
}

// RecordLatency records a request that received a response or failed on
// the wire.
//
// Parameters:
//   - duration: The request latency
//   - scenario: Scenario name for the per-scenario breakdown (empty string to skip)
//   - success: Whether the request passed the status and response checks
//   - bytes: Number of bytes received
func (e *Engine) RecordLatency(duration time.Duration, scenario string, success bool, bytes int64) {
	latencyMicros := e.clamp(duration.Microseconds())

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}
	e.bucketStore.RecordRequest(success)

	if scenario == "" {
		return
	}
	sm := e.scenario(scenario)
	sm.mu.Lock()
	_ = sm.hist.RecordValue(latencyMicros)
	sm.requests++
	sm.bytes += bytes
	if !success {
		sm.failed++
	}
	sm.mu.Unlock()
}

// RecordIteration records the outcome of one user iteration. An empty class
// means the iteration succeeded.
func (e *Engine) RecordIteration(scenario string, class ErrorClass) {
	e.iterations.Add(1)
	if class != "" {
		e.failedIterations.Add(1)
		e.errorsMu.Lock()
		e.errors[class]++
		e.errorsMu.Unlock()
	}

	if scenario == "" {
		return
	}
	sm := e.scenario(scenario)
	sm.mu.Lock()
	sm.iterations++
	if class != "" {
		sm.failedIterations++
		sm.errors[class]++
	}
	sm.mu.Unlock()
}

// scenario returns the metrics of a scenario, creating them on first use.
func (e *Engine) scenario(name string) *scenarioMetrics {
	e.scenariosMu.RLock()
	sm, ok := e.scenarios[name]
	e.scenariosMu.RUnlock()
	if ok {
		return sm
	}

	e.scenariosMu.Lock()
	defer e.scenariosMu.Unlock()
	if sm, ok = e.scenarios[name]; ok {
		return sm
	}
	sm = &scenarioMetrics{
		hist:   hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		errors: make(map[ErrorClass]int64),
	}
	e.scenarios[name] = sm
	return sm
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// SetPhase updates the current phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// AddActiveVUs adjusts the active VU count by delta.
func (e *Engine) AddActiveVUs(delta int) {
	e.activeVUs.Add(int32(delta))
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.CreateBucket(
		e.totalRequests.Load(), e.failedRequests.Load(),
		e.GetLatencyPercentiles(), e.GetActiveVUs(), e.GetPhase(),
	)
}

// GetLatencyPercentiles returns current latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	return &Snapshot{
		TotalRequests:    totalReqs,
		SuccessRequests:  e.successRequests.Load(),
		FailedRequests:   failedReqs,
		TotalBytes:       e.totalBytes.Load(),
		Iterations:       e.iterations.Load(),
		FailedIterations: e.failedIterations.Load(),
		Errors:           e.GetErrorCounts(),
		Latency:          latency,
		RPS:              rps,
		ErrorRate:        rate(failedReqs, totalReqs),
		ActiveVUs:        e.GetActiveVUs(),
		CurrentPhase:     e.GetPhase(),
		Elapsed:          elapsed,
		StartTime:        e.startTime,
		Timestamp:        time.Now(),
	}
}

// GetErrorCounts returns failed iterations by class.
func (e *Engine) GetErrorCounts() map[ErrorClass]int64 {
	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()

	result := make(map[ErrorClass]int64, len(e.errors))
	for k, v := range e.errors {
		result[k] = v
	}
	return result
}

// GetScenarioStats returns the breakdown of one scenario. A scenario that
// recorded nothing yields zero stats.
func (e *Engine) GetScenarioStats(name string) ScenarioStats {
	e.scenariosMu.RLock()
	sm, ok := e.scenarios[name]
	e.scenariosMu.RUnlock()
	if !ok {
		return ScenarioStats{}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	errs := make(map[ErrorClass]int64, len(sm.errors))
	for k, v := range sm.errors {
		errs[k] = v
	}
	return ScenarioStats{
		TotalRequests:    sm.requests,
		FailedRequests:   sm.failed,
		TotalBytes:       sm.bytes,
		Iterations:       sm.iterations,
		FailedIterations: sm.failedIterations,
		Errors:           errs,
		ErrorRate:        rate(sm.failed, sm.requests),
		Latency:          latencyStats(sm.hist),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// Stop stops the emitter and emits a final bucket. It is safe to call more
// than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
