// Package metrics collects latency and outcome metrics for a benchmark run.
package metrics

import "time"

// Phase represents a phase of the run.
type Phase string

const (
	// PhaseInit is the phase before any scenario starts
	PhaseInit Phase = "init"

	// PhaseInjecting is the phase in which users are being started
	PhaseInjecting Phase = "injecting"

	// PhaseSteady is the phase in which all users have been started
	PhaseSteady Phase = "steady"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// ErrorClass names the step at which an iteration failed.
type ErrorClass string

const (
	// ErrorFeedExhausted means the feed had no records left for the user.
	ErrorFeedExhausted ErrorClass = "feed_exhausted"

	// ErrorExtraction means a coordinate could not be parsed.
	ErrorExtraction ErrorClass = "extraction"

	// ErrorAssembly means the request body could not be built.
	ErrorAssembly ErrorClass = "assembly"

	// ErrorScenario means the scenario could not draw a batch for another
	// reason, such as a non-positive batch size.
	ErrorScenario ErrorClass = "scenario"

	// ErrorTransport means the request did not produce a response.
	ErrorTransport ErrorClass = "transport"

	// ErrorStatus means the response status was not the expected one.
	ErrorStatus ErrorClass = "status"

	// ErrorCheck means a response check rejected the body.
	ErrorCheck ErrorClass = "check"
)

// Sent reports whether an iteration failing with this class put a request
// on the wire.
func (c ErrorClass) Sent() bool {
	switch c {
	case ErrorTransport, ErrorStatus, ErrorCheck:
		return true
	default:
		return false
	}
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// TotalRequests is the number of requests sent
	TotalRequests int64 `json:"totalRequests"`

	// SuccessRequests is the number of requests that passed every check
	SuccessRequests int64 `json:"successRequests"`

	// FailedRequests is the number of requests that failed
	FailedRequests int64 `json:"failedRequests"`

	// TotalBytes is the total bytes received
	TotalBytes int64 `json:"totalBytes"`

	// Iterations is the number of user iterations that finished
	Iterations int64 `json:"iterations"`

	// FailedIterations includes iterations that never sent a request
	FailedIterations int64 `json:"failedIterations"`

	// Errors counts failed iterations by class
	Errors map[ErrorClass]int64 `json:"errors,omitempty"`

	// Latency contains latency statistics
	Latency LatencyStats `json:"latency"`

	// RPS is the average requests per second
	RPS float64 `json:"rps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// ActiveVUs is the current number of active virtual users
	ActiveVUs int `json:"activeVUs"`

	// CurrentPhase is the current phase
	CurrentPhase Phase `json:"currentPhase"`

	// Elapsed is the time elapsed since the engine started
	Elapsed time.Duration `json:"elapsed"`

	// StartTime is when the engine started
	StartTime time.Time `json:"startTime"`

	// Timestamp is when this snapshot was taken
	Timestamp time.Time `json:"timestamp"`
}

// ScenarioStats is the per-scenario breakdown of a run.
type ScenarioStats struct {
	TotalRequests    int64                `json:"totalRequests"`
	FailedRequests   int64                `json:"failedRequests"`
	TotalBytes       int64                `json:"totalBytes"`
	Iterations       int64                `json:"iterations"`
	FailedIterations int64                `json:"failedIterations"`
	Errors           map[ErrorClass]int64 `json:"errors,omitempty"`
	ErrorRate        float64              `json:"errorRate"`
	Latency          LatencyStats         `json:"latency"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// TimeBucket captures the state of the run at the end of one interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters
	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`

	// Interval metrics
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase
	Timestamp time.Time
	Requests  int64
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}
