package loadtest

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/check"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             60 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the configured settings.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// SchedulerOptions configures a VUScheduler.
type SchedulerOptions struct {
	// Client is shared by all VUs. When nil one is created from HTTP.
	Client *http.Client
	HTTP   HTTPClientConfig

	Target Target
	Checks []check.Checker
	Logger *zap.Logger
}

// VUScheduler manages the Virtual Users of one scenario.
//
// It owns the VU pool and the shared HTTP client, and coordinates shutdown.
// Executors use it to spawn users.
type VUScheduler struct {
	scenario *isochrones.Scenario
	metrics  *metrics.Engine
	client   *http.Client
	target   Target
	checks   []check.Checker
	logger   *zap.Logger

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
}

// NewVUScheduler creates a new VU scheduler for scenario.
func NewVUScheduler(scenario *isochrones.Scenario, metricsEngine *metrics.Engine, opts SchedulerOptions) *VUScheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(opts.HTTP)
	}

	return &VUScheduler{
		scenario: scenario,
		metrics:  metricsEngine,
		client:   client,
		target:   opts.Target,
		checks:   opts.Checks,
		logger:   opts.Logger,
		vus:      make(map[int]*VirtualUser),
	}
}

// Scenario returns the scenario the scheduler's VUs run.
func (s *VUScheduler) Scenario() *isochrones.Scenario {
	return s.scenario
}

// SpawnVU creates and registers a new Virtual User. The caller runs it.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.scenario, s.client, s.metrics, s.target, s.checks, s.logger)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// SpawnedVUs returns the number of VUs spawned so far.
func (s *VUScheduler) SpawnedVUs() int {
	return int(s.nextVUID.Load())
}

// GetActiveVUCount returns the count of non-stopped VUs.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Shutdown stops all VUs and waits for them up to timeout.
//
// Returns the number of VUs that did not stop in time.
func (s *VUScheduler) Shutdown(timeout time.Duration) int {
	s.StopAllVUs()

	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		if vu.GetState() == VUStateStopped {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	if notStopped > 0 {
		s.logger.Warn("VUs did not stop in time",
			zap.String("scenario", s.scenario.Name()),
			zap.Int("count", notStopped),
		)
	}
	return notStopped
}
