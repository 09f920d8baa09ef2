// Package loadtest runs composed isochrone scenarios against a live service.
package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/check"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Target describes where requests are sent.
type Target struct {
	// BaseURL is prefixed to the scenario path
	BaseURL string

	// APIKey is sent as the Authorization header when set
	APIKey string

	// Headers are added to every request
	Headers map[string]string
}

// IterationError is returned by RunIteration when an iteration fails.
type IterationError struct {
	Class metrics.ErrorClass
	Err   error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

// VirtualUser is a single simulated user. Each iteration draws one batch
// from the scenario feed and sends one isochrones request.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	Scenario   *isochrones.Scenario
	HTTPClient *http.Client
	Metrics    *metrics.Engine
	Target     Target
	Checks     []check.Checker

	logger *zap.Logger

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, scenario *isochrones.Scenario, httpClient *http.Client, metricsEngine *metrics.Engine, target Target, checks []check.Checker, logger *zap.Logger) *VirtualUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualUser{
		ID:         id,
		Scenario:   scenario,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
		Target:     target,
		Checks:     checks,
		logger:     logger.With(zap.Int("vu", id)),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes a single iteration of the scenario and records its
// outcome in the metrics engine.
//
// Returns nil on success, an *IterationError when the iteration failed, or
// the context error if it was cancelled before a request was sent.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vu.state.Store(int32(VUStateRunning))
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	vu.iteration.Add(1)

	name := vu.Scenario.Name()

	req, err := vu.Scenario.NextRequest()
	if err != nil {
		class := classifyCoreError(err)
		vu.Metrics.RecordIteration(name, class)
		if class == metrics.ErrorFeedExhausted {
			vu.logger.Warn("Feed exhausted", zap.String("scenario", name))
		} else {
			vu.logger.Error("Failed to build request", zap.String("scenario", name), zap.Error(err))
		}
		return &IterationError{Class: class, Err: err}
	}

	result := vu.execute(ctx, req)

	class := metrics.ErrorClass("")
	switch {
	case result.Error != nil:
		class = metrics.ErrorTransport
	case result.StatusCode != req.ExpectedStatus:
		class = metrics.ErrorStatus
		result.Error = fmt.Errorf("unexpected status %d, want %d", result.StatusCode, req.ExpectedStatus)
	default:
		if err := check.Run(vu.Checks, req, result.Body); err != nil {
			class = metrics.ErrorCheck
			result.Error = err
		}
	}

	vu.Metrics.RecordLatency(result.Duration, name, class == "", result.BytesReceived)
	vu.Metrics.RecordIteration(name, class)

	if class != "" {
		vu.logger.Warn("Request failed",
			zap.String("scenario", name),
			zap.String("class", string(class)),
			zap.Int("status", result.StatusCode),
			zap.Duration("duration", result.Duration),
			zap.Error(result.Error),
		)
		return &IterationError{Class: class, Err: result.Error}
	}

	if ce := vu.logger.Check(zap.DebugLevel, "Request succeeded"); ce != nil {
		ce.Write(
			zap.String("scenario", name),
			zap.Int("locations", req.Locations),
			zap.Duration("duration", result.Duration),
			zap.Int64("bytes", result.BytesReceived),
		)
	}
	return nil
}

// classifyCoreError maps a NextRequest error onto an error class.
func classifyCoreError(err error) metrics.ErrorClass {
	switch {
	case errors.Is(err, isochrones.ErrFeedExhausted):
		return metrics.ErrorFeedExhausted
	case errors.Is(err, isochrones.ErrExtraction):
		return metrics.ErrorExtraction
	case errors.Is(err, isochrones.ErrAssembly):
		return metrics.ErrorAssembly
	default:
		return metrics.ErrorScenario
	}
}

// RequestResult contains the result of a single HTTP request.
type RequestResult struct {
	StartTime     time.Time
	Duration      time.Duration
	StatusCode    int
	BytesReceived int64
	Body          []byte
	Error         error
}

// execute sends the request and reads the full response body.
func (vu *VirtualUser) execute(ctx context.Context, req *isochrones.Request) *RequestResult {
	result := &RequestResult{StartTime: time.Now()}

	httpReq, err := vu.buildRequest(ctx, req)
	if err != nil {
		result.Duration = time.Since(result.StartTime)
		result.Error = fmt.Errorf("failed to build request: %w", err)
		return result
	}

	resp, err := vu.HTTPClient.Do(httpReq)
	if err != nil {
		result.Duration = time.Since(result.StartTime)
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	result.Duration = time.Since(result.StartTime)
	result.StatusCode = resp.StatusCode
	if err != nil {
		result.Error = fmt.Errorf("failed to read response body: %w", err)
		return result
	}

	result.BytesReceived = int64(len(body))
	result.Body = body
	return result
}

// buildRequest builds the HTTP request for an isochrones call.
func (vu *VirtualUser) buildRequest(ctx context.Context, req *isochrones.Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, vu.Target.BaseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Accept", "application/geo+json, application/json")
	for key, value := range vu.Target.Headers {
		httpReq.Header.Set(key, value)
	}
	if vu.Target.APIKey != "" {
		httpReq.Header.Set("Authorization", vu.Target.APIKey)
	}

	return httpReq, nil
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopping returns a channel closed once the VU was asked to stop.
func (vu *VirtualUser) Stopping() <-chan struct{} {
	return vu.stopCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called by the executor when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
