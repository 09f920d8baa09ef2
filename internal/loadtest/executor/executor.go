// Package executor provides injection strategies for benchmark scenarios.
package executor

import (
	"context"
	"time"

	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest"
	"github.com/heigit/isobench/internal/loadtest/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeAtOnceUsers starts a fixed number of users at time zero, each
	// running a single iteration.
	TypeAtOnceUsers Type = "at-once-users"
)

// Executor defines the interface for injection strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until completion.
	// The executor should respect context cancellation for graceful shutdown.
	Run(ctx context.Context, scheduler *loadtest.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop gracefully stops the executor.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Users is the number of users injected at once
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// Graceful stop timeout
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// ConfigForScenario derives the executor configuration from a scenario's
// injection profile.
func ConfigForScenario(s *isochrones.Scenario) *Config {
	return &Config{
		Name:  s.Name(),
		Type:  TypeAtOnceUsers,
		Users: s.Injection.ConcurrentUsers,
	}
}

// Stats contains executor statistics.
type Stats struct {
	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations       int64 `json:"iterations"`
	FailedIterations int64 `json:"failedIterations"`
	TotalIterations  int64 `json:"totalIterations"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeAtOnceUsers:
		if c.Users <= 0 {
			return &ValidationError{Field: "users", Message: "users must be > 0"}
		}
	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// New creates an uninitialized executor of the given type.
func New(t Type) (Executor, error) {
	switch t {
	case TypeAtOnceUsers:
		return NewAtOnceUsers(), nil
	default:
		return nil, &ValidationError{Field: "type", Message: "unknown executor type: " + string(t)}
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
