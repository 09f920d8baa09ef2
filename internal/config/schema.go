// Package config provides configuration parsing and validation for isochrone
// range benchmarks.
package config

import (
	"time"
)

// Config is the root configuration of a benchmark run.
//
// Example YAML:
//
//	name: "Heidelberg isochrones"
//	baseUrl: "http://localhost:8082/ors"
//	targetProfile: driving-car
//	sourceFiles:
//	  - data/heidelberg.csv
//	querySizes: [1, 5, 10]
//	ranges: [300, 600]
//	testUnit: distance
//	numConcurrentUsers: 10
//	parallelExecution: false
//	fieldLon: lon
//	fieldLat: lat
type Config struct {
	// Name of the run (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// BaseURL of the routing service, without the /v2 path
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// APIKey is sent as the Authorization header when set
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// TargetProfile selects the endpoint and filters source records
	TargetProfile string `json:"targetProfile" yaml:"targetProfile"`

	// SourceFiles are the CSV files coordinates are drawn from
	SourceFiles []string `json:"sourceFiles" yaml:"sourceFiles"`

	// QuerySizes are the numbers of locations per request
	QuerySizes []int `json:"querySizes" yaml:"querySizes"`

	// Ranges are the isochrone range values sent with every request
	Ranges []float64 `json:"ranges" yaml:"ranges"`

	// TestUnit is "distance" or "time"
	TestUnit string `json:"testUnit" yaml:"testUnit"`

	// NumConcurrentUsers is the number of users started at once per scenario
	NumConcurrentUsers int `json:"numConcurrentUsers" yaml:"numConcurrentUsers"`

	// ParallelExecution runs all scenarios at the same time
	ParallelExecution bool `json:"parallelExecution,omitempty" yaml:"parallelExecution,omitempty"`

	// FieldLon, FieldLat and FieldProfile name the source columns
	FieldLon     string `json:"fieldLon" yaml:"fieldLon"`
	FieldLat     string `json:"fieldLat" yaml:"fieldLat"`
	FieldProfile string `json:"fieldProfile,omitempty" yaml:"fieldProfile,omitempty"`

	// FeedStrategy is "queue" (default) or "circular"
	FeedStrategy string `json:"feedStrategy,omitempty" yaml:"feedStrategy,omitempty"`

	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Headers are added to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Checks are response checks applied on top of the status check
	Checks *ChecksConfig `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Thresholds define pass/fail criteria for metrics
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ChecksConfig enables additional response validation.
type ChecksConfig struct {
	// FeatureCount requires one GeoJSON feature per location and range
	FeatureCount bool `json:"featureCount,omitempty" yaml:"featureCount,omitempty"`

	// ResponseSchema is the path of a JSON schema the response must satisfy
	ResponseSchema string `json:"responseSchema,omitempty" yaml:"responseSchema,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 2s", "avg < 500ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 10"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
