package config

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/heigit/isobench/internal/isochrones"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the names of all failing fields, in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validate validates the configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all problems found.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(c, errs)
	validateMatrix(c, errs)

	if c.NumConcurrentUsers <= 0 {
		errs.Add("numConcurrentUsers", "numConcurrentUsers must be greater than 0")
	}
	if c.Timeout < 0 {
		errs.Add("timeout", "timeout cannot be negative")
	}
	if _, err := isochrones.ParseExhaustionPolicy(c.FeedStrategy); err != nil {
		errs.Add("feedStrategy", err.Error())
	}
	if c.FieldLon == "" {
		errs.Add("fieldLon", "fieldLon is required")
	}
	if c.FieldLat == "" {
		errs.Add("fieldLat", "fieldLat is required")
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateTarget validates the service endpoint settings.
func validateTarget(c *Config, errs *ValidationErrors) {
	if c.BaseURL == "" {
		errs.Add("baseUrl", "baseUrl is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs.Add("baseUrl", fmt.Sprintf("invalid URL: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("baseUrl", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	} else if u.Host == "" {
		errs.Add("baseUrl", "host is required")
	}

	if strings.TrimSpace(c.TargetProfile) == "" {
		errs.Add("targetProfile", "targetProfile is required")
	}
}

// validateMatrix validates the dimensions of the scenario matrix.
func validateMatrix(c *Config, errs *ValidationErrors) {
	if len(c.SourceFiles) == 0 {
		errs.Add("sourceFiles", "at least one source file is required")
	}
	for i, f := range c.SourceFiles {
		if strings.TrimSpace(f) == "" {
			errs.Add(fmt.Sprintf("sourceFiles[%d]", i), "path cannot be empty")
		}
	}

	if len(c.QuerySizes) == 0 {
		errs.Add("querySizes", "at least one query size is required")
	}
	for i, n := range c.QuerySizes {
		if n < 1 {
			errs.Add(fmt.Sprintf("querySizes[%d]", i), "query size must be at least 1")
		}
	}

	if len(c.Ranges) == 0 {
		errs.Add("ranges", "at least one range value is required")
	}
	for i, r := range c.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			errs.Add(fmt.Sprintf("ranges[%d]", i), "range must be a positive number")
		}
	}

	if c.TestUnit == "" {
		errs.Add("testUnit", "testUnit is required")
	} else if _, err := isochrones.ParseTestUnit(c.TestUnit); err != nil {
		errs.Add("testUnit", err.Error())
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, threshold := range t.HTTPReqDuration {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqFailed {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqs {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_reqs[%d]", i), err.Error())
		}
	}
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<|>)\s*(\S.*)$`)

var validThresholdMetrics = map[string]bool{
	"p50": true, "p90": true, "p95": true, "p99": true,
	"min": true, "max": true, "avg": true, "med": true,
	"rate": true, "count": true,
}

// validateThresholdExpression validates a threshold expression.
//
// Valid formats:
//   - "p95 < 500ms"
//   - "avg < 200ms"
//   - "rate < 0.01"
//   - "count > 1000"
func validateThresholdExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return fmt.Errorf("threshold must have the form '<metric> <op> <value>' with op one of <, >, <=, >=, ==, !=")
	}
	if !validThresholdMetrics[m[1]] {
		return fmt.Errorf("threshold must start with a valid metric (p50, p90, p95, p99, min, max, avg, med, rate, count)")
	}
	return nil
}
