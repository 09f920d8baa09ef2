package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/heigit/isobench/internal/config"
	"github.com/heigit/isobench/internal/loadtest/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// redacted replaces secrets in the report's copy of the configuration.
const redacted = "[redacted]"

// Report is the JSON document written after a run.
type Report struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Config      *config.Config     `json:"config,omitempty"`
	Result      *engine.TestResult `json:"result"`
}

// NewReport builds a report for result. The API key of cfg is redacted.
func NewReport(cfg *config.Config, result *engine.TestResult) *Report {
	r := &Report{GeneratedAt: time.Now().UTC(), Result: result}
	if cfg != nil {
		c := *cfg
		if c.APIKey != "" {
			c.APIKey = redacted
		}
		r.Config = &c
	}
	return r
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteReport writes the report to path, creating parent directories.
func WriteReport(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReport reads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
