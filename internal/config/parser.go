package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/heigit/isobench/internal/isochrones"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultName         = "Isochrones range load test"
	DefaultFieldLon     = "longitude"
	DefaultFieldLat     = "latitude"
	DefaultTimeout      = 60 * time.Second
	DefaultUsers        = 1
	DefaultFeedStrategy = string(isochrones.ExhaustQueue)
)

// LoadConfig loads a benchmark configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ApplyDefaults fills in unset optional fields.
func ApplyDefaults(c *Config) {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.FieldLon == "" {
		c.FieldLon = DefaultFieldLon
	}
	if c.FieldLat == "" {
		c.FieldLat = DefaultFieldLat
	}
	if c.FieldProfile == "" {
		c.FieldProfile = isochrones.DefaultProfileField
	}
	if c.FeedStrategy == "" {
		c.FeedStrategy = DefaultFeedStrategy
	}
	if c.NumConcurrentUsers == 0 {
		c.NumConcurrentUsers = DefaultUsers
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// Unit returns the parsed test unit. Call Validate first.
func (c *Config) Unit() isochrones.TestUnit {
	u, _ := isochrones.ParseTestUnit(c.TestUnit)
	return u
}

// Policy returns the parsed feed exhaustion policy. Call Validate first.
func (c *Config) Policy() isochrones.ExhaustionPolicy {
	p, _ := isochrones.ParseExhaustionPolicy(c.FeedStrategy)
	return p
}

// Mode returns the execution mode.
func (c *Config) Mode() isochrones.ExecutionMode {
	return isochrones.ExecutionMode(c.ParallelExecution)
}

// MatrixConfig returns the dimensions the scenario matrix is built from.
func (c *Config) MatrixConfig() isochrones.MatrixConfig {
	return isochrones.MatrixConfig{
		SourceFiles:     c.SourceFiles,
		BatchSizes:      c.QuerySizes,
		Unit:            c.Unit(),
		Mode:            c.Mode(),
		ConcurrentUsers: c.NumConcurrentUsers,
		Ranges:          c.Ranges,
	}
}

// ComposerConfig returns the settings shared by every composed scenario.
func (c *Config) ComposerConfig() isochrones.ComposerConfig {
	return isochrones.ComposerConfig{
		TargetProfile: c.TargetProfile,
		ProfileField:  c.FieldProfile,
		Fields:        isochrones.CoordinateFields{Lon: c.FieldLon, Lat: c.FieldLat},
		Ranges:        c.Ranges,
		Policy:        c.Policy(),
		Injection:     isochrones.InjectionProfile{ConcurrentUsers: c.NumConcurrentUsers},
	}
}
