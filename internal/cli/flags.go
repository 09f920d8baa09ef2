package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heigit/isobench/internal/config"
)

// configFlags are the flags that load a configuration file and override its
// values. Only flags set on the command line override the file.
type configFlags struct {
	path string

	name           string
	baseURL        string
	apiKey         string
	profile        string
	sourceFiles    []string
	querySizes     []int
	ranges         []float64
	unit           string
	users          int
	parallel       bool
	fieldLon       string
	fieldLat       string
	fieldProfile   string
	feedStrategy   string
	timeout        time.Duration
	featureCount   bool
	responseSchema string
}

func (f *configFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.path, "config", "c", "", "Configuration file (YAML or JSON)")
	flags.StringVar(&f.name, "name", "", "Name of the run")
	flags.StringVar(&f.baseURL, "base-url", "", "Base URL of the routing service")
	flags.StringVar(&f.apiKey, "api-key", "", "API key sent as the Authorization header")
	flags.StringVar(&f.profile, "profile", "", "Routing profile to target")
	flags.StringSliceVar(&f.sourceFiles, "source", nil, "CSV source file (repeatable)")
	flags.IntSliceVar(&f.querySizes, "query-sizes", nil, "Numbers of locations per request")
	flags.Float64SliceVar(&f.ranges, "ranges", nil, "Isochrone range values")
	flags.StringVar(&f.unit, "unit", "", "Test unit (distance, time)")
	flags.IntVar(&f.users, "users", 0, "Users started at once per scenario")
	flags.BoolVar(&f.parallel, "parallel", false, "Run all scenarios at the same time")
	flags.StringVar(&f.fieldLon, "field-lon", "", "Longitude column name")
	flags.StringVar(&f.fieldLat, "field-lat", "", "Latitude column name")
	flags.StringVar(&f.fieldProfile, "field-profile", "", "Profile column name")
	flags.StringVar(&f.feedStrategy, "feed-strategy", "", "Feed exhaustion policy (queue, circular)")
	flags.DurationVar(&f.timeout, "timeout", 0, "HTTP request timeout")
	flags.BoolVar(&f.featureCount, "check-features", false, "Require one feature per location and range")
	flags.StringVar(&f.responseSchema, "response-schema", "", "JSON schema the response must match")
}

// load reads the configuration file, applies overrides and defaults, and
// validates the result.
func (f *configFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if f.path != "" {
		loaded, err := config.LoadConfig(f.path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f.apply(cmd, cfg)
	config.ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (f *configFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("name") {
		cfg.Name = f.name
	}
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if changed("profile") {
		cfg.TargetProfile = f.profile
	}
	if changed("source") {
		cfg.SourceFiles = f.sourceFiles
	}
	if changed("query-sizes") {
		cfg.QuerySizes = f.querySizes
	}
	if changed("ranges") {
		cfg.Ranges = f.ranges
	}
	if changed("unit") {
		cfg.TestUnit = f.unit
	}
	if changed("users") {
		cfg.NumConcurrentUsers = f.users
	}
	if changed("parallel") {
		cfg.ParallelExecution = f.parallel
	}
	if changed("field-lon") {
		cfg.FieldLon = f.fieldLon
	}
	if changed("field-lat") {
		cfg.FieldLat = f.fieldLat
	}
	if changed("field-profile") {
		cfg.FieldProfile = f.fieldProfile
	}
	if changed("feed-strategy") {
		cfg.FeedStrategy = f.feedStrategy
	}
	if changed("timeout") {
		cfg.Timeout = config.Duration(f.timeout)
	}
	if changed("check-features") || changed("response-schema") {
		if cfg.Checks == nil {
			cfg.Checks = &config.ChecksConfig{}
		}
		if changed("check-features") {
			cfg.Checks.FeatureCount = f.featureCount
		}
		if changed("response-schema") {
			cfg.Checks.ResponseSchema = f.responseSchema
		}
	}
}
