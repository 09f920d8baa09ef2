package isochrones

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// InjectionProfile is an open workload: ConcurrentUsers users all start at
// time zero, without ramp-up, and each runs the scenario once.
type InjectionProfile struct {
	ConcurrentUsers int
}

// ComposerConfig carries the run-wide settings every scenario shares.
type ComposerConfig struct {
	TargetProfile string
	ProfileField  string
	Fields        CoordinateFields
	Ranges        []float64
	Policy        ExhaustionPolicy
	Injection     InjectionProfile
}

// Composer binds descriptors to feeds and the body assembler.
type Composer struct {
	cfg       ComposerConfig
	assembler *BodyAssembler
	logger    *zap.Logger
}

// NewComposer creates a composer. A nil assembler selects the default one.
func NewComposer(cfg ComposerConfig, assembler *BodyAssembler, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assembler == nil {
		assembler = NewBodyAssembler(logger)
	}
	return &Composer{cfg: cfg, assembler: assembler, logger: logger}
}

// Compose loads the descriptor's source file and returns an executable
// scenario. If the source cannot be loaded the error is logged and an inert
// scenario without feed or step is returned instead.
func (c *Composer) Compose(d ScenarioDescriptor) *Scenario {
	c.logger.Info("Creating scenario",
		zap.String("name", d.Name),
		zap.Int("location_count", d.BatchSize),
		zap.String("source_file", d.SourceFile),
		zap.String("profile", c.cfg.TargetProfile),
		zap.Stringer("range_type", d.RangeType),
		zap.Stringer("mode", d.Mode),
	)

	s := &Scenario{
		Descriptor: d,
		Injection:  c.cfg.Injection,
		profile:    c.cfg.TargetProfile,
		fields:     c.cfg.Fields,
		ranges:     c.cfg.Ranges,
		assembler:  c.assembler,
		logger:     c.logger.With(zap.String("scenario", d.Name)),
	}

	feed, err := LoadFeed(d.SourceFile, FeedOptions{
		TargetProfile: c.cfg.TargetProfile,
		ProfileField:  c.cfg.ProfileField,
		Policy:        c.cfg.Policy,
	}, c.logger)
	if err != nil {
		c.logger.Error("Scenario has no executable step", zap.String("name", d.Name), zap.Error(err))
		s.loadErr = err
		return s
	}

	s.feed = feed
	return s
}

// ComposeAll composes every descriptor, in order.
func (c *Composer) ComposeAll(descriptors []ScenarioDescriptor) []*Scenario {
	scenarios := make([]*Scenario, 0, len(descriptors))
	for _, d := range descriptors {
		scenarios = append(scenarios, c.Compose(d))
	}
	return scenarios
}

// Request is one isochrones call ready to be sent by the harness.
type Request struct {
	Method         string
	Path           string
	Body           []byte
	Locations      int
	Ranges         int
	ExpectedStatus int
}

// Scenario is one executable matrix cell.
type Scenario struct {
	Descriptor ScenarioDescriptor
	Injection  InjectionProfile

	feed      Batcher
	loadErr   error
	profile   string
	fields    CoordinateFields
	ranges    []float64
	assembler *BodyAssembler
	logger    *zap.Logger
}

// Name returns the scenario name.
func (s *Scenario) Name() string {
	return s.Descriptor.Name
}

// Executable reports whether the scenario has a feed to draw from.
func (s *Scenario) Executable() bool {
	return s.feed != nil
}

// Steps returns the number of request steps each iteration performs.
func (s *Scenario) Steps() int {
	if !s.Executable() {
		return 0
	}
	return 1
}

// LoadErr returns the error that made the scenario inert, if any.
func (s *Scenario) LoadErr() error {
	return s.loadErr
}

// Path returns the request path for the target profile.
func (s *Scenario) Path() string {
	return "/v2/isochrones/" + url.PathEscape(s.profile)
}

// NextRequest draws the next batch and turns it into a request.
//
// It returns ErrFeedExhausted, an *ExtractionError or an *AssemblyError when
// the iteration cannot produce a request. A batch that lacks the coordinate
// fields still yields a request, with no locations.
func (s *Scenario) NextRequest() (*Request, error) {
	if !s.Executable() {
		return nil, ErrFeedExhausted
	}

	batch, err := s.feed.Next(s.Descriptor.BatchSize)
	if err != nil {
		return nil, err
	}

	locations, err := LocationsFromBatch(batch, s.fields, s.Descriptor.BatchSize, s.logger)
	if err != nil {
		return nil, err
	}

	body, err := s.assembler.Build(locations, s.Descriptor.RangeType, s.ranges)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:         http.MethodPost,
		Path:           s.Path(),
		Body:           body,
		Locations:      len(locations),
		Ranges:         len(s.ranges),
		ExpectedStatus: http.StatusOK,
	}, nil
}

// NewScenario builds a scenario over an existing batcher. It is used when
// the records do not come from a source file. A nil batcher, including a
// nil *Feed, yields an inert scenario.
func NewScenario(d ScenarioDescriptor, feed Batcher, cfg ComposerConfig, assembler *BodyAssembler, logger *zap.Logger) *Scenario {
	if logger == nil {
		logger = zap.NewNop()
	}
	if f, ok := feed.(*Feed); ok && f == nil {
		feed = nil
	}
	if assembler == nil {
		assembler = NewBodyAssembler(logger)
	}
	return &Scenario{
		Descriptor: d,
		Injection:  cfg.Injection,
		feed:       feed,
		profile:    cfg.TargetProfile,
		fields:     cfg.Fields,
		ranges:     cfg.Ranges,
		assembler:  assembler,
		logger:     logger.With(zap.String("scenario", d.Name)),
	}
}
