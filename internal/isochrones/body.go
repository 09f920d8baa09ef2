package isochrones

import (
	"math"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// RequestBody is the payload of an isochrones request.
type RequestBody struct {
	Locations []Location `json:"locations"`
	RangeType string     `json:"range_type"`
	Range     []float64  `json:"range"`
}

// BodyAssembler builds and serializes request bodies.
type BodyAssembler struct {
	json   jsoniter.API
	logger *zap.Logger
}

// AssemblerOption configures a BodyAssembler.
type AssemblerOption func(*BodyAssembler)

// WithJSONAPI replaces the serializer used by the assembler.
func WithJSONAPI(api jsoniter.API) AssemblerOption {
	return func(a *BodyAssembler) {
		a.json = api
	}
}

// NewBodyAssembler returns an assembler that serializes with a
// standard-library compatible json-iterator configuration.
func NewBodyAssembler(logger *zap.Logger, opts ...AssemblerOption) *BodyAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &BodyAssembler{
		json:   jsoniter.ConfigCompatibleWithStandardLibrary,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the request body value. It fails with an *AssemblyError if
// the range type is invalid or a value cannot be represented in JSON.
func (a *BodyAssembler) Assemble(locations []Location, rangeType RangeType, ranges []float64) (RequestBody, error) {
	if !rangeType.IsValid() {
		return RequestBody{}, &AssemblyError{Reason: "invalid range type " + rangeType.String()}
	}
	for _, loc := range locations {
		if !isFinite(loc[0]) || !isFinite(loc[1]) {
			return RequestBody{}, &AssemblyError{Reason: "location is not representable in JSON"}
		}
	}
	for _, r := range ranges {
		if !isFinite(r) {
			return RequestBody{}, &AssemblyError{Reason: "range value is not representable in JSON"}
		}
	}

	locs := make([]Location, len(locations))
	copy(locs, locations)
	rng := make([]float64, len(ranges))
	copy(rng, ranges)

	return RequestBody{
		Locations: locs,
		RangeType: rangeType.Value(),
		Range:     rng,
	}, nil
}

// Marshal serializes body to its wire representation.
func (a *BodyAssembler) Marshal(body RequestBody) ([]byte, error) {
	if body.Locations == nil {
		body.Locations = []Location{}
	}
	if body.Range == nil {
		body.Range = []float64{}
	}

	data, err := a.json.Marshal(body)
	if err != nil {
		return nil, &AssemblyError{Reason: "serialization failed", Err: err}
	}

	if ce := a.logger.Check(zap.DebugLevel, "Created request body"); ce != nil {
		ce.Write(zap.ByteString("body", data))
	}
	return data, nil
}

// Build assembles and serializes a request body in one step.
func (a *BodyAssembler) Build(locations []Location, rangeType RangeType, ranges []float64) ([]byte, error) {
	body, err := a.Assemble(locations, rangeType, ranges)
	if err != nil {
		return nil, err
	}
	return a.Marshal(body)
}

// Unmarshal decodes a wire body produced by Marshal.
func (a *BodyAssembler) Unmarshal(data []byte) (RequestBody, error) {
	var body RequestBody
	if err := a.json.Unmarshal(data, &body); err != nil {
		return RequestBody{}, err
	}
	return body, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
