// Package check validates isochrone responses beyond the status code.
package check

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/heigit/isobench/internal/isochrones"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Checker inspects a successful response. A non-nil error fails the request.
type Checker interface {
	Name() string
	Check(req *isochrones.Request, body []byte) error
}

// Error reports which checker rejected a response.
type Error struct {
	Check string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("check %s failed: %v", e.Check, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run applies each checker in order and returns the first failure.
func Run(checkers []Checker, req *isochrones.Request, body []byte) error {
	for _, c := range checkers {
		if err := c.Check(req, body); err != nil {
			return &Error{Check: c.Name(), Err: err}
		}
	}
	return nil
}

// FeatureCount requires the GeoJSON response to hold one feature per
// location and range value.
type FeatureCount struct{}

// Name implements Checker.
func (FeatureCount) Name() string { return "featureCount" }

// Check implements Checker.
func (FeatureCount) Check(req *isochrones.Request, body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("response is not valid JSON")
	}

	features := gjson.GetBytes(body, "features")
	if !features.IsArray() {
		return fmt.Errorf("response has no features array")
	}

	want := req.Locations * req.Ranges
	if got := int(gjson.GetBytes(body, "features.#").Int()); got != want {
		return fmt.Errorf("got %d features, want %d (%d locations x %d ranges)", got, want, req.Locations, req.Ranges)
	}
	return nil
}

// Schema validates the response against a compiled JSON schema.
type Schema struct {
	source string
	schema *jsonschema.Schema
}

// LoadSchema compiles the JSON schema at path.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return CompileSchema(path, data)
}

// CompileSchema compiles a schema document. name identifies it in errors.
func CompileSchema(name string, data []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Schema{source: name, schema: schema}, nil
}

// Name implements Checker.
func (s *Schema) Name() string { return "responseSchema" }

// Check implements Checker.
func (s *Schema) Check(_ *isochrones.Request, body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := s.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("%s", strings.Join(causes(verr), "; "))
		}
		return err
	}
	return nil
}

// causes flattens a validation error tree into leaf messages.
func causes(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		return []string{fmt.Sprintf("%s: %s", location(err.InstanceLocation), err.Message)}
	}

	var out []string
	for _, c := range err.Causes {
		out = append(out, causes(c)...)
	}
	return out
}

func location(l string) string {
	if l == "" {
		return "/"
	}
	return l
}

// Options selects the checkers to build.
type Options struct {
	FeatureCount   bool
	ResponseSchema string
}

// Build returns the checkers enabled by opts.
func Build(opts Options) ([]Checker, error) {
	var checkers []Checker
	if opts.FeatureCount {
		checkers = append(checkers, FeatureCount{})
	}
	if opts.ResponseSchema != "" {
		s, err := LoadSchema(opts.ResponseSchema)
		if err != nil {
			return nil, err
		}
		checkers = append(checkers, s)
	}
	return checkers, nil
}
