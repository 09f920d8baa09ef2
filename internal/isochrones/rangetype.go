// Package isochrones turns a resolved benchmark configuration into scenario
// descriptors and per-iteration isochrone request bodies.
//
// The package performs no network I/O. Source files are read once, when a
// scenario is composed; everything after that is in-memory work that the
// load harness drives one iteration at a time.
package isochrones

import (
	"fmt"
	"strings"
)

// RangeType is the unit of an isochrone range bound.
//
// The zero value is invalid; use RangeDistance or RangeTime.
type RangeType struct {
	value string
}

var (
	// RangeDistance requests isochrones bounded by travel distance.
	RangeDistance = RangeType{value: "distance"}

	// RangeTime requests isochrones bounded by travel time.
	RangeTime = RangeType{value: "time"}
)

// Value returns the canonical wire string used in the range_type field.
func (r RangeType) Value() string {
	return r.value
}

func (r RangeType) String() string {
	if r.value == "" {
		return "unknown"
	}
	return r.value
}

// IsValid reports whether r is one of the declared range types.
func (r RangeType) IsValid() bool {
	return r == RangeDistance || r == RangeTime
}

// TestUnit selects which range types a benchmark run exercises.
type TestUnit struct {
	name   string
	ranges []RangeType
}

var (
	// UnitDistance exercises distance ranges only.
	UnitDistance = TestUnit{name: "distance", ranges: []RangeType{RangeDistance}}

	// UnitTime exercises time ranges only.
	UnitTime = TestUnit{name: "time", ranges: []RangeType{RangeTime}}
)

// RangeTypes returns the range types applicable to the unit, in matrix order.
func (u TestUnit) RangeTypes() []RangeType {
	out := make([]RangeType, len(u.ranges))
	copy(out, u.ranges)
	return out
}

func (u TestUnit) String() string {
	if u.name == "" {
		return "unknown"
	}
	return strings.ToUpper(u.name)
}

// IsValid reports whether u is one of the declared test units.
func (u TestUnit) IsValid() bool {
	return u.name == UnitDistance.name || u.name == UnitTime.name
}

// ParseTestUnit parses a test unit name case-insensitively.
func ParseTestUnit(s string) (TestUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case UnitDistance.name:
		return UnitDistance, nil
	case UnitTime.name:
		return UnitTime, nil
	default:
		return TestUnit{}, fmt.Errorf("unknown test unit %q (expected distance or time)", s)
	}
}

// ExecutionMode records whether the scenarios of a run are meant to be
// scheduled in parallel or one after another. This package only uses it for
// naming; the load harness does the scheduling.
type ExecutionMode bool

const (
	Sequential ExecutionMode = false
	Parallel   ExecutionMode = true
)

func (m ExecutionMode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}
