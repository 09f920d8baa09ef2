package isochrones

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBodyAssembler_Build(t *testing.T) {
	a := NewBodyAssembler(nil)

	data, err := a.Build([]Location{{8.681495, 49.41461}, {8.686507, 49.41943}}, RangeDistance, []float64{300, 600})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"locations":[[8.681495,49.41461],[8.686507,49.41943]],"range_type":"distance","range":[300,600]}`,
		string(data))
}

func TestBodyAssembler_WireShape(t *testing.T) {
	a := NewBodyAssembler(nil)

	data, err := a.Build([]Location{{1, 2}}, RangeTime, []float64{60})
	require.NoError(t, err)

	assert.Equal(t, "time", gjson.GetBytes(data, "range_type").String())
	assert.Equal(t, int64(1), gjson.GetBytes(data, "locations.#").Int())
	assert.Equal(t, 2.0, gjson.GetBytes(data, "locations.0.1").Float())
	assert.Equal(t, 60.0, gjson.GetBytes(data, "range.0").Float())
}

func TestBodyAssembler_RoundTrip(t *testing.T) {
	a := NewBodyAssembler(nil)

	tests := []struct {
		name      string
		locations []Location
		rangeType RangeType
		ranges    []float64
	}{
		{"distance", []Location{{8.5, 49.3}, {-0.1275, 51.507222}}, RangeDistance, []float64{100, 250.5}},
		{"time", []Location{{13.405, 52.52}}, RangeTime, []float64{300}},
		{"no locations", []Location{}, RangeTime, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := a.Build(tt.locations, tt.rangeType, tt.ranges)
			require.NoError(t, err)

			got, err := a.Unmarshal(data)
			require.NoError(t, err)

			assert.Equal(t, tt.locations, got.Locations)
			assert.Equal(t, tt.rangeType.Value(), got.RangeType)
			assert.Equal(t, tt.ranges, got.Range)
		})
	}
}

func TestBodyAssembler_NilSlicesSerializeAsArrays(t *testing.T) {
	a := NewBodyAssembler(nil)

	data, err := a.Build(nil, RangeDistance, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locations":[],"range_type":"distance","range":[]}`, string(data))
}

func TestBodyAssembler_Errors(t *testing.T) {
	a := NewBodyAssembler(nil)

	t.Run("invalid range type", func(t *testing.T) {
		_, err := a.Build([]Location{{1, 2}}, RangeType{}, []float64{1})
		assert.ErrorIs(t, err, ErrAssembly)
	})

	t.Run("non-finite range", func(t *testing.T) {
		_, err := a.Build([]Location{{1, 2}}, RangeTime, []float64{math.Inf(1)})
		assert.ErrorIs(t, err, ErrAssembly)
		assert.False(t, errors.Is(err, ErrExtraction))
	})

	t.Run("non-finite location", func(t *testing.T) {
		_, err := a.Build([]Location{{math.NaN(), 2}}, RangeTime, []float64{1})
		var assemblyErr *AssemblyError
		assert.True(t, errors.As(err, &assemblyErr))
	})

	t.Run("marshal rejects NaN", func(t *testing.T) {
		_, err := a.Marshal(RequestBody{RangeType: "time", Range: []float64{math.NaN()}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAssembly)
	})
}

func TestBodyAssembler_DoesNotAliasInputs(t *testing.T) {
	a := NewBodyAssembler(nil)

	locations := []Location{{1, 2}}
	ranges := []float64{10}
	body, err := a.Assemble(locations, RangeDistance, ranges)
	require.NoError(t, err)

	locations[0] = Location{9, 9}
	ranges[0] = 99
	assert.Equal(t, Location{1, 2}, body.Locations[0])
	assert.Equal(t, 10.0, body.Range[0])
}
