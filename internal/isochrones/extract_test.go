package isochrones

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExtractLocations(t *testing.T) {
	tests := []struct {
		name string
		lons []any
		lats []any
		size int
		want []Location
	}{
		{
			name: "two valid pairs",
			lons: []any{"1.0", "2.0"},
			lats: []any{"3.0", "4.0"},
			size: 2,
			want: []Location{{1.0, 3.0}, {2.0, 4.0}},
		},
		{
			name: "null longitude skipped",
			lons: []any{"1.0", nil},
			lats: []any{"3.0", "4.0"},
			size: 2,
			want: []Location{{1.0, 3.0}},
		},
		{
			name: "null latitude in the middle keeps order",
			lons: []any{"1", "2", "3"},
			lats: []any{"10", nil, "30"},
			size: 3,
			want: []Location{{1, 10}, {3, 30}},
		},
		{
			name: "requested size smaller than sources",
			lons: []any{"1", "2", "3"},
			lats: []any{"4", "5", "6"},
			size: 2,
			want: []Location{{1, 4}, {2, 5}},
		},
		{
			name: "shorter latitude source bounds the size",
			lons: []any{"1", "2", "3"},
			lats: []any{"4"},
			size: 3,
			want: []Location{{1, 4}},
		},
		{
			name: "numeric raw values",
			lons: []any{8.68, 7},
			lats: []any{float32(49.5), int64(50)},
			size: 2,
			want: []Location{{8.68, 49.5}, {7, 50}},
		},
		{
			name: "zero size",
			lons: []any{"1"},
			lats: []any{"2"},
			size: 0,
			want: []Location{},
		},
		{
			name: "empty sources",
			lons: nil,
			lats: nil,
			size: 5,
			want: []Location{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractLocations(tt.lons, tt.lats, tt.size, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			effective := min(tt.size, len(tt.lons), len(tt.lats))
			assert.LessOrEqual(t, len(got), effective)
		})
	}
}

func TestExtractLocations_NullCountMatchesSkips(t *testing.T) {
	lons := []any{"1", nil, "3", "4", nil}
	lats := []any{"1", "2", nil, "4", nil}

	got, err := ExtractLocations(lons, lats, 5, nil)
	require.NoError(t, err)

	// indexes 1, 2 and 4 have a null on either side
	assert.Len(t, got, 5-3)
	assert.Equal(t, []Location{{1, 1}, {4, 4}}, got)
}

func TestExtractLocations_LogsWarningForNull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	_, err := ExtractLocations([]any{"1.0", nil}, []any{"3.0", "4.0"}, 2, logger)
	require.NoError(t, err)

	entries := logs.FilterMessage("Null coordinate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, 1, entries[0].ContextMap()["index"])
}

func TestExtractLocations_LogsSampleCoordinate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := ExtractLocations([]any{nil, "8.68"}, []any{"49.0", "49.41"}, 2, zap.New(core))
	require.NoError(t, err)

	entries := logs.FilterMessage("Sample coordinate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 8.68, entries[0].ContextMap()["lon"])
	assert.Equal(t, 49.41, entries[0].ContextMap()["lat"])
}

func TestExtractLocations_ParseError(t *testing.T) {
	got, err := ExtractLocations([]any{"abc"}, []any{"3.0"}, 1, nil)
	require.Error(t, err)
	assert.Nil(t, got, "no partial output on parse failure")

	assert.True(t, errors.Is(err, ErrExtraction))
	assert.False(t, errors.Is(err, ErrAssembly))

	var extractionErr *ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, 0, extractionErr.Index)

	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr))
}

func TestExtractLocations_ParseErrorAfterValidPairs(t *testing.T) {
	got, err := ExtractLocations([]any{"1", "2", "x"}, []any{"1", "2", "3"}, 3, nil)
	require.Error(t, err)
	assert.Nil(t, got)

	var extractionErr *ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, 2, extractionErr.Index)
}

func TestLocationsFromBatch(t *testing.T) {
	fields := CoordinateFields{Lon: "lon", Lat: "lat"}

	t.Run("present fields", func(t *testing.T) {
		batch := Batch{Records: []SourceRecord{
			{"lon": "8.1", "lat": "49.1"},
			{"lon": "8.2"},
			{"lon": "8.3", "lat": "49.3"},
		}}

		got, err := LocationsFromBatch(batch, fields, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, []Location{{8.1, 49.1}, {8.3, 49.3}}, got)
	})

	t.Run("missing field yields empty locations", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)

		batch := Batch{Records: []SourceRecord{{"lon": "8.1"}, {"lon": "8.2"}}}
		got, err := LocationsFromBatch(batch, fields, 2, zap.New(core))
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Equal(t, 1, logs.FilterMessage("Batch values are missing").Len())
	})

	t.Run("corrupt value propagates", func(t *testing.T) {
		batch := Batch{Records: []SourceRecord{{"lon": "east", "lat": "49"}}}
		_, err := LocationsFromBatch(batch, fields, 1, nil)
		assert.ErrorIs(t, err, ErrExtraction)
	})
}
