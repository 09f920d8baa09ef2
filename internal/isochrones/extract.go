package isochrones

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Location is a [longitude, latitude] pair.
type Location [2]float64

// Lon returns the longitude.
func (l Location) Lon() float64 { return l[0] }

// Lat returns the latitude.
func (l Location) Lat() float64 { return l[1] }

// CoordinateFields names the longitude and latitude columns of a source.
type CoordinateFields struct {
	Lon string
	Lat string
}

// ExtractLocations parses up to size coordinate pairs from two parallel
// arrays of raw values.
//
// The effective size is the smallest of size, len(lons) and len(lats). An
// index where either value is nil is skipped with a warning. A value that is
// present but not numeric fails the whole extraction with an
// *ExtractionError and no partial result.
func ExtractLocations(lons, lats []any, size int, logger *zap.Logger) ([]Location, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	size = min(size, len(lons), len(lats))
	if size < 0 {
		size = 0
	}
	logger.Debug("Processing coordinates", zap.Int("size", size))

	locations := make([]Location, 0, size)
	for i := 0; i < size; i++ {
		lon, lat := lons[i], lats[i]
		if lon == nil || lat == nil {
			logger.Warn("Null coordinate",
				zap.Int("index", i),
				zap.Any("lon", lon),
				zap.Any("lat", lat),
			)
			continue
		}

		lonValue, err := parseCoordinate(lon)
		if err != nil {
			return nil, &ExtractionError{Index: i, Lon: lon, Lat: lat, Err: err}
		}
		latValue, err := parseCoordinate(lat)
		if err != nil {
			return nil, &ExtractionError{Index: i, Lon: lon, Lat: lat, Err: err}
		}

		locations = append(locations, Location{lonValue, latValue})
	}

	logger.Debug("Created location list", zap.Int("pairs", len(locations)))
	if len(locations) > 0 {
		logger.Debug("Sample coordinate",
			zap.Float64("lon", locations[0].Lon()),
			zap.Float64("lat", locations[0].Lat()),
		)
	}

	return locations, nil
}

// LocationsFromBatch extracts the coordinates of a drawn batch.
//
// If either coordinate column is missing from the batch entirely, the
// problem is logged and an empty location list is returned without error;
// the request built from it is expected to fail its own status check.
func LocationsFromBatch(batch Batch, fields CoordinateFields, size int, logger *zap.Logger) ([]Location, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("Reading batch data for fields",
		zap.String("lon", fields.Lon),
		zap.String("lat", fields.Lat),
		zap.Int("records", batch.Len()),
	)

	lons := batch.Column(fields.Lon)
	lats := batch.Column(fields.Lat)
	if lons == nil || lats == nil {
		logger.Error("Batch values are missing",
			zap.String("lon_field", fields.Lon),
			zap.Bool("lon_present", lons != nil),
			zap.String("lat_field", fields.Lat),
			zap.Bool("lat_present", lats != nil),
		)
		return []Location{}, nil
	}

	return ExtractLocations(lons, lats, size, logger)
}

func parseCoordinate(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(x)), 64)
	}
}
