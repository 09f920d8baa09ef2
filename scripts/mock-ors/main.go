// Command mock-ors serves a minimal openrouteservice isochrones endpoint for
// local benchmark runs. Each response carries one polygon feature per
// location and range, so the featureCount check passes.
package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type isochronesRequest struct {
	Locations [][]float64 `json:"locations"`
	RangeType string      `json:"range_type"`
	Range     []float64   `json:"range"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   geometry       `json:"geometry"`
}

type geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type serverOptions struct {
	latency   time.Duration
	jitter    time.Duration
	errorRate float64
	apiKey    string
}

func newHandler(opts serverOptions, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v2/isochrones/{profile}", func(w http.ResponseWriter, r *http.Request) {
		if opts.apiKey != "" && r.Header.Get("Authorization") != opts.apiKey {
			http.Error(w, `{"error":"access denied"}`, http.StatusForbidden)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, `{"error":"unreadable body"}`, http.StatusBadRequest)
			return
		}

		var req isochronesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
		if req.RangeType != "distance" && req.RangeType != "time" {
			http.Error(w, `{"error":"invalid range_type"}`, http.StatusBadRequest)
			return
		}
		if len(req.Locations) == 0 || len(req.Range) == 0 {
			http.Error(w, `{"error":"locations and range are required"}`, http.StatusBadRequest)
			return
		}

		delay := opts.latency
		if opts.jitter > 0 {
			delay += time.Duration(rand.Int64N(int64(opts.jitter)))
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if opts.errorRate > 0 && rand.Float64() < opts.errorRate {
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		profile := r.PathValue("profile")
		logger.Debug("Isochrones request",
			zap.String("profile", profile),
			zap.Int("locations", len(req.Locations)),
			zap.String("range_type", req.RangeType),
			zap.Float64s("range", req.Range),
		)

		w.Header().Set("Content-Type", "application/geo+json;charset=UTF-8")
		_ = json.NewEncoder(w).Encode(buildFeatures(req))
	})

	mux.HandleFunc("GET /v2/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ready"}`)
	})

	return mux
}

// buildFeatures returns a square around every location for every range.
func buildFeatures(req isochronesRequest) featureCollection {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(req.Locations)*len(req.Range))}
	for i, loc := range req.Locations {
		if len(loc) < 2 {
			continue
		}
		for _, value := range req.Range {
			d := value / 100000
			lon, lat := loc[0], loc[1]
			fc.Features = append(fc.Features, feature{
				Type: "Feature",
				Properties: map[string]any{
					"group_index": i,
					"value":       value,
					"center":      []float64{lon, lat},
				},
				Geometry: geometry{
					Type: "Polygon",
					Coordinates: [][][2]float64{{
						{lon - d, lat - d}, {lon + d, lat - d}, {lon + d, lat + d}, {lon - d, lat + d}, {lon - d, lat - d},
					}},
				},
			})
		}
	}
	return fc
}

func main() {
	addr := pflag.String("addr", ":8082", "Listen address")
	opts := serverOptions{}
	pflag.DurationVar(&opts.latency, "latency", 0, "Fixed delay added to every response")
	pflag.DurationVar(&opts.jitter, "jitter", 0, "Random extra delay, up to this value")
	pflag.Float64Var(&opts.errorRate, "error-rate", 0, "Fraction of requests answered with 500")
	pflag.StringVar(&opts.apiKey, "api-key", "", "Require this Authorization header")
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	server := &http.Server{
		Addr:              *addr,
		Handler:           newHandler(opts, logger),
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("Starting mock isochrones server",
		zap.String("addr", *addr),
		zap.Duration("latency", opts.latency),
		zap.Float64("error_rate", opts.errorRate),
	)
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
