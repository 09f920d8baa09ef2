package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const sourceCSV = `longitude,latitude,profile
8.681495,49.41461,driving-car
8.686507,49.41943,driving-car
8.687872,49.420318,driving-car
8.690000,49.430000,driving-car
`

func newStub(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		requests.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func writeBench(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "heidelberg.csv")
	require.NoError(t, os.WriteFile(source, []byte(sourceCSV), 0o644))

	bench := `name: CLI run
baseUrl: ` + baseURL + `
apiKey: secret-key
targetProfile: driving-car
sourceFiles:
  - ` + source + `
querySizes: [1, 2]
ranges: [300, 600]
testUnit: distance
numConcurrentUsers: 2
timeout: 5s
thresholds:
  http_req_failed:
    - "rate < 0.01"
`
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bench), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-file", filepath.Join(t.TempDir(), "isobench.log")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_Passes(t *testing.T) {
	srv, requests := newStub(t, http.StatusOK)
	bench := writeBench(t, srv.URL)
	report := filepath.Join(t.TempDir(), "out", "result.json")

	out, err := execute(t, "run", "-c", bench, "-o", report)
	require.NoError(t, err)

	assert.Contains(t, out, "CLI run - Running")
	assert.Contains(t, out, "CLI run - Completed ✓")
	assert.Contains(t, out, "Locations (1) | heidelberg")
	assert.Contains(t, out, "Locations (2) | heidelberg")
	assert.Equal(t, int64(4), requests.Load())

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "result.passed").Bool())
	assert.Equal(t, int64(2), gjson.GetBytes(data, "result.scenarios.#").Int())
	assert.Equal(t, "[redacted]", gjson.GetBytes(data, "config.apiKey").String())
}

func TestRun_FlagsOverrideFile(t *testing.T) {
	srv, requests := newStub(t, http.StatusOK)
	bench := writeBench(t, "http://unused.invalid")

	_, err := execute(t, "run", "-c", bench, "--base-url", srv.URL, "--users", "1", "--query-sizes", "1", "--unit", "time", "--parallel", "-q")
	require.NoError(t, err)
	assert.Equal(t, int64(1), requests.Load())
}

func TestRun_FailsOnThresholds(t *testing.T) {
	srv, _ := newStub(t, http.StatusServiceUnavailable)
	bench := writeBench(t, srv.URL)

	out, err := execute(t, "run", "-c", bench, "--quiet")
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, "FAILED", strings.TrimSpace(out))
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--profile", "driving-car")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "baseUrl")
	assert.Contains(t, err.Error(), "sourceFiles")
}

func TestRun_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "run", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestRun_WritesLogs(t *testing.T) {
	srv, _ := newStub(t, http.StatusOK)
	bench := writeBench(t, srv.URL)
	logFile := filepath.Join(t.TempDir(), "run.log")

	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--log-format", "json", "--log-file", logFile, "run", "-c", bench, "-q"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	logs := string(data)
	assert.Contains(t, logs, `"msg":"Starting benchmark"`)
	assert.Contains(t, logs, `"msg":"Creating scenario"`)
	assert.Contains(t, logs, `"msg":"Run finished"`)
	assert.NotContains(t, logs, "secret-key")
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "matrix")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMatrix(t *testing.T) {
	out, err := execute(t, "matrix",
		"--base-url", "http://localhost:8082/ors",
		"--profile", "driving-car",
		"--source", "data/a.csv,data/b.csv",
		"--query-sizes", "1,10",
		"--ranges", "300",
		"--unit", "time",
		"--users", "5",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Isochrones sequential time - a - Users 5 - Ranges [300]")
	assert.Contains(t, out, "Isochrones sequential time - b - Users 5 - Ranges [300]")
	assert.Contains(t, out, "4  Locations (10) | b")
	assert.Contains(t, out, "4 scenarios")
	assert.Less(t, strings.Index(out, "| a"), strings.Index(out, "| b"))
}

func TestReport(t *testing.T) {
	srv, _ := newStub(t, http.StatusOK)
	bench := writeBench(t, srv.URL)
	report := filepath.Join(t.TempDir(), "result.json")

	_, err := execute(t, "run", "-c", bench, "-q", "-o", report)
	require.NoError(t, err)

	out, err := execute(t, "report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "CLI run - Completed ✓")
	assert.Contains(t, out, "http_req_failed rate < 0.01")

	_, err = execute(t, "report")
	assert.Error(t, err)
}
