package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weatherwriter "github.com/tigerroll/weather-pipeline/weather/step/writer"
)

var testConfig = []byte(`
database:
  type: sqlite3
batch:
  api_endpoint: https://example.invalid/weather
  default_location: San Francisco
  retry:
    max_attempts: 2
    interval_seconds: 0
system:
  logging:
    level: ERROR
`)

func newWeatherServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("q")
		if city == "Atlantis" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
			return
		}
		fmt.Fprintf(w, `{"name":%q,"dt":1700000000,"main":{"temp":18.5,"humidity":72},"wind":{"speed":4.1}}`, city)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupEnv はテスト用の環境変数を設定し、データベースとレポートのパスを返します。
func setupEnv(t *testing.T, endpoint string) (dbPath, reportPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "weather.db")
	reportPath = filepath.Join(dir, "weather_report.csv")
	t.Setenv("DATABASE_DATABASE", dbPath)
	t.Setenv("BATCH_API_ENDPOINT", endpoint)
	t.Setenv("BATCH_API_KEY", "test-token")
	t.Setenv("REPORT_PATH", reportPath)
	t.Setenv("DATABASE_MIGRATE_ON_START", "true")
	t.Setenv("BATCH_RECORD_HISTORY", "true")
	return dbPath, reportPath
}

func countRows(t *testing.T, dbPath, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunApplication_DefaultLocation(t *testing.T) {
	srv := newWeatherServer(t)
	dbPath, reportPath := setupEnv(t, srv.URL)

	code := RunApplication(context.Background(), Options{}, testConfig)
	assert.Equal(t, 0, code)

	rows, err := weatherwriter.ReadReport(reportPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "San Francisco", rows[0].City)
	assert.Equal(t, 1, countRows(t, dbPath, "weather_metrics"))
	assert.Equal(t, 1, countRows(t, dbPath, "pipeline_runs"))
}

func TestRunApplication_MultipleLocationsWithFailure(t *testing.T) {
	srv := newWeatherServer(t)
	dbPath, _ := setupEnv(t, srv.URL)
	customReport := filepath.Join(t.TempDir(), "custom.csv")

	code := RunApplication(context.Background(), Options{
		Locations:  []string{"Tokyo", " ", "Atlantis", "Paris"},
		Table:      "custom_metrics",
		ReportPath: customReport,
	}, testConfig)
	assert.Equal(t, 1, code)

	rows, err := weatherwriter.ReadReport(customReport)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, countRows(t, dbPath, "custom_metrics"))
	assert.Equal(t, 3, countRows(t, dbPath, "pipeline_runs"))
}

func TestRunApplication_MissingAPIKey(t *testing.T) {
	srv := newWeatherServer(t)
	setupEnv(t, srv.URL)
	t.Setenv("BATCH_API_KEY", "")
	t.Setenv("OPENWEATHERMAP_API_KEY", "")

	assert.Equal(t, 1, RunApplication(context.Background(), Options{}, testConfig))
}

func TestRunApplication_CheckDB(t *testing.T) {
	srv := newWeatherServer(t)
	setupEnv(t, srv.URL)
	assert.Equal(t, 0, RunApplication(context.Background(), Options{CheckDB: true}, testConfig))

	t.Setenv("DATABASE_DATABASE", filepath.Join(t.TempDir(), "missing-dir", "x.db"))
	assert.Equal(t, 1, RunApplication(context.Background(), Options{CheckDB: true}, testConfig))
}

func TestRunApplication_EnvFile(t *testing.T) {
	srv := newWeatherServer(t)
	_, reportPath := setupEnv(t, srv.URL)
	t.Setenv("BATCH_API_KEY", "")
	// godotenv は既存の環境変数を上書きしないため、値ではなく変数自体を消す
	t.Setenv("OPENWEATHERMAP_API_KEY", "")
	require.NoError(t, os.Unsetenv("OPENWEATHERMAP_API_KEY"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OPENWEATHERMAP_API_KEY=from-dotenv\n"), 0o644))

	code := RunApplication(context.Background(), Options{EnvFilePath: envFile, Locations: []string{"Lima"}}, testConfig)
	assert.Equal(t, 0, code)
	rows, err := weatherwriter.ReadReport(reportPath)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNormalizeLocations(t *testing.T) {
	assert.Equal(t, []string{"Tokyo", "Paris"}, normalizeLocations([]string{" Tokyo ", "", "Paris"}))
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b"))
}

func TestParseOptions_KeepsCommaInLocation(t *testing.T) {
	t.Setenv("ENV_FILE_PATH", "")
	opts, err := ParseOptions("weather", []string{"-l", "Paris,FR", "--location", "London, GB", "Lima,PE", "-t", "obs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris,FR", "London, GB", "Lima,PE"}, opts.Locations)
	assert.Equal(t, []string{"Paris,FR", "London, GB", "Lima,PE"}, normalizeLocations(opts.Locations))
	assert.Equal(t, "obs", opts.Table)
	assert.Equal(t, ".env", opts.EnvFilePath)
}

func TestParseOptions_EnvFilePathFromEnvironment(t *testing.T) {
	t.Setenv("ENV_FILE_PATH", "/etc/weather.env")
	opts, err := ParseOptions("weather", []string{"--check-db"})
	require.NoError(t, err)
	assert.True(t, opts.CheckDB)
	assert.Equal(t, "/etc/weather.env", opts.EnvFilePath)
	assert.Empty(t, opts.Locations)

	_, err = ParseOptions("weather", []string{"--unknown"})
	assert.Error(t, err)
}
