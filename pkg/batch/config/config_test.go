package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

const testYAML = `
database:
  type: postgres
  host: db.internal
  port: 5432
  database: weather
  user: batch
  password: secret
  sslmode: disable
batch:
  api_key: from-yaml
  table_name: weather_metrics
  retry:
    max_attempts: 3
    interval_seconds: 10
report:
  path: out/report.csv
system:
  logging:
    level: DEBUG
`

func TestBytesConfigLoader_LoadKeepsDefaultsAndYAML(t *testing.T) {
	cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "from-yaml", cfg.Batch.APIKey)
	assert.Equal(t, "San Francisco", cfg.Batch.DefaultLocation, "default location should survive YAML load")
	assert.Equal(t, "https://api.openweathermap.org/data/2.5/weather", cfg.Batch.APIEndpoint)
	assert.Equal(t, 10*time.Second, cfg.Batch.Retry.Interval())
	assert.Equal(t, 15*time.Second, cfg.Batch.HTTPTimeout())
	assert.Equal(t, "out/report.csv", cfg.Report.Path)
	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestBytesConfigLoader_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_HOST", "override-host")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("OPENWEATHERMAP_API_KEY", "legacy-key")
	t.Setenv("BATCH_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("REPORT_PATH", "/tmp/r.csv")

	cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "override-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "legacy-key", cfg.Batch.APIKey)
	assert.Equal(t, 5, cfg.Batch.Retry.MaxAttempts)
	assert.Equal(t, "/tmp/r.csv", cfg.Report.Path)
}

func TestBytesConfigLoader_PrimaryEnvNameWins(t *testing.T) {
	t.Setenv("BATCH_API_KEY", "primary")
	t.Setenv("OPENWEATHERMAP_API_KEY", "legacy")

	cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Batch.APIKey)
}

func TestBytesConfigLoader_InvalidEnvInt(t *testing.T) {
	t.Setenv("DATABASE_PORT", "not-a-number")

	_, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}

func TestBytesConfigLoader_InvalidYAML(t *testing.T) {
	_, err := config.NewBytesConfigLoader([]byte("database: [")).Load()
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}

func TestConfig_ValidateMissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"missing api key", func(c *config.Config) { c.Batch.APIKey = "" }, "APIKey"},
		{"missing db password", func(c *config.Config) { c.Database.Password = "" }, "Password"},
		{"missing db host", func(c *config.Config) { c.Database.Host = "" }, "Host"},
		{"unsupported db type", func(c *config.Config) { c.Database.Type = "oracle" }, "Type"},
		{"zero attempts", func(c *config.Config) { c.Batch.Retry.MaxAttempts = 0 }, "MaxAttempts"},
		{"sqlite without path", func(c *config.Config) {
			c.Database = config.DatabaseConfig{Type: "sqlite3"}
		}, "Database"},
		{"snowflake without account", func(c *config.Config) {
			c.Database = config.DatabaseConfig{Type: "snowflake", Database: "W", User: "u", Password: "p"}
		}, "Account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, exception.IsKind(err, exception.KindConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	pg := config.DatabaseConfig{Type: "postgres", Host: "h", Port: 5432, Database: "d", User: "u", Password: "p@ss", Sslmode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@h:5432/d?sslmode=disable", pg.ConnectionString())

	my := config.DatabaseConfig{Type: "mysql", Host: "h", Port: 3306, Database: "d", User: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true", my.ConnectionString())

	lite := config.DatabaseConfig{Type: "sqlite3", Database: "/tmp/w.db"}
	assert.Equal(t, "file:/tmp/w.db?_busy_timeout=5000&_txlock=immediate", lite.ConnectionString())

	assert.Empty(t, config.DatabaseConfig{Type: "snowflake"}.ConnectionString())
}
