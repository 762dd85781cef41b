package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードし、環境変数で個別の値を上書きします。
// 検証は行いません。呼び出し側で Validate を呼び出してください。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()

	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, exception.NewConfigError("config", "YAML設定のパースに失敗しました", err)
	}
	cfg.EmbeddedConfig = l.data

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookup は最初に見つかった空でない環境変数の値を返します。
// 後ろの名前は元のスクリプトで使われていた変数名との互換用です。
func lookup(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func setString(dst *string, names ...string) {
	if v, ok := lookup(names...); ok {
		*dst = v
	}
}

func setInt(dst *int, names ...string) error {
	v, ok := lookup(names...)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return exception.NewConfigError("config", fmt.Sprintf("%s の値 '%s' が無効です", names[0], v), err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, names ...string) error {
	v, ok := lookup(names...)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return exception.NewConfigError("config", fmt.Sprintf("%s の値 '%s' が無効です", names[0], v), err)
	}
	*dst = b
	return nil
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) error {
	// Database 設定
	setString(&cfg.Database.Type, "DATABASE_TYPE")
	setString(&cfg.Database.Host, "DATABASE_HOST", "POSTGRES_HOST")
	setString(&cfg.Database.Database, "DATABASE_DATABASE", "POSTGRES_DB")
	setString(&cfg.Database.User, "DATABASE_USER", "POSTGRES_USER")
	setString(&cfg.Database.Password, "DATABASE_PASSWORD", "POSTGRES_PASSWORD")
	setString(&cfg.Database.Sslmode, "DATABASE_SSLMODE")
	setString(&cfg.Database.Account, "DATABASE_ACCOUNT")
	setString(&cfg.Database.Schema, "DATABASE_SCHEMA")
	setString(&cfg.Database.Warehouse, "DATABASE_WAREHOUSE")

	intVars := []struct {
		dst   *int
		names []string
	}{
		{&cfg.Database.Port, []string{"DATABASE_PORT", "POSTGRES_PORT"}},
		{&cfg.Database.ConnectTimeoutSeconds, []string{"DATABASE_CONNECT_TIMEOUT_SECONDS"}},
		{&cfg.Database.ConnectionPool.MaxOpenConns, []string{"DATABASE_MAX_OPEN_CONNS"}},
		{&cfg.Database.ConnectionPool.MaxIdleConns, []string{"DATABASE_MAX_IDLE_CONNS"}},
		{&cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds, []string{"DATABASE_CONN_MAX_LIFETIME_SECONDS"}},
		{&cfg.Batch.HTTPTimeoutSeconds, []string{"BATCH_HTTP_TIMEOUT_SECONDS"}},
		{&cfg.Batch.Concurrency, []string{"BATCH_CONCURRENCY"}},
		{&cfg.Batch.Retry.MaxAttempts, []string{"BATCH_RETRY_MAX_ATTEMPTS"}},
		{&cfg.Batch.Retry.IntervalSeconds, []string{"BATCH_RETRY_INTERVAL_SECONDS"}},
	}
	for _, v := range intVars {
		if err := setInt(v.dst, v.names...); err != nil {
			return err
		}
	}
	if err := setBool(&cfg.Database.MigrateOnStart, "DATABASE_MIGRATE_ON_START"); err != nil {
		return err
	}

	// Batch 設定
	setString(&cfg.Batch.APIEndpoint, "BATCH_API_ENDPOINT")
	setString(&cfg.Batch.APIKey, "BATCH_API_KEY", "OPENWEATHERMAP_API_KEY")
	setString(&cfg.Batch.DefaultLocation, "BATCH_DEFAULT_LOCATION")
	setString(&cfg.Batch.TableName, "BATCH_TABLE_NAME")
	if err := setBool(&cfg.Batch.RecordHistory, "BATCH_RECORD_HISTORY"); err != nil {
		return err
	}

	// Report 設定
	setString(&cfg.Report.Path, "REPORT_PATH")

	// System 設定
	setString(&cfg.System.Logging.Level, "SYSTEM_LOGGING_LEVEL")
	setString(&cfg.System.Logging.Format, "SYSTEM_LOGGING_FORMAT")
	return nil
}
