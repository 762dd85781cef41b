package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds" validate:"gte=0"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=postgres redshift mysql sqlite3 snowflake"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database string `yaml:"database"` // sqlite3 の場合はファイルパス
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// Snowflake 用の設定
	Account   string `yaml:"account"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`

	ConnectTimeoutSeconds int                  `yaml:"connect_timeout_seconds" validate:"gte=0"`
	MigrateOnStart        bool                 `yaml:"migrate_on_start"`
	ConnectionPool        ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はデータベースタイプに応じた接続文字列を返します。
// snowflake の DSN はドライバ側のビルダーで組み立てるため、ここでは空文字を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		q := url.Values{}
		if c.Sslmode != "" {
			q.Set("sslmode", c.Sslmode)
		}
		if c.ConnectTimeoutSeconds > 0 {
			q.Set("connect_timeout", strconv.Itoa(c.ConnectTimeoutSeconds))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		return u.String()
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
		if c.ConnectTimeoutSeconds > 0 {
			dsn += fmt.Sprintf("&timeout=%ds", c.ConnectTimeoutSeconds)
		}
		return dsn
	case "sqlite3":
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", c.Database)
	default:
		return ""
	}
}

// ConnMaxLifetime はコネクションの最大生存期間を返します。
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnectionPool.ConnMaxLifetimeSeconds) * time.Second
}

// RetryConfig は fetch ステップのリトライ方針です。
type RetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts" validate:"gte=1"`
	IntervalSeconds int `yaml:"interval_seconds" validate:"gte=0"`
}

// Interval はリトライ間隔を返します。
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// CircuitBreakerConfig は天気 API 呼び出しのサーキットブレーカー設定です。
type CircuitBreakerConfig struct {
	MaxRequests      uint32 `yaml:"max_requests"`
	IntervalSeconds  int    `yaml:"interval_seconds" validate:"gte=0"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" validate:"gte=0"`
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

type BatchConfig struct {
	APIEndpoint        string               `yaml:"api_endpoint" validate:"required,url"`
	APIKey             string               `yaml:"api_key" validate:"required"`
	DefaultLocation    string               `yaml:"default_location" validate:"required"`
	TableName          string               `yaml:"table_name" validate:"required"`
	HTTPTimeoutSeconds int                  `yaml:"http_timeout_seconds" validate:"gte=1"`
	Concurrency        int                  `yaml:"concurrency" validate:"gte=1"`
	RecordHistory      bool                 `yaml:"record_history"`
	Retry              RetryConfig          `yaml:"retry"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// HTTPTimeout は HTTP クライアントのタイムアウトを返します。
func (b BatchConfig) HTTPTimeout() time.Duration {
	return time.Duration(b.HTTPTimeoutSeconds) * time.Second
}

type ReportConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	Report         ReportConfig   `yaml:"report"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:    "postgres",
			Port:    5432,
			Sslmode: "disable",
		},
		Batch: BatchConfig{
			APIEndpoint:        "https://api.openweathermap.org/data/2.5/weather",
			DefaultLocation:    "San Francisco",
			TableName:          "weather_metrics",
			HTTPTimeoutSeconds: 15,
			Concurrency:        4,
			Retry: RetryConfig{
				MaxAttempts:     3,
				IntervalSeconds: 10,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      1,
				IntervalSeconds:  60,
				TimeoutSeconds:   120,
				FailureThreshold: 5,
			},
		},
		Report: ReportConfig{Path: "weather_report.csv"},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		},
	}
}
