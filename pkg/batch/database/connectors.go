package database

import (
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ
	_ "github.com/lib/pq"              // PostgreSQL / Redshift ドライバ
	_ "github.com/mattn/go-sqlite3"    // SQLite ドライバ
	"github.com/snowflakedb/gosnowflake"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
)

// postgresConnector は PostgreSQL と Redshift 向けの DBConnector です。
// Redshift は PostgreSQL と互換性があるため、pq ドライバを使用します。
type postgresConnector struct{}

func (postgresConnector) DriverName() string { return "postgres" }

func (postgresConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	return cfg.ConnectionString(), nil
}

type mysqlConnector struct{}

func (mysqlConnector) DriverName() string { return "mysql" }

func (mysqlConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	return cfg.ConnectionString(), nil
}

// sqliteConnector はローカル実行やテストで使用するファイルベースの DBConnector です。
type sqliteConnector struct{}

func (sqliteConnector) DriverName() string { return "sqlite3" }

func (sqliteConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.Database == "" {
		return "", errors.New("sqlite3 のファイルパスが指定されていません")
	}
	return cfg.ConnectionString(), nil
}

type snowflakeConnector struct{}

func (snowflakeConnector) DriverName() string { return "snowflake" }

func (snowflakeConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	sfCfg := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	}
	if cfg.ConnectTimeoutSeconds > 0 {
		sfCfg.LoginTimeout = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	}
	return gosnowflake.DSN(sfCfg)
}

func init() {
	RegisterConnector("postgres", postgresConnector{})
	RegisterConnector("redshift", postgresConnector{})
	RegisterConnector("mysql", mysqlConnector{})
	RegisterConnector("sqlite3", sqliteConnector{})
	RegisterConnector("snowflake", snowflakeConnector{})
}
