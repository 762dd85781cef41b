package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	// DriverName は database/sql に登録されたドライバ名を返します。
	DriverName() string
	// DSN は設定から接続文字列を組み立てます。
	DSN(cfg config.DatabaseConfig) (string, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := connectors[dbType]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", dbType)
	}
	connectors[dbType] = connector
}

// RegisteredTypes は登録済みのデータベースタイプを返します。
func RegisteredTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func lookupConnector(dbType string) (DBConnector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	if !ok {
		return nil, exception.NewBatchErrorf("database", exception.KindPersistence, "未対応のデータベースタイプ: %s", dbType)
	}
	return c, nil
}

// Open は設定に基づいてデータベース接続を確立し、Ping で疎通を確認します。
// 返される *sql.DB は呼び出し側のスコープで Close する必要があります。
// 並行する実行同士で接続を共有しないよう、呼び出しごとに新しいプールを作成します。
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	connector, err := lookupConnector(cfg.Type)
	if err != nil {
		return nil, err
	}

	dsn, err := connector.DSN(cfg)
	if err != nil {
		return nil, exception.NewPersistenceError("database", fmt.Sprintf("%s の接続文字列の生成に失敗しました", cfg.Type), err)
	}

	db, err := sql.Open(connector.DriverName(), dsn)
	if err != nil {
		return nil, exception.NewPersistenceError("database", fmt.Sprintf("%s への接続に失敗しました", cfg.Type), err)
	}

	// 接続プール設定を適用
	pool := cfg.ConnectionPool
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() // エラー時は接続を閉じる
		return nil, exception.NewPersistenceError("database", fmt.Sprintf("%s への Ping に失敗しました", cfg.Type), err)
	}

	logger.Debugf("%s に正常に接続しました。", cfg.Type)
	return db, nil
}

// Close は nil を許容して接続を閉じ、失敗を警告として記録します。
func Close(db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warnf("データベース接続のクローズに失敗しました: %v", err)
	}
}

// Ping は接続を開いて疎通を確認し、すぐに閉じます。
func Ping(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer Close(db)
	return nil
}
