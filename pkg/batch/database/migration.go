package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

// MigrationsTable はマイグレーション履歴を記録するテーブル名です。
const MigrationsTable = "weather_schema_migrations"

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations は埋め込まれたマイグレーションを指定されたデータベースに適用します。
// マイグレーション専用の接続を開き、終了時に閉じます。
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig) error {
	dbType := strings.ToLower(cfg.Type)
	sourceDir := dbType
	if dbType == "redshift" {
		sourceDir = "postgres"
	}
	if dbType == "snowflake" {
		logger.Warnf("データベースタイプ '%s' のマイグレーションはサポートされていません。スキップします。", cfg.Type)
		return nil
	}

	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s", cfg.Type)

	db, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer Close(db)

	var driver migratedb.Driver
	switch dbType {
	case "postgres", "redshift":
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite3":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return exception.NewBatchErrorf("migration", exception.KindPersistence, "サポートされていないデータベースタイプ: %s", cfg.Type)
	}
	if err != nil {
		return exception.NewPersistenceError("migration", "マイグレーションドライバの作成に失敗しました", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+sourceDir)
	if err != nil {
		return exception.NewPersistenceError("migration", fmt.Sprintf("マイグレーションソースの読み込みに失敗しました: %s", sourceDir), err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return exception.NewPersistenceError("migration", "マイグレーションインスタンスの作成に失敗しました", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Debugf("マイグレーションのクローズ: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewPersistenceError("migration", "マイグレーションの実行に失敗しました", err)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
