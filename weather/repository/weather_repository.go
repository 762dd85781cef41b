package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
)

// WeatherRepository は観測値テーブルへのデータアクセスを定義します。
// トランザクションは呼び出し側が管理します。
type WeatherRepository interface {
	// EnsureTable はテーブルが存在しなければ作成します。
	EnsureTable(ctx context.Context, tx *sql.Tx, table string) error
	// BulkInsertObservations は観測値を追記します。既存の行は変更しません。
	BulkInsertObservations(ctx context.Context, tx *sql.Tx, table string, items []weather_entity.Observation) error
}

// SQLWeatherRepository は Dialect に従って SQL を組み立てる WeatherRepository の実装です。
type SQLWeatherRepository struct {
	dialect database.Dialect
}

// NewWeatherRepository はデータベースタイプに対応した WeatherRepository を生成します。
func NewWeatherRepository(dbType string) (*SQLWeatherRepository, error) {
	logger.Debugf("WeatherRepository の生成を開始します (Type: %s).", dbType)
	dialect, err := database.DialectFor(dbType)
	if err != nil {
		return nil, err
	}
	return &SQLWeatherRepository{dialect: dialect}, nil
}

// CreateTableSQL は観測値テーブルの DDL を返します。table は検証済みであることが前提です。
func (r *SQLWeatherRepository) CreateTableSQL(table string) string {
	d := r.dialect
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	city %s NOT NULL,
	timestamp %s NOT NULL,
	temperature %s NOT NULL,
	humidity %s NOT NULL,
	precipitation %s NOT NULL DEFAULT 0,
	wind_speed %s NOT NULL
)`, table, d.TextType, d.TimestampType, d.FloatType, d.FloatType, d.FloatType, d.FloatType)
}

// InsertSQL は観測値 1 行分の INSERT 文を返します。
func (r *SQLWeatherRepository) InsertSQL(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (city, timestamp, temperature, humidity, precipitation, wind_speed) VALUES (%s)",
		table, r.dialect.Placeholders(6),
	)
}

func (r *SQLWeatherRepository) EnsureTable(ctx context.Context, tx *sql.Tx, table string) error {
	if err := database.ValidateIdentifier(table); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.CreateTableSQL(table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func (r *SQLWeatherRepository) BulkInsertObservations(ctx context.Context, tx *sql.Tx, table string, items []weather_entity.Observation) error {
	if len(items) == 0 {
		return nil
	}
	if err := database.ValidateIdentifier(table); err != nil {
		return err
	}

	insertStmt, err := tx.PrepareContext(ctx, r.InsertSQL(table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement for %s: %w", table, err)
	}
	defer insertStmt.Close()

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err = insertStmt.ExecContext(
			ctx,
			item.City,
			item.Timestamp.UTC(),
			item.Temperature,
			item.Humidity,
			item.Precipitation,
			item.WindSpeed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s data for city %s at %s: %w", table, item.City, item.Timestamp, err)
		}
	}
	logger.Debugf("SQLWeatherRepository: %s に観測値 %d 件を保存しました。", table, len(items))
	return nil
}

var _ WeatherRepository = (*SQLWeatherRepository)(nil)
