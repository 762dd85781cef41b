package weatherwriter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
	appRepo "github.com/tigerroll/weather-pipeline/weather/repository"
)

const relationalModule = "relational_sink"

// TableWriter は観測値をリレーショナルストアのテーブルに追記します。
type TableWriter interface {
	Save(ctx context.Context, observations []weather_entity.Observation, table string) error
}

// RelationalSink は呼び出しごとに接続を開き、1 トランザクションで観測値を追記する TableWriter です。
// 接続は全ての終了経路で閉じられます。失敗はすべて PersistenceError として返し、リトライはしません。
type RelationalSink struct {
	cfg config.DatabaseConfig
}

func NewRelationalSink(cfg config.DatabaseConfig) *RelationalSink {
	return &RelationalSink{cfg: cfg}
}

// Save は observations を table に追記します。table が存在しない場合は作成します。
func (s *RelationalSink) Save(ctx context.Context, observations []weather_entity.Observation, table string) (err error) {
	if err := database.ValidateIdentifier(table); err != nil {
		return err
	}
	repo, err := appRepo.NewWeatherRepository(s.cfg.Type)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewPersistenceError(relationalModule, "トランザクションの開始に失敗しました", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			logger.Warnf("トランザクションのロールバックに失敗しました: %v", rbErr)
		}
	}()

	if err := repo.EnsureTable(ctx, tx, table); err != nil {
		return persistenceError(fmt.Sprintf("テーブル '%s' の作成に失敗しました", table), err)
	}
	if err := repo.BulkInsertObservations(ctx, tx, table, observations); err != nil {
		return persistenceError(fmt.Sprintf("テーブル '%s' への挿入に失敗しました", table), err)
	}
	if err := tx.Commit(); err != nil {
		return exception.NewPersistenceError(relationalModule, "トランザクションのコミットに失敗しました", err)
	}

	logger.Infof("%s に観測値 %d 件を保存しました。", table, len(observations))
	return nil
}

// persistenceError は分類済みの PersistenceError はそのまま返し、それ以外をラップします。
func persistenceError(msg string, err error) error {
	if exception.IsKind(err, exception.KindPersistence) {
		return err
	}
	return exception.NewPersistenceError(relationalModule, msg, err)
}

var _ TableWriter = (*RelationalSink)(nil)
