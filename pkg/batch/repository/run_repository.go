package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

// RunsTable は実行履歴を保存するテーブル名です。テーブルはマイグレーションで作成されます。
const RunsTable = "pipeline_runs"

// RunRecord は pipeline_runs の 1 行を表します。
type RunRecord struct {
	ID           string
	Location     string
	Status       core.RunStatus
	FailedStage  exception.Stage
	Attempts     int
	SinkWarnings int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// RunRepository は終了した RunExecution をデータベースに記録します。
// 呼び出しごとに接続を開いて閉じるため、並行する実行から安全に使用できます。
type RunRepository struct {
	cfg     config.DatabaseConfig
	dialect database.Dialect
}

// NewRunRepository は新しい RunRepository のインスタンスを作成します。
func NewRunRepository(cfg config.DatabaseConfig) (*RunRepository, error) {
	dialect, err := database.DialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	return &RunRepository{cfg: cfg, dialect: dialect}, nil
}

// SaveRun は RunExecution を 1 行として挿入します。
func (r *RunRepository) SaveRun(ctx context.Context, run *core.RunExecution) error {
	db, err := database.Open(ctx, r.cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	query := fmt.Sprintf(
		"INSERT INTO %s (id, location, status, failed_stage, attempts, sink_warnings, error_message, started_at, finished_at) VALUES (%s)",
		RunsTable, r.dialect.Placeholders(9),
	)

	var errMsg sql.NullString
	if last := run.LastFailure(); last != nil {
		errMsg = sql.NullString{String: last.Error(), Valid: true}
	}
	startedAt := run.StartTime
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, query,
		run.ID,
		run.Location,
		string(run.Status),
		sql.NullString{String: string(run.FailedStage), Valid: run.FailedStage != ""},
		run.Attempts,
		len(run.SinkWarnings),
		errMsg,
		startedAt.UTC(),
		sql.NullTime{Time: run.EndTime.UTC(), Valid: !run.EndTime.IsZero()},
	)
	if err != nil {
		return exception.NewPersistenceError("run_repository", fmt.Sprintf("実行履歴 (ID: %s) の保存に失敗しました", run.ID), err)
	}

	logger.Debugf("実行履歴 (ID: %s, Location: %s, Status: %s) を保存しました。", run.ID, run.Location, run.Status)
	return nil
}

// FindRun は ID を指定して実行履歴を取得します。見つからない場合は nil, nil を返します。
func (r *RunRepository) FindRun(ctx context.Context, id string) (*RunRecord, error) {
	db, err := database.Open(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	defer database.Close(db)

	query := fmt.Sprintf(
		"SELECT id, location, status, failed_stage, attempts, sink_warnings, error_message, started_at, finished_at FROM %s WHERE id = %s",
		RunsTable, r.dialect.Placeholder(1),
	)

	var (
		rec         RunRecord
		status      string
		failedStage sql.NullString
		errMsg      sql.NullString
		finishedAt  sql.NullTime
	)
	err = db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Location, &status, &failedStage, &rec.Attempts, &rec.SinkWarnings, &errMsg, &rec.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewPersistenceError("run_repository", fmt.Sprintf("実行履歴 (ID: %s) の取得に失敗しました", id), err)
	}

	rec.Status = core.RunStatus(status)
	rec.FailedStage = exception.Stage(failedStage.String)
	rec.ErrorMessage = errMsg.String
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	return &rec, nil
}
