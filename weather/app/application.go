package app

import (
	"context"
	"errors"
	"strings"

	godotenv "github.com/joho/godotenv"

	config "github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	initializer "github.com/tigerroll/weather-pipeline/pkg/batch/initializer"
	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	joblistener "github.com/tigerroll/weather-pipeline/pkg/batch/job/listener"
	"github.com/tigerroll/weather-pipeline/pkg/batch/repository"
	exception "github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	logger "github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	appJob "github.com/tigerroll/weather-pipeline/weather/job"
	weatherprocessor "github.com/tigerroll/weather-pipeline/weather/step/processor"
	weatherreader "github.com/tigerroll/weather-pipeline/weather/step/reader"
	weatherwriter "github.com/tigerroll/weather-pipeline/weather/step/writer"
)

// Options はコマンドラインから渡される実行オプションです。空の項目は設定ファイルの値を使用します。
type Options struct {
	EnvFilePath string
	Locations   []string
	Table       string
	ReportPath  string
	CheckDB     bool
}

// loadEnvFile は .env ファイルを環境変数に読み込みます。既存の環境変数は上書きしません。
func loadEnvFile(envFilePath string) {
	if envFilePath == "" {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
		return
	}
	if err := godotenv.Load(envFilePath); err != nil {
		logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", envFilePath, err)
		return
	}
	logger.Infof(".env ファイル '%s' をロードしました。", envFilePath)
}

// buildRunner は設定からパイプラインのコンポーネントを組み立てます。
func buildRunner(cfg *config.Config, opts Options) (*appJob.PipelineRunner, error) {
	listeners := []core.RunListener{joblistener.NewLoggingRunListener()}
	if cfg.Batch.RecordHistory {
		runRepo, err := repository.NewRunRepository(cfg.Database)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, joblistener.NewHistoryRunListener(runRepo))
	}

	runnerOpts := appJob.Options{
		Table:       firstNonEmpty(opts.Table, cfg.Batch.TableName),
		ReportPath:  firstNonEmpty(opts.ReportPath, cfg.Report.Path),
		Retry:       appJob.RetryPolicyFromConfig(cfg.Batch.Retry),
		Concurrency: cfg.Batch.Concurrency,
	}

	return appJob.NewPipelineRunner(
		weatherreader.NewOpenWeatherSource(cfg.Batch, nil),
		weatherprocessor.NewObservationTransformer(),
		weatherwriter.NewRelationalSink(cfg.Database),
		weatherwriter.NewReportSink(),
		runnerOpts,
		listeners...,
	), nil
}

// RunApplication はアプリケーションのメインロジックを実行し、終了コードを返します。
// 全ての実行が成功した場合は 0、起動失敗またはいずれかの実行が失敗した場合は 1 です。
func RunApplication(ctx context.Context, opts Options, embeddedConfig []byte) int {
	loadEnvFile(opts.EnvFilePath)
	batchInitializer := initializer.NewBatchInitializer(embeddedConfig)

	if opts.CheckDB {
		cfg, err := batchInitializer.LoadConfig()
		if err != nil {
			return handleApplicationError(err, nil)
		}
		if err := database.Ping(ctx, cfg.Database); err != nil {
			return handleApplicationError(err, nil)
		}
		logger.Infof("%s (%s) への接続に成功しました。", cfg.Database.Type, cfg.Database.Database)
		return 0
	}

	cfg, err := batchInitializer.Initialize(ctx)
	if err != nil {
		return handleApplicationError(err, nil)
	}

	runner, err := buildRunner(cfg, opts)
	if err != nil {
		return handleApplicationError(err, nil)
	}

	locations := normalizeLocations(opts.Locations)
	if len(locations) == 0 {
		locations = []string{cfg.Batch.DefaultLocation}
	}
	logger.Infof("%d 件のロケーションを処理します: %s", len(locations), strings.Join(locations, ", "))

	results, runErr := runner.RunAll(ctx, locations)
	return handleApplicationError(runErr, results)
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, results []appJob.RunResult) int {
	succeeded := 0
	for _, res := range results {
		if res.Err == nil {
			succeeded++
		}
	}
	if len(results) > 0 {
		logger.Infof("処理結果: 成功 %d 件 / 全 %d 件", succeeded, len(results))
	}

	if err == nil {
		return 0
	}

	if len(results) == 0 {
		logger.Errorf("アプリケーションの起動処理中にエラーが発生しました: %v", err)
		logBatchError(err)
		return 1
	}

	for _, res := range results {
		if res.Err == nil {
			continue
		}
		logger.Errorf("ロケーション '%s' (RunID: %s) の処理に失敗しました: %v", res.Location, res.Execution.ID, res.Err)
		logBatchError(res.Err)
	}
	return 1
}

// logBatchError は BatchError の詳細をログ出力します。
func logBatchError(err error) {
	var be *exception.BatchError
	if !errors.As(err, &be) {
		return
	}
	logger.Errorf("BatchError 詳細: Module=%s, Kind=%s, Message=%s, OriginalErr=%v", be.Module, be.Kind, be.Message, be.OriginalErr)
	if be.StackTrace != "" {
		logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
	}
}

func normalizeLocations(in []string) []string {
	out := make([]string, 0, len(in))
	for _, loc := range in {
		if loc = strings.TrimSpace(loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
