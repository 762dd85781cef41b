package listener

import (
	"context"

	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

// LoggingRunListener は実行のライフサイクルイベントをログ出力する RunListener の実装です。
type LoggingRunListener struct{}

// NewLoggingRunListener は新しい LoggingRunListener のインスタンスを作成します。
func NewLoggingRunListener() *LoggingRunListener {
	return &LoggingRunListener{}
}

func (l *LoggingRunListener) BeforeRun(ctx context.Context, run *core.RunExecution) {
	logger.Infof("ロケーション '%s' のパイプラインを開始します。(RunID: %s)", run.Location, run.ID)
}

func (l *LoggingRunListener) AfterRun(ctx context.Context, run *core.RunExecution) {
	switch run.Status {
	case core.StatusDone:
		if n := len(run.SinkWarnings); n > 0 {
			logger.Warnf("ロケーション '%s' のパイプラインが %d 件のシンク警告付きで完了しました。(RunID: %s, 所要時間: %s)",
				run.Location, n, run.ID, run.Duration())
			return
		}
		logger.Infof("ロケーション '%s' のパイプラインが正常に完了しました。(RunID: %s, 所要時間: %s)", run.Location, run.ID, run.Duration())
	default:
		logger.Errorf("ロケーション '%s' のパイプラインが %s ステージで失敗しました。(RunID: %s, 試行回数: %d): %v",
			run.Location, run.FailedStage, run.ID, run.Attempts, run.LastFailure())
	}
}

// OnFetchRetry は fetch がリトライされるときに呼び出されます。
func (l *LoggingRunListener) OnFetchRetry(ctx context.Context, run *core.RunExecution, attempt int, err error) {
	logger.Warnf("ロケーション '%s' の取得に失敗しました。リトライします。(試行 %d): %v", run.Location, attempt, err)
}

// OnSinkError はシンクの失敗が握りつぶされるときに呼び出されます。
func (l *LoggingRunListener) OnSinkError(ctx context.Context, run *core.RunExecution, sink string, err error) {
	logger.Warnf("%s への書き込みに失敗しましたが、処理を継続します。(ロケーション: %s): %v", sink, run.Location, err)
}

// LoggingRunListener が RunListener インターフェースを満たすことを確認
var _ core.RunListener = (*LoggingRunListener)(nil)
