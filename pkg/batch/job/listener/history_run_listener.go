package listener

import (
	"context"
	"time"

	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

// RunRecorder は終了した実行を保存する機能です。repository.RunRepository が実装します。
type RunRecorder interface {
	SaveRun(ctx context.Context, run *core.RunExecution) error
}

// historySaveTimeout は実行履歴 1 件の保存に許す時間です。
const historySaveTimeout = 10 * time.Second

// HistoryRunListener は終了した実行を RunRecorder に記録します。
// 記録に失敗しても実行結果には影響させず、警告として出力するだけです。
type HistoryRunListener struct {
	core.NopRunListener
	recorder RunRecorder
}

func NewHistoryRunListener(recorder RunRecorder) *HistoryRunListener {
	return &HistoryRunListener{recorder: recorder}
}

// AfterRun は実行の ctx がキャンセル済みでも記録できるよう、キャンセルを切り離した ctx で保存します。
func (l *HistoryRunListener) AfterRun(ctx context.Context, run *core.RunExecution) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historySaveTimeout)
	defer cancel()
	if err := l.recorder.SaveRun(saveCtx, run); err != nil {
		logger.Warnf("実行履歴 (RunID: %s) の記録に失敗しました: %v", run.ID, err)
	}
}

var _ core.RunListener = (*HistoryRunListener)(nil)
