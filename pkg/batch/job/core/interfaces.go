package core

import "context"

// RunListener はパイプライン実行のライフサイクルイベントを処理するためのインターフェースです。
type RunListener interface {
	// BeforeRun は fetch を開始する直前に呼び出されます。
	BeforeRun(ctx context.Context, run *RunExecution)
	// AfterRun は実行が DONE または FAILED になった後に呼び出されます。
	AfterRun(ctx context.Context, run *RunExecution)
	// OnFetchRetry は一時的なエラーで fetch をリトライする前に呼び出されます。attempt は失敗した試行の番号です。
	OnFetchRetry(ctx context.Context, run *RunExecution, attempt int, err error)
	// OnSinkError はシンクの失敗を握りつぶす際に呼び出されます。
	OnSinkError(ctx context.Context, run *RunExecution, sink string, err error)
}

// NopRunListener は何もしない RunListener です。必要なメソッドだけを上書きするために埋め込んで使用します。
type NopRunListener struct{}

func (NopRunListener) BeforeRun(context.Context, *RunExecution)                 {}
func (NopRunListener) AfterRun(context.Context, *RunExecution)                  {}
func (NopRunListener) OnFetchRetry(context.Context, *RunExecution, int, error)  {}
func (NopRunListener) OnSinkError(context.Context, *RunExecution, string, error) {}

var _ RunListener = NopRunListener{}
