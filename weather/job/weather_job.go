package job

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	config "github.com/tigerroll/weather-pipeline/pkg/batch/config"
	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	exception "github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	logger "github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
	weatherprocessor "github.com/tigerroll/weather-pipeline/weather/step/processor"
	weatherreader "github.com/tigerroll/weather-pipeline/weather/step/reader"
	weatherwriter "github.com/tigerroll/weather-pipeline/weather/step/writer"
)

const (
	SinkRelational = "relational_sink"
	SinkReport     = "report_sink"
)

// RetryPolicy は fetch ステップのリトライ方針です。一時的なエラーだけがリトライ対象です。
type RetryPolicy struct {
	MaxAttempts int           // 最初の試行を含む最大試行回数
	Delay       time.Duration // 試行間の固定の待ち時間
}

// DefaultRetryPolicy は 10 秒間隔で最大 3 回試行する RetryPolicy を返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second}
}

// RetryPolicyFromConfig は設定から RetryPolicy を作成します。
// 試行回数が設定されていない場合は DefaultRetryPolicy を返します。
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	if cfg.MaxAttempts < 1 {
		return DefaultRetryPolicy()
	}
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Delay: cfg.Interval()}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Options は PipelineRunner の実行時設定です。
type Options struct {
	Table       string
	ReportPath  string
	Retry       RetryPolicy
	Concurrency int // RunAll で同時に実行するロケーション数の上限
}

// PipelineRunner は fetch → transform → persist の順にパイプラインを実行します。
// 1 回の実行は逐次的で、異なるロケーションの実行同士は状態を共有しません。
type PipelineRunner struct {
	source       weatherreader.Source
	transformer  weatherprocessor.Transformer
	tableWriter  weatherwriter.TableWriter
	reportWriter weatherwriter.ReportWriter
	opts         Options
	listeners    []core.RunListener
}

// NewPipelineRunner は新しい PipelineRunner のインスタンスを作成します。
func NewPipelineRunner(
	source weatherreader.Source,
	transformer weatherprocessor.Transformer,
	tableWriter weatherwriter.TableWriter,
	reportWriter weatherwriter.ReportWriter,
	opts Options,
	listeners ...core.RunListener,
) *PipelineRunner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &PipelineRunner{
		source:       source,
		transformer:  transformer,
		tableWriter:  tableWriter,
		reportWriter: reportWriter,
		opts:         opts,
		listeners:    listeners,
	}
}

// Run は location のパイプラインを 1 回実行し、正規化された Observation を返します。
// fetch または transform で回復できない失敗が起きた場合は *exception.PipelineFailedError を返します。
// シンクの失敗は警告として記録されるだけで、戻り値には影響しません。
func (r *PipelineRunner) Run(ctx context.Context, location string) (weather_entity.Observation, error) {
	return r.Execute(ctx, core.NewRunExecution(location))
}

// Execute は run の状態を更新しながらパイプラインを実行します。
func (r *PipelineRunner) Execute(ctx context.Context, run *core.RunExecution) (weather_entity.Observation, error) {
	r.notifyBeforeRun(ctx, run)
	defer r.notifyAfterRun(ctx, run)

	r.advance(run, core.StatusFetching)
	raw, err := r.fetchWithRetry(ctx, run)
	if err != nil {
		return weather_entity.Observation{}, r.fail(run, exception.StageFetch, err)
	}

	r.advance(run, core.StatusTransforming)
	obs, err := r.transformer.Transform(raw)
	if err != nil {
		return weather_entity.Observation{}, r.fail(run, exception.StageTransform, err)
	}

	r.advance(run, core.StatusPersisting)
	r.persist(ctx, run, obs)

	if err := run.MarkDone(); err != nil {
		logger.Errorf("RunExecution (ID: %s) の状態を更新できませんでした: %v", run.ID, err)
	}
	return obs, nil
}

// fetchWithRetry は一時的なエラーの間だけ、固定の間隔を空けて fetch を繰り返します。
func (r *PipelineRunner) fetchWithRetry(ctx context.Context, run *core.RunExecution) (weather_entity.RawObservation, error) {
	maxAttempts := r.opts.Retry.attempts()
	for attempt := 1; ; attempt++ {
		run.Attempts = attempt
		raw, err := r.source.Fetch(ctx, run.Location)
		if err == nil {
			return raw, nil
		}
		if !exception.IsTransient(err) || attempt >= maxAttempts {
			return nil, err
		}

		r.notifyFetchRetry(ctx, run, attempt, err)
		if werr := wait(ctx, r.opts.Retry.Delay); werr != nil {
			return nil, errors.Join(werr, err)
		}
	}
}

// wait は d だけ待機します。ctx が先に終了した場合はそのエラーを返します。
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// persist は 2 つのシンクを独立に呼び出します。片方の失敗はもう片方の実行を妨げません。
func (r *PipelineRunner) persist(ctx context.Context, run *core.RunExecution, obs weather_entity.Observation) {
	batch := []weather_entity.Observation{obs}
	if r.tableWriter != nil {
		if err := r.tableWriter.Save(ctx, batch, r.opts.Table); err != nil {
			r.sinkFailed(ctx, run, SinkRelational, err)
		}
	}
	if r.reportWriter != nil {
		if err := r.reportWriter.Append(ctx, batch, r.opts.ReportPath); err != nil {
			r.sinkFailed(ctx, run, SinkReport, err)
		}
	}
}

func (r *PipelineRunner) sinkFailed(ctx context.Context, run *core.RunExecution, sink string, err error) {
	run.AddSinkWarning(err)
	for _, l := range r.listeners {
		l.OnSinkError(ctx, run, sink, err)
	}
}

func (r *PipelineRunner) fail(run *core.RunExecution, stage exception.Stage, err error) error {
	pf := exception.NewPipelineFailedError(stage, run.Location, run.Attempts, err)
	if mErr := run.MarkFailed(stage, pf); mErr != nil {
		logger.Errorf("RunExecution (ID: %s) の状態を更新できませんでした: %v", run.ID, mErr)
	}
	return pf
}

func (r *PipelineRunner) advance(run *core.RunExecution, next core.RunStatus) {
	if err := run.TransitionTo(next); err != nil {
		logger.Errorf("RunExecution (ID: %s) の状態を更新できませんでした: %v", run.ID, err)
	}
}

func (r *PipelineRunner) notifyBeforeRun(ctx context.Context, run *core.RunExecution) {
	for _, l := range r.listeners {
		l.BeforeRun(ctx, run)
	}
}

func (r *PipelineRunner) notifyAfterRun(ctx context.Context, run *core.RunExecution) {
	for _, l := range r.listeners {
		l.AfterRun(ctx, run)
	}
}

func (r *PipelineRunner) notifyFetchRetry(ctx context.Context, run *core.RunExecution, attempt int, err error) {
	for _, l := range r.listeners {
		l.OnFetchRetry(ctx, run, attempt, err)
	}
}

// RunResult は RunAll における 1 ロケーション分の結果です。
type RunResult struct {
	Location    string
	Observation weather_entity.Observation
	Execution   *core.RunExecution
	Err         error
}

// RunAll は locations を独立した実行として並行に処理します。同時実行数は Options.Concurrency で制限されます。
// 結果は locations と同じ順序で返します。失敗した実行があれば、それらのエラーをまとめて返します。
func (r *PipelineRunner) RunAll(ctx context.Context, locations []string) ([]RunResult, error) {
	results := make([]RunResult, len(locations))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, location := range locations {
		g.Go(func() error {
			run := core.NewRunExecution(location)
			obs, err := r.Execute(ctx, run)
			results[i] = RunResult{Location: location, Observation: obs, Execution: run, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}
