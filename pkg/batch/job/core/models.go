package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

// RunStatus はパイプライン実行の状態を表します。
type RunStatus string

const (
	StatusIdle         RunStatus = "IDLE"
	StatusFetching     RunStatus = "FETCHING"
	StatusTransforming RunStatus = "TRANSFORMING"
	StatusPersisting   RunStatus = "PERSISTING"
	StatusDone         RunStatus = "DONE"
	StatusFailed       RunStatus = "FAILED"
)

// IsFinished は RunStatus が終了状態かどうかを判定するヘルパーメソッドです。
func (s RunStatus) IsFinished() bool {
	switch s {
	case StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// 許可される状態遷移。FAILED へは FETCHING と TRANSFORMING からのみ遷移できる。
var transitions = map[RunStatus][]RunStatus{
	StatusIdle:         {StatusFetching},
	StatusFetching:     {StatusTransforming, StatusFailed},
	StatusTransforming: {StatusPersisting, StatusFailed},
	StatusPersisting:   {StatusDone},
}

// CanTransitionTo は現在の状態から next へ遷移できるかを返します。
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunExecution は 1 ロケーション分のパイプライン実行を表す構造体です。
// 1 回の実行の中では逐次的に更新されるため、ロックは持ちません。
type RunExecution struct {
	ID           string
	Location     string
	Status       RunStatus
	FailedStage  exception.Stage
	Attempts     int     // fetch の試行回数
	SinkWarnings []error // 握りつぶされたシンクのエラー
	Failures     []error
	StartTime    time.Time
	EndTime      time.Time
}

// NewRunExecution は IDLE 状態の RunExecution を作成します。
func NewRunExecution(location string) *RunExecution {
	return &RunExecution{
		ID:       uuid.NewString(),
		Location: location,
		Status:   StatusIdle,
	}
}

// TransitionTo は状態を next に進めます。許可されていない遷移はエラーになります。
func (r *RunExecution) TransitionTo(next RunStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("不正な状態遷移です: %s -> %s", r.Status, next)
	}
	if r.Status == StatusIdle {
		r.StartTime = time.Now()
	}
	r.Status = next
	if next.IsFinished() {
		r.EndTime = time.Now()
	}
	return nil
}

// MarkFailed は実行を FAILED にし、失敗したステージと原因を記録します。
func (r *RunExecution) MarkFailed(stage exception.Stage, err error) error {
	if e := r.TransitionTo(StatusFailed); e != nil {
		return e
	}
	r.FailedStage = stage
	if err != nil {
		r.Failures = append(r.Failures, err)
	}
	return nil
}

// MarkDone は実行を DONE にします。
func (r *RunExecution) MarkDone() error {
	return r.TransitionTo(StatusDone)
}

// AddSinkWarning はシンクの失敗を警告として記録します。
func (r *RunExecution) AddSinkWarning(err error) {
	r.SinkWarnings = append(r.SinkWarnings, err)
}

// LastFailure は最後に記録された失敗を返します。
func (r *RunExecution) LastFailure() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[len(r.Failures)-1]
}

func (r *RunExecution) Duration() time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}
