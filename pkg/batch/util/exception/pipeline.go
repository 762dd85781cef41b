package exception

import (
	"errors"
	"fmt"
)

// Stage はパイプラインの実行段階を表します。
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
)

// PipelineFailedError は fetch または transform の段階で回復手段を使い切った場合の終端エラーです。
// persist 段階の失敗はこのエラーにはなりません。
type PipelineFailedError struct {
	Stage    Stage
	Location string
	Attempts int // fetch の試行回数。transform で失敗した場合は成功した fetch までの試行回数
	Err      error
}

func NewPipelineFailedError(stage Stage, location string, attempts int, err error) *PipelineFailedError {
	return &PipelineFailedError{Stage: stage, Location: location, Attempts: attempts, Err: err}
}

func (e *PipelineFailedError) Error() string {
	return fmt.Sprintf("pipeline failed at %s stage for %q after %d attempt(s): %v", e.Stage, e.Location, e.Attempts, e.Err)
}

func (e *PipelineFailedError) Unwrap() error {
	return e.Err
}

// AsPipelineFailed はエラーチェーンから PipelineFailedError を取り出します。
func AsPipelineFailed(err error) (*PipelineFailedError, bool) {
	var pf *PipelineFailedError
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
