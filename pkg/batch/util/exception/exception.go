package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind は BatchError の分類です。リトライ可否やパイプライン上の扱いはこの分類で決まります。
type Kind string

const (
	KindTransientFetch Kind = "TransientFetchError" // ネットワーク障害や 5xx などリトライ可能な取得エラー
	KindPermanentFetch Kind = "PermanentFetchError" // 4xx や不正なレスポンスボディなどリトライ不可の取得エラー
	KindSchema         Kind = "SchemaError"         // プロバイダのペイロードが期待する形をしていない
	KindPersistence    Kind = "PersistenceError"    // リレーショナルストアへの書き込み失敗
	KindIO             Kind = "IOError"             // レポートファイルへの書き込み失敗
	KindConfig         Kind = "ConfigError"         // 起動時の設定不備
)

// BatchError はパイプライン処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、分類、メッセージ、ラップされた元のエラーを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "weather_reader", "relational_sink", "config")
	Kind        Kind
	Message     string // エラーの簡潔な説明
	OriginalErr error  // ラップされた元のエラー
	StackTrace  string // スタックトレース (デバッグ用)
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module string, kind Kind, message string, originalErr error) *BatchError {
	return &BatchError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して BatchError を作成します。
// 最後の引数が error の場合は OriginalErr として扱い、メッセージの引数からは除外します。
func NewBatchErrorf(module string, kind Kind, format string, a ...any) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			originalErr = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), originalErr)
}

func NewTransientFetchError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindTransientFetch, message, err)
}

func NewPermanentFetchError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindPermanentFetch, message, err)
}

func NewSchemaError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindSchema, message, err)
}

func NewPersistenceError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindPersistence, message, err)
}

func NewIOError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindIO, message, err)
}

func NewConfigError(module, message string, err error) *BatchError {
	return NewBatchError(module, KindConfig, message, err)
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, e.Kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, e.Kind, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
// リトライ対象は一時的な取得エラーのみです。
func (e *BatchError) IsRetryable() bool {
	return e.Kind == KindTransientFetch
}

// IsKind はエラーチェーン中に指定の分類の BatchError が含まれるかを判定します。
func IsKind(err error, kind Kind) bool {
	var be *BatchError
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind
}

// IsTransient はリトライ可能な取得エラーかどうかを判定します。
// BatchError として分類されていないエラーはリトライ不可として扱います。
func IsTransient(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}

// KindOf はエラーチェーン中の最初の BatchError の分類を返します。見つからない場合は空文字です。
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return strings.TrimSpace(string(buf[:n]))
}
