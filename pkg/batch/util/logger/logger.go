package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel はログのレベルを表す型です。
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	current.Store(newLogger(os.Stderr, "text"))
}

// Init は出力先フォーマットとレベルを設定します。
// format が "json" の場合は JSON ハンドラ、それ以外は tint によるテキストハンドラを使用します。
func Init(levelName, format string) {
	SetLogLevel(levelName)
	l := newLogger(os.Stderr, format)
	current.Store(l)
	slog.SetDefault(l)
}

// SetOutput はテスト用に出力先を差し替えます。
func SetOutput(w io.Writer, format string) {
	current.Store(newLogger(w, format))
}

func newLogger(w io.Writer, format string) *slog.Logger {
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}

// ParseLevel はレベル名を LogLevel に変換します。
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("不明なログレベル '%s'", name)
	}
}

// SetLogLevel はログレベルを設定します。不明なレベル名の場合は INFO で続行します。
func SetLogLevel(name string) {
	lv, err := ParseLevel(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v が指定されました。INFO レベルで続行します。\n", err)
	}
	level.Set(lv.slogLevel())
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger は現在の *slog.Logger を返します。属性付きで出力したい場合に使用します。
func Logger() *slog.Logger {
	return current.Load()
}

func logf(lv slog.Level, format string, v ...any) {
	l := current.Load()
	if !l.Enabled(context.Background(), lv) {
		return
	}
	l.Log(context.Background(), lv, fmt.Sprintf(format, v...))
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// Fatalf は ERROR レベルでログを出力し、プログラムを終了します。
func Fatalf(format string, v ...any) {
	logf(slog.LevelError, "[FATAL] "+format, v...)
	os.Exit(1)
}
