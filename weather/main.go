package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	flag "github.com/spf13/pflag"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
	"github.com/tigerroll/weather-pipeline/weather/app"
)

//go:embed resources/application.yaml
var embeddedConfig []byte // application.yaml の内容をバイトスライスとして埋め込む

func main() {
	opts, err := app.ParseOptions(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger.Fatalf("コマンドライン引数の解析に失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング (Ctrl+C などで安全に終了するため)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。実行中のパイプラインを停止します...", sig)
		cancel()
	}()

	exitCode := app.RunApplication(ctx, opts, embeddedConfig)
	cancel()
	os.Exit(exitCode)
}
