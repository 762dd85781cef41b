package initializer

import (
	"context"
	"time"

	config "github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	exception "github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	logger "github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"
)

const (
	defaultConnectAttempts = 5
	defaultConnectDelay    = 2 * time.Second
)

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
type BatchInitializer struct {
	Config         *config.Config
	EmbeddedConfig []byte

	// マイグレーション前のデータベース接続確認の試行回数と間隔
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(embeddedConfig []byte) *BatchInitializer {
	return &BatchInitializer{
		EmbeddedConfig:  embeddedConfig,
		ConnectAttempts: defaultConnectAttempts,
		ConnectDelay:    defaultConnectDelay,
	}
}

// LoadConfig は埋め込み設定と環境変数から設定をロードし、ロガーを設定してから検証します。
func (bi *BatchInitializer) LoadConfig() (*config.Config, error) {
	cfg, err := config.NewBytesConfigLoader(bi.EmbeddedConfig).Load()
	if err != nil {
		return nil, err
	}
	bi.Config = cfg

	logger.Init(cfg.System.Logging.Level, cfg.System.Logging.Format)
	logger.Debugf("ロギングレベルを '%s' に設定しました。", cfg.System.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Initialize は設定をロードし、必要であればデータベースの準備を待ってマイグレーションを適用します。
func (bi *BatchInitializer) Initialize(ctx context.Context) (*config.Config, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")

	cfg, err := bi.LoadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		if err := bi.waitForDatabase(ctx); err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}

	logger.Infof("バッチアプリケーションの初期化が完了しました。")
	return cfg, nil
}

// waitForDatabase はデータベースに接続できるまでリトライします。
// コンテナ起動直後などでデータベースの準備が遅れる場合に備えます。
func (bi *BatchInitializer) waitForDatabase(ctx context.Context) error {
	attempts := bi.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", i, attempts)
		if err = database.Ping(ctx, bi.Config.Database); err == nil {
			return nil
		}
		logger.Warnf("データベースへの接続に失敗しました: %v", err)
		if i == attempts {
			break
		}

		timer := time.NewTimer(bi.ConnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return exception.NewPersistenceError("initializer", "データベース接続の待機が中断されました", ctx.Err())
		case <-timer.C:
		}
	}
	return exception.NewBatchErrorf("initializer", exception.KindPersistence, "データベースへの接続に最大試行回数 (%d) 失敗しました", attempts, err)
}
