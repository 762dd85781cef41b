package weatherreader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
)

const (
	module = "weather_reader"

	// Units は API に要求する単位系です。Observation の単位 (摂氏, m/s) はこれに依存します。
	Units = "metric"

	// エラーメッセージに含めるレスポンスボディの最大長
	maxErrorBody = 512
)

// Source は指定されたロケーションの現在の観測値を取得します。
type Source interface {
	Fetch(ctx context.Context, location string) (weather_entity.RawObservation, error)
}

// OpenWeatherSource は OpenWeatherMap の current weather API から観測値を取得する Source です。
// 呼び出しごとに 1 回だけ GET を発行し、結果はキャッシュしません。
type OpenWeatherSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewOpenWeatherSource は新しい OpenWeatherSource のインスタンスを作成します。
// client が nil の場合は cfg のタイムアウトを持つクライアントを作成します。
func NewOpenWeatherSource(cfg config.BatchConfig, client *http.Client) *OpenWeatherSource {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}

	cbCfg := cfg.CircuitBreaker
	threshold := cbCfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweathermap",
		MaxRequests: cbCfg.MaxRequests,
		Interval:    time.Duration(cbCfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cbCfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("サーキットブレーカー '%s' の状態が変化しました: %s -> %s", name, from, to)
		},
	})

	return &OpenWeatherSource{
		endpoint: cfg.APIEndpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		breaker:  breaker,
	}
}

// fetchResult はブレーカーの外へ結果を運びます。
// 恒久的なエラーは err に入れ、ブレーカーの失敗としては数えません。
type fetchResult struct {
	body []byte
	err  error
}

// Fetch は location の現在の観測値を取得します。
func (s *OpenWeatherSource) Fetch(ctx context.Context, location string) (weather_entity.RawObservation, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, exception.NewPermanentFetchError(module, "ロケーションが指定されていません", nil)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.doRequest(ctx, location)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, exception.NewTransientFetchError(module, "サーキットブレーカーが開いているため天気 API を呼び出せません", err)
		}
		return nil, err
	}

	res := out.(*fetchResult)
	if res.err != nil {
		return nil, res.err
	}
	logger.Debugf("ロケーション '%s' の観測値を取得しました。(%d bytes)", location, len(res.body))
	return weather_entity.RawObservation(res.body), nil
}

func (s *OpenWeatherSource) requestURL(location string) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("q", location)
	q.Set("appid", s.apiKey)
	q.Set("units", Units)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// doRequest は HTTP リクエストを 1 回実行します。
// 一時的なエラーは error として返し、それ以外は fetchResult に格納します。
func (s *OpenWeatherSource) doRequest(ctx context.Context, location string) (*fetchResult, error) {
	apiURL, err := s.requestURL(location)
	if err != nil {
		return &fetchResult{err: exception.NewPermanentFetchError(module, "API エンドポイントが不正です", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return &fetchResult{err: exception.NewPermanentFetchError(module, "HTTPリクエストの作成に失敗しました", err)}, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// タイムアウトや接続エラーはネットワークの一時的な問題として扱う
		return nil, exception.NewTransientFetchError(module, "API呼び出しエラー", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exception.NewTransientFetchError(module, "レスポンスボディの読み込みに失敗しました", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, exception.NewTransientFetchError(module, statusMessage(resp.StatusCode, body), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &fetchResult{err: exception.NewPermanentFetchError(module, statusMessage(resp.StatusCode, body), nil)}, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return &fetchResult{err: exception.NewPermanentFetchError(module, "API レスポンスが JSON オブジェクトではありません", nil)}, nil
	}
	return &fetchResult{body: trimmed}, nil
}

func statusMessage(code int, body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("APIからエラーレスポンスが返されました: ステータスコード %d, ボディ: %s", code, strings.TrimSpace(string(body)))
}

var _ Source = (*OpenWeatherSource)(nil)
