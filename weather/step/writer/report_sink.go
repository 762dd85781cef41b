package weatherwriter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/logger"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
)

const reportModule = "report_sink"

// ReportWriter は観測値をフラットファイルのレポートに追記します。
type ReportWriter interface {
	Append(ctx context.Context, observations []weather_entity.Observation, path string) error
}

// ReportSink は CSV レポートへの追記のみを行う ReportWriter です。ファイルを切り詰めることはありません。
// ヘッダーはファイルが空の場合にだけ書き込みます。
// 同じインスタンスへの Append は直列化され、並行実行でもヘッダーが重複しません。
type ReportSink struct {
	mu sync.Mutex
}

func NewReportSink() *ReportSink {
	return &ReportSink{}
}

func (s *ReportSink) Append(ctx context.Context, observations []weather_entity.Observation, path string) (err error) {
	select {
	case <-ctx.Done():
		return exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' への追記がキャンセルされました", path), ctx.Err())
	default:
	}

	// 空ファイルの判定からクローズまでを保護する
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' を開けません", path), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' のクローズに失敗しました", path), cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' の情報を取得できません", path), err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(weather_entity.ReportHeader); err != nil {
			return exception.NewIOError(reportModule, "ヘッダーの書き込みに失敗しました", err)
		}
	}
	for _, obs := range observations {
		if err := w.Write(formatRow(obs)); err != nil {
			return exception.NewIOError(reportModule, "行の書き込みに失敗しました", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' への書き込みに失敗しました", path), err)
	}

	logger.Infof("レポート '%s' に観測値 %d 件を追記しました。", path, len(observations))
	return nil
}

func formatRow(obs weather_entity.Observation) []string {
	return []string{
		obs.City,
		obs.Timestamp.UTC().Format(time.RFC3339),
		formatFloat(obs.Temperature),
		formatFloat(obs.Humidity),
		formatFloat(obs.Precipitation),
		formatFloat(obs.WindSpeed),
	}
}

// formatFloat は値を再現できる最短の十進表記で返します。
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadReport は CSV レポートを読み込み、記録されている観測値を返します。
func ReadReport(path string) ([]weather_entity.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewIOError(reportModule, fmt.Sprintf("レポートファイル '%s' を開けません", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(weather_entity.ReportHeader)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewIOError(reportModule, "ヘッダーの読み込みに失敗しました", err)
	}
	if !slices.Equal(header, weather_entity.ReportHeader) {
		return nil, exception.NewIOError(reportModule, fmt.Sprintf("ヘッダーが不正です: %v", header), nil)
	}

	var observations []weather_entity.Observation
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.NewIOError(reportModule, "行の読み込みに失敗しました", err)
		}
		obs, err := parseRow(rec)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, exception.NewIOError(reportModule, fmt.Sprintf("%d 行目を解釈できません", line), err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

func parseRow(rec []string) (weather_entity.Observation, error) {
	ts, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return weather_entity.Observation{}, err
	}
	var nums [4]float64
	for i := range nums {
		if nums[i], err = strconv.ParseFloat(rec[i+2], 64); err != nil {
			return weather_entity.Observation{}, err
		}
	}
	return weather_entity.Observation{
		City:          rec[0],
		Timestamp:     ts.UTC(),
		Temperature:   nums[0],
		Humidity:      nums[1],
		Precipitation: nums[2],
		WindSpeed:     nums[3],
	}, nil
}

var _ ReportWriter = (*ReportSink)(nil)
