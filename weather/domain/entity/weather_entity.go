package weather_entity

import "time"

// RawObservation は天気 API から取得したデコード前のレスポンスボディです。
// スキーマは API 提供元が所有するため、ここでは解釈しません。
type RawObservation []byte

// Observation は正規化済みの 1 件の気象観測値です。生成後に変更してはいけません。
type Observation struct {
	City          string
	Timestamp     time.Time // UTC
	Temperature   float64   // 摂氏
	Humidity      float64   // 0-100 (%)
	Precipitation float64   // 直近 1 時間の降水量 (mm)。欠落時は 0
	WindSpeed     float64   // m/s
}

// ReportHeader は CSV レポートのヘッダー行の列名です。
var ReportHeader = []string{"city", "timestamp", "temperature", "humidity", "precipitation", "wind_speed"}
