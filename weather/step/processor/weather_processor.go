package weatherprocessor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
)

const module = "weather_processor"

// Transformer は RawObservation を Observation に正規化します。
type Transformer interface {
	Transform(raw weather_entity.RawObservation) (weather_entity.Observation, error)
}

// owmPayload は current weather API のレスポンスのうち、使用するフィールドだけを表します。
// 欠落と型違いを区別するためにポインタで受けます。
type owmPayload struct {
	Name *string `json:"name"`
	Dt   *int64  `json:"dt"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Rain json.RawMessage `json:"rain"`
}

type owmRain struct {
	OneHour *float64 `json:"1h"`
}

// ObservationTransformer は OpenWeatherMap 形式のペイロードを変換する Transformer です。
// 状態を持たないため、複数の goroutine から同時に使用できます。
type ObservationTransformer struct{}

func NewObservationTransformer() *ObservationTransformer {
	return &ObservationTransformer{}
}

// Transform は raw を Observation に変換します。同じ入力に対しては常に同じ結果を返します。
func (t *ObservationTransformer) Transform(raw weather_entity.RawObservation) (weather_entity.Observation, error) {
	var p owmPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return weather_entity.Observation{}, exception.NewSchemaError(module, "ペイロードのデコードに失敗しました", err)
	}

	if p.Name == nil || *p.Name == "" {
		return weather_entity.Observation{}, missing("name")
	}
	if p.Dt == nil {
		return weather_entity.Observation{}, missing("dt")
	}
	if *p.Dt <= 0 {
		return weather_entity.Observation{}, exception.NewSchemaError(module, fmt.Sprintf("dt が正の整数ではありません: %d", *p.Dt), nil)
	}
	if p.Main == nil || p.Main.Temp == nil {
		return weather_entity.Observation{}, missing("main.temp")
	}
	if p.Main.Humidity == nil {
		return weather_entity.Observation{}, missing("main.humidity")
	}
	if p.Wind == nil || p.Wind.Speed == nil {
		return weather_entity.Observation{}, missing("wind.speed")
	}

	precipitation, err := rainLastHour(p.Rain)
	if err != nil {
		return weather_entity.Observation{}, err
	}

	return weather_entity.Observation{
		City:          *p.Name,
		Timestamp:     time.Unix(*p.Dt, 0).UTC(),
		Temperature:   *p.Main.Temp,
		Humidity:      *p.Main.Humidity,
		Precipitation: precipitation,
		WindSpeed:     *p.Wind.Speed,
	}, nil
}

// rainLastHour は rain.1h を返します。rain または rain.1h が無い場合は 0 です。
func rainLastHour(msg json.RawMessage) (float64, error) {
	if len(msg) == 0 || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return 0, nil
	}
	var rain owmRain
	if err := json.Unmarshal(msg, &rain); err != nil {
		return 0, exception.NewSchemaError(module, "rain フィールドの形式が不正です", err)
	}
	if rain.OneHour == nil {
		return 0, nil
	}
	return *rain.OneHour, nil
}

func missing(field string) error {
	return exception.NewSchemaError(module, fmt.Sprintf("必須フィールド '%s' がありません", field), nil)
}

var _ Transformer = (*ObservationTransformer)(nil)
