package weatherprocessor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"

	weather_entity "github.com/tigerroll/weather-pipeline/weather/domain/entity"
	weatherprocessor "github.com/tigerroll/weather-pipeline/weather/step/processor"
)

const sfPayload = `{"name":"San Francisco","dt":1700000000,"main":{"temp":18.5,"humidity":72},"wind":{"speed":4.1}}`

func TestTransform_SanFrancisco(t *testing.T) {
	obs, err := weatherprocessor.NewObservationTransformer().Transform(weather_entity.RawObservation(sfPayload))
	require.NoError(t, err)

	assert.Equal(t, weather_entity.Observation{
		City:          "San Francisco",
		Timestamp:     time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		Temperature:   18.5,
		Humidity:      72,
		Precipitation: 0,
		WindSpeed:     4.1,
	}, obs)
	assert.Equal(t, "2023-11-14T22:13:20Z", obs.Timestamp.Format(time.RFC3339))
}

func TestTransform_Deterministic(t *testing.T) {
	tr := weatherprocessor.NewObservationTransformer()
	raw := weather_entity.RawObservation(`{"name":"Tokyo","dt":1700003600,"main":{"temp":9.25,"humidity":40},"wind":{"speed":2},"rain":{"1h":0.3}}`)

	first, err := tr.Transform(raw)
	require.NoError(t, err)
	second, err := tr.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 0.3, first.Precipitation)
}

func TestTransform_PrecipitationDefaults(t *testing.T) {
	tests := []struct {
		name string
		rain string
		want float64
	}{
		{"rain absent", ``, 0},
		{"rain null", `,"rain":null`, 0},
		{"rain without 1h", `,"rain":{"3h":1.2}`, 0},
		{"rain 1h present", `,"rain":{"1h":2.5}`, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"name":"Oslo","dt":1700000000,"main":{"temp":-3,"humidity":90},"wind":{"speed":6.5}` + tt.rain + `}`
			obs, err := weatherprocessor.NewObservationTransformer().Transform(weather_entity.RawObservation(raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, obs.Precipitation)
		})
	}
}

func TestTransform_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing main.temp", `{"name":"X","dt":1700000000,"main":{"humidity":50},"wind":{"speed":1}}`},
		{"missing main", `{"name":"X","dt":1700000000,"wind":{"speed":1}}`},
		{"missing name", `{"dt":1700000000,"main":{"temp":1,"humidity":50},"wind":{"speed":1}}`},
		{"empty name", `{"name":"","dt":1700000000,"main":{"temp":1,"humidity":50},"wind":{"speed":1}}`},
		{"missing dt", `{"name":"X","main":{"temp":1,"humidity":50},"wind":{"speed":1}}`},
		{"non-positive dt", `{"name":"X","dt":0,"main":{"temp":1,"humidity":50},"wind":{"speed":1}}`},
		{"fractional dt", `{"name":"X","dt":1700000000.5,"main":{"temp":1,"humidity":50},"wind":{"speed":1}}`},
		{"missing humidity", `{"name":"X","dt":1700000000,"main":{"temp":1},"wind":{"speed":1}}`},
		{"missing wind.speed", `{"name":"X","dt":1700000000,"main":{"temp":1,"humidity":50},"wind":{}}`},
		{"temp is a string", `{"name":"X","dt":1700000000,"main":{"temp":"warm","humidity":50},"wind":{"speed":1}}`},
		{"temp is null", `{"name":"X","dt":1700000000,"main":{"temp":null,"humidity":50},"wind":{"speed":1}}`},
		{"main is an array", `{"name":"X","dt":1700000000,"main":[1],"wind":{"speed":1}}`},
		{"rain is a number", `{"name":"X","dt":1700000000,"main":{"temp":1,"humidity":50},"wind":{"speed":1},"rain":3}`},
		{"rain.1h is a string", `{"name":"X","dt":1700000000,"main":{"temp":1,"humidity":50},"wind":{"speed":1},"rain":{"1h":"a lot"}}`},
		{"not an object", `[]`},
		{"not JSON", `nope`},
	}
	tr := weatherprocessor.NewObservationTransformer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Transform(weather_entity.RawObservation(tt.raw))
			require.Error(t, err)
			assert.True(t, exception.IsKind(err, exception.KindSchema), err.Error())
		})
	}
}
