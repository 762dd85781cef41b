package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLWeatherRepository_SQLPerDialect(t *testing.T) {
	pg, err := NewWeatherRepository("postgres")
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO weather_metrics (city, timestamp, temperature, humidity, precipitation, wind_speed) VALUES ($1, $2, $3, $4, $5, $6)",
		pg.InsertSQL("weather_metrics"))
	assert.Contains(t, pg.CreateTableSQL("weather_metrics"), "timestamp TIMESTAMPTZ NOT NULL")

	my, err := NewWeatherRepository("mysql")
	require.NoError(t, err)
	assert.Contains(t, my.InsertSQL("m"), "VALUES (?, ?, ?, ?, ?, ?)")
	assert.Contains(t, my.CreateTableSQL("m"), "city VARCHAR(255) NOT NULL")

	_, err = NewWeatherRepository("oracle")
	assert.Error(t, err)
}
