package weather

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "current": {"time": "2025-03-01T10:00", "temperature_2m": 29.4, "weather_code": 61, "wind_speed_10m": 7.2},
  "daily": {
    "time": ["2025-03-01", "2025-03-02", "2025-03-03"],
    "weather_code": [61, 3, 95],
    "temperature_2m_max": [31.0, 32.1, 30.2],
    "temperature_2m_min": [23.5, 24.0, 23.1]
  }
}`

func TestForecastCachesByRoundedCoordinate(t *testing.T) {
	var hits atomic.Int32
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		lastQuery.Store(r.URL.RawQuery)
		_, _ = io.WriteString(w, sample)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	f, err := c.Forecast(context.Background(), -6.91234, 107.60981)
	require.NoError(t, err)
	assert.Equal(t, "Hujan ringan", f.Current.Description)
	assert.Equal(t, 29.4, f.Current.Temperature)
	require.Len(t, f.Daily, 3)
	assert.Equal(t, "Badai petir", f.Daily[2].Description)
	assert.Equal(t, 23.1, f.Daily[2].Min)
	q := lastQuery.Load().(string)
	assert.Contains(t, q, "latitude=-6.91")
	assert.Contains(t, q, "forecast_days=3")

	_, err = c.Forecast(context.Background(), -6.9149, 107.6101)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.Forecast(context.Background(), -7.0, 107.6)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestForecastErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": true, "reason": "Latitude must be in range of -90 to 90°."}`)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	_, err := c.Forecast(context.Background(), 10, 10)
	assert.ErrorContains(t, err, "Latitude must be in range")

	_, err = c.Forecast(context.Background(), 91, 10)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Cerah", Describe(0))
	assert.Equal(t, "Mendung", Describe(3))
	assert.Equal(t, "Tidak diketahui", Describe(42))
}
