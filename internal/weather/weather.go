// Package weather fetches display-only forecasts from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tani/internal/cache"
	applog "tani/internal/log"
)

const DefaultURL = "https://api.open-meteo.com/v1/forecast"

var ErrInvalidCoordinates = errors.New("invalid coordinates")

type Current struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	Code        int     `json:"code"`
	Description string  `json:"description"`
}

type Day struct {
	Date        string  `json:"date"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Code        int     `json:"code"`
	Description string  `json:"description"`
}

type Forecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   Current `json:"current"`
	Daily     []Day   `json:"daily"`
}

type Config struct {
	URL        string
	TTL        time.Duration
	HTTPClient *http.Client
	Logger     *applog.Logger
}

// Client caches forecasts per coordinate rounded to two decimals, about a
// kilometre.
type Client struct {
	url   string
	http  *http.Client
	cache *cache.LRU[Forecast]
	log   *applog.Logger
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Discard()
	}
	return &Client{
		url:   cfg.URL,
		http:  cfg.HTTPClient,
		cache: cache.NewLRU[Forecast](64, cfg.TTL, 0),
		log:   cfg.Logger.WithComponent(applog.ComponentWeather),
	}
}

// Cache exposes the forecast cache for periodic cleanup.
func (c *Client) Cache() *cache.LRU[Forecast] {
	return c.cache
}

type apiResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		Max         []float64 `json:"temperature_2m_max"`
		Min         []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Forecast returns current conditions and a three day outlook.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Forecast{}, ErrInvalidCoordinates
	}
	lat, lon = round2(lat), round2(lon)
	key := strconv.FormatFloat(lat, 'f', 2, 64) + "," + strconv.FormatFloat(lon, 'f', 2, 64)
	if f, ok := c.cache.Get(key); ok {
		return f, nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 2, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 2, 64))
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return Forecast{}, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Forecast{}, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Forecast{}, fmt.Errorf("read weather response: %w", err)
	}
	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return Forecast{}, fmt.Errorf("decode weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || ar.Error {
		reason := ar.Reason
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return Forecast{}, fmt.Errorf("weather service: %s", reason)
	}

	f := Forecast{
		Latitude:  lat,
		Longitude: lon,
		Current: Current{
			Time:        ar.Current.Time,
			Temperature: ar.Current.Temperature,
			WindSpeed:   ar.Current.WindSpeed,
			Code:        ar.Current.WeatherCode,
			Description: Describe(ar.Current.WeatherCode),
		},
	}
	for i, d := range ar.Daily.Time {
		day := Day{Date: d}
		if i < len(ar.Daily.WeatherCode) {
			day.Code = ar.Daily.WeatherCode[i]
			day.Description = Describe(day.Code)
		}
		if i < len(ar.Daily.Min) {
			day.Min = ar.Daily.Min[i]
		}
		if i < len(ar.Daily.Max) {
			day.Max = ar.Daily.Max[i]
		}
		f.Daily = append(f.Daily, day)
	}

	c.cache.Set(key, f)
	c.log.DebugContext(ctx, "Forecast fetched", "key", key, "code", f.Current.Code)
	return f, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Describe maps a WMO weather code to an Indonesian description.
func Describe(code int) string {
	switch code {
	case 0:
		return "Cerah"
	case 1:
		return "Cerah berawan"
	case 2:
		return "Berawan sebagian"
	case 3:
		return "Mendung"
	case 45, 48:
		return "Berkabut"
	case 51, 53, 55:
		return "Gerimis"
	case 56, 57:
		return "Gerimis beku"
	case 61:
		return "Hujan ringan"
	case 63:
		return "Hujan sedang"
	case 65:
		return "Hujan lebat"
	case 66, 67:
		return "Hujan beku"
	case 71, 73, 75, 77:
		return "Salju"
	case 80:
		return "Hujan lokal ringan"
	case 81:
		return "Hujan lokal sedang"
	case 82:
		return "Hujan lokal lebat"
	case 85, 86:
		return "Hujan salju"
	case 95:
		return "Badai petir"
	case 96, 99:
		return "Badai petir dengan hujan es"
	}
	return "Tidak diketahui"
}
