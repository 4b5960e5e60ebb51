package http

import (
	"errors"
	"net/http"

	applog "tani/internal/log"
	"tani/internal/weather"
)

// handleWeather returns the forecast for the farm, or for lat/lon when
// both are given.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r); !ok {
		return
	}
	if s.weather == nil {
		ErrorResponse(http.StatusServiceUnavailable, "weather is not configured").Write(w)
		return
	}

	lat, lon := s.farm.Latitude, s.farm.Longitude
	qlat, hasLat, err := queryNum(r, "lat")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	qlon, hasLon, err := queryNum(r, "lon")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hasLat && hasLon {
		lat, lon = qlat, qlon
	} else if lat == 0 && lon == 0 {
		ErrorResponse(http.StatusUnprocessableEntity, "farm location is not set; pass lat and lon").Write(w)
		return
	}

	fc, err := s.weather.Forecast(r.Context(), lat, lon)
	if errors.Is(err, weather.ErrInvalidCoordinates) {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Forecast unavailable", applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, err.Error()).Write(w)
		return
	}
	NewJSONResponse().Header("Cache-Control", "private, max-age=300").Body(fc).Write(w)
}
