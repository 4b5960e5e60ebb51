package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tani/internal/baas"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
	"tani/internal/services"
	"tani/internal/session"
	"tani/internal/weather"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body with 204 writes nothing.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(b.body)
}

// errorBody is the shape of every error answer.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// NoContent is the answer to deletes and sign-out.
func NoContent() *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusNoContent)
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// StatusFor maps an error onto the HTTP status the API answers with.
func StatusFor(err error) int {
	var apiErr *baas.APIError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, services.ErrSelfDelete),
		errors.Is(err, weather.ErrInvalidCoordinates):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotSignedIn), errors.Is(err, ports.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ports.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		// Rejected input the backend did not classify further.
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status and a message a person can
// read. Backend failures carry the backend's own message; unexpected
// errors are logged and answered generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	msg := baas.Message(err)
	log := applog.FromContext(r.Context())
	switch {
	case code == http.StatusInternalServerError:
		log.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		msg = "internal error"
	case code >= 500:
		log.WarnContext(r.Context(), "Upstream request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
	default:
		log.DebugContext(r.Context(), "Request rejected", applog.FieldError, err, applog.FieldStatusCode, code)
	}
	ErrorResponse(code, msg).Write(w)
}
