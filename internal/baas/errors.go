package baas

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tani/internal/ports"
)

// APIError is a non-2xx answer from the backend. Message is the
// human-readable text the backend put in the body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Unwrap maps the status onto the port sentinels so callers can use
// errors.Is(err, ports.ErrNotFound).
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound || e.Code == "PGRST116":
		return ports.ErrNotFound
	case e.Status == http.StatusUnauthorized:
		return ports.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ports.ErrForbidden
	case e.Status == http.StatusConflict || e.Code == "23505":
		return ports.ErrConflict
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, k := range []string{"msg", "message", "error_description", "error"} {
			if s, ok := fields[k].(string); ok && s != "" {
				e.Message = s
				break
			}
		}
		switch code := fields["code"].(type) {
		case string:
			e.Code = code
		case float64:
			e.Code = fmt.Sprintf("%d", int(code))
		}
		if e.Code == "" {
			if s, ok := fields["error_code"].(string); ok {
				e.Code = s
			}
		}
	}
	if e.Message == "" {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 300 {
			e.Message = text
		} else {
			e.Message = http.StatusText(status)
		}
	}
	return e
}

func IsNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ports.ErrUnauthorized)
}

// Message returns the text to show a person for err: the backend message
// for API errors, otherwise err.Error().
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
