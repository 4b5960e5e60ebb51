package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestTakeSpendsBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(Config{RequestsPerMinute: 10})
	defer l.Stop()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Take("a", 8)
	assert.True(t, ok)
	assert.Equal(t, 2, l.Remaining("a"))

	now = now.Add(20 * time.Second)
	ok, wait := l.Take("a", 5)
	assert.False(t, ok, "a rejected request spends nothing")
	assert.Equal(t, 40*time.Second, wait)
	assert.Equal(t, 2, l.Remaining("a"))

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate budgets")

	now = now.Add(40 * time.Second)
	assert.Equal(t, 10, l.Remaining("a"))
	ok, _ = l.Take("a", 10)
	assert.True(t, ok)
	assert.Equal(t, 2, l.ActiveClients())

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 2, l.sweep())
	assert.Zero(t, l.ActiveClients())
}

func TestTakeCountsAtLeastOne(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(Config{RequestsPerMinute: 1})
	defer l.Stop()
	ok, _ := l.Take("a", 0)
	assert.True(t, ok)
	assert.False(t, l.Allow("a"))
}

func TestMiddlewareUsesCost(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(Config{
		RequestsPerMinute: 5,
		Cost: func(r *http.Request) int {
			if r.Method == http.MethodPost {
				return 5
			}
			return 1
		},
	})
	defer l.Stop()

	h := l.Middleware(func(*http.Request) string { return "c" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/seasons", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reports", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/seasons", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "cheap requests still fit")
}

func TestStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(DefaultConfig())
	l.Stop()
	l.Stop()
}
