package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET /api/seasons", "GET", 200, 10*time.Millisecond)
	m.ObserveHTTP("GET /api/seasons", "GET", 200, 20*time.Millisecond)
	m.ObserveRender(nil, time.Second)
	m.ObserveRender(errors.New("chrome died"), 0)
	m.ObserveLookup("seasons", "hit")
	m.ObservePublish(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /api/seasons", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportRenders.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportRenders.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoaderLookups.WithLabelValues("seasons", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsPublished.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("x", "GET", 200, time.Second)
	m.ObserveRender(nil, time.Second)
	m.ObserveLookup("x", "miss")
	m.ObserveRemote("rest", nil)
	m.ObservePublish(nil)
	m.ObserveJob(nil)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ObserveRemote("rest", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "tani_remote_calls_total"))
}
