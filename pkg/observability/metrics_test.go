package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.AuthzDecisionsTotal.WithLabelValues("deny", "PermissionDenied").Inc()
	m.CacheHitsTotal.Inc()
	m.AuditWriteFailuresTotal.WithLabelValues("db").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("deny", "PermissionDenied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditWriteFailuresTotal.WithLabelValues("db")))

	assert.Panics(t, func() { NewMetrics(registry) }, "double registration should panic")
}

func TestMetrics_ObserveStore(t *testing.T) {
	m := NewUnregisteredMetrics()
	m.ObserveStore("roles", "get", time.Now(), nil)
	m.ObserveStore("roles", "get", time.Now(), errors.New("down"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.StoreOperationDuration))
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	RegisterMetricsEndpoint(router, registry)
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "418")))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "warden_http_requests_total"))
}
