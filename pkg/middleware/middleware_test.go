package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(reg prometheus.Registerer) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing())
	r.Use(Metrics(WithRegistry(reg)))
	r.Get("/players/{id}", func(w http.ResponseWriter, r *http.Request) {
		SpanFromRequest(r).AddEvent("lookup")
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func TestMetricsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newRouter(reg)

	for _, path := range []string{"/players/1", "/players/2", "/boom", "/plain"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ihi_http_requests_total"])
	assert.True(t, names["ihi_http_request_duration_seconds"])

	count := func(route, code string) float64 {
		c, err := requestsCounter(reg)
		require.NoError(t, err)
		return testutil.ToFloat64(c.WithLabelValues(route, code))
	}
	assert.Equal(t, 2.0, count("/players/{id}", "202"))
	assert.Equal(t, 1.0, count("/boom", "500"))
	assert.Equal(t, 1.0, count("/plain", "200"))
}

// requestsCounter re-registers the counter definition to fetch the existing
// collector from reg.
func requestsCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ihi",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"route", "code"})
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		return are.ExistingCollector.(*prometheus.CounterVec), nil
	}
	return c, nil
}

func TestTracingFilterPassesThrough(t *testing.T) {
	called := false
	h := Tracing(WithFilter(func(*http.Request) bool { return false }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRoutePatternOutsideChi(t *testing.T) {
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)))
}
