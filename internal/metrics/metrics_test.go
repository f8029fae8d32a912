package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observations(t *testing.T) {
	c := New()

	c.ObserveOperation("book", "ok")
	c.ObserveOperation("book", "ok")
	c.ObserveOperation("book", "conflict")
	c.ObserveReasonerFailure("timeout")
	c.ObserveStop("answered", 3)
	c.ObserveStop("iteration_limit", 10)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("book", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reasonerFailures.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stops.WithLabelValues("iteration_limit")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.iterations))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveStop("answered", 2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `slotbot_dispatch_stops_total{reason="answered"} 1`)
	assert.Contains(t, body, "slotbot_dispatch_iterations_count 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestCollector_Isolated(t *testing.T) {
	a, b := New(), New()
	a.ObserveOperation("delete", "not_found")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.operations.WithLabelValues("delete", "not_found")))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	c := New()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/calendar/day/{date}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	for _, d := range []string{"2024-06-10", "2024-06-11"} {
		resp, err := http.Get(srv.URL + "/calendar/day/" + d)
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/calendar/day/{date}", "418")))

	expected := `
# HELP slotbot_http_requests_total HTTP requests by method, route pattern and status code.
# TYPE slotbot_http_requests_total counter
slotbot_http_requests_total{method="GET",route="/calendar/day/{date}",status="418"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c.httpRequests, strings.NewReader(expected)))
}
