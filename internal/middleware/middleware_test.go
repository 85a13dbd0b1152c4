package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/middleware"
	"github.com/accountd/accountd/internal/testutils"
)

func TestMiddlewaresServeAndRecordMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	handler := middleware.ApplyAllMiddlewares(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.SetConditionalOutcome(r, "full")
			w.WriteHeader(http.StatusOK)
		}),
		"test",
		testutils.TestLogger(t),
		registry,
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/users", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Accountd-Correlation-Id"))

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "accountd_http_requests_total")
	assert.Contains(t, names, "accountd_http_request_duration_seconds")
}

func TestConditionalOutcomeState(t *testing.T) {
	t.Parallel()

	var observed string
	handler := middleware.StateHandler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.SetConditionalOutcome(r, "not-modified")
			observed = middleware.GetConditionalOutcome(r.Context())
			w.WriteHeader(http.StatusNotModified)
		}),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "not-modified", observed)
}

func TestConditionalOutcomeDefaultsToNotAvailable(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "N/A", middleware.GetConditionalOutcome(req.Context()))

	// Setting outside of StateHandler is a no-op, not a panic
	middleware.SetConditionalOutcome(req, "full")
	assert.Equal(t, "N/A", middleware.GetConditionalOutcome(req.Context()))
}

func TestTraceMiddlewareOnlyActiveAtTraceLevel(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t).Level(zerolog.InfoLevel)

	handler := middleware.ApplyAllMiddlewares(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		"test",
		&logger,
		prometheus.NewRegistry(),
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, recorder.Code)
}
