package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthEvent(t *testing.T) {
	m := New()
	m.AuthEvent("login", "ok")
	m.AuthEvent("login", "ok")
	m.AuthEvent("login", "rejected")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "rejected")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/auth/{action}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/verify", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration, "family_http_request_duration_seconds"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/auth/{action}"`)
	assert.Contains(t, rec.Body.String(), `status="418"`)
}
