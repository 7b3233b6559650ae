package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/familyassistant/server/internal/auth"
	"github.com/familyassistant/server/internal/http/handlers"
	"github.com/familyassistant/server/internal/metrics"
	"github.com/familyassistant/server/internal/middleware"
)

// Deps carries everything the router wires into routes
type Deps struct {
	Auth        *auth.Service
	AuthHandler *handlers.AuthHandler
	Members     *handlers.MembersHandler
	Tasks       *handlers.TasksHandler
	Health      *handlers.HealthHandler
	Metrics     *metrics.Metrics
	AuthLimiter *middleware.RateLimiter
	Log         zerolog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.DefaultCORS))
	r.Use(d.Metrics.Middleware)

	r.Get("/health", d.Health.HandleHealth)
	r.Get("/ready", d.Health.HandleReady)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	// inline so the limiter sees the resolved {action}
	limitAuth := middleware.RateLimitMiddleware(d.AuthLimiter, authRateKey)
	r.With(limitAuth).Handle("/auth", d.AuthHandler)
	r.With(limitAuth).Handle("/auth/{action}", d.AuthHandler)

	r.Route("/members", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Auth, d.Log))
		r.Get("/", d.Members.HandleList)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireFamily)
			r.Post("/", d.Members.HandlePost)
			r.Put("/", d.Members.HandlePut)
			r.Delete("/", d.Members.HandleDelete)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.Authorize(d.Auth, d.Log))
		r.Get("/", d.Tasks.HandleList)
		r.Post("/", d.Tasks.HandleCreate)
		r.Put("/", d.Tasks.HandleUpdate)
		r.Delete("/", d.Tasks.HandleComplete)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return otelhttp.NewHandler(r, "family-assistant",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// authRateKey limits the credential-guessing actions per client IP and leaves the rest unlimited
func authRateKey(r *http.Request) string {
	switch handlers.AuthAction(r) {
	case handlers.ActionLogin, handlers.ActionForgotPassword, handlers.ActionVerifyResetCode, handlers.ActionResetPassword:
		return middleware.GetIPKey(r)
	}
	return ""
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
