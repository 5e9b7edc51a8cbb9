package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-engine/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		// Without a key nothing can be authenticated; fail closed.
		authMw = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"authentication unavailable"}`, http.StatusUnauthorized)
			})
		}
	}
	cronMw := appmiddleware.CronSecret(cfg.CronSecret)

	// 5 requests/second, burst of 10, applied to token registration.
	tokenRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	debug := cfg.Debug()
	healthH := handler.NewHealthHandler()
	cronH := handler.NewCronHandler(deps.Dispatcher, cfg.DispatchPassTimeout, debug)
	tokenH := handler.NewPushTokenHandler(deps.PushTokens, debug)
	notifH := handler.NewNotificationHandler(deps.Notifications, deps.History, debug)
	trialH := handler.NewTrialHandler(deps.Trials, debug)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no session) ───────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// ── External trigger, shared secret ──────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(cronMw)
			r.Get("/cron/notifications", cronH.Run)
			r.Post("/cron/notifications", cronH.Run)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(tokenRL.Limit).Post("/push-tokens", tokenH.Register)
			r.Get("/push-tokens", tokenH.List)
			r.Post("/push-tokens/deactivate", tokenH.Deactivate)
			r.Delete("/push-tokens", tokenH.Deactivate)

			r.Get("/notifications", notifH.Inbox)
			r.Put("/notifications/{id}/read", notifH.MarkRead)
			r.Put("/notifications/{id}/dismiss", notifH.Dismiss)

			r.Post("/trial/notifications", trialH.Schedule)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/admin/notifications/history", notifH.History)
				r.Post("/admin/notifications", notifH.Create)
			})
		})
	})

	return r
}
