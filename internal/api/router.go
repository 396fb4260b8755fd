package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nexthire/chatd/internal/api/middleware"
	"github.com/nexthire/chatd/internal/config"
	"github.com/nexthire/chatd/internal/handlers"
	"github.com/nexthire/chatd/internal/identity"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, h *handlers.Handler, auth identity.Authenticator, directory *identity.RedisDirectory) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(directory.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})

	// CORS - the web client may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMW := middleware.NewAuthMiddleware(auth)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)

	// Real-time channel; the handshake authenticates before the
	// upgrade, so the route itself stays outside the auth group and is
	// limited per IP.
	r.With(limiter.Middleware).Get("/ws", h.ServeWS)

	// Authenticated query surface. The limiter runs after RequireAuth
	// so its keys resolve to the authenticated user, not the IP.
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)
		r.Use(limiter.Middleware)

		r.Post("/chat/send", h.SendMessage)
		r.Get("/chat/conversation/{userID}", h.GetConversation)
		r.Get("/chat/conversations", h.ListConversations)
		r.Put("/chat/mark-read/{userID}", h.MarkRead)
		r.Delete("/chat/{messageID}", h.DeleteMessage)
		r.Get("/chat/unread-count", h.UnreadCount)
	})

	return r
}
