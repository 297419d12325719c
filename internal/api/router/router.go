package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salesfusion/internal/crm"
	"github.com/wolfman30/salesfusion/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salesfusion/internal/http/middleware"
	"github.com/wolfman30/salesfusion/internal/session"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/internal/validation"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Sessions           *session.Handler
	Transcripts        *transcripts.Handler
	Leads              *crm.Handler
	Debug              *handlers.DebugHandler
	Health             http.Handler
	MetricsHandler     http.Handler
	IPLimiter          *validation.RateLimiter
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler("memory", nil)
	}
	r.Method(http.MethodGet, "/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Sessions != nil {
		r.Route("/api/sessions", func(api chi.Router) {
			if cfg.IPLimiter != nil {
				api.Use(httpmiddleware.RateLimit(cfg.IPLimiter))
			}
			cfg.Sessions.Routes(api)
		})
	}

	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.Transcripts != nil {
			admin.Route("/api/transcripts", func(tr chi.Router) {
				tr.Get("/", cfg.Transcripts.List)
				tr.Get("/analytics", cfg.Transcripts.Analytics)
				tr.Get("/{sessionID}", cfg.Transcripts.Get)
				tr.Get("/{sessionID}/summary", cfg.Transcripts.Summary)
			})
		}
		if cfg.Leads != nil {
			admin.Get("/admin/leads/{leadID}", cfg.Leads.GetLead)
		}
		if cfg.Debug != nil {
			admin.Route("/debug", cfg.Debug.Routes)
		}
	})

	return r
}
