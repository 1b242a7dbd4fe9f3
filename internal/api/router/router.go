package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wa-autoresponder/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-autoresponder/internal/http/middleware"
	"github.com/wolfman30/wa-autoresponder/internal/webchat"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	UltraMsgWebhook *handlers.UltraMsgWebhookHandler
	WebChat         *webchat.Handler
	Admin           *handlers.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// WebhookLimiter throttles the public ingress endpoints per client IP.
	WebhookLimiter     *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Group(func(public chi.Router) {
		if cfg.WebhookLimiter != nil {
			public.Use(cfg.WebhookLimiter.Middleware)
		}
		if cfg.UltraMsgWebhook != nil {
			public.With(middleware.Timeout(timeout)).Method(http.MethodPost, "/webhooks/ultramsg", cfg.UltraMsgWebhook)
		}
		if cfg.WebChat != nil {
			public.Route("/webchat", func(wc chi.Router) {
				wc.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
				wc.Get("/ws", cfg.WebChat.HandleWebSocket)
				wc.With(middleware.Timeout(timeout)).Post("/message", cfg.WebChat.HandleMessage)
				wc.Get("/history", cfg.WebChat.HandleHistory)
			})
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(middleware.Timeout(timeout))
			admin.Get("/conversations/{id}", cfg.Admin.GetConversation)
			admin.Delete("/conversations/{id}", cfg.Admin.DeleteConversation)
			admin.Post("/conversations/{id}/unmute", cfg.Admin.UnmuteConversation)
			admin.Get("/backends", cfg.Admin.ListBackends)
			admin.Get("/bookings", cfg.Admin.ListBookings)
			admin.Get("/bookings/{bookingID}", cfg.Admin.GetBooking)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
