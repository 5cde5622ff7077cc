package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-forecast/config"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(cfg.Forecast.TimeoutSeconds) * time.Second * 2))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", h.HandleHealth)

		// Predictions
		r.Route("/predictions", func(r chi.Router) {
			r.Post("/", h.HandlePredictAll)
			r.Post("/{model}", h.HandlePredictModel)
		})

		// Backtests
		r.Route("/backtests", func(r chi.Router) {
			r.Post("/", h.HandleBacktestAll)
			r.Post("/{model}", h.HandleBacktestModel)
		})

		// Model catalog
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.HandleGetModels)
			r.Get("/{name}", h.HandleGetModel)
		})

		// Quotes
		r.Get("/quotes/{symbol}", h.HandleGetQuote)

		// Run history
		r.Get("/runs", h.HandleGetRuns)
	})

	return r
}

// CORSMiddleware returns CORS middleware with the specified allowed origins
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
