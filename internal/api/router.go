// Package api exposes stored flights, scores and the collector controls over
// HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/glidepath/pkg/logger"
)

// Router wires the handlers to their routes
type Router struct {
	handler *Handler
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(handler *Handler, log *logger.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  log.Named("api"),
	}
}

// Routes returns the HTTP handler for every route
func (rt *Router) Routes() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.GetHealth)

		r.Get("/flights", h.GetFlights)
		r.Get("/flights/{id}/track", h.GetFlightTrack)
		r.Post("/flights/{id}/score", h.ScoreFlight)

		// summary is registered before {key} so it never reads as a key
		r.Get("/scores", h.GetScores)
		r.Get("/scores/summary", h.GetScoreSummary)
		r.Get("/scores/{key}", h.GetScore)

		r.Get("/attempts", h.GetAttempts)
		r.Get("/scoring/schema", h.GetScoringSchema)
		r.Get("/benchmarks", h.GetBenchmarks)

		r.Route("/ingest", func(r chi.Router) {
			r.Get("/state", h.GetIngestState)
			r.Post("/enable", h.EnableIngest)
			r.Post("/disable", h.DisableIngest)
		})
	})

	if h.wsServer != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	return r
}

// requestLogger logs each request once it completes
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}
