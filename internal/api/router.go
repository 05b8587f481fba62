package api

import (
	"net/http"

	mw "github.com/atharai/relay/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// maxBodyBytes caps request bodies; prompts are validated separately but this
// stops oversized payloads before JSON decoding.
const maxBodyBytes = 200 * 1024

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler      http.HandlerFunc
	StatsHandler       http.HandlerFunc
	SubmitTextHandler  http.HandlerFunc
	SubmitImageHandler http.HandlerFunc
	JobStatusHandler   http.HandlerFunc
	JobStreamHandler   http.HandlerFunc
	HistoryHandler     http.HandlerFunc
	ClearHandler       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", deps.HealthHandler)
	r.Get("/stats", deps.StatsHandler)

	r.Route("/inference", func(r chi.Router) {
		r.Use(chimw.RequestSize(maxBodyBytes))
		r.Use(deps.RateLimit.Limit)

		r.Post("/", deps.SubmitTextHandler)
		r.Post("/image", deps.SubmitImageHandler)
		r.Get("/status/{jobID}", deps.JobStatusHandler)
		r.Get("/stream/{jobID}", deps.JobStreamHandler)
		r.Get("/history", deps.HistoryHandler)
		r.Post("/clear", deps.ClearHandler)
	})

	return r
}
