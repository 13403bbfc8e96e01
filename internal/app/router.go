// Package app assembles the HTTP router from the handler set and the
// middleware chain.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input allows all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(60 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		// Rate limit mutating endpoints
		api.Group(func(wr chi.Router) {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
			wr.Post("/jobs", srv.CreateJobHandler())
			wr.Post("/jobs/{id}/cancel", srv.CancelJobHandler())
			wr.Post("/eval-runs/preview", srv.PreviewHandler())
			wr.Delete("/eval-runs", srv.DeleteRunsHandler())
			wr.Delete("/eval-runs/logs", srv.DeleteLogsHandler())
			wr.Delete("/eval-runs/{id}", srv.DeleteRunHandler())
			wr.Put("/adversarial-config", srv.PutAdversarialConfigHandler())
			wr.Post("/adversarial-config/reset", srv.ResetAdversarialConfigHandler())
			wr.Post("/adversarial-config/import", srv.ImportAdversarialConfigHandler())
			wr.Post("/files", srv.UploadFileHandler())
		})

		api.Get("/jobs", srv.ListJobsHandler())
		api.Get("/jobs/{id}", srv.GetJobHandler())

		api.Get("/eval-runs", srv.ListRunsHandler())
		api.Get("/eval-runs/stats/summary", srv.StatsSummaryHandler())
		api.Get("/eval-runs/trends", srv.TrendsHandler())
		api.Get("/eval-runs/logs", srv.ListLogsHandler())
		api.Get("/eval-runs/{id}", srv.GetRunHandler())
		api.Get("/eval-runs/{id}/logs", srv.RunLogsHandler())
		api.Get("/eval-runs/{id}/threads", srv.RunThreadsHandler())
		api.Get("/eval-runs/{id}/adversarial", srv.RunAdversarialHandler())

		api.Get("/threads/{thread_id}/history", srv.ThreadHistoryHandler())

		api.Get("/adversarial-config", srv.GetAdversarialConfigHandler())
		api.Post("/adversarial-config/export", srv.ExportAdversarialConfigHandler())

		api.Get("/files/{id}", srv.DownloadFileHandler())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
