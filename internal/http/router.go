package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NamanBalaji/vodbatch/internal/metrics"
)

// NewRouter mounts the API. origins lists the CORS origins allowed to call it.
func NewRouter(handler *Handler, origins []string, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(observe(m))
	r.Use(recoverMiddleware)
	r.Use(corsMiddleware(origins))

	r.Get("/metrics", m.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.health)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/download-zip", handler.downloadZip)
			r.Post("/{id}/download", handler.download)
			r.Delete("/{id}/download", handler.cancel)
			r.Get("/{id}/file", handler.file)
			r.Get("/{id}/status", handler.status)
		})
	})

	r.Get("/*", handler.fallback)

	return r
}
