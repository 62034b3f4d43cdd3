package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/fetchbox/internal/telemetry"
)

// RouterConfig wires the HTTP surface together.
type RouterConfig struct {
	Files     *FilesHandler
	WebSocket http.Handler
	Telemetry *telemetry.Telemetry
}

// NewRouter builds the server mux: the file API at the root, the event
// channel at /ws and metrics at /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(cfg.Telemetry).Middleware)
	r.Use(middleware.Recoverer)

	if cfg.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", cfg.WebSocket)
	}

	r.Method(http.MethodGet, "/metrics", cfg.Telemetry.Handler())
	r.Mount("/", cfg.Files.Routes())

	return r
}
