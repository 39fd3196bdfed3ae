package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires the handlers into a router
type RouterConfig struct {
	Inventory *InventoryHandler
	// Live serves the websocket endpoint
	Live http.Handler
	// AllowedOrigins for CORS; empty allows any origin
	AllowedOrigins []string
}

// NewRouter configures all HTTP routes
func NewRouter(cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	h := cfg.Inventory
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Live != nil {
		r.Get("/ws", cfg.Live.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequestLogger)
		r.Use(Metrics)

		r.Post("/update", h.TriggerSync)
		r.Get("/sync/status", h.SyncStatus)

		r.Get("/devices", h.ListDevices)
		r.Get("/topology", h.GetTopology)

		r.Get("/positions", h.GetPositions)
		r.Post("/positions", h.SavePositions)
		r.Delete("/positions", h.ClearPositions)

		r.Get("/regions", h.ListRegions)
		r.Post("/regions", h.SaveRegion)
		r.Delete("/regions/{id}", h.DeleteRegion)

		r.Get("/export/{format}", h.Export)
	})

	return r
}
