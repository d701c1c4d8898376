package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flowgraph/toolbox/internal/auth"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"}, // Allow all origins for development
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return true // Allow all origins
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"*"}, // Allow all headers
		ExposedHeaders:   []string{"Link", "Content-Type"},
		AllowCredentials: false, // Must be false when AllowedOrigins is "*"
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", h.Health)

	// MCP server registry
	r.Route("/servers", func(r chi.Router) {
		r.Get("/", h.ListServers)
		r.Post("/", h.AddServer)
		r.Put("/", h.UpdateServer)
		r.Delete("/", h.RemoveServer)
	})

	// Tool discovery
	r.Route("/tools", func(r chi.Router) {
		r.Post("/", h.DiscoverTools)
		r.Get("/all", h.DiscoverAllTools)
	})

	// Editing session (controller state)
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Get("/logs", h.GetSessionLogs)
		r.Post("/selection/toggle", h.ToggleSelection)
		r.Delete("/selection", h.ClearSelection)
	})

	// Toolbox nodes and export
	r.Route("/toolbox", func(r chi.Router) {
		r.Post("/export", h.requireScope(auth.ScopeWriteToolbox, h.ExportToolbox))
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", h.ListToolboxNodes)
			r.Post("/", h.requireScope(auth.ScopeWriteToolbox, h.CreateToolboxNode))
			r.Get("/{id}", h.GetToolboxNode)
			r.Delete("/{id}", h.requireScope(auth.ScopeWriteToolbox, h.DeleteToolboxNode))
			r.Post("/{id}/tools", h.requireScope(auth.ScopeWriteToolbox, h.AddToolboxNodeTools))
		})
	})

	// Auth
	r.Route("/auth", func(r chi.Router) {
		r.Get("/session-token", h.GetSessionToken)
	})

	return r
}
