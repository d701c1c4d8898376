package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowgraph/toolbox/internal/auth"
	"github.com/flowgraph/toolbox/internal/config"
	"github.com/flowgraph/toolbox/internal/controller"
	"github.com/flowgraph/toolbox/internal/mcp"
	"github.com/flowgraph/toolbox/internal/store"
	"github.com/flowgraph/toolbox/internal/toolbox"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	config       *config.Config
	registry     *mcp.Registry
	engine       *mcp.Engine
	controller   *controller.Controller
	store        *store.MemoryStore
	tokenManager *auth.TokenManager
}

// NewHandlers creates new handlers
func NewHandlers(cfg *config.Config) *Handlers {
	registry := mcp.NewRegistry()
	engine := mcp.NewEngine(cfg.DiscoveryTimeout)
	ctrl := controller.New(registry, engine)

	// 5 minute TTL for session tokens
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, 5*time.Minute)

	return &Handlers{
		config:       cfg,
		registry:     registry,
		engine:       engine,
		controller:   ctrl,
		store:        store.NewMemoryStore(),
		tokenManager: tokenManager,
	}
}

// Health check handler
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Servers ---

// ListServers lists all registered MCP servers
func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Servers())
}

// AddServer registers a new MCP server
func (h *Handlers) AddServer(w http.ResponseWriter, r *http.Request) {
	var rec mcp.ServerRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.controller.AddServer(rec)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// UpdateServer applies a partial update to a registered server, optionally
// migrating it to a new URL.
func (h *Handlers) UpdateServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string            `json:"url"`
		NextURL   *string           `json:"nextUrl"`
		Name      *string           `json:"name"`
		Transport *string           `json:"transport"`
		Headers   map[string]string `json:"headers"`
		Config    json.RawMessage   `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	updated, err := h.controller.UpdateServer(req.URL, mcp.ServerUpdate{
		NextURL:   req.NextURL,
		Name:      req.Name,
		Transport: req.Transport,
		Headers:   req.Headers,
		Config:    req.Config,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// RemoveServer deletes a registered server. The URL comes from the query
// string or, as a fallback, a JSON body.
func (h *Handlers) RemoveServer(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		var req struct {
			URL string `json:"url"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}
		url = req.URL
	}
	if strings.TrimSpace(url) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := h.controller.RemoveServer(url); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Tools ---

// DiscoverTools lists the tools of one server. A registered URL goes through
// the controller so the session caches and activity log stay current; an
// unregistered URL gets a one-off discovery from an ephemeral record.
func (h *Handlers) DiscoverTools(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string            `json:"url"`
		Name    string            `json:"name"`
		Headers map[string]string `json:"headers"`
		Config  json.RawMessage   `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !mcp.IsHTTPURL(mcp.Normalize(req.URL)) {
		http.Error(w, "url must be a valid http(s) URL", http.StatusBadRequest)
		return
	}

	var (
		tools []mcp.ToolRecord
		err   error
	)
	if _, registered := h.registry.Get(req.URL); registered {
		tools, err = h.controller.FetchTools(r.Context(), req.URL)
	} else {
		name := req.Name
		if name == "" {
			name = mcp.Normalize(req.URL)
		}
		tools, err = h.engine.Discover(r.Context(), mcp.ServerRecord{
			Name:    name,
			URL:     req.URL,
			Headers: req.Headers,
			Config:  req.Config,
		})
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// DiscoverAllTools runs discovery across every registered server. Partial
// failures are isolated per server; this endpoint never fails wholesale.
func (h *Handlers) DiscoverAllTools(w http.ResponseWriter, r *http.Request) {
	result := h.engine.DiscoverAll(r.Context(), h.controller.Servers())
	respondJSON(w, http.StatusOK, result)
}

// --- Session ---

// GetSession returns the controller state snapshot
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Snapshot())
}

// GetSessionLogs returns the activity feed, newest first
func (h *Handlers) GetSessionLogs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Logs())
}

// ToggleSelection flips one tool in the session's selection set
func (h *Handlers) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := toolbox.Key(mcp.ToolRecord{Name: req.Name, MCPServerURL: req.URL})
	if err != nil {
		respondError(w, err)
		return
	}
	selected := h.controller.ToggleTool(key)
	respondJSON(w, http.StatusOK, map[string]interface{}{"key": key, "selected": selected})
}

// ClearSelection empties the session's selection set
func (h *Handlers) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.controller.ClearSelection()
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Toolbox ---

// CreateToolboxNode creates a new toolbox node
func (h *Handlers) CreateToolboxNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Title == "" {
		req.Title = "Toolbox"
	}

	respondJSON(w, http.StatusCreated, h.store.CreateNode(req.Title))
}

// ListToolboxNodes lists all toolbox nodes
func (h *Handlers) ListToolboxNodes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.ListNodes())
}

// GetToolboxNode gets a toolbox node by ID
func (h *Handlers) GetToolboxNode(w http.ResponseWriter, r *http.Request) {
	node := h.store.GetNode(chi.URLParam(r, "id"))
	if node == nil {
		http.Error(w, "Toolbox node not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

// DeleteToolboxNode deletes a toolbox node
func (h *Handlers) DeleteToolboxNode(w http.ResponseWriter, r *http.Request) {
	if !h.store.DeleteNode(chi.URLParam(r, "id")) {
		http.Error(w, "Toolbox node not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AddToolboxNodeTools merges tools into a node's list, skipping any whose id
// is already present. With no explicit tools in the body, the current session
// selection is committed and then cleared.
func (h *Handlers) AddToolboxNodeTools(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node := h.store.GetNode(id)
	if node == nil {
		http.Error(w, "Toolbox node not found", http.StatusNotFound)
		return
	}

	var req struct {
		Tools []mcp.ToolRecord `json:"tools"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	fromSelection := len(req.Tools) == 0
	tools := req.Tools
	if fromSelection {
		tools = h.controller.SelectedTools()
	}

	merged, err := toolbox.AddTools(node.Tools, tools)
	if err != nil {
		respondError(w, err)
		return
	}
	if !h.store.SetNodeTools(id, merged) {
		http.Error(w, "Toolbox node not found", http.StatusNotFound)
		return
	}
	if fromSelection {
		h.controller.ClearSelection()
	}

	respondJSON(w, http.StatusOK, h.store.GetNode(id))
}

// ExportToolbox builds the exportable configuration for a set of tools. With
// no explicit tools in the body, the current session selection is exported.
func (h *Handlers) ExportToolbox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tools []mcp.ToolRecord `json:"tools"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	tools := req.Tools
	if len(tools) == 0 {
		tools = h.controller.SelectedTools()
	}

	cfg, err := toolbox.BuildConfig(tools)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// --- Auth ---

// GetSessionToken issues a short-lived session token for the editor frontend
func (h *Handlers) GetSessionToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokenManager.GenerateSessionToken("local")
	if err != nil {
		http.Error(w, "Failed to generate session token", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresIn": int(h.tokenManager.TTL().Seconds()),
	})
}

// requireScope wraps toolbox mutation handlers with session-token validation.
func (h *Handlers) requireScope(scope auth.Scope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			http.Error(w, "Session token required", http.StatusUnauthorized)
			return
		}
		if _, err := h.tokenManager.ValidateSessionTokenWithScope(tokenString, scope); err != nil {
			log.Printf("Rejected session token: %v", err)
			http.Error(w, "Invalid or expired session token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps the error taxonomy onto HTTP statuses: invalid input 400,
// not found 404, conflict 409, discovery failure 502, anything else 500.
func respondError(w http.ResponseWriter, err error) {
	var de *mcp.DiscoveryError
	switch {
	case errors.Is(err, mcp.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, mcp.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mcp.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &de):
		http.Error(w, de.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
