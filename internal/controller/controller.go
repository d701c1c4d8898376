// Package controller is the session-scoped state container behind the
// toolbox editor: a mirror of the server registry plus per-URL tool caches,
// loading and error flags, the cross-server selection set, and a newest-first
// activity log. It is independent of any HTTP or UI layer so the state
// transitions can be tested in isolation.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/flowgraph/toolbox/internal/mcp"
	"github.com/flowgraph/toolbox/internal/toolbox"
)

const maxLogEntries = 200

// Discoverer lists the tools of one server. *mcp.Engine satisfies it; tests
// substitute fakes.
type Discoverer interface {
	Discover(ctx context.Context, server mcp.ServerRecord) ([]mcp.ToolRecord, error)
}

// LogEntry is one line of the activity feed.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	ServerURL string    `json:"serverUrl,omitempty"`
}

// State is a snapshot of the controller for the frontend. The caches are
// derived views, rebuildable at any time by re-querying; the registry stays
// the single source of truth for server identity.
type State struct {
	Servers          []mcp.ServerRecord          `json:"servers"`
	ToolsByURL       map[string][]mcp.ToolRecord `json:"toolsByUrl"`
	ToolErrorByURL   map[string]string           `json:"toolErrorByUrl"`
	ToolLoadingByURL map[string]bool             `json:"toolLoadingByUrl"`
	ActiveURL        string                      `json:"activeUrl,omitempty"`
	SelectedKeys     []string                    `json:"selectedKeys"`
}

// Controller owns the per-session editing state. All per-URL maps are keyed
// by normalized URL; a URL migration in the registry re-keys every cache so
// nothing is silently orphaned under the old key.
type Controller struct {
	registry   *mcp.Registry
	discoverer Discoverer

	// flight coalesces concurrent fetches for the same URL into one
	// upstream discovery instead of racing last-write-wins.
	flight singleflight.Group

	mu           sync.RWMutex
	toolsByURL   map[string][]mcp.ToolRecord
	toolErrByURL map[string]string
	loadingByURL map[string]bool
	activeURL    string
	selected     map[string]struct{}
	logs         []LogEntry
}

// New creates a controller over an injected registry and discoverer.
func New(registry *mcp.Registry, discoverer Discoverer) *Controller {
	return &Controller{
		registry:     registry,
		discoverer:   discoverer,
		toolsByURL:   make(map[string][]mcp.ToolRecord),
		toolErrByURL: make(map[string]string),
		loadingByURL: make(map[string]bool),
		selected:     make(map[string]struct{}),
	}
}

// Servers mirrors the registry's current server list.
func (c *Controller) Servers() []mcp.ServerRecord {
	return c.registry.List()
}

// AddServer registers a server and logs the outcome.
func (c *Controller) AddServer(rec mcp.ServerRecord) (mcp.ServerRecord, error) {
	created, err := c.registry.Add(rec)
	if err != nil {
		c.logf("error", mcp.Normalize(rec.URL), "failed to add server %q: %v", rec.Name, err)
		return mcp.ServerRecord{}, err
	}
	c.logf("info", created.URL, "added server %q", created.Name)
	return created, nil
}

// UpdateServer applies a partial update. When the server's URL migrates, all
// per-URL caches and selection keys move to the new key in the same call.
func (c *Controller) UpdateServer(currentURL string, patch mcp.ServerUpdate) (mcp.ServerRecord, error) {
	oldKey := mcp.Normalize(currentURL)
	updated, err := c.registry.Update(currentURL, patch)
	if err != nil {
		c.logf("error", oldKey, "failed to update server: %v", err)
		return mcp.ServerRecord{}, err
	}
	if updated.URL != oldKey {
		c.rekey(oldKey, updated.URL)
	}
	c.logf("info", updated.URL, "updated server %q", updated.Name)
	return updated, nil
}

// RemoveServer deletes a server and drops its cached state and selections.
func (c *Controller) RemoveServer(url string) error {
	key := mcp.Normalize(url)
	if err := c.registry.Remove(url); err != nil {
		c.logf("error", key, "failed to remove server: %v", err)
		return err
	}

	c.mu.Lock()
	delete(c.toolsByURL, key)
	delete(c.toolErrByURL, key)
	delete(c.loadingByURL, key)
	if c.activeURL == key {
		c.activeURL = ""
	}
	prefix := key + "::"
	for sel := range c.selected {
		if strings.HasPrefix(sel, prefix) {
			delete(c.selected, sel)
		}
	}
	c.mu.Unlock()

	c.logf("info", key, "removed server")
	return nil
}

// FetchTools refreshes the tool cache for one registered server. The loading
// flag is cleared on every exit path. Concurrent calls for the same URL share
// one in-flight discovery; calls for different URLs are fully independent.
func (c *Controller) FetchTools(ctx context.Context, url string) ([]mcp.ToolRecord, error) {
	key := mcp.Normalize(url)
	server, ok := c.registry.Get(key)
	if !ok {
		err := fmt.Errorf("%w: no server with url %s", mcp.ErrNotFound, key)
		c.logf("error", key, "fetch tools: %v", err)
		return nil, err
	}

	c.mu.Lock()
	c.loadingByURL[key] = true
	delete(c.toolErrByURL, key)
	c.activeURL = key
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.loadingByURL, key)
		c.mu.Unlock()
	}()

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.discoverer.Discover(ctx, server)
	})
	if err != nil {
		c.mu.Lock()
		c.toolErrByURL[key] = err.Error()
		c.toolsByURL[key] = []mcp.ToolRecord{}
		c.mu.Unlock()
		c.logf("error", key, "tool discovery failed: %v", err)
		return nil, err
	}

	tools := v.([]mcp.ToolRecord)
	c.mu.Lock()
	c.toolsByURL[key] = tools
	c.mu.Unlock()
	c.logf("info", key, "discovered %d tools from %q", len(tools), server.Name)
	return tools, nil
}

// ToggleTool flips a ToolKey in the selection set and reports whether the
// tool is selected afterward.
func (c *Controller) ToggleTool(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[key]; ok {
		delete(c.selected, key)
		return false
	}
	c.selected[key] = struct{}{}
	return true
}

// ClearSelection empties the selection set.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = make(map[string]struct{})
}

// SelectedTools re-walks the servers and their cached tool lists and filters
// by selection membership. It is recomputed on every call so it can never
// drift from the cache.
func (c *Controller) SelectedTools() []mcp.ToolRecord {
	servers := c.registry.List()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []mcp.ToolRecord
	for _, server := range servers {
		for _, tool := range c.toolsByURL[server.URL] {
			key, err := toolbox.Key(tool)
			if err != nil {
				continue
			}
			if _, ok := c.selected[key]; ok {
				out = append(out, tool)
			}
		}
	}
	return out
}

// Logs returns a copy of the activity feed, newest first.
func (c *Controller) Logs() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]LogEntry(nil), c.logs...)
}

// Snapshot returns the current state for the frontend.
func (c *Controller) Snapshot() State {
	servers := c.registry.List()

	c.mu.RLock()
	defer c.mu.RUnlock()

	st := State{
		Servers:          servers,
		ToolsByURL:       make(map[string][]mcp.ToolRecord, len(c.toolsByURL)),
		ToolErrorByURL:   make(map[string]string, len(c.toolErrByURL)),
		ToolLoadingByURL: make(map[string]bool, len(c.loadingByURL)),
		ActiveURL:        c.activeURL,
		SelectedKeys:     make([]string, 0, len(c.selected)),
	}
	for k, v := range c.toolsByURL {
		st.ToolsByURL[k] = v
	}
	for k, v := range c.toolErrByURL {
		st.ToolErrorByURL[k] = v
	}
	for k, v := range c.loadingByURL {
		st.ToolLoadingByURL[k] = v
	}
	for k := range c.selected {
		st.SelectedKeys = append(st.SelectedKeys, k)
	}
	return st
}

// rekey moves every per-URL cache entry and selection key from oldKey to
// newKey after a URL migration.
func (c *Controller) rekey(oldKey, newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tools, ok := c.toolsByURL[oldKey]; ok {
		delete(c.toolsByURL, oldKey)
		rebased := make([]mcp.ToolRecord, len(tools))
		for i, t := range tools {
			t.MCPServerURL = newKey
			rebased[i] = t
		}
		c.toolsByURL[newKey] = rebased
	}
	if msg, ok := c.toolErrByURL[oldKey]; ok {
		delete(c.toolErrByURL, oldKey)
		c.toolErrByURL[newKey] = msg
	}
	if loading, ok := c.loadingByURL[oldKey]; ok {
		delete(c.loadingByURL, oldKey)
		c.loadingByURL[newKey] = loading
	}
	if c.activeURL == oldKey {
		c.activeURL = newKey
	}

	oldPrefix := oldKey + "::"
	for sel := range c.selected {
		if strings.HasPrefix(sel, oldPrefix) {
			delete(c.selected, sel)
			c.selected[newKey+"::"+strings.TrimPrefix(sel, oldPrefix)] = struct{}{}
		}
	}
}

func (c *Controller) logf(level, serverURL, format string, args ...interface{}) {
	entry := LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		ServerURL: serverURL,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append([]LogEntry{entry}, c.logs...)
	if len(c.logs) > maxLogEntries {
		c.logs = c.logs[:maxLogEntries]
	}
}
