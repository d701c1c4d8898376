package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Registry is the in-memory store of MCP server records, keyed by normalized
// URL. It is the single source of truth for server identity; everything else
// (tool caches, selections) is a derived view. Lifetime is process lifetime.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	servers map[string]ServerRecord
}

// NewRegistry creates a new server registry
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]ServerRecord),
	}
}

// ServerUpdate is a partial update for a registered server. Nil fields are
// left unchanged.
type ServerUpdate struct {
	NextURL   *string
	Name      *string
	Transport *string
	Headers   map[string]string
	Config    json.RawMessage
}

// List returns all registered servers in insertion order.
func (r *Registry) List() []ServerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	servers := make([]ServerRecord, 0, len(r.order))
	for _, key := range r.order {
		servers = append(servers, r.servers[key])
	}
	return servers
}

// Get returns the server registered under the normalized form of url.
func (r *Registry) Get(url string) (ServerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.servers[Normalize(url)]
	return rec, ok
}

// Add registers a new server. The URL is normalized before it becomes the key.
func (r *Registry) Add(rec ServerRecord) (ServerRecord, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return ServerRecord{}, fmt.Errorf("%w: server name is required", ErrInvalidInput)
	}

	key := Normalize(rec.URL)
	if !IsHTTPURL(key) {
		return ServerRecord{}, fmt.Errorf("%w: url must be a valid http(s) URL", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[key]; exists {
		return ServerRecord{}, fmt.Errorf("%w: server with url %s already exists", ErrConflict, key)
	}

	rec.Name = strings.TrimSpace(rec.Name)
	rec.URL = key
	if rec.Transport == "" {
		rec.Transport = TransportDefaultHTTP
	}

	r.servers[key] = rec
	r.order = append(r.order, key)
	return rec, nil
}

// Update applies a partial update to the server registered under currentURL.
// When the URL changes, the old key is removed and the new key inserted in the
// same operation, keeping the record's insertion position.
func (r *Registry) Update(currentURL string, patch ServerUpdate) (ServerRecord, error) {
	key := Normalize(currentURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.servers[key]
	if !ok {
		return ServerRecord{}, fmt.Errorf("%w: no server with url %s", ErrNotFound, key)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ServerRecord{}, fmt.Errorf("%w: server name is required", ErrInvalidInput)
		}
		rec.Name = name
	}
	if patch.Transport != nil {
		rec.Transport = *patch.Transport
	}
	if patch.Headers != nil {
		rec.Headers = patch.Headers
	}
	if patch.Config != nil {
		rec.Config = patch.Config
	}

	newKey := key
	if patch.NextURL != nil {
		newKey = Normalize(*patch.NextURL)
		if !IsHTTPURL(newKey) {
			return ServerRecord{}, fmt.Errorf("%w: url must be a valid http(s) URL", ErrInvalidInput)
		}
		if newKey != key {
			if _, occupied := r.servers[newKey]; occupied {
				return ServerRecord{}, fmt.Errorf("%w: server with url %s already exists", ErrConflict, newKey)
			}
		}
	}
	rec.URL = newKey

	if newKey != key {
		delete(r.servers, key)
		for i, k := range r.order {
			if k == key {
				r.order[i] = newKey
				break
			}
		}
	}
	r.servers[newKey] = rec
	return rec, nil
}

// Remove deletes the server registered under the normalized form of url.
func (r *Registry) Remove(url string) error {
	key := Normalize(url)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers[key]; !ok {
		return fmt.Errorf("%w: no server with url %s", ErrNotFound, key)
	}

	delete(r.servers, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
