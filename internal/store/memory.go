package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/toolbox/internal/toolbox"
)

// ToolboxNode is the destination node in the graph editor that stores a
// user-curated list of tools. Once tools are written, the node owns its item
// list; only the denormalized id/name/source fields are retained.
type ToolboxNode struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Tools     []toolbox.ToolItem `json:"tools"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// MemoryStore is an in-memory store for toolbox nodes. No persistence: its
// lifetime is the process lifetime.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*ToolboxNode
	order []string
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*ToolboxNode),
	}
}

// CreateNode creates a new toolbox node
func (s *MemoryStore) CreateNode(title string) *ToolboxNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	node := &ToolboxNode{
		ID:        uuid.New().String(),
		Title:     title,
		Tools:     []toolbox.ToolItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.nodes[node.ID] = node
	s.order = append(s.order, node.ID)
	return copyNode(node)
}

// GetNode gets a toolbox node by ID, or nil if absent.
func (s *MemoryStore) GetNode(id string) *ToolboxNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return copyNode(node)
}

// ListNodes lists all toolbox nodes in creation order.
func (s *MemoryStore) ListNodes() []*ToolboxNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ToolboxNode, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, copyNode(s.nodes[id]))
	}
	return result
}

// SetNodeTools replaces a node's tool list. Returns false if the node is
// unknown.
func (s *MemoryStore) SetNodeTools(id string, tools []toolbox.ToolItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return false
	}
	node.Tools = append([]toolbox.ToolItem(nil), tools...)
	node.UpdatedAt = time.Now()
	return true
}

// DeleteNode deletes a toolbox node. Returns false if the node is unknown.
func (s *MemoryStore) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	for i, nodeID := range s.order {
		if nodeID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func copyNode(node *ToolboxNode) *ToolboxNode {
	out := *node
	out.Tools = append([]toolbox.ToolItem(nil), node.Tools...)
	return &out
}
