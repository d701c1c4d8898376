package mcp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the registry and config-building layer. Handlers map
// these to HTTP statuses with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
)

// DiscoveryError reports that every discovery strategy failed for one server.
// It carries the last error encountered in the cascade.
type DiscoveryError struct {
	URL     string
	Message string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %s", e.URL, e.Message)
}
