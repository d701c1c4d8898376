// Package toolbox derives stable identifiers and exportable configuration
// from tool records, and merges confirmed selections into a toolbox node's
// tool list.
package toolbox

import (
	"fmt"
	"strings"

	"github.com/flowgraph/toolbox/internal/mcp"
)

// StatusActive marks a toolbox tool item as usable by the graph.
const StatusActive = "active"

// ToolItem is the denormalized form a tool takes once written into a toolbox
// node. ID is the two-part ToolKey; no back-reference to the originating
// ToolRecord is retained.
type ToolItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Status string `json:"status"`
}

// ExportTool is the subset of a ToolRecord that lands in an export.
type ExportTool struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	MCPServerName string `json:"mcp_server_name"`
	MCPServerURL  string `json:"mcp_server_url"`
}

// ExportConfig is the round-trippable configuration derived from a selection.
// InterruptConfig keys use the three-part url::name::server_name form, a
// separate namespace from the two-part selection ToolKey.
type ExportConfig struct {
	Tools           []ExportTool    `json:"tools"`
	InterruptConfig map[string]bool `json:"interrupt_config"`
}

// Key returns the deterministic two-part ToolKey normalized_url::name used
// for caching, selection, and cross-server dedup. It is never derived from
// the display name or a raw URL.
func Key(tool mcp.ToolRecord) (string, error) {
	if strings.TrimSpace(tool.MCPServerURL) == "" || strings.TrimSpace(tool.Name) == "" {
		return "", fmt.Errorf("%w: tool key requires mcp_server_url and name", mcp.ErrInvalidInput)
	}
	return mcp.Normalize(tool.MCPServerURL) + "::" + tool.Name, nil
}

// BuildConfig derives an ExportConfig from a selection. Export is an explicit
// user action over a known-good selection, so any tool missing a name or URL
// aborts the whole build. Tool order is preserved; dedup is the caller's
// responsibility via selection-set semantics.
func BuildConfig(tools []mcp.ToolRecord) (ExportConfig, error) {
	cfg := ExportConfig{
		Tools:           make([]ExportTool, 0, len(tools)),
		InterruptConfig: make(map[string]bool, len(tools)),
	}

	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.MCPServerURL) == "" {
			return ExportConfig{}, fmt.Errorf("%w: every tool needs a name and mcp_server_url", mcp.ErrInvalidInput)
		}

		u := mcp.Normalize(t.MCPServerURL)
		display := t.DisplayName
		if display == "" {
			display = t.Name
		}

		cfg.Tools = append(cfg.Tools, ExportTool{
			Name:          t.Name,
			DisplayName:   display,
			MCPServerName: t.MCPServerName,
			MCPServerURL:  u,
		})
		cfg.InterruptConfig[u+"::"+t.Name+"::"+t.MCPServerName] = true
	}
	return cfg, nil
}

// AddTools merges newly confirmed tools into an existing toolbox item list.
// A tool whose ToolKey is already present is skipped, so repeated adds are
// idempotent. The caller commits the returned list back into the node and
// clears the selection afterward.
func AddTools(existing []ToolItem, tools []mcp.ToolRecord) ([]ToolItem, error) {
	seen := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		seen[item.ID] = struct{}{}
	}

	merged := append([]ToolItem(nil), existing...)
	for _, t := range tools {
		key, err := Key(t)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		name := t.DisplayName
		if name == "" {
			name = t.Name
		}
		merged = append(merged, ToolItem{
			ID:     key,
			Name:   name,
			Source: t.MCPServerName,
			Status: StatusActive,
		})
	}
	return merged, nil
}
