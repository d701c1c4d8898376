package mcp

import "encoding/json"

// TransportDefaultHTTP is the only transport this phase supports: plain HTTP
// request/response plus one JSON-RPC envelope.
const TransportDefaultHTTP = "default-http"

// ServerRecord is a registered MCP server. URL is the registry key and is
// always stored normalized.
type ServerRecord struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Transport string            `json:"transport,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Config    json.RawMessage   `json:"config,omitempty"`
}

// ToolRecord is a tool advertised by an MCP server, stamped with the querying
// server's name and normalized URL. Identity for dedup and selection is the
// pair (MCPServerURL, Name), never DisplayName.
type ToolRecord struct {
	Name          string          `json:"name"`
	DisplayName   string          `json:"display_name"`
	MCPServerName string          `json:"mcp_server_name"`
	MCPServerURL  string          `json:"mcp_server_url"`
	Description   string          `json:"description,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
}
