package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const defaultDiscoverTimeout = 8 * time.Second

const (
	clientName    = "toolbox-backend"
	clientVersion = "0.1.0"
)

// Engine queries one MCP server for its tool list through a prioritized
// cascade of fallback strategies: a structured MCP client, a REST GET, and a
// JSON-RPC POST. The first strategy to succeed wins; if all fail, the last
// error surfaces as a *DiscoveryError. The engine is stateless over tool
// records and never mutates the registry.
type Engine struct {
	httpClient *http.Client
	timeout    time.Duration
	strategies []strategy
}

// strategy is one attempt in the discovery cascade. Adding or removing a
// strategy is a one-line change to the slice in NewEngine.
type strategy struct {
	name string
	run  func(ctx context.Context, e *Engine, server ServerRecord, endpoint string) ([]ToolRecord, error)
}

// NewEngine creates a discovery engine. A zero timeout selects the 8s default.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultDiscoverTimeout
	}
	return &Engine{
		httpClient: &http.Client{},
		timeout:    timeout,
		strategies: []strategy{
			{name: "mcp-client", run: runClientStrategy},
			{name: "rest-get", run: runRESTStrategy},
			{name: "jsonrpc-post", run: runJSONRPCStrategy},
		},
	}
}

// Discover lists the tools of one server. Strategies within a server run
// sequentially, never concurrently with each other.
func (e *Engine) Discover(ctx context.Context, server ServerRecord) ([]ToolRecord, error) {
	endpoint := Endpoint(server)

	var lastErr error
	for _, s := range e.strategies {
		tools, err := s.run(ctx, e, server, endpoint)
		if err == nil {
			return tools, nil
		}
		lastErr = err
	}

	msg := "no discovery strategies configured"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return nil, &DiscoveryError{URL: Normalize(server.URL), Message: msg}
}

// Endpoint derives the network endpoint for a server from its normalized URL.
// For Smithery-hosted servers the path is suffixed with /mcp, a Bearer token
// from the Authorization header is mirrored into the api_key query parameter,
// and any opaque config object rides along as a query parameter.
func Endpoint(server ServerRecord) string {
	base := Normalize(server.URL)
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	q := u.Query()
	if u.Host == smitheryServerHost {
		if !strings.HasSuffix(u.Path, "/mcp") {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/mcp"
		}
		if auth := server.Headers["Authorization"]; strings.HasPrefix(auth, "Bearer ") {
			q.Set("api_key", strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if len(server.Config) > 0 {
		q.Set("config", string(server.Config))
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// runClientStrategy opens a structured MCP client session against the
// endpoint and issues tools/list. The connection is torn down afterward
// regardless of outcome; close errors are swallowed.
func runClientStrategy(ctx context.Context, e *Engine, server ServerRecord, endpoint string) ([]ToolRecord, error) {
	var opts []transport.StreamableHTTPCOption
	if len(server.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(server.Headers))
	}

	c, err := mcpclient.NewStreamableHttpClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	res, err := c.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	normalized := Normalize(server.URL)
	tools := make([]ToolRecord, 0, len(res.Tools))
	for _, t := range res.Tools {
		if t.Name == "" {
			continue
		}
		rec := ToolRecord{
			Name:          t.Name,
			DisplayName:   t.Name,
			MCPServerName: server.Name,
			MCPServerURL:  normalized,
			Description:   t.Description,
		}
		if schema, err := json.Marshal(t.InputSchema); err == nil {
			rec.InputSchema = schema
		}
		tools = append(tools, rec)
	}
	return tools, nil
}

// runRESTStrategy issues GET {endpoint}/tools/list.
func runRESTStrategy(ctx context.Context, e *Engine, server ServerRecord, endpoint string) ([]ToolRecord, error) {
	listURL := joinToolsListPath(endpoint)
	body, err := e.doJSON(ctx, http.MethodGet, listURL, nil, server.Headers)
	if err != nil {
		return nil, err
	}
	return mapTools(server, parseToolPayload(body)), nil
}

// runJSONRPCStrategy issues POST {endpoint} with a tools/list JSON-RPC call.
func runJSONRPCStrategy(ctx context.Context, e *Engine, server ServerRecord, endpoint string) ([]ToolRecord, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
		"params":  map[string]interface{}{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := e.doJSON(ctx, http.MethodPost, endpoint, reqBody, server.Headers)
	if err != nil {
		return nil, err
	}
	return mapTools(server, parseToolPayload(body)), nil
}

// joinToolsListPath appends /tools/list to the endpoint path, keeping any
// query string in place.
func joinToolsListPath(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + "/tools/list"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/tools/list"
	return u.String()
}

func (e *Engine) doJSON(ctx context.Context, method, target string, body []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed: status=%d body=%s", resp.StatusCode, truncateBody(respBody))
	}
	return respBody, nil
}

func truncateBody(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// rawTool mirrors the field-name variants seen in the wild. Only name is
// required; everything else degrades gracefully.
type rawTool struct {
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name"`
	DisplayNameAlt  string          `json:"displayName"`
	Description     string          `json:"description"`
	InputSchema     json.RawMessage `json:"input_schema"`
	InputSchemaAlt  json.RawMessage `json:"inputSchema"`
	InputSchemaJSON json.RawMessage `json:"inputSchemaJson"`
	Parameters      json.RawMessage `json:"parameters"`
}

// parseToolPayload accepts a bare array, an object with a tools array, or an
// object with result.tools. Anything else parses to zero tools; a malformed
// 2xx payload is not a hard error.
func parseToolPayload(body []byte) []rawTool {
	var arr []rawTool
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr
	}

	var wrapped struct {
		Tools  []rawTool `json:"tools"`
		Result struct {
			Tools []rawTool `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil
	}
	if len(wrapped.Tools) > 0 {
		return wrapped.Tools
	}
	return wrapped.Result.Tools
}

// mapTools converts raw payload entries into ToolRecords stamped with the
// querying server's identity. Entries without a name are dropped.
func mapTools(server ServerRecord, raw []rawTool) []ToolRecord {
	normalized := Normalize(server.URL)
	tools := make([]ToolRecord, 0, len(raw))
	for _, t := range raw {
		if t.Name == "" {
			continue
		}
		tools = append(tools, ToolRecord{
			Name:          t.Name,
			DisplayName:   firstNonEmpty(t.DisplayName, t.DisplayNameAlt, t.Name),
			MCPServerName: server.Name,
			MCPServerURL:  normalized,
			Description:   t.Description,
			InputSchema:   firstRawMessage(t.InputSchema, t.InputSchemaAlt, t.InputSchemaJSON, t.Parameters),
		})
	}
	return tools
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRawMessage(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
