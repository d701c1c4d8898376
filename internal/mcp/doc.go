// Package mcp holds the discovery core of the toolbox backend: URL
// normalization, the in-memory server registry, and the tool-listing cascade
// with its concurrent batch aggregator.
//
// A server is registered once under its normalized URL:
//
//	registry := mcp.NewRegistry()
//	registry.Add(mcp.ServerRecord{Name: "Agent Builder", URL: "https://tools.example.com/"})
//
// and queried through the engine, which tries a structured MCP client, then
// GET {endpoint}/tools/list, then a JSON-RPC tools/list POST:
//
//	engine := mcp.NewEngine(0)
//	tools, err := engine.Discover(ctx, server)
//
// Resources and prompts from the MCP specification are out of scope; only
// tool listing over HTTP is implemented.
package mcp
