package mcp

import (
	"context"
	"errors"
	"sync"
)

// DiscoveryFailure is one server's failure inside a batch discovery.
type DiscoveryFailure struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// AggregateResult is the merged outcome of discovering every registered
// server. Tools follow server iteration order, then per-server discovery
// order. ServerCount reports every server attempted regardless of outcome.
type AggregateResult struct {
	Tools       []ToolRecord       `json:"tools"`
	Errors      []DiscoveryFailure `json:"errors,omitempty"`
	ServerCount int                `json:"serverCount"`
}

// DiscoverAll fans Discover out across all servers concurrently and collects
// per-server successes and failures. It never fails as a whole: a failing
// server contributes one error entry and zero tools, and no sibling is
// canceled by another's failure.
func (e *Engine) DiscoverAll(ctx context.Context, servers []ServerRecord) AggregateResult {
	type outcome struct {
		tools []ToolRecord
		err   error
	}

	outcomes := make([]outcome, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Add(1)
		go func(i int, server ServerRecord) {
			defer wg.Done()
			tools, err := e.Discover(ctx, server)
			outcomes[i] = outcome{tools: tools, err: err}
		}(i, server)
	}
	wg.Wait()

	result := AggregateResult{Tools: []ToolRecord{}, ServerCount: len(servers)}
	for i, o := range outcomes {
		if o.err != nil {
			failure := DiscoveryFailure{URL: Normalize(servers[i].URL), Message: o.err.Error()}
			var de *DiscoveryError
			if errors.As(o.err, &de) {
				failure.Message = de.Message
			}
			result.Errors = append(result.Errors, failure)
			continue
		}
		result.Tools = append(result.Tools, o.tools...)
	}
	return result
}
