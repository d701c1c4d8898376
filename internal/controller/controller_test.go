package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowgraph/toolbox/internal/mcp"
)

type fakeDiscoverer struct {
	tools []mcp.ToolRecord
	err   error

	calls   int32
	release chan struct{} // when non-nil, Discover blocks until closed
}

func (f *fakeDiscoverer) Discover(ctx context.Context, server mcp.ServerRecord) ([]mcp.ToolRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	tools := make([]mcp.ToolRecord, len(f.tools))
	for i, t := range f.tools {
		t.MCPServerName = server.Name
		t.MCPServerURL = mcp.Normalize(server.URL)
		tools[i] = t
	}
	return tools, nil
}

func newTestController(t *testing.T, d Discoverer) *Controller {
	t.Helper()
	c := New(mcp.NewRegistry(), d)
	if _, err := c.AddServer(mcp.ServerRecord{Name: "Agent Builder", URL: "https://tools.example.com/"}); err != nil {
		t.Fatalf("AddServer failed: %v", err)
	}
	return c
}

func TestFetchToolsSuccess(t *testing.T) {
	d := &fakeDiscoverer{tools: []mcp.ToolRecord{{Name: "read"}, {Name: "search"}}}
	c := newTestController(t, d)

	tools, err := c.FetchTools(context.Background(), "https://tools.example.com")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(tools))
	}

	st := c.Snapshot()
	if len(st.ToolsByURL["https://tools.example.com"]) != 2 {
		t.Error("Expected tools cached under normalized URL")
	}
	if st.ToolLoadingByURL["https://tools.example.com"] {
		t.Error("Expected loading flag cleared after fetch")
	}
	if st.ToolErrorByURL["https://tools.example.com"] != "" {
		t.Errorf("Expected no cached error, got %q", st.ToolErrorByURL["https://tools.example.com"])
	}
	if st.ActiveURL != "https://tools.example.com" {
		t.Errorf("Expected active URL set, got %q", st.ActiveURL)
	}
}

func TestFetchToolsFailure(t *testing.T) {
	d := &fakeDiscoverer{err: errors.New("connection refused")}
	c := newTestController(t, d)

	if _, err := c.FetchTools(context.Background(), "https://tools.example.com"); err == nil {
		t.Fatal("Expected error")
	}

	st := c.Snapshot()
	if st.ToolErrorByURL["https://tools.example.com"] != "connection refused" {
		t.Errorf("Expected error cached, got %q", st.ToolErrorByURL["https://tools.example.com"])
	}
	tools, ok := st.ToolsByURL["https://tools.example.com"]
	if !ok || len(tools) != 0 {
		t.Errorf("Expected empty tool cache after failure, got %v (ok=%v)", tools, ok)
	}
	if st.ToolLoadingByURL["https://tools.example.com"] {
		t.Error("Expected loading flag cleared after failure")
	}

	logs := c.Logs()
	if len(logs) == 0 || logs[0].Level != "error" {
		t.Errorf("Expected newest log entry to be the failure, got %+v", logs)
	}
}

func TestFetchToolsUnknownServer(t *testing.T) {
	c := newTestController(t, &fakeDiscoverer{})
	if _, err := c.FetchTools(context.Background(), "https://unknown.example.com"); !errors.Is(err, mcp.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFetchToolsClearsPreviousError(t *testing.T) {
	d := &fakeDiscoverer{err: errors.New("boom")}
	c := newTestController(t, d)
	c.FetchTools(context.Background(), "https://tools.example.com")

	d.err = nil
	d.tools = []mcp.ToolRecord{{Name: "read"}}
	if _, err := c.FetchTools(context.Background(), "https://tools.example.com"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	st := c.Snapshot()
	if msg, ok := st.ToolErrorByURL["https://tools.example.com"]; ok {
		t.Errorf("Expected stale error cleared, got %q", msg)
	}
}

func TestFetchToolsCoalescesConcurrentCalls(t *testing.T) {
	d := &fakeDiscoverer{
		tools:   []mcp.ToolRecord{{Name: "read"}},
		release: make(chan struct{}),
	}
	c := newTestController(t, d)

	const callers = 4
	var wg sync.WaitGroup
	results := make([][]mcp.ToolRecord, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tools, err := c.FetchTools(context.Background(), "https://tools.example.com")
			if err != nil {
				t.Errorf("Caller %d: unexpected error: %v", i, err)
				return
			}
			results[i] = tools
		}(i)
	}

	// Let every caller reach the in-flight fetch before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(d.release)
	wg.Wait()

	if got := atomic.LoadInt32(&d.calls); got != 1 {
		t.Errorf("Expected one upstream discovery, got %d", got)
	}
	for i, tools := range results {
		if len(tools) != 1 {
			t.Errorf("Caller %d: expected shared result, got %v", i, tools)
		}
	}
}

func TestSelectionToggleAndClear(t *testing.T) {
	d := &fakeDiscoverer{tools: []mcp.ToolRecord{{Name: "read"}, {Name: "search"}}}
	c := newTestController(t, d)
	c.FetchTools(context.Background(), "https://tools.example.com")

	key := "https://tools.example.com::read"
	if !c.ToggleTool(key) {
		t.Error("Expected first toggle to select")
	}
	if c.ToggleTool(key) {
		t.Error("Expected second toggle to deselect")
	}
	c.ToggleTool(key)
	c.ToggleTool("https://tools.example.com::search")

	selected := c.SelectedTools()
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected tools, got %d", len(selected))
	}

	// An orphan key not backed by any cached tool contributes nothing
	c.ToggleTool("https://gone.example.com::stale")
	if got := len(c.SelectedTools()); got != 2 {
		t.Errorf("Expected orphan selection filtered out, got %d tools", got)
	}

	c.ClearSelection()
	if got := len(c.SelectedTools()); got != 0 {
		t.Errorf("Expected empty selection, got %d tools", got)
	}
}

func TestUpdateServerRekeysState(t *testing.T) {
	d := &fakeDiscoverer{tools: []mcp.ToolRecord{{Name: "read"}}}
	c := newTestController(t, d)
	c.FetchTools(context.Background(), "https://tools.example.com")
	c.ToggleTool("https://tools.example.com::read")

	next := "https://moved.example.com"
	if _, err := c.UpdateServer("https://tools.example.com", mcp.ServerUpdate{NextURL: &next}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	st := c.Snapshot()
	if _, ok := st.ToolsByURL["https://tools.example.com"]; ok {
		t.Error("Expected old cache key removed")
	}
	tools, ok := st.ToolsByURL["https://moved.example.com"]
	if !ok || len(tools) != 1 {
		t.Fatalf("Expected cache under new key, got %v (ok=%v)", tools, ok)
	}
	if tools[0].MCPServerURL != "https://moved.example.com" {
		t.Errorf("Expected cached tools rebased to new URL, got %s", tools[0].MCPServerURL)
	}
	if st.ActiveURL != "https://moved.example.com" {
		t.Errorf("Expected active URL migrated, got %s", st.ActiveURL)
	}
	if len(st.SelectedKeys) != 1 || st.SelectedKeys[0] != "https://moved.example.com::read" {
		t.Errorf("Expected selection re-keyed, got %v", st.SelectedKeys)
	}

	// The derived selection still resolves after the migration
	if got := len(c.SelectedTools()); got != 1 {
		t.Errorf("Expected 1 selected tool after migration, got %d", got)
	}
}

func TestRemoveServerDropsState(t *testing.T) {
	d := &fakeDiscoverer{tools: []mcp.ToolRecord{{Name: "read"}}}
	c := newTestController(t, d)
	c.FetchTools(context.Background(), "https://tools.example.com")
	c.ToggleTool("https://tools.example.com::read")

	if err := c.RemoveServer("https://tools.example.com/"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	st := c.Snapshot()
	if len(st.Servers) != 0 {
		t.Error("Expected no servers")
	}
	if _, ok := st.ToolsByURL["https://tools.example.com"]; ok {
		t.Error("Expected tool cache dropped")
	}
	if st.ActiveURL != "" {
		t.Errorf("Expected active URL cleared, got %s", st.ActiveURL)
	}
	if len(st.SelectedKeys) != 0 {
		t.Errorf("Expected selections dropped, got %v", st.SelectedKeys)
	}
}

func TestLogsNewestFirstAndBounded(t *testing.T) {
	c := New(mcp.NewRegistry(), &fakeDiscoverer{})

	for i := 0; i < maxLogEntries+20; i++ {
		c.AddServer(mcp.ServerRecord{Name: "S", URL: "bad-url"}) // each failure logs once
	}

	logs := c.Logs()
	if len(logs) != maxLogEntries {
		t.Errorf("Expected log capped at %d entries, got %d", maxLogEntries, len(logs))
	}
	if len(logs) > 1 && logs[0].Timestamp.Before(logs[1].Timestamp) {
		t.Error("Expected newest-first ordering")
	}
	if logs[0].ID == "" {
		t.Error("Expected log entries to carry IDs")
	}
}
