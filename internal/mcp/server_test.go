package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/engine"
)

const serviceGo = `package billing

type InvoiceService struct{}

func (s *InvoiceService) Issue(id int) error {
	return nil
}

func NewInvoiceService() *InvoiceService {
	return &InvoiceService{}
}
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	p := filepath.Join(root, "billing", "invoice_service.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(serviceGo), 0o644))

	cfg := config.Default()
	cfg.Project = config.Project{Root: root, Name: "billing"}
	cfg.Performance.Workers = 1
	cfg.Matcher.Workers = 1
	e, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return NewServer(e), root
}

func call(t *testing.T, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args any) (*mcp.CallToolResult, string) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := handler(context.Background(), &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: raw}})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return res, text.Text
}

func TestScanAndCheckTools(t *testing.T) {
	s, root := newTestServer(t)

	res, text := call(t, s.handleScan, map[string]any{})
	require.False(t, res.IsError, text)
	var report struct {
		Written []string       `json:"written"`
		Caches  map[string]any `json:"caches"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &report))
	assert.Equal(t, []string{"billing/invoice_service.go"}, report.Written)
	assert.Contains(t, report.Caches, "queries")
	assert.FileExists(t, filepath.Join(root, ".agentmap", "billing", "invoice_service.go.yaml"))

	res, text = call(t, s.handleCheck, map[string]any{"paths": []string{"billing"}})
	require.False(t, res.IsError, text)
	var sum struct {
		Valid []string `json:"valid"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &sum))
	assert.Equal(t, []string{"billing/invoice_service.go"}, sum.Valid)
}

func TestSearchTool(t *testing.T) {
	s, _ := newTestServer(t)

	res, text := call(t, s.handleSearch, map[string]any{"pattern": "*invoice*", "top": 5})
	require.False(t, res.IsError, text)
	assert.Contains(t, text, `"InvoiceService"`)

	res, text = call(t, s.handleSearch, map[string]any{"pattern": ""})
	assert.True(t, res.IsError)
	assert.Contains(t, text, "pattern is required")

	res, _ = call(t, s.handleSearch, map[string]any{"pattern": "x", "type": "soundex"})
	assert.True(t, res.IsError)
}

func TestExportTool(t *testing.T) {
	s, _ := newTestServer(t)

	res, text := call(t, s.handleExport, map[string]any{"format": "mermaid", "detail": "standard"})
	require.False(t, res.IsError, text)
	assert.True(t, strings.HasPrefix(text, "graph LR"), text)
	assert.Contains(t, text, "InvoiceService")

	res, text = call(t, s.handleExport, map[string]any{})
	require.False(t, res.IsError, text)
	assert.True(t, json.Valid([]byte(text)))

	res, _ = call(t, s.handleExport, map[string]any{"format": "pdf"})
	assert.True(t, res.IsError)
}

func TestMalformedArguments(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleScan(context.Background(), &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: []byte(`{"paths": 3}`)}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRecoverFromPanic(t *testing.T) {
	res, err := recoverFromPanic("boom", func() (*mcp.CallToolResult, error) {
		panic("nil map")
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "internal error: nil map")
}

func TestSessionListsAndCallsTools(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverTransport)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"scan", "check", "search", "export"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"pattern": "Issue", "type": "exact"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, `"Issue"`)
}
