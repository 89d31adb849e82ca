// Package mcp serves the engine operations as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	amdebug "github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/engine"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/version"
)

// ServerName is reported to clients during initialization
const ServerName = "agentmap"

// Server exposes scan, check, search and export over MCP
type Server struct {
	engine *engine.Engine
	server *mcp.Server
}

// NewServer registers every tool against e
func NewServer(e *engine.Engine) *Server {
	s := &Server{
		engine: e,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

func pathsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "string"},
		Description: "Files or directories relative to the project root; empty means the whole project",
	}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "scan",
		Description: "Analyze source files and write their agentmap anchors. Unchanged files are not rewritten.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"paths": pathsSchema(),
				"no_write": {
					Type:        "boolean",
					Description: "Analyze only; leave every anchor untouched",
				},
			},
		},
	}, s.handleScan)

	s.server.AddTool(&mcp.Tool{
		Name:        "check",
		Description: "Report which files have valid, missing, outdated or invalid anchors.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"paths": pathsSchema(),
			},
		},
	}, s.handleCheck)

	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Find symbols by name, kind, path, role, relation or enclosing frame. Results are ranked by confidence.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"pattern"},
			Properties: map[string]*jsonschema.Schema{
				"pattern": {
					Type:        "string",
					Description: "Search pattern",
				},
				"paths": pathsSchema(),
				"type": {
					Type:        "string",
					Enum:        []any{"exact", "glob", "regex", "fuzzy"},
					Description: "Match type (default glob)",
				},
				"scope": {
					Type:        "string",
					Description: "Comma separated scopes: names, kinds, paths, roles, relations, frames:<kind>, all",
				},
				"threshold": {
					Type:        "number",
					Description: "Minimum similarity for fuzzy matches, 0 to 1",
				},
				"top": {
					Type:        "integer",
					Description: "Keep only the best N results",
				},
				"case_sensitive": {
					Type:        "boolean",
					Description: "Override the configured case sensitivity",
				},
			},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "export",
		Description: "Export the project architecture: structure, symbols, relationships, layers and patterns.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"paths": pathsSchema(),
				"format": {
					Type:        "string",
					Description: "json, yaml, graphml, dot, mermaid, csv, html, markdown, plantuml, d2 or cypher",
				},
				"detail": {
					Type:        "string",
					Enum:        []any{"minimal", "basic", "standard", "detailed", "complete"},
					Description: "How much of the analysis to include",
				},
			},
		},
	}, s.handleExport)
}

// Run serves over stdio until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	amdebug.Log("MCP", "serving %s over stdio", version.Info())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves one session over t
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// recoverFromPanic turns handler failures, panics included, into error results
func recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			amdebug.Log("MCP", "panic in %s: %v\n%s", operation, r, debug.Stack())
			result, err = errorResult(operation, fmt.Errorf("internal error: %v", r))
		}
	}()
	result, err = handler()
	if err != nil {
		amdebug.Log("MCP", "%s failed: %v", operation, err)
		return errorResult(operation, err)
	}
	return result, nil
}
