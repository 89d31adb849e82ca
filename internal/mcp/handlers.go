package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/arch"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/engine"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/scanner"
)

type scanParams struct {
	Paths   []string `json:"paths"`
	NoWrite bool     `json:"no_write"`
}

type checkParams struct {
	Paths []string `json:"paths"`
}

type searchParams struct {
	Pattern       string   `json:"pattern"`
	Paths         []string `json:"paths"`
	Type          string   `json:"type"`
	Scope         string   `json:"scope"`
	Threshold     float64  `json:"threshold"`
	Top           int      `json:"top"`
	CaseSensitive *bool    `json:"case_sensitive"`
}

type exportParams struct {
	Paths  []string `json:"paths"`
	Format string   `json:"format"`
	Detail string   `json:"detail"`
}

// decode reads tool arguments; absent arguments leave v at its zero value
func decode(req *mcp.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return amerrors.NewConfigError("arguments", string(req.Params.Arguments), err)
	}
	return nil
}

// resolve anchors relative tool paths at the project root
func (s *Server) resolve(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.engine.Config().Project.Root, filepath.FromSlash(p))
		}
		out = append(out, p)
	}
	return out
}

// scanReport is the scan tool payload
type scanReport struct {
	Written   []string            `json:"written"`
	Unchanged []string            `json:"unchanged"`
	Skipped   []string            `json:"skipped"`
	Errors    []scanner.FileError `json:"errors"`
	Canceled  bool                `json:"canceled"`
	Caches    engine.Caches       `json:"caches"`
}

func (s *Server) handleScan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return recoverFromPanic("scan", func() (*mcp.CallToolResult, error) {
		var p scanParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		res, err := s.engine.Scan(ctx, s.resolve(p.Paths), p.NoWrite)
		if err != nil {
			return nil, err
		}
		return jsonResult(scanReport{
			Written:   res.Written,
			Unchanged: res.Unchanged,
			Skipped:   res.Skipped,
			Errors:    res.Errors,
			Canceled:  res.Canceled,
			Caches:    s.engine.CacheStats(),
		})
	})
}

func (s *Server) handleCheck(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return recoverFromPanic("check", func() (*mcp.CallToolResult, error) {
		var p checkParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		sum, err := s.engine.Check(ctx, s.resolve(p.Paths))
		if err != nil {
			return nil, err
		}
		return jsonResult(sum)
	})
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return recoverFromPanic("search", func() (*mcp.CallToolResult, error) {
		var p searchParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		if p.Pattern == "" {
			return nil, amerrors.NewConfigError("pattern", "", fmt.Errorf("pattern is required"))
		}
		res, err := s.engine.Search(ctx, engine.SearchRequest{
			Paths:         s.resolve(p.Paths),
			Pattern:       p.Pattern,
			Type:          p.Type,
			Scope:         p.Scope,
			Threshold:     p.Threshold,
			Top:           p.Top,
			CaseSensitive: p.CaseSensitive,
		})
		if err != nil {
			return nil, err
		}
		return jsonResult(res)
	})
}

func (s *Server) handleExport(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return recoverFromPanic("export", func() (*mcp.CallToolResult, error) {
		var p exportParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		name := p.Format
		if name == "" {
			name = s.engine.Config().Architecture.Format
		}
		format, err := arch.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		a, err := s.engine.Export(ctx, engine.ExportRequest{Paths: s.resolve(p.Paths), Detail: p.Detail})
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := arch.Render(&buf, a, format); err != nil {
			return nil, err
		}
		return textResult(buf.String()), nil
	})
}
