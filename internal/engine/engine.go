// Package engine wires configuration, query packs, storage, the scanner and
// the matcher into the operations shared by the command line and the tool
// server: scan, check, search and export.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/arch"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cache"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/match"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/scanner"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/storage"
)

// Engine owns every long-lived component of one project. Its methods are
// safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	packs   *querypack.Manager
	store   *storage.Facade
	scanner *scanner.Scanner
	checker *scanner.Checker
	matcher *match.Matcher
	mopts   match.Options
}

// Open builds the engine for cfg. Query packs are validated here; the
// languages that fail are disabled and reported by every scan.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	provider, err := querypack.NewProvider(cfg.Queries.Provider, cfg.Queries.Dir)
	if err != nil {
		return nil, err
	}
	packs, err := querypack.NewManager(provider, cfg.Queries.CacheSize)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e, err := build(ctx, cfg, packs, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

func build(ctx context.Context, cfg *config.Config, packs *querypack.Manager, store *storage.Facade) (*Engine, error) {
	s, err := scanner.New(ctx, cfg, packs, store)
	if err != nil {
		return nil, err
	}
	checker, err := scanner.NewChecker(s, store)
	if err != nil {
		return nil, err
	}
	mopts, err := match.OptionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	m, err := match.New(mopts)
	if err != nil {
		return nil, err
	}
	debug.Log("ENGINE", "opened %s: store %s, queries %s", cfg.Project.Root, store.Name(), packs.Provider().Name())
	return &Engine{cfg: cfg, packs: packs, store: store, scanner: s, checker: checker, matcher: m, mopts: mopts}, nil
}

// Config returns the configuration the engine was opened with
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the storage facade
func (e *Engine) Store() *storage.Facade { return e.store }

// Scanner returns the scanner, for watchers
func (e *Engine) Scanner() *scanner.Scanner { return e.scanner }

// Close releases the stores
func (e *Engine) Close() error {
	return e.store.Close()
}

// Caches is the cache counter block of a scan report
type Caches struct {
	Queries  cache.Stats `json:"queries"`
	Patterns cache.Stats `json:"patterns"`
}

// CacheStats snapshots the query pack and pattern caches
func (e *Engine) CacheStats() Caches {
	return Caches{Queries: e.packs.Stats(), Patterns: e.matcher.Cache().Stats()}
}

// Scan analyzes paths and writes changed anchors unless noWrite is set
func (e *Engine) Scan(ctx context.Context, paths []string, noWrite bool) (*scanner.ScanResult, error) {
	return e.scanner.Scan(ctx, paths, scanner.Options{NoWrite: noWrite})
}

// Check compares the stored anchors of paths with the files on disk
func (e *Engine) Check(ctx context.Context, paths []string) (*scanner.CheckSummary, error) {
	return e.checker.Check(ctx, paths)
}

// SearchRequest is one search over the anchors of Paths
type SearchRequest struct {
	Paths     []string
	Pattern   string
	Type      string
	Scope     string
	Threshold float64
	// Top keeps the best Top results; 0 keeps every match
	Top int
	// CaseSensitive overrides the configured case sensitivity when set
	CaseSensitive *bool
}

// SearchResult carries the matches and the scan that produced the anchors
type SearchResult struct {
	Results []match.Result      `json:"results"`
	Errors  []scanner.FileError `json:"errors,omitempty"`
	Files   int                 `json:"files"`
}

// Search analyzes Paths without writing and runs the matcher over the
// resulting anchors
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	typ, err := match.ParseType(req.Type)
	if err != nil {
		return nil, amerrors.NewConfigError("type", req.Type, err)
	}
	q := match.Query{Pattern: req.Pattern, Type: typ, Threshold: req.Threshold}
	if req.Scope != "" {
		if q.Scope, err = match.ParseScope(req.Scope); err != nil {
			return nil, amerrors.NewConfigError("scope", req.Scope, err)
		}
	}
	m := e.matcher
	if req.CaseSensitive != nil && *req.CaseSensitive != e.mopts.CaseSensitive {
		opts := e.mopts
		opts.CaseSensitive = *req.CaseSensitive
		if m, err = match.New(opts); err != nil {
			return nil, err
		}
	}

	res, err := e.scanner.Scan(ctx, req.Paths, scanner.Options{NoWrite: true})
	if err != nil {
		return nil, err
	}
	out := &SearchResult{Errors: res.Errors, Files: len(res.Headers)}
	if req.Top > 0 {
		out.Results, err = m.TopK(ctx, res.Headers, q, req.Top)
	} else {
		out.Results, err = m.Search(ctx, res.Headers, q)
	}
	return out, err
}

// ExportRequest is one architecture export over Paths
type ExportRequest struct {
	Paths  []string
	Detail string
	Now    func() time.Time
}

// Export analyzes Paths without writing and builds their architecture.
// Empty Detail falls back to the configured level.
func (e *Engine) Export(ctx context.Context, req ExportRequest) (*arch.ProjectArchitecture, error) {
	name := req.Detail
	if name == "" {
		name = e.cfg.Architecture.Detail
	}
	detail, err := arch.ParseDetail(name)
	if err != nil {
		return nil, err
	}
	res, err := e.scanner.Scan(ctx, req.Paths, scanner.Options{NoWrite: true, Now: req.Now})
	if err != nil {
		return nil, err
	}
	if res.Canceled {
		return nil, fmt.Errorf("export: %w", context.Cause(ctx))
	}
	return arch.Build(res.Headers, arch.Options{
		Project:  e.cfg.Project.Name,
		Root:     e.cfg.Project.Root,
		Detail:   detail,
		MinFiles: e.cfg.MinFiles,
		Now:      req.Now,
	})
}
