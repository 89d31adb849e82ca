// Package resolver turns one parsed source file into a FileAnalysis: its
// symbols with scope frames, references, edges, roles and side effects.
package resolver

import (
	"bytes"
	"fmt"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Options selects the optional parts of the reference pass
type Options struct {
	Track config.Tracking
	// LineBudget limits analysis to the first N lines (0 = unlimited)
	LineBudget int
}

// OptionsFrom extracts analyzer options from cfg
func OptionsFrom(cfg *config.Config) Options {
	return Options{Track: cfg.Track, LineBudget: cfg.LineBudget}
}

// Analyzer runs the declaration, reference and pattern passes. It keeps one
// parser per language and is therefore not safe for concurrent use: give
// each worker its own Analyzer over a shared querypack.Manager.
type Analyzer struct {
	packs   *querypack.Manager
	opts    Options
	parsers map[types.Language]cst.Parser
}

// New creates an analyzer drawing query packs from packs
func New(packs *querypack.Manager, opts Options) *Analyzer {
	return &Analyzer{
		packs:   packs,
		opts:    opts,
		parsers: make(map[types.Language]cst.Parser),
	}
}

// Close releases the analyzer's parsers
func (a *Analyzer) Close() {
	for tag, p := range a.parsers {
		p.Close()
		delete(a.parsers, tag)
	}
}

func (a *Analyzer) parser(pack *querypack.Pack) (cst.Parser, error) {
	if p, ok := a.parsers[pack.Language]; ok {
		return p, nil
	}
	p, err := pack.Grammar.NewParser()
	if err != nil {
		return nil, amerrors.NewProviderError("cst", string(pack.Language), "", err)
	}
	a.parsers[pack.Language] = p
	return p, nil
}

// Analyze analyzes content as the file at path. The anchor header and any
// inline anchors are removed first, so the result describes the canonical
// content and its fingerprint matches what anchor.Validate recomputes.
//
// Unsupported paths return an error wrapping ErrUnsupportedLanguage.
// Provider and query failures are returned as-is. A parse failure returns
// an empty analysis together with a ParseError; every other problem is
// reported in FileAnalysis.Warnings.
func (a *Analyzer) Analyze(path string, content []byte) (*types.FileAnalysis, error) {
	tag := lang.Detect(path)
	if tag == types.LangUnsupported {
		return nil, fmt.Errorf("%w: %s", amerrors.ErrUnsupportedLanguage, path)
	}
	pack, err := a.packs.Pack(tag)
	if err != nil {
		return nil, err
	}

	canonical := anchor.Canonical(content)
	fa := &types.FileAnalysis{
		Path:        path,
		Language:    tag,
		Fingerprint: anchor.FileFingerprint(canonical),
		Lines:       countLines(canonical),
	}
	src := canonical
	if a.opts.LineBudget > 0 && fa.Lines > a.opts.LineBudget {
		src = firstLines(canonical, a.opts.LineBudget)
		fa.Truncated = true
	}

	parser, err := a.parser(pack)
	if err != nil {
		return nil, err
	}
	tree, err := parser.Parse(src)
	if err != nil {
		fa.Warnings = append(fa.Warnings, err.Error())
		return fa, amerrors.NewParseError(path, string(tag), 0, 0, err)
	}
	defer tree.Close()

	f := newFile(pack, a.opts, src, tree.RootNode())
	f.declare()
	f.reference()
	f.annotate()

	fa.Symbols = f.symbols
	fa.Imports = f.imports
	fa.Unresolved = f.unresolvedTargets()
	fa.Warnings = append(fa.Warnings, f.warnings...)
	debug.Log("ANALYZE", "%s: %d symbols, %d imports, %d warnings", path, len(fa.Symbols), len(fa.Imports), len(fa.Warnings))
	return fa, nil
}

func countLines(b []byte) int {
	b = bytes.TrimRight(b, "\n")
	if len(b) == 0 {
		return 0
	}
	return bytes.Count(b, []byte{'\n'}) + 1
}

func firstLines(b []byte, n int) []byte {
	idx := 0
	for i := 0; i < n; i++ {
		next := bytes.IndexByte(b[idx:], '\n')
		if next < 0 {
			return b
		}
		idx += next + 1
	}
	return b[:idx]
}
