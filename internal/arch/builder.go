package arch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/relations"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/version"
)

// ErrTooFewFiles is returned when the anchor set is smaller than MinFiles
var ErrTooFewFiles = errors.New("too few files for an architecture export")

// maxSnippetLines bounds each source snippet at DetailComplete
const maxSnippetLines = 40

// Options configure one export
type Options struct {
	Project string
	// Root resolves anchor paths for snippets
	Root     string
	Detail   Detail
	MinFiles int
	Now      func() time.Time
	// ReadFile overrides how snippets are loaded
	ReadFile func(path string) ([]byte, error)
}

// Build assembles the architecture of the given anchors. Output order is
// stable: files by path, symbols by (language, path, name).
func Build(headers []*types.AnchorHeader, opts Options) (*ProjectArchitecture, error) {
	if len(headers) < opts.MinFiles {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewFiles, len(headers), opts.MinFiles)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReadFile == nil {
		opts.ReadFile = func(p string) ([]byte, error) {
			return os.ReadFile(filepath.Join(opts.Root, filepath.FromSlash(p)))
		}
	}

	sorted := append([]*types.AnchorHeader(nil), headers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path() < sorted[j].Path() })

	a := &ProjectArchitecture{
		Metadata: Metadata{
			Project:     opts.Project,
			Generator:   version.Info(),
			GeneratedAt: opts.Now().Unix(),
			Detail:      opts.Detail.String(),
			Files:       len(sorted),
			Languages:   map[string]int{},
		},
	}

	dirs := map[string]int{}
	for _, h := range sorted {
		p := h.Path()
		a.Metadata.Languages[string(h.Language)]++
		fi := FileInfo{Path: p, Language: h.Language, Symbols: len(h.Symbols), Imports: len(h.Imports)}
		if opts.Detail >= DetailBasic {
			fi.Layer = fileLayer(p, h.Symbols)
		}
		a.Structure.Files = append(a.Structure.Files, fi)
		dirs[path.Dir(p)]++
	}
	for d, n := range dirs {
		a.Structure.Directories = append(a.Structure.Directories, DirectoryInfo{Path: d, Files: n})
	}
	sort.Slice(a.Structure.Directories, func(i, j int) bool {
		return a.Structure.Directories[i].Path < a.Structure.Directories[j].Path
	})

	if opts.Detail >= DetailBasic {
		a.Layers = groupLayers(a.Structure.Files)
		a.Metrics = countMetrics(sorted)
	}
	if opts.Detail >= DetailStandard {
		a.Symbols = collectSymbols(sorted, a.Structure.Files, opts)
		for _, h := range sorted {
			a.Patterns = append(a.Patterns, detectPatterns(h.Path(), h.Symbols)...)
		}
	}
	if opts.Detail >= DetailDetailed {
		files := make([]relations.File, len(sorted))
		for i, h := range sorted {
			files[i] = relations.FromHeader(h)
		}
		res := relations.NewAnalyzer(files, relations.Options{}).Analyze()
		a.Relationships = res.Graph.Relationships()
		a.Cycles = res.Cycles
		a.Metrics.Relationships = res.Metrics.Relationships
		a.Metrics.ByRelation = res.Metrics.ByKind
		a.Metrics.Cycles = res.Metrics.Cycles
		a.Metrics.Unresolved = res.Metrics.Unresolved
		a.Metrics.Coupling = res.Metrics.Coupling
		a.Metrics.Cohesion = res.Metrics.Cohesion
	}
	debug.Log("ARCH", "built %s architecture: %d files, %d symbols, %d relationships",
		opts.Detail, len(a.Structure.Files), len(a.Symbols), len(a.Relationships))
	return a, nil
}

func countMetrics(headers []*types.AnchorHeader) *Metrics {
	m := &Metrics{Files: len(headers), ByKind: map[string]int{}}
	for _, h := range headers {
		m.Symbols += len(h.Symbols)
		for _, s := range h.Symbols {
			m.ByKind[string(s.Kind)]++
		}
	}
	return m
}

// collectSymbols lists top-level symbols, and members from DetailDetailed on
func collectSymbols(headers []*types.AnchorHeader, files []FileInfo, opts Options) []SymbolInfo {
	layers := make(map[string]string, len(files))
	for _, f := range files {
		layers[f.Path] = f.Layer
	}

	var out []SymbolInfo
	for _, h := range headers {
		p := h.Path()
		var lines []string
		if opts.Detail >= DetailComplete {
			if content, err := opts.ReadFile(p); err == nil {
				lines = splitLines(anchor.Canonical(content))
			} else {
				debug.Log("ARCH", "no snippet source for %s: %v", p, err)
			}
		}
		for i := range h.Symbols {
			s := &h.Symbols[i]
			if s.Owner != "" && opts.Detail < DetailDetailed {
				continue
			}
			info := SymbolInfo{
				ID:        relations.NodeID(p, s),
				Name:      s.Name,
				Qualified: s.Qualified,
				Kind:      s.Kind,
				File:      p,
				Language:  h.Language,
				Lines:     s.Range.Lines(),
				Layer:     layers[p],
				Roles:     s.Roles,
			}
			if lines != nil {
				info.Snippet = snippet(lines, s.Range)
			}
			out = append(out, info)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Name < b.Name
	})
	return out
}

func splitLines(content []byte) []string {
	var out []string
	for _, l := range bytes.Split(content, []byte("\n")) {
		out = append(out, string(l))
	}
	return out
}

func snippet(lines []string, r types.SourceRange) string {
	start, end := r.LineStart, r.LineEnd
	if start < 1 || start > len(lines) {
		return ""
	}
	end = min(end, len(lines), start+maxSnippetLines-1)
	var buf bytes.Buffer
	for i := start; i <= end; i++ {
		buf.WriteString(lines[i-1])
		if i < end {
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}
