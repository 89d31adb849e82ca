package relations

import (
	"path"
	"sort"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// File is the per-file input of the analyzer, taken from either a fresh
// analysis or a decoded anchor.
type File struct {
	Path     string
	Language types.Language
	Symbols  []types.Symbol
	Imports  []types.Import
}

// FromAnalysis adapts a resolver result
func FromAnalysis(fa *types.FileAnalysis) File {
	return File{Path: fa.Path, Language: fa.Language, Symbols: fa.Symbols, Imports: fa.Imports}
}

// FromHeader adapts a decoded anchor
func FromHeader(h *types.AnchorHeader) File {
	return File{Path: h.Path(), Language: h.Language, Symbols: h.Symbols, Imports: h.Imports}
}

// Options tunes import resolution and cycle search
type Options struct {
	// SearchPaths are extra module roots relative to the project root
	// (for example "src" or "lib")
	SearchPaths    []string
	MaxCycleLength int
	MaxCycles      int
}

// Unresolved is a relationship whose target is not a project symbol
type Unresolved struct {
	From   string `json:"from" yaml:"from"`
	Target string `json:"target" yaml:"target"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Path   string `json:"path" yaml:"path"`
	Line   int    `json:"line" yaml:"line"`
}

// Metrics summarizes the graph
type Metrics struct {
	Files         int          `json:"files" yaml:"files"`
	Symbols       int          `json:"symbols" yaml:"symbols"`
	Relationships int          `json:"relationships" yaml:"relationships"`
	Cycles        int          `json:"cycles" yaml:"cycles"`
	Unresolved    int          `json:"unresolved" yaml:"unresolved"`
	Coupling      float64      `json:"coupling" yaml:"coupling"`
	Cohesion      float64      `json:"cohesion" yaml:"cohesion"`
	ByKind        map[Kind]int `json:"by_kind" yaml:"by_kind"`
}

// Result is the output of one analysis
type Result struct {
	Graph      *Graph
	Imports    []ResolvedImport
	Cycles     []Cycle
	Metrics    Metrics
	Unresolved []Unresolved
}

// symbolRef locates one symbol of one file
type symbolRef struct {
	file *File
	sym  *types.Symbol
	node string
}

// Analyzer builds the cross-file graph
type Analyzer struct {
	opts    Options
	files   []*File
	byPath  map[string]*File
	modules *moduleIndex

	byName      map[string][]symbolRef
	byQualified map[string][]symbolRef
	// bindings per file: fully qualified import target -> files and symbol
	bindings map[string]map[string]binding
}

type binding struct {
	files []string
	node  string
	ref   symbolRef
}

// NewAnalyzer indexes files. Paths are normalized to forward slashes.
func NewAnalyzer(files []File, opts Options) *Analyzer {
	a := &Analyzer{
		opts:        opts,
		byPath:      make(map[string]*File, len(files)),
		byName:      make(map[string][]symbolRef),
		byQualified: make(map[string][]symbolRef),
		bindings:    make(map[string]map[string]binding),
	}
	for i := range files {
		f := files[i]
		f.Path = path.Clean(toSlash(f.Path))
		if _, dup := a.byPath[f.Path]; dup {
			continue
		}
		a.files = append(a.files, &f)
		a.byPath[f.Path] = &f
	}
	sort.Slice(a.files, func(i, j int) bool { return a.files[i].Path < a.files[j].Path })

	paths := make([]string, len(a.files))
	for i, f := range a.files {
		paths[i] = f.Path
		for j := range f.Symbols {
			s := &f.Symbols[j]
			ref := symbolRef{file: f, sym: s, node: NodeID(f.Path, s)}
			a.byName[s.Name] = append(a.byName[s.Name], ref)
			if s.Qualified != "" {
				a.byQualified[s.Qualified] = append(a.byQualified[s.Qualified], ref)
			}
		}
	}
	a.modules = newModuleIndex(paths, opts.SearchPaths)
	return a
}

// NodeID is the graph node of a symbol
func NodeID(path string, s *types.Symbol) string {
	return s.GlobalID(path).String()
}

// Analyze resolves imports, binds every symbol edge and collects cycles
// and metrics. Targets that name nothing in the project are collected as
// unresolved.
func (a *Analyzer) Analyze() *Result {
	res := &Result{Graph: NewGraph()}
	for _, f := range a.files {
		res.Imports = append(res.Imports, a.resolveImports(f, res)...)
	}
	for _, f := range a.files {
		for j := range f.Symbols {
			a.bindEdges(f, &f.Symbols[j], res)
		}
	}
	res.Cycles = DetectCycles(res.Graph, a.opts.MaxCycleLength, a.opts.MaxCycles)
	res.Metrics = a.metrics(res)
	debug.Log("RELATIONS", "%d files, %d relationships, %d cycles, %d unresolved",
		len(a.files), res.Graph.Len(), len(res.Cycles), len(res.Unresolved))
	return res
}

func (a *Analyzer) resolveImports(f *File, res *Result) []ResolvedImport {
	var out []ResolvedImport
	fileBindings := make(map[string]binding)
	for _, imp := range f.Imports {
		files := a.modules.resolve(f.Path, f.Language, imp.Source)
		ri := ResolvedImport{File: f.Path, Source: imp.Source, Files: files, Line: imp.Line}
		if len(files) == 0 {
			res.Unresolved = append(res.Unresolved, Unresolved{From: f.Path, Target: imp.Source, Kind: KindImport, Path: f.Path, Line: imp.Line})
			out = append(out, ri)
			continue
		}
		for _, target := range files {
			res.Graph.Add(Relationship{From: f.Path, To: target, Kind: KindImport, Path: f.Path, Line: imp.Line})
		}
		for local, fq := range imp.ToImportMap() {
			b := binding{files: files}
			if len(imp.ImportedNames) > 0 {
				if ref, ok := a.topLevel(files, lastSegment(fq)); ok {
					b.node, b.ref = ref.node, ref
					if ri.Bindings == nil {
						ri.Bindings = make(map[string]string)
					}
					ri.Bindings[local] = ref.node
				}
			}
			fileBindings[fq] = b
		}
		out = append(out, ri)
	}
	a.bindings[f.Path] = fileBindings
	return out
}

// topLevel finds the first symbol called name that no type owns
func (a *Analyzer) topLevel(files []string, name string) (symbolRef, bool) {
	in := make(map[string]bool, len(files))
	for _, f := range files {
		in[f] = true
	}
	for _, ref := range a.byName[name] {
		if in[ref.file.Path] && ref.sym.Owner == "" {
			return ref, true
		}
	}
	return symbolRef{}, false
}

func (a *Analyzer) bindEdges(f *File, s *types.Symbol, res *Result) {
	from := NodeID(f.Path, s)
	for _, e := range s.Edges {
		kind := kindOf(e.Kind)
		to, ok := a.bind(f, s, kind, e.Target)
		if !ok {
			res.Unresolved = append(res.Unresolved, Unresolved{From: from, Target: e.Target, Kind: kind, Path: f.Path, Line: e.AtLine})
			continue
		}
		res.Graph.Add(Relationship{From: from, To: to, Kind: kind, Path: f.Path, Line: e.AtLine, Metadata: e.Metadata})
	}
}

// bind resolves an edge target to a symbol node: same-file names first,
// then imported symbols, then owner members, then a unique project-wide
// type name.
func (a *Analyzer) bind(f *File, s *types.Symbol, kind Kind, target string) (string, bool) {
	for _, self := range []string{"self.", "this.", "Self::", "$this->", "@"} {
		target = strings.TrimPrefix(target, self)
	}
	if target == "" {
		return "", false
	}
	if ref, ok := a.local(f, kind, target); ok {
		return ref.node, true
	}
	if node, ok := a.imported(f, kind, target); ok {
		return node, true
	}
	head, last := splitLast(target)
	if head != "" {
		if ref, ok := a.member(f, last); ok {
			return ref.node, true
		}
	}
	return a.unique(kind, target)
}

func (a *Analyzer) local(f *File, kind Kind, target string) (symbolRef, bool) {
	for _, ref := range a.byQualified[target] {
		if ref.file == f && fits(kind, ref.sym) {
			return ref, true
		}
	}
	if strings.ContainsAny(target, ".:/\\") {
		return symbolRef{}, false
	}
	var fallback *symbolRef
	for i, ref := range a.byName[target] {
		if ref.file != f || !fits(kind, ref.sym) {
			continue
		}
		if ref.sym.Owner == "" {
			return ref, true
		}
		if fallback == nil {
			fallback = &a.byName[target][i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return symbolRef{}, false
}

// imported binds target through the longest import target it starts with
func (a *Analyzer) imported(f *File, kind Kind, target string) (string, bool) {
	bs := a.bindings[f.Path]
	if b, ok := bs[target]; ok && b.node != "" {
		return b.node, true
	}
	best, rest := "", ""
	for fq := range bs {
		if len(fq) <= len(best) || !strings.HasPrefix(target, fq) {
			continue
		}
		tail := target[len(fq):]
		for _, sep := range []string{"::", ".", "/", "\\"} {
			if strings.HasPrefix(tail, sep) {
				best, rest = fq, tail[len(sep):]
				break
			}
		}
	}
	if best == "" {
		return "", false
	}
	if b := bs[best]; b.node != "" {
		// the import names a type: rest is one of its members
		if m, ok := a.memberOf(b.ref, firstSegment(rest)); ok {
			return m.node, true
		}
		return "", false
	}
	files := bs[best].files
	if ref, ok := a.topLevel(files, firstSegment(rest)); ok && fits(kind, ref.sym) {
		if _, last := splitLast(rest); last != rest {
			if m, ok := a.memberOf(ref, last); ok {
				return m.node, true
			}
		}
		return ref.node, true
	}
	return "", false
}

// member finds a symbol owned by some type of f
func (a *Analyzer) member(f *File, name string) (symbolRef, bool) {
	for _, ref := range a.byName[name] {
		if ref.file == f && ref.sym.Owner != "" {
			return ref, true
		}
	}
	return symbolRef{}, false
}

func (a *Analyzer) memberOf(owner symbolRef, name string) (symbolRef, bool) {
	for _, ref := range a.byName[name] {
		if ref.file == owner.file && ref.sym.Owner == owner.sym.ID {
			return ref, true
		}
	}
	return symbolRef{}, false
}

// unique binds type-level relationships to the only project type with the name
func (a *Analyzer) unique(kind Kind, target string) (string, bool) {
	switch kind {
	case KindInherits, KindImplements, KindUsesType:
		_, last := splitLast(target)
		var hits []symbolRef
		for _, ref := range a.byName[last] {
			if ref.sym.Kind.IsClassLike() {
				hits = append(hits, ref)
			}
		}
		if len(hits) == 1 {
			return hits[0].node, true
		}
	case KindOverride:
		head, last := splitLast(target)
		_, owner := splitLast(head)
		var hits []symbolRef
		for q, refs := range a.byQualified {
			if q == owner+"."+last || q == owner+"::"+last || strings.HasSuffix(q, "."+owner+"."+last) {
				hits = append(hits, refs...)
			}
		}
		if len(hits) == 1 {
			return hits[0].node, true
		}
	}
	return "", false
}

// fits reports whether a symbol can be the target of kind
func fits(kind Kind, s *types.Symbol) bool {
	switch kind {
	case KindInherits, KindImplements, KindUsesType:
		return s.Kind.IsClassLike() || s.Kind == types.KindType
	case KindCall, KindOverride:
		return s.Kind.IsCallable() || s.Kind.IsClassLike()
	}
	return true
}

var separators = []string{"::", ".", "/", "\\", "->"}

// splitLast splits a dotted or scoped path at its last separator
func splitLast(target string) (head, last string) {
	cut, width := -1, 0
	for _, sep := range separators {
		if i := strings.LastIndex(target, sep); i > cut {
			cut, width = i, len(sep)
		}
	}
	if cut < 0 {
		return "", target
	}
	return target[:cut], target[cut+width:]
}

func firstSegment(target string) string {
	cut := len(target)
	for _, sep := range separators {
		if i := strings.Index(target, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return target[:cut]
}

func lastSegment(target string) string {
	_, last := splitLast(target)
	return last
}

func (a *Analyzer) metrics(res *Result) Metrics {
	m := Metrics{
		Files:         len(a.files),
		Relationships: res.Graph.Len(),
		Cycles:        len(res.Cycles),
		Unresolved:    len(res.Unresolved),
		ByKind:        res.Graph.CountByKind(),
	}
	for _, f := range a.files {
		m.Symbols += len(f.Symbols)
	}
	if m.Symbols > 0 {
		m.Coupling = float64(m.Relationships) / float64(m.Symbols)
	}
	m.Cohesion = 1 - float64(m.Cycles)/float64(max(m.Relationships, 1))
	if m.Cohesion < 0 {
		m.Cohesion = 0
	}
	return m
}
