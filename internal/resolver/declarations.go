package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/scope"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// definition is one node captured by the defs program
type definition struct {
	node cst.Node
	name cst.Node
	kind types.SymbolKind
}

// pendingImpl is a supertype list whose subject is named rather than
// declared by the node (Rust impl Trait for Type)
type pendingImpl struct {
	subject string
	supers  []querypack.Supertype
	line    int
}

// file is the per-file scratch state shared by the three passes
type file struct {
	pack *querypack.Pack
	res  querypack.SymbolResolver
	opts Options
	src  []byte
	root cst.Node

	defs      map[uintptr]definition
	nameNodes map[uintptr]bool
	importAt  map[uintptr][]types.Import

	symbols   []types.Symbol
	imports   []types.Import
	importMap map[string]string
	byNode    map[uintptr]int
	registry  map[string]int // qualified name -> first symbol with it
	names     map[string]bool
	hints     map[int]string
	impls     []pendingImpl
	nodes     []cst.Node // definition node of each symbol

	unresolved map[string]bool
	warnings   []string
}

func newFile(pack *querypack.Pack, opts Options, src []byte, root cst.Node) *file {
	return &file{
		pack:       pack,
		res:        pack.Resolver,
		opts:       opts,
		src:        src,
		root:       root,
		defs:       make(map[uintptr]definition),
		nameNodes:  make(map[uintptr]bool),
		importAt:   make(map[uintptr][]types.Import),
		byNode:     make(map[uintptr]int),
		registry:   make(map[string]int),
		names:      make(map[string]bool),
		hints:      make(map[int]string),
		unresolved: make(map[string]bool),
	}
}

func (f *file) warnf(format string, args ...interface{}) {
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

// kindRank orders competing captures of one node: a type_spec matched as
// both struct and type is a struct.
func kindRank(k types.SymbolKind) int {
	switch {
	case k.IsClassLike(), k == types.KindMethod, k == types.KindConstructor:
		return 3
	case k == types.KindVariable:
		return 1
	case k == types.KindType:
		return 0
	}
	return 2
}

// collectDefinitions runs the defs and imports programs
func (f *file) collectDefinitions() {
	for _, m := range f.pack.Defs.Matches(f.root, f.src) {
		var d definition
		for _, c := range m.Captures {
			switch {
			case c.Name == "name":
				d.name = c.Node
			case strings.HasPrefix(c.Name, "definition."):
				d.node = c.Node
				d.kind = types.ParseSymbolKind(c.Name)
			}
		}
		if d.node == nil || d.name == nil {
			continue
		}
		if prev, ok := f.defs[d.node.ID()]; ok && kindRank(prev.kind) >= kindRank(d.kind) {
			continue
		}
		f.defs[d.node.ID()] = d
		f.nameNodes[d.name.ID()] = true
	}

	for _, m := range f.pack.Imports.Matches(f.root, f.src) {
		for _, c := range m.Captures {
			if c.Name != "import" {
				continue
			}
			if _, seen := f.importAt[c.Node.ID()]; seen {
				continue
			}
			imps := f.res.ParseImport(c.Node, f.src)
			f.importAt[c.Node.ID()] = imps
			f.imports = append(f.imports, imps...)
		}
	}
	sort.SliceStable(f.imports, func(i, j int) bool { return f.imports[i].Line < f.imports[j].Line })

	f.importMap = make(map[string]string)
	for _, imp := range f.imports {
		for local, target := range imp.ToImportMap() {
			f.importMap[local] = target
		}
	}
}

type symFrame struct {
	nodeID uintptr
	index  int
}

// declare is the declaration pass: a pre-order walk that records every
// captured definition with its frames, id, owner and fingerprint.
func (f *file) declare() {
	f.collectDefinitions()

	tracker := scope.NewTracker(f.res.EnclosingScopeKind, scope.RangeOf(f.root))
	var stack []symFrame
	counter := 0

	cst.Walk(f.root, func(n cst.Node) bool {
		if n.IsError() {
			f.warnf("line %d: syntax error", n.StartPosition().Row+1)
			return false
		}
		d, ok := f.defs[n.ID()]
		if !ok {
			if subject, supers := f.res.Supertypes(n, f.src); subject != "" && len(supers) > 0 {
				f.impls = append(f.impls, pendingImpl{subject: subject, supers: supers, line: n.StartPosition().Row + 1})
			}
			tracker.Enter(n, f.frameName(n, stack))
			return true
		}

		name := f.res.NormalizeSymbolName(cst.Text(d.name, f.src))
		if name == "" {
			f.warnf("line %d: definition without a name", n.StartPosition().Row+1)
			tracker.Enter(n, "")
			return true
		}

		var parent *types.Symbol
		if len(stack) > 0 {
			parent = &f.symbols[stack[len(stack)-1].index]
		}
		kind := d.kind
		hint := f.res.OwnerHint(n, f.src)
		memberOfType := parent != nil && parent.Kind.IsClassLike()
		switch {
		case kind == types.KindFunction && (memberOfType || hint != ""):
			kind = types.KindMethod
		case kind == types.KindVariable && memberOfType:
			kind = types.KindField
		case (kind == types.KindVariable || kind == types.KindConstant) && tracker.InsideCallable():
			tracker.Enter(n, name)
			return true
		}

		counter++
		frames := tracker.Frames()
		sym := types.Symbol{
			ID:          kind.IDPrefix() + strconv.Itoa(counter),
			Kind:        kind,
			Name:        name,
			Qualified:   f.qualify(frames, hint, name),
			Range:       scope.RangeOf(n),
			Frames:      frames,
			Fingerprint: anchor.SymbolFingerprint(f.src[n.StartByte():n.EndByte()]),
		}
		if memberOfType {
			sym.Owner = parent.ID
		} else if hint != "" {
			f.hints[len(f.symbols)] = hint
		}
		for _, r := range f.res.Roles(n, name, f.src) {
			sym.AddRole(r)
		}
		if kind.IsCallable() && n.ChildByFieldName("body") == nil {
			sym.AddRole(types.RoleDeclaration)
		}

		line := sym.Range.LineStart
		subject, supers := f.res.Supertypes(n, f.src)
		if subject == "" {
			for _, s := range supers {
				sym.Edges = append(sym.Edges, types.SymbolEdge{Kind: s.Kind, Target: f.resolveName(s.Name), AtLine: line, Metadata: s.Metadata})
			}
		} else if len(supers) > 0 {
			f.impls = append(f.impls, pendingImpl{subject: subject, supers: supers, line: line})
		}

		idx := len(f.symbols)
		f.symbols = append(f.symbols, sym)
		f.nodes = append(f.nodes, n)
		f.byNode[n.ID()] = idx
		f.names[name] = true
		if _, dup := f.registry[sym.Qualified]; !dup {
			f.registry[sym.Qualified] = idx
		}
		stack = append(stack, symFrame{nodeID: n.ID(), index: idx})
		tracker.Enter(n, name)
		return true
	}, func(n cst.Node) {
		tracker.Exit(n)
		if len(stack) > 0 && stack[len(stack)-1].nodeID == n.ID() {
			stack = stack[:len(stack)-1]
		}
	})

	f.resolveOwners()
	f.attachImpls()
	f.addOverrides()
}

// frameName labels a frame node that is not itself a definition. Bodies
// of a definition (a Go struct_type under its type_spec) take its name.
func (f *file) frameName(n cst.Node, stack []symFrame) string {
	if name := f.res.ScopeName(n, f.src); name != "" {
		return name
	}
	if len(stack) == 0 {
		return ""
	}
	top := stack[len(stack)-1]
	if p := n.Parent(); p != nil && p.ID() == top.nodeID {
		return f.symbols[top.index].Name
	}
	return ""
}

// qualify joins the named frames and the symbol name
func (f *file) qualify(frames []types.ScopeFrame, hint, name string) string {
	var parts []string
	hinted := hint == ""
	for _, fr := range frames {
		if fr.Name == "" || fr.Kind == types.FrameFile {
			continue
		}
		if fr.Name == hint {
			hinted = true
		}
		parts = append(parts, fr.Name)
	}
	if !hinted {
		parts = append([]string{hint}, parts...)
	}
	return strings.Join(append(parts, name), f.res.Separator())
}

// resolveName maps a supertype or type name through the import map
func (f *file) resolveName(name string) string {
	return f.res.ResolveImportAlias(name, f.importMap)
}

// typeNamed returns the first class-like symbol called name
func (f *file) typeNamed(name string) (int, bool) {
	for i := range f.symbols {
		if f.symbols[i].Name == name && f.symbols[i].Kind.IsClassLike() {
			return i, true
		}
	}
	return 0, false
}

// resolveOwners binds owner hints to declared types. Go methods may
// appear before their receiver type, so this runs after the walk.
func (f *file) resolveOwners() {
	for idx, hint := range f.hints {
		if owner, ok := f.typeNamed(hint); ok && owner != idx {
			f.symbols[idx].Owner = f.symbols[owner].ID
		}
	}
}

func (f *file) attachImpls() {
	for _, impl := range f.impls {
		idx, ok := f.typeNamed(impl.subject)
		if !ok {
			f.warnf("line %d: implementation target %s is not declared in this file", impl.line, impl.subject)
			continue
		}
		s := &f.symbols[idx]
		for _, sup := range impl.supers {
			s.Edges = append(s.Edges, types.SymbolEdge{Kind: sup.Kind, Target: f.resolveName(sup.Name), AtLine: impl.line, Metadata: sup.Metadata})
		}
	}
}

// addOverrides links a method to the same-named method of an in-file
// supertype of its owner.
func (f *file) addOverrides() {
	byID := make(map[string]int, len(f.symbols))
	for i, s := range f.symbols {
		byID[s.ID] = i
	}
	for i := range f.symbols {
		m := &f.symbols[i]
		if m.Kind != types.KindMethod || m.Owner == "" {
			continue
		}
		owner := f.symbols[byID[m.Owner]]
		for _, e := range owner.Edges {
			if e.Kind != types.EdgeInherit && e.Kind != types.EdgeImplement {
				continue
			}
			if e.Metadata["inheritance_type"] == "embed" {
				continue
			}
			super, ok := f.typeNamed(e.Target)
			if !ok || !f.hasMethod(f.symbols[super].ID, m.Name) {
				continue
			}
			m.Edges = append(m.Edges, types.SymbolEdge{
				Kind:   types.EdgeOverride,
				Target: e.Target + f.res.Separator() + m.Name,
				AtLine: m.Range.LineStart,
			})
		}
	}
}

func (f *file) hasMethod(ownerID, name string) bool {
	for _, s := range f.symbols {
		if s.Owner == ownerID && s.Name == name && s.Kind.IsCallable() {
			return true
		}
	}
	return false
}
