package resolver

import (
	"sort"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Capture names of the refs program
const (
	captureCall       = "reference.call"
	captureMember     = "reference.member"
	captureType       = "reference.type"
	captureIdentifier = "reference.identifier"
)

// assignment targets may sit one list level below the assignment
var targetLists = map[string]bool{
	"expression_list": true,
	"pattern_list":    true,
	"tuple_pattern":   true,
	"tuple":           true,
}

var typeArgumentKinds = map[string]bool{
	"type_arguments":     true,
	"type_parameters":    true,
	"type_parameter":     true,
	"type_argument_list": true,
}

type refKey struct {
	kind   types.ReferenceKind
	target string
	line   int
}

type edgeKey struct {
	kind   types.EdgeKind
	target string
}

// refState dedupes references and edges per symbol
type refState struct {
	refs  map[int]map[refKey]bool
	edges map[int]map[edgeKey]bool
}

// reference is the reference pass: every captured use is attributed to
// the innermost enclosing symbol on a second pre-order walk. Uses outside
// every symbol are dropped.
func (f *file) reference() {
	captures := make(map[uintptr][]string)
	for _, m := range f.pack.Refs.Matches(f.root, f.src) {
		for _, c := range m.Captures {
			captures[c.Node.ID()] = append(captures[c.Node.ID()], c.Name)
		}
	}
	st := &refState{refs: map[int]map[refKey]bool{}, edges: map[int]map[edgeKey]bool{}}
	for i, s := range f.symbols {
		for _, e := range s.Edges {
			st.edge(i)[edgeKey{e.Kind, e.Target}] = true
		}
	}

	var stack []symFrame

	cst.Walk(f.root, func(n cst.Node) bool {
		if n.IsError() {
			return false
		}
		if idx, ok := f.byNode[n.ID()]; ok {
			stack = append(stack, symFrame{nodeID: n.ID(), index: idx})
		}
		if len(stack) == 0 {
			return true
		}
		owner := stack[len(stack)-1].index
		line := n.StartPosition().Row + 1

		if imps, ok := f.importAt[n.ID()]; ok {
			for _, imp := range imps {
				f.addRef(st, owner, types.RefImport, imp.Source, line)
			}
			return false
		}
		for _, name := range captures[n.ID()] {
			switch name {
			case captureCall:
				f.onCall(st, owner, n, line)
			case captureMember:
				f.onMember(st, owner, n, line, captures)
			case captureType:
				f.onType(st, owner, n, line)
			case captureIdentifier:
				f.onIdentifier(st, owner, n, line, captures)
			}
		}
		return true
	}, func(n cst.Node) {
		if len(stack) > 0 && stack[len(stack)-1].nodeID == n.ID() {
			stack = stack[:len(stack)-1]
		}
	})
}

func (st *refState) ref(i int) map[refKey]bool {
	if st.refs[i] == nil {
		st.refs[i] = map[refKey]bool{}
	}
	return st.refs[i]
}

func (st *refState) edge(i int) map[edgeKey]bool {
	if st.edges[i] == nil {
		st.edges[i] = map[edgeKey]bool{}
	}
	return st.edges[i]
}

func (f *file) addRef(st *refState, i int, kind types.ReferenceKind, target string, line int) {
	if target == "" {
		return
	}
	k := refKey{kind, target, line}
	if st.ref(i)[k] {
		return
	}
	st.ref(i)[k] = true
	f.symbols[i].References = append(f.symbols[i].References, types.SymbolReference{Kind: kind, Target: target, AtLine: line})
}

func (f *file) addEdge(st *refState, i int, kind types.EdgeKind, target string, line int) {
	if target == "" {
		return
	}
	k := edgeKey{kind, target}
	if st.edge(i)[k] {
		return
	}
	st.edge(i)[k] = true
	f.symbols[i].Edges = append(f.symbols[i].Edges, types.SymbolEdge{Kind: kind, Target: target, AtLine: line})
}

func (f *file) onCall(st *refState, owner int, n cst.Node, line int) {
	callee := f.res.CallTarget(n, f.src)
	if callee == "" {
		return
	}
	target := f.res.ResolveImportAlias(callee, f.importMap)
	f.addRef(st, owner, types.RefCall, target, line)
	if f.opts.Track.Calls {
		f.addEdge(st, owner, types.EdgeCall, target, line)
	}
	if !f.viaImport(callee) && !f.isLocal(callee) {
		f.unresolved[target] = true
	}
}

// viaImport reports whether name or its leading segment is imported
func (f *file) viaImport(name string) bool {
	if _, ok := f.importMap[name]; ok {
		return true
	}
	for _, sep := range []string{".", "::", "\\"} {
		if head, _, ok := strings.Cut(name, sep); ok {
			if _, found := f.importMap[head]; found {
				return true
			}
		}
	}
	return false
}

// isLocal reports whether a callee names something declared in this file:
// a symbol, a qualified symbol, or a member call on self/this.
func (f *file) isLocal(callee string) bool {
	if f.names[callee] {
		return true
	}
	if _, ok := f.registry[callee]; ok {
		return true
	}
	for _, self := range []string{"self.", "this.", "Self::"} {
		if strings.HasPrefix(callee, self) && f.names[strings.TrimPrefix(callee, self)] {
			return true
		}
	}
	return false
}

func (f *file) onMember(st *refState, owner int, n cst.Node, line int, captures map[uintptr][]string) {
	// The callee of a call and the object of an outer access are covered
	// by the enclosing capture.
	if p := n.Parent(); p != nil && (hasCapture(captures, p, captureCall) || hasCapture(captures, p, captureMember)) {
		return
	}
	obj, member := f.res.MemberParts(n, f.src)
	target := f.res.ResolveImportAlias(f.res.ResolveMemberAccess(obj, member), f.importMap)
	if isWriteTarget(n) {
		f.addRef(st, owner, types.RefWrite, target, line)
	} else {
		f.addRef(st, owner, types.RefMember, target, line)
	}
	if f.opts.Track.MemberAccess {
		f.addEdge(st, owner, types.EdgeMemberAccess, target, line)
	}
}

func (f *file) onType(st *refState, owner int, n cst.Node, line int) {
	if f.nameNodes[n.ID()] {
		return
	}
	if !f.opts.Track.Generics && insideTypeArguments(n) {
		return
	}
	name := f.res.NormalizeSymbolName(cst.Text(n, f.src))
	if name == "" || name == f.symbols[owner].Name {
		return
	}
	target := f.resolveName(name)
	f.addRef(st, owner, types.RefType, target, line)
	f.addEdge(st, owner, types.EdgeUsesType, target, line)
}

func (f *file) onIdentifier(st *refState, owner int, n cst.Node, line int, captures map[uintptr][]string) {
	if f.nameNodes[n.ID()] {
		return
	}
	if p := n.Parent(); p != nil && (hasCapture(captures, p, captureCall) || hasCapture(captures, p, captureMember)) {
		return
	}
	name := f.res.NormalizeSymbolName(cst.Text(n, f.src))
	if name == "" {
		return
	}
	if isWriteTarget(n) {
		f.addRef(st, owner, types.RefWrite, name, line)
		return
	}
	if _, imported := f.importMap[name]; imported {
		f.addRef(st, owner, types.RefRead, f.importMap[name], line)
		return
	}
	if f.names[name] && name != f.symbols[owner].Name {
		f.addRef(st, owner, types.RefRead, name, line)
	}
}

func hasCapture(captures map[uintptr][]string, n cst.Node, name string) bool {
	for _, c := range captures[n.ID()] {
		if c == name {
			return true
		}
	}
	return false
}

// isWriteTarget reports whether n is the left side of an assignment,
// directly or as one element of a target list.
func isWriteTarget(n cst.Node) bool {
	child, p := n, n.Parent()
	if p != nil && targetLists[p.Kind()] {
		child, p = p, p.Parent()
	}
	if p == nil {
		return false
	}
	left := p.ChildByFieldName("left")
	return left != nil && left.ID() == child.ID()
}

func insideTypeArguments(n cst.Node) bool {
	p := n.Parent()
	for depth := 0; p != nil && depth < 3; depth++ {
		if typeArgumentKinds[p.Kind()] {
			return true
		}
		p = p.Parent()
	}
	return false
}

func (f *file) unresolvedTargets() []string {
	if len(f.unresolved) == 0 {
		return nil
	}
	out := make([]string, 0, len(f.unresolved))
	for t := range f.unresolved {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
