package querypack

import (
	"strings"
	"unicode"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Supertype is one base type named by a type declaration
type Supertype struct {
	Name     string
	Kind     types.EdgeKind // EdgeInherit or EdgeImplement
	Metadata map[string]string
}

// SymbolResolver carries the per-language knowledge the analyzer needs on
// top of the query programs.
type SymbolResolver interface {
	// ResolveImportAlias maps a local name through the file's import map.
	// Unknown names come back unchanged.
	ResolveImportAlias(name string, imports map[string]string) string
	// ResolveMemberAccess joins an object expression and member into one target
	ResolveMemberAccess(object, member string) string
	// NormalizeSymbolName trims language decoration such as "$" or generics
	NormalizeSymbolName(name string) string
	// EnclosingScopeKind maps a CST node kind to the frame it opens
	EnclosingScopeKind(nodeKind string) (types.FrameKind, bool)

	// Separator joins qualified name segments
	Separator() string
	// ParseImport turns one node captured by the imports program into imports
	ParseImport(node cst.Node, src []byte) []types.Import
	// Supertypes reports the base types node declares. subject is set when
	// the declaring node is not itself a definition (Rust impl blocks).
	Supertypes(node cst.Node, src []byte) (subject string, supers []Supertype)
	// OwnerHint names the type a function belongs to when the CST does not
	// nest it (Go receivers, Rust impl blocks, C++ out-of-line methods).
	OwnerHint(node cst.Node, src []byte) string
	// ScopeName names a frame node that is not a captured definition
	ScopeName(node cst.Node, src []byte) string
	// Roles reports modifier-derived roles of a definition
	Roles(node cst.Node, name string, src []byte) []string
	// CallTarget extracts the callee expression of a call node
	CallTarget(node cst.Node, src []byte) string
	// MemberParts splits a member-access node into object and member text
	MemberParts(node cst.Node, src []byte) (object, member string)
	// IsIdentifier reports whether kind is a plain name node
	IsIdentifier(kind string) bool
}

// resolver is the table-driven SymbolResolver shared by every language
type resolver struct {
	lang        types.Language
	sep         string
	scopes      map[string]types.FrameKind
	identifiers map[string]bool
	parseImport func(node cst.Node, src []byte) []types.Import
	supertypes  func(node cst.Node, src []byte) (string, []Supertype)
	ownerHint   func(node cst.Node, src []byte) string
	roles       func(node cst.Node, name string, src []byte) []string
	normalize   func(name string) string
}

func (r *resolver) Separator() string { return r.sep }

func (r *resolver) ResolveImportAlias(name string, imports map[string]string) string {
	if name == "" || len(imports) == 0 {
		return name
	}
	if target, ok := imports[name]; ok {
		return target
	}
	// Resolve the leading segment of a dotted or scoped path
	for _, sep := range []string{".", "::", "\\"} {
		if head, rest, ok := strings.Cut(name, sep); ok {
			if target, found := imports[head]; found {
				return target + sep + rest
			}
		}
	}
	return name
}

func (r *resolver) ResolveMemberAccess(object, member string) string {
	object = strings.TrimSpace(object)
	member = strings.TrimSpace(member)
	switch {
	case object == "":
		return member
	case member == "":
		return object
	}
	object = strings.NewReplacer("->", ".", "?.", ".", "::", ".").Replace(object)
	object = strings.TrimPrefix(object, "$")
	return object + "." + strings.TrimPrefix(member, "$")
}

func (r *resolver) NormalizeSymbolName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, "<[("); i > 0 {
		name = name[:i]
	}
	if r.normalize != nil {
		name = r.normalize(name)
	}
	return strings.TrimSpace(name)
}

func (r *resolver) EnclosingScopeKind(nodeKind string) (types.FrameKind, bool) {
	k, ok := r.scopes[nodeKind]
	return k, ok
}

func (r *resolver) ParseImport(node cst.Node, src []byte) []types.Import {
	if r.parseImport == nil || node == nil {
		return nil
	}
	imports := r.parseImport(node, src)
	line := node.StartPosition().Row + 1
	for i := range imports {
		imports[i].Line = line
	}
	return imports
}

func (r *resolver) Supertypes(node cst.Node, src []byte) (string, []Supertype) {
	if r.supertypes == nil || node == nil {
		return "", nil
	}
	return r.supertypes(node, src)
}

func (r *resolver) OwnerHint(node cst.Node, src []byte) string {
	if r.ownerHint == nil || node == nil {
		return ""
	}
	return r.NormalizeSymbolName(r.ownerHint(node, src))
}

func (r *resolver) ScopeName(node cst.Node, src []byte) string {
	if node == nil {
		return ""
	}
	if name := node.ChildByFieldName("name"); name != nil {
		return r.NormalizeSymbolName(cst.Text(name, src))
	}
	// impl blocks and similar name their subject in a "type" field
	if node.Kind() == "impl_item" {
		return r.NormalizeSymbolName(cst.Text(node.ChildByFieldName("type"), src))
	}
	return ""
}

func (r *resolver) Roles(node cst.Node, name string, src []byte) []string {
	if r.roles == nil || node == nil {
		return nil
	}
	return r.roles(node, name, src)
}

func (r *resolver) IsIdentifier(kind string) bool {
	return r.identifiers[kind]
}

// calleeFields are tried in order to find the callee of a call node
var calleeFields = []string{"function", "constructor", "type"}

func (r *resolver) CallTarget(node cst.Node, src []byte) string {
	if node == nil {
		return ""
	}
	// Java, PHP member calls: object.name(...)
	if name := node.ChildByFieldName("name"); name != nil {
		obj := node.ChildByFieldName("object")
		if obj == nil {
			obj = node.ChildByFieldName("scope")
		}
		if obj != nil {
			return r.ResolveMemberAccess(cst.Text(obj, src), cst.Text(name, src))
		}
		if node.ChildByFieldName("function") == nil {
			return r.NormalizeSymbolName(cst.Text(name, src))
		}
	}
	var callee cst.Node
	for _, f := range calleeFields {
		if callee = node.ChildByFieldName(f); callee != nil {
			break
		}
	}
	if callee == nil {
		for _, c := range node.NamedChildren() {
			callee = c
			break
		}
	}
	if callee == nil {
		return ""
	}
	return r.calleeText(callee, src)
}

// calleeText flattens a callee expression into a dotted target
func (r *resolver) calleeText(callee cst.Node, src []byte) string {
	switch callee.Kind() {
	case "selector_expression", "attribute", "member_expression", "field_expression",
		"field_access", "member_access_expression", "scoped_identifier", "qualified_identifier":
		obj, member := r.MemberParts(callee, src)
		return r.ResolveMemberAccess(obj, member)
	case "generic_function", "generic_name", "template_function":
		if inner := callee.ChildByFieldName("function"); inner != nil {
			return r.calleeText(inner, src)
		}
		if inner := callee.ChildByFieldName("name"); inner != nil {
			return r.calleeText(inner, src)
		}
	}
	return r.NormalizeSymbolName(collapseSpace(cst.Text(callee, src)))
}

// objectFields and memberFields cover the member-access shapes of every grammar
var (
	objectFields = []string{"operand", "object", "value", "argument", "expression", "path", "scope"}
	memberFields = []string{"field", "attribute", "property", "name"}
)

func (r *resolver) MemberParts(node cst.Node, src []byte) (string, string) {
	if node == nil {
		return "", ""
	}
	var obj, member cst.Node
	for _, f := range objectFields {
		if obj = node.ChildByFieldName(f); obj != nil {
			break
		}
	}
	for _, f := range memberFields {
		if member = node.ChildByFieldName(f); member != nil {
			break
		}
	}
	named := node.NamedChildren()
	if obj == nil && len(named) > 0 {
		obj = named[0]
	}
	if member == nil && len(named) > 1 {
		member = named[len(named)-1]
	}
	return collapseSpace(cst.Text(obj, src)), collapseSpace(cst.Text(member, src))
}

// collapseSpace removes line breaks and runs of blanks from chained expressions
func collapseSpace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), "")
}

// childrenOfKind returns the direct named children of n whose kind is one of kinds
func childrenOfKind(n cst.Node, kinds ...string) []cst.Node {
	if n == nil {
		return nil
	}
	var out []cst.Node
	for _, c := range n.NamedChildren() {
		for _, k := range kinds {
			if c.Kind() == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// modifierRoles scans the modifier children of a definition for keywords
func modifierRoles(node cst.Node, src []byte, modifierKinds ...string) []string {
	var text strings.Builder
	for _, c := range node.Children() {
		for _, k := range modifierKinds {
			if c.Kind() == k {
				text.WriteString(cst.Text(c, src))
				text.WriteByte(' ')
			}
		}
	}
	return keywordRoles(text.String())
}

// keywordRoles maps modifier keywords to roles
func keywordRoles(modifiers string) []string {
	var roles []string
	for _, word := range strings.Fields(modifiers) {
		switch word {
		case "public", "pub", "export":
			roles = appendRole(roles, types.RolePublic)
		case "static":
			roles = appendRole(roles, types.RoleStatic)
		case "abstract":
			roles = appendRole(roles, types.RoleAbstract)
		case "async":
			roles = appendRole(roles, types.RoleAsync)
		}
	}
	return roles
}

func appendRole(roles []string, r string) []string {
	for _, have := range roles {
		if have == r {
			return roles
		}
	}
	return append(roles, r)
}

func isUpperFirst(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// stripGenerics cuts a type expression at its first type-argument list
func stripGenerics(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "<["); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// unquote drops surrounding string delimiters
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`', '<':
			return s[1 : len(s)-1]
		}
	}
	return s
}
