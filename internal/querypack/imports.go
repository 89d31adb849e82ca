package querypack

import (
	"regexp"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Each parser receives one node captured as @import and returns one
// Import per imported name.

func goImport(node cst.Node, src []byte) []types.Import {
	if node.Kind() != "import_spec" {
		return nil
	}
	imp := types.Import{Source: unquote(cst.Text(node.ChildByFieldName("path"), src))}
	if imp.Source == "" {
		return nil
	}
	if name := node.ChildByFieldName("name"); name != nil {
		switch alias := cst.Text(name, src); alias {
		case ".":
			imp.Wildcard = true
		default:
			imp.ModuleAlias = alias
		}
	}
	return []types.Import{imp}
}

func pythonImport(node cst.Node, src []byte) []types.Import {
	var out []types.Import
	switch node.Kind() {
	case "import_statement":
		// import a.b, c as d
		for _, c := range node.NamedChildren() {
			switch c.Kind() {
			case "dotted_name":
				out = append(out, types.Import{Source: cst.Text(c, src)})
			case "aliased_import":
				out = append(out, types.Import{
					Source:      cst.Text(c.ChildByFieldName("name"), src),
					ModuleAlias: cst.Text(c.ChildByFieldName("alias"), src),
				})
			}
		}
	case "import_from_statement":
		module := node.ChildByFieldName("module_name")
		source := cst.Text(module, src)
		if source == "" {
			return nil
		}
		for _, c := range node.NamedChildren() {
			if module != nil && c.ID() == module.ID() {
				continue
			}
			switch c.Kind() {
			case "wildcard_import":
				out = append(out, types.Import{Source: source, Wildcard: true})
			case "dotted_name":
				out = append(out, types.Import{Source: source, ImportedNames: []string{cst.Text(c, src)}})
			case "aliased_import":
				out = append(out, types.Import{
					Source:        source,
					ImportedNames: []string{cst.Text(c.ChildByFieldName("name"), src)},
					ModuleAlias:   cst.Text(c.ChildByFieldName("alias"), src),
				})
			}
		}
	}
	return out
}

func jsImport(node cst.Node, src []byte) []types.Import {
	source := unquote(cst.Text(node.ChildByFieldName("source"), src))
	if source == "" {
		return nil
	}
	clause := cst.FindChild(node, "import_clause")
	if clause == nil {
		// side-effect import
		return []types.Import{{Source: source}}
	}
	var out []types.Import
	for _, c := range clause.NamedChildren() {
		switch c.Kind() {
		case "identifier":
			out = append(out, types.Import{Source: source, ImportedNames: []string{"default"}, ModuleAlias: cst.Text(c, src)})
		case "namespace_import":
			if id := cst.FindChild(c, "identifier"); id != nil {
				out = append(out, types.Import{Source: source, ModuleAlias: cst.Text(id, src)})
			}
		case "named_imports":
			for _, spec := range childrenOfKind(c, "import_specifier") {
				out = append(out, types.Import{
					Source:        source,
					ImportedNames: []string{cst.Text(spec.ChildByFieldName("name"), src)},
					ModuleAlias:   cst.Text(spec.ChildByFieldName("alias"), src),
				})
			}
		}
	}
	if len(out) == 0 {
		out = append(out, types.Import{Source: source})
	}
	return out
}

func rustImport(node cst.Node, src []byte) []types.Import {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return nil
	}
	var out []types.Import
	for _, item := range expandUseTree("", normalizeSpace(cst.Text(arg, src)), "::") {
		out = append(out, item.toImport("::"))
	}
	return out
}

func javaImport(node cst.Node, src []byte) []types.Import {
	text := strings.TrimSpace(cst.Text(node, src))
	text = strings.TrimSuffix(strings.TrimPrefix(text, "import"), ";")
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "static "))
	if text == "" {
		return nil
	}
	return []types.Import{pathImport(text, ".", "")}
}

func csharpImport(node cst.Node, src []byte) []types.Import {
	text := strings.TrimSpace(cst.Text(node, src))
	text = strings.TrimSpace(strings.TrimPrefix(text, "global "))
	text = strings.TrimSuffix(strings.TrimPrefix(text, "using"), ";")
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "static "))
	if text == "" {
		return nil
	}
	if alias, target, ok := strings.Cut(text, "="); ok {
		return []types.Import{{Source: strings.TrimSpace(target), ModuleAlias: strings.TrimSpace(alias)}}
	}
	// using Namespace; brings every type of the namespace into scope
	return []types.Import{{Source: text, Wildcard: true}}
}

func cppImport(node cst.Node, src []byte) []types.Import {
	switch node.Kind() {
	case "preproc_include":
		path := unquote(cst.Text(node.ChildByFieldName("path"), src))
		if path == "" {
			return nil
		}
		return []types.Import{{Source: path}}
	case "using_declaration":
		text := strings.TrimSuffix(strings.TrimSpace(cst.Text(node, src)), ";")
		text = strings.TrimSpace(strings.TrimPrefix(text, "using"))
		if ns, ok := strings.CutPrefix(text, "namespace "); ok {
			return []types.Import{{Source: strings.TrimSpace(ns), Wildcard: true}}
		}
		if text == "" {
			return nil
		}
		return []types.Import{pathImport(text, "::", "")}
	}
	return nil
}

func phpImport(node cst.Node, src []byte) []types.Import {
	text := strings.TrimSuffix(strings.TrimSpace(cst.Text(node, src)), ";")
	text = strings.TrimSpace(strings.TrimPrefix(text, "use"))
	for _, kw := range []string{"function ", "const "} {
		text = strings.TrimPrefix(text, kw)
	}
	var out []types.Import
	for _, item := range expandUseTree("", strings.TrimPrefix(normalizeSpace(text), "\\"), "\\") {
		out = append(out, item.toImport("\\"))
	}
	return out
}

// normalizeSpace folds line breaks and blank runs into single spaces,
// keeping the spaces around "as"
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var zigImportRe = regexp.MustCompile(`(?:const|var)\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?::[^=]+)?=\s*@import\("([^"]+)"\)`)

func zigImport(node cst.Node, src []byte) []types.Import {
	m := zigImportRe.FindStringSubmatch(cst.Text(node, src))
	if m == nil {
		return nil
	}
	return []types.Import{{Source: m[2], ModuleAlias: m[1]}}
}

// pathImport splits "a.b.C" into source "a.b" and imported name "C".
// A trailing wildcard segment marks the import as a wildcard.
func pathImport(path, sep, alias string) types.Import {
	if base, ok := strings.CutSuffix(path, sep+"*"); ok {
		return types.Import{Source: base, Wildcard: true}
	}
	i := strings.LastIndex(path, sep)
	if i < 0 {
		return types.Import{Source: path, ModuleAlias: alias}
	}
	return types.Import{Source: path[:i], ImportedNames: []string{path[i+len(sep):]}, ModuleAlias: alias}
}

type useItem struct {
	path  string
	alias string
}

func (u useItem) toImport(sep string) types.Import {
	path := u.path
	if base, ok := strings.CutSuffix(path, sep+"self"); ok {
		return types.Import{Source: base, ModuleAlias: u.alias}
	}
	return pathImport(path, sep, u.alias)
}

// expandUseTree flattens nested use lists such as
// "std::{fmt, io::{self, Read as R}}" into one item per leaf.
func expandUseTree(prefix, tree, sep string) []useItem {
	tree = strings.TrimSpace(tree)
	if tree == "" {
		return nil
	}
	join := func(p, s string) string {
		if p == "" {
			return s
		}
		return p + sep + s
	}

	open := strings.Index(tree, "{")
	if open < 0 {
		path, alias := tree, ""
		if p, a, ok := strings.Cut(tree, " as "); ok {
			path, alias = strings.TrimSpace(p), strings.TrimSpace(a)
		}
		return []useItem{{path: join(prefix, path), alias: alias}}
	}

	head := strings.TrimSuffix(strings.TrimSpace(tree[:open]), sep)
	body := tree[open+1:]
	if end := strings.LastIndex(body, "}"); end >= 0 {
		body = body[:end]
	}
	var out []useItem
	for _, part := range splitTopLevel(body) {
		out = append(out, expandUseTree(join(prefix, head), part, sep)...)
	}
	return out
}

// splitTopLevel splits on commas that are not inside braces
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
