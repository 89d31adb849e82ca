package querypack

import (
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Scope tables. Body blocks are not frames; only control flow below
// function level is.
var (
	goScopes = map[string]types.FrameKind{
		"source_file":                 types.FrameFile,
		"function_declaration":        types.FrameFunction,
		"method_declaration":          types.FrameMethod,
		"func_literal":                types.FrameLambda,
		"struct_type":                 types.FrameStruct,
		"interface_type":              types.FrameInterface,
		"if_statement":                types.FrameIf,
		"for_statement":               types.FrameLoop,
		"select_statement":            types.FrameBlock,
		"expression_switch_statement": types.FrameBlock,
		"type_switch_statement":       types.FrameBlock,
	}
	pythonScopes = map[string]types.FrameKind{
		"module":              types.FrameFile,
		"class_definition":    types.FrameClass,
		"function_definition": types.FrameFunction,
		"lambda":              types.FrameLambda,
		"if_statement":        types.FrameIf,
		"for_statement":       types.FrameLoop,
		"while_statement":     types.FrameLoop,
		"with_statement":      types.FrameBlock,
		"try_statement":       types.FrameBlock,
	}
	jsScopes = map[string]types.FrameKind{
		"program":                        types.FrameFile,
		"class_declaration":              types.FrameClass,
		"class":                          types.FrameClass,
		"function_declaration":           types.FrameFunction,
		"generator_function_declaration": types.FrameFunction,
		"function_expression":            types.FrameFunction,
		"method_definition":              types.FrameMethod,
		"arrow_function":                 types.FrameLambda,
		"if_statement":                   types.FrameIf,
		"for_statement":                  types.FrameLoop,
		"for_in_statement":               types.FrameLoop,
		"while_statement":                types.FrameLoop,
		"do_statement":                   types.FrameLoop,
		"try_statement":                  types.FrameBlock,
	}
	tsScopes = merge(jsScopes, map[string]types.FrameKind{
		"abstract_class_declaration": types.FrameClass,
		"interface_declaration":      types.FrameInterface,
		"enum_declaration":           types.FrameEnum,
		"internal_module":            types.FrameModule,
		"module":                     types.FrameModule,
	})
	rustScopes = map[string]types.FrameKind{
		"source_file":        types.FrameFile,
		"mod_item":           types.FrameModule,
		"struct_item":        types.FrameStruct,
		"enum_item":          types.FrameEnum,
		"trait_item":         types.FrameTrait,
		"impl_item":          types.FrameStruct,
		"function_item":      types.FrameFunction,
		"closure_expression": types.FrameLambda,
		"if_expression":      types.FrameIf,
		"for_expression":     types.FrameLoop,
		"while_expression":   types.FrameLoop,
		"loop_expression":    types.FrameLoop,
		"unsafe_block":       types.FrameBlock,
	}
	javaScopes = map[string]types.FrameKind{
		"program":                     types.FrameFile,
		"class_declaration":           types.FrameClass,
		"record_declaration":          types.FrameClass,
		"interface_declaration":       types.FrameInterface,
		"annotation_type_declaration": types.FrameInterface,
		"enum_declaration":            types.FrameEnum,
		"method_declaration":          types.FrameMethod,
		"constructor_declaration":     types.FrameMethod,
		"lambda_expression":           types.FrameLambda,
		"if_statement":                types.FrameIf,
		"for_statement":               types.FrameLoop,
		"enhanced_for_statement":      types.FrameLoop,
		"while_statement":             types.FrameLoop,
		"do_statement":                types.FrameLoop,
		"try_statement":               types.FrameBlock,
		"synchronized_statement":      types.FrameBlock,
	}
	csharpScopes = map[string]types.FrameKind{
		"compilation_unit":                  types.FrameFile,
		"namespace_declaration":             types.FrameModule,
		"file_scoped_namespace_declaration": types.FrameModule,
		"class_declaration":                 types.FrameClass,
		"record_declaration":                types.FrameClass,
		"interface_declaration":             types.FrameInterface,
		"struct_declaration":                types.FrameStruct,
		"enum_declaration":                  types.FrameEnum,
		"method_declaration":                types.FrameMethod,
		"constructor_declaration":           types.FrameMethod,
		"local_function_statement":          types.FrameFunction,
		"lambda_expression":                 types.FrameLambda,
		"if_statement":                      types.FrameIf,
		"for_statement":                     types.FrameLoop,
		"foreach_statement":                 types.FrameLoop,
		"while_statement":                   types.FrameLoop,
		"do_statement":                      types.FrameLoop,
		"try_statement":                     types.FrameBlock,
		"using_statement":                   types.FrameBlock,
		"lock_statement":                    types.FrameBlock,
	}
	cppScopes = map[string]types.FrameKind{
		"translation_unit":     types.FrameFile,
		"namespace_definition": types.FrameModule,
		"class_specifier":      types.FrameClass,
		"struct_specifier":     types.FrameStruct,
		"enum_specifier":       types.FrameEnum,
		"function_definition":  types.FrameFunction,
		"lambda_expression":    types.FrameLambda,
		"if_statement":         types.FrameIf,
		"for_statement":        types.FrameLoop,
		"for_range_loop":       types.FrameLoop,
		"while_statement":      types.FrameLoop,
		"do_statement":         types.FrameLoop,
		"try_statement":        types.FrameBlock,
	}
	phpScopes = map[string]types.FrameKind{
		"program":                                types.FrameFile,
		"namespace_definition":                   types.FrameModule,
		"class_declaration":                      types.FrameClass,
		"interface_declaration":                  types.FrameInterface,
		"trait_declaration":                      types.FrameTrait,
		"enum_declaration":                       types.FrameEnum,
		"function_definition":                    types.FrameFunction,
		"method_declaration":                     types.FrameMethod,
		"anonymous_function":                     types.FrameLambda,
		"anonymous_function_creation_expression": types.FrameLambda,
		"arrow_function":                         types.FrameLambda,
		"if_statement":                           types.FrameIf,
		"for_statement":                          types.FrameLoop,
		"foreach_statement":                      types.FrameLoop,
		"while_statement":                        types.FrameLoop,
		"do_statement":                           types.FrameLoop,
		"try_statement":                          types.FrameBlock,
	}
	zigScopes = map[string]types.FrameKind{
		"source_file":          types.FrameFile,
		"function_declaration": types.FrameFunction,
		"struct_declaration":   types.FrameStruct,
		"union_declaration":    types.FrameStruct,
		"enum_declaration":     types.FrameEnum,
		"if_statement":         types.FrameIf,
		"if_expression":        types.FrameIf,
		"for_statement":        types.FrameLoop,
		"while_statement":      types.FrameLoop,
	}
)

func merge(base, extra map[string]types.FrameKind) map[string]types.FrameKind {
	out := make(map[string]types.FrameKind, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func identSet(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// resolvers holds one resolver per registered language
var resolvers = map[types.Language]*resolver{
	types.LangGo: {
		lang:        types.LangGo,
		sep:         ".",
		scopes:      goScopes,
		identifiers: identSet("identifier"),
		parseImport: goImport,
		supertypes:  goSupertypes,
		ownerHint:   goReceiver,
		roles: func(node cst.Node, name string, src []byte) []string {
			if isUpperFirst(name) {
				return []string{types.RolePublic, types.RoleExported}
			}
			return nil
		},
	},
	types.LangPython: {
		lang:        types.LangPython,
		sep:         ".",
		scopes:      pythonScopes,
		identifiers: identSet("identifier"),
		parseImport: pythonImport,
		supertypes:  pythonSupertypes,
		roles: func(node cst.Node, name string, src []byte) []string {
			var roles []string
			if !strings.HasPrefix(name, "_") || (strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")) {
				roles = append(roles, types.RolePublic)
			}
			if strings.HasPrefix(strings.TrimSpace(cst.Text(node, src)), "async ") {
				roles = append(roles, types.RoleAsync)
			}
			if dec := node.Parent(); dec != nil && dec.Kind() == "decorated_definition" {
				for _, d := range childrenOfKind(dec, "decorator") {
					switch strings.TrimSpace(strings.TrimPrefix(cst.Text(d, src), "@")) {
					case "staticmethod", "classmethod":
						roles = appendRole(roles, types.RoleStatic)
					case "abstractmethod", "abc.abstractmethod":
						roles = appendRole(roles, types.RoleAbstract)
					}
				}
			}
			return roles
		},
	},
	types.LangJavaScript: {
		lang:        types.LangJavaScript,
		sep:         ".",
		scopes:      jsScopes,
		identifiers: identSet("identifier"),
		parseImport: jsImport,
		supertypes:  jsSupertypes,
		roles:       jsRoles,
	},
	types.LangTypeScript: {
		lang:        types.LangTypeScript,
		sep:         ".",
		scopes:      tsScopes,
		identifiers: identSet("identifier"),
		parseImport: jsImport,
		supertypes:  jsSupertypes,
		roles:       jsRoles,
	},
	types.LangRust: {
		lang:        types.LangRust,
		sep:         "::",
		scopes:      rustScopes,
		identifiers: identSet("identifier"),
		parseImport: rustImport,
		supertypes:  rustSupertypes,
		ownerHint:   rustImplOwner,
		roles: func(node cst.Node, name string, src []byte) []string {
			roles := modifierRoles(node, src, "visibility_modifier", "function_modifiers")
			if hasRole(roles, types.RolePublic) {
				roles = append(roles, types.RoleExported)
			}
			return roles
		},
	},
	types.LangJava: {
		lang:        types.LangJava,
		sep:         ".",
		scopes:      javaScopes,
		identifiers: identSet("identifier"),
		parseImport: javaImport,
		supertypes:  javaSupertypes,
		roles: func(node cst.Node, name string, src []byte) []string {
			return modifierRoles(node, src, "modifiers")
		},
	},
	types.LangCSharp: {
		lang:        types.LangCSharp,
		sep:         ".",
		scopes:      csharpScopes,
		identifiers: identSet("identifier"),
		parseImport: csharpImport,
		supertypes:  csharpSupertypes,
		roles: func(node cst.Node, name string, src []byte) []string {
			return modifierRoles(node, src, "modifier")
		},
	},
	types.LangCPP: {
		lang:        types.LangCPP,
		sep:         "::",
		scopes:      cppScopes,
		identifiers: identSet("identifier"),
		parseImport: cppImport,
		supertypes:  cppSupertypes,
		ownerHint:   cppQualifiedOwner,
		normalize: func(name string) string {
			// Out-of-line definitions are named Owner::method
			if i := strings.LastIndex(name, "::"); i >= 0 {
				return name[i+2:]
			}
			return name
		},
		roles: func(node cst.Node, name string, src []byte) []string {
			roles := modifierRoles(node, src, "storage_class_specifier", "virtual")
			if strings.Contains(cst.Text(node, src), "= 0;") {
				roles = appendRole(roles, types.RoleAbstract)
			}
			return roles
		},
	},
	types.LangPHP: {
		lang:        types.LangPHP,
		sep:         "\\",
		scopes:      phpScopes,
		identifiers: identSet("variable_name", "name"),
		parseImport: phpImport,
		supertypes:  phpSupertypes,
		normalize: func(name string) string {
			return strings.TrimPrefix(name, "$")
		},
		roles: func(node cst.Node, name string, src []byte) []string {
			roles := modifierRoles(node, src, "visibility_modifier", "static_modifier", "abstract_modifier")
			if node.Kind() == "function_definition" || node.Kind() == "class_declaration" {
				roles = appendRole(roles, types.RolePublic)
			}
			return roles
		},
	},
	types.LangZig: {
		lang:        types.LangZig,
		sep:         ".",
		scopes:      zigScopes,
		identifiers: identSet("identifier"),
		parseImport: zigImport,
		roles: func(node cst.Node, name string, src []byte) []string {
			if strings.HasPrefix(strings.TrimSpace(cst.Text(node, src)), "pub ") {
				return []string{types.RolePublic, types.RoleExported}
			}
			return nil
		},
	},
}

// ResolverFor returns the resolver of lang, or nil for unsupported languages
func ResolverFor(lang types.Language) SymbolResolver {
	r, ok := resolvers[lang]
	if !ok {
		return nil
	}
	return r
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func jsRoles(node cst.Node, name string, src []byte) []string {
	var roles []string
	if !strings.HasPrefix(name, "#") && !strings.HasPrefix(name, "_") {
		roles = append(roles, types.RolePublic)
	}
	// export function f / export class C / export const f = ...
	for p, depth := node.Parent(), 0; p != nil && depth < 3; p, depth = p.Parent(), depth+1 {
		if p.Kind() == "export_statement" {
			roles = appendRole(roles, types.RoleExported)
			break
		}
	}
	head := cst.Text(node, src)
	if i := strings.IndexAny(head, "({"); i > 0 {
		head = head[:i]
	}
	for _, r := range keywordRoles(head) {
		roles = appendRole(roles, r)
	}
	for _, c := range childrenOfKind(node, "accessibility_modifier") {
		if cst.Text(c, src) != "public" {
			roles = removeRole(roles, types.RolePublic)
		}
	}
	if node.Kind() == "abstract_class_declaration" {
		roles = appendRole(roles, types.RoleAbstract)
	}
	return roles
}

func removeRole(roles []string, role string) []string {
	out := roles[:0]
	for _, r := range roles {
		if r != role {
			out = append(out, r)
		}
	}
	return out
}

// Owner hints

func goReceiver(node cst.Node, src []byte) string {
	if node.Kind() != "method_declaration" {
		return ""
	}
	recv := node.ChildByFieldName("receiver")
	for _, param := range childrenOfKind(recv, "parameter_declaration") {
		typ := strings.TrimLeft(cst.Text(param.ChildByFieldName("type"), src), "*")
		return stripGenerics(typ)
	}
	return ""
}

func rustImplOwner(node cst.Node, src []byte) string {
	if node.Kind() != "function_item" && node.Kind() != "function_signature_item" {
		return ""
	}
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "impl_item":
			return stripGenerics(cst.Text(p.ChildByFieldName("type"), src))
		case "function_item", "source_file", "mod_item":
			return ""
		}
	}
	return ""
}

func cppQualifiedOwner(node cst.Node, src []byte) string {
	decl := node.ChildByFieldName("declarator")
	if decl == nil {
		return ""
	}
	if inner := decl.ChildByFieldName("declarator"); inner != nil && inner.Kind() == "qualified_identifier" {
		if scope := inner.ChildByFieldName("scope"); scope != nil {
			return cst.Text(scope, src)
		}
	}
	return ""
}

// Supertypes

func goSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	if node.Kind() != "type_spec" {
		return "", nil
	}
	embed := map[string]string{"inheritance_type": "embed"}
	var supers []Supertype
	switch body := node.ChildByFieldName("type"); {
	case body == nil:
	case body.Kind() == "struct_type":
		for _, list := range childrenOfKind(body, "field_declaration_list") {
			for _, field := range childrenOfKind(list, "field_declaration") {
				if field.ChildByFieldName("name") != nil {
					continue
				}
				name := stripGenerics(strings.TrimLeft(cst.Text(field.ChildByFieldName("type"), src), "*"))
				if name != "" {
					supers = append(supers, Supertype{Name: name, Kind: types.EdgeInherit, Metadata: embed})
				}
			}
		}
	case body.Kind() == "interface_type":
		for _, elem := range childrenOfKind(body, "type_elem", "constraint_elem", "type_identifier", "qualified_type") {
			name := stripGenerics(cst.Text(elem, src))
			if name != "" && !strings.ContainsAny(name, "|~") {
				supers = append(supers, Supertype{Name: name, Kind: types.EdgeInherit, Metadata: embed})
			}
		}
	}
	return "", supers
}

func pythonSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	if node.Kind() != "class_definition" {
		return "", nil
	}
	var supers []Supertype
	for _, base := range childrenOfKind(node.ChildByFieldName("superclasses"), "identifier", "attribute", "subscript") {
		name := stripGenerics(cst.Text(base, src))
		if name == "" || name == "object" {
			continue
		}
		kind := types.EdgeImplement
		if len(supers) == 0 && !strings.HasSuffix(name, "Mixin") {
			kind = types.EdgeInherit
		}
		supers = append(supers, Supertype{Name: name, Kind: kind})
	}
	return "", supers
}

func jsSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	var supers []Supertype
	switch node.Kind() {
	case "class_declaration", "class", "abstract_class_declaration":
		heritage := cst.FindChild(node, "class_heritage")
		if heritage == nil {
			return "", nil
		}
		if ext := cst.FindChild(heritage, "extends_clause"); ext != nil {
			// TypeScript: extends_clause / implements_clause
			if v := ext.ChildByFieldName("value"); v != nil {
				supers = append(supers, Supertype{Name: stripGenerics(cst.Text(v, src)), Kind: types.EdgeInherit})
			} else if named := ext.NamedChildren(); len(named) > 0 {
				supers = append(supers, Supertype{Name: stripGenerics(cst.Text(named[0], src)), Kind: types.EdgeInherit})
			}
			for _, impl := range childrenOfKind(heritage, "implements_clause") {
				for _, t := range impl.NamedChildren() {
					supers = append(supers, Supertype{Name: stripGenerics(cst.Text(t, src)), Kind: types.EdgeImplement})
				}
			}
		} else if named := heritage.NamedChildren(); len(named) > 0 {
			// JavaScript: class_heritage is "extends <expression>"
			supers = append(supers, Supertype{Name: stripGenerics(cst.Text(named[0], src)), Kind: types.EdgeInherit})
		}
	case "interface_declaration":
		for _, ext := range childrenOfKind(node, "extends_type_clause") {
			for _, t := range ext.NamedChildren() {
				supers = append(supers, Supertype{Name: stripGenerics(cst.Text(t, src)), Kind: types.EdgeInherit})
			}
		}
	}
	return "", supers
}

func rustSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	switch node.Kind() {
	case "impl_item":
		trait := node.ChildByFieldName("trait")
		if trait == nil {
			return "", nil
		}
		subject := stripGenerics(cst.Text(node.ChildByFieldName("type"), src))
		return subject, []Supertype{{Name: stripGenerics(cst.Text(trait, src)), Kind: types.EdgeImplement}}
	case "trait_item":
		var supers []Supertype
		for _, b := range childrenOfKind(node.ChildByFieldName("bounds"), "type_identifier", "scoped_type_identifier", "generic_type") {
			supers = append(supers, Supertype{Name: stripGenerics(cst.Text(b, src)), Kind: types.EdgeInherit})
		}
		return "", supers
	}
	return "", nil
}

func javaSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	var supers []Supertype
	typeNames := func(n cst.Node, kind types.EdgeKind) {
		if n == nil {
			return
		}
		for _, list := range append([]cst.Node{n}, childrenOfKind(n, "type_list")...) {
			for _, t := range childrenOfKind(list, "type_identifier", "scoped_type_identifier", "generic_type") {
				supers = append(supers, Supertype{Name: stripGenerics(cst.Text(t, src)), Kind: kind})
			}
		}
	}
	switch node.Kind() {
	case "class_declaration", "record_declaration", "enum_declaration":
		typeNames(node.ChildByFieldName("superclass"), types.EdgeInherit)
		typeNames(node.ChildByFieldName("interfaces"), types.EdgeImplement)
	case "interface_declaration":
		typeNames(cst.FindChild(node, "extends_interfaces"), types.EdgeInherit)
	}
	return "", supers
}

func csharpSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	bases := cst.FindChild(node, "base_list")
	if bases == nil {
		return "", nil
	}
	var supers []Supertype
	for _, b := range bases.NamedChildren() {
		name := stripGenerics(cst.Text(b, src))
		if name == "" {
			continue
		}
		kind := types.EdgeImplement
		switch {
		case node.Kind() == "interface_declaration":
			kind = types.EdgeInherit
		case node.Kind() == "class_declaration" && len(supers) == 0 && !looksLikeInterface(name):
			kind = types.EdgeInherit
		}
		supers = append(supers, Supertype{Name: name, Kind: kind})
	}
	return "", supers
}

// looksLikeInterface applies the IName convention
func looksLikeInterface(name string) bool {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return len(name) > 1 && name[0] == 'I' && isUpperFirst(name[1:])
}

func cppSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	clause := cst.FindChild(node, "base_class_clause")
	if clause == nil {
		return "", nil
	}
	var supers []Supertype
	for _, b := range childrenOfKind(clause, "type_identifier", "qualified_identifier", "template_type") {
		supers = append(supers, Supertype{Name: stripGenerics(cst.Text(b, src)), Kind: types.EdgeInherit})
	}
	return "", supers
}

func phpSupertypes(node cst.Node, src []byte) (string, []Supertype) {
	var supers []Supertype
	if base := cst.FindChild(node, "base_clause"); base != nil {
		kind := types.EdgeInherit
		for _, n := range childrenOfKind(base, "name", "qualified_name") {
			supers = append(supers, Supertype{Name: cst.Text(n, src), Kind: kind})
		}
	}
	if impl := cst.FindChild(node, "class_interface_clause"); impl != nil {
		for _, n := range childrenOfKind(impl, "name", "qualified_name") {
			supers = append(supers, Supertype{Name: cst.Text(n, src), Kind: types.EdgeImplement})
		}
	}
	return "", supers
}
