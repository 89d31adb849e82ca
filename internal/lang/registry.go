package lang

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Info describes one registered language
type Info struct {
	Tag        types.Language
	Extensions []string
	Aliases    []string
	// Separator joins frame names into qualified names
	Separator string
	grammar   func() unsafe.Pointer
}

var languages = []Info{
	{Tag: types.LangGo, Extensions: []string{".go"}, Aliases: []string{"golang"}, Separator: ".",
		grammar: tree_sitter_go.Language},
	{Tag: types.LangPython, Extensions: []string{".py", ".pyi", ".pyw"}, Aliases: []string{"py"}, Separator: ".",
		grammar: tree_sitter_python.Language},
	{Tag: types.LangJavaScript, Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, Aliases: []string{"js", "jsx"}, Separator: ".",
		grammar: tree_sitter_javascript.Language},
	{Tag: types.LangTypeScript, Extensions: []string{".ts", ".tsx", ".mts", ".cts"}, Aliases: []string{"ts", "tsx"}, Separator: ".",
		grammar: tree_sitter_typescript.LanguageTypescript},
	{Tag: types.LangRust, Extensions: []string{".rs"}, Aliases: []string{"rs"}, Separator: "::",
		grammar: tree_sitter_rust.Language},
	{Tag: types.LangJava, Extensions: []string{".java"}, Separator: ".",
		grammar: tree_sitter_java.Language},
	{Tag: types.LangCSharp, Extensions: []string{".cs"}, Aliases: []string{"cs", "c#"}, Separator: ".",
		grammar: tree_sitter_csharp.Language},
	{Tag: types.LangCPP, Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".c", ".h"}, Aliases: []string{"c++", "c", "cxx"}, Separator: "::",
		grammar: tree_sitter_cpp.Language},
	{Tag: types.LangPHP, Extensions: []string{".php", ".phtml"}, Separator: "\\",
		grammar: tree_sitter_php.LanguagePHP},
	{Tag: types.LangZig, Extensions: []string{".zig"}, Separator: ".",
		grammar: tree_sitter_zig.Language},
}

var (
	byExt   = map[string]*Info{}
	byName  = map[string]*Info{}
	gramMu  sync.Mutex
	grammar = map[types.Language]cst.Grammar{}
)

func init() {
	for i := range languages {
		info := &languages[i]
		for _, ext := range info.Extensions {
			byExt[ext] = info
		}
		byName[string(info.Tag)] = info
		for _, a := range info.Aliases {
			byName[a] = info
		}
	}
}

// Detect maps a path to its language by extension. Unknown extensions
// return LangUnsupported, which callers report as Skipped.
func Detect(path string) types.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if info, ok := byExt[ext]; ok {
		return info.Tag
	}
	return types.LangUnsupported
}

// Normalize resolves a language name or alias ("ts", "rs", "c#") to its tag
func Normalize(name string) (types.Language, bool) {
	info, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return types.LangUnsupported, false
	}
	return info.Tag, true
}

// IsKnown reports whether name is a registered language or alias
func IsKnown(name types.Language) bool {
	_, ok := Normalize(string(name))
	return ok
}

// Lookup returns the registry entry for tag
func Lookup(tag types.Language) (Info, bool) {
	info, ok := byName[string(tag)]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Names returns every registered language tag, sorted
func Names() []string {
	out := make([]string, 0, len(languages))
	for _, info := range languages {
		out = append(out, string(info.Tag))
	}
	sort.Strings(out)
	return out
}

// All returns every registered language tag in registry order
func All() []types.Language {
	out := make([]types.Language, 0, len(languages))
	for _, info := range languages {
		out = append(out, info.Tag)
	}
	return out
}

// Separator returns the qualified-name separator for tag
func Separator(tag types.Language) string {
	if info, ok := byName[string(tag)]; ok {
		return info.Separator
	}
	return "."
}

// Provider returns the shared CST grammar for tag. Grammars are created
// once; every caller still needs its own parser from Grammar.NewParser.
func Provider(tag types.Language) (cst.Grammar, error) {
	info, ok := byName[string(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", amerrors.ErrUnsupportedLanguage, tag)
	}

	gramMu.Lock()
	defer gramMu.Unlock()
	if g, ok := grammar[info.Tag]; ok {
		return g, nil
	}
	g := cst.NewTreeSitterGrammar(string(info.Tag), info.grammar())
	grammar[info.Tag] = g
	return g, nil
}
