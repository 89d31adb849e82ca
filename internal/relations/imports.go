package relations

import (
	"path"
	"sort"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// packageFiles name their directory: importing the directory means them
var packageFiles = map[string]bool{
	"index":    true,
	"__init__": true,
	"mod":      true,
	"lib":      true,
}

// ResolvedImport is one import statement bound to project files
type ResolvedImport struct {
	File   string   `json:"file" yaml:"file"`
	Source string   `json:"source" yaml:"source"`
	Files  []string `json:"files,omitempty" yaml:"files,omitempty"`
	// Bindings maps each imported local name to the symbol it names
	Bindings map[string]string `json:"bindings,omitempty" yaml:"bindings,omitempty"`
	Line     int               `json:"line" yaml:"line"`
}

// moduleIndex maps module keys (slash paths without extension) and package
// directories onto the files that implement them.
type moduleIndex struct {
	modules map[string][]string
	dirs    map[string][]string
	files   map[string]bool
	keys    []string // sorted module and dir keys for suffix lookups
	search  []string
}

func newModuleIndex(paths []string, searchPaths []string) *moduleIndex {
	idx := &moduleIndex{
		modules: make(map[string][]string),
		dirs:    make(map[string][]string),
		files:   make(map[string]bool),
	}
	for _, sp := range searchPaths {
		if sp = strings.Trim(path.Clean(toSlash(sp)), "/"); sp != "" && sp != "." {
			idx.search = append(idx.search, sp)
		}
	}
	for _, p := range paths {
		idx.files[p] = true
		key := strings.TrimSuffix(p, path.Ext(p))
		idx.modules[key] = append(idx.modules[key], p)
		dir := path.Dir(p)
		if packageFiles[path.Base(key)] {
			idx.modules[dir] = append(idx.modules[dir], p)
		}
		idx.dirs[dir] = append(idx.dirs[dir], p)
	}
	seen := make(map[string]bool)
	for k := range idx.modules {
		seen[k] = true
	}
	for k := range idx.dirs {
		seen[k] = true
	}
	for k := range seen {
		idx.keys = append(idx.keys, k)
	}
	sort.Strings(idx.keys)
	return idx
}

func (idx *moduleIndex) exact(key string) []string {
	if files, ok := idx.modules[key]; ok {
		return files
	}
	return idx.dirs[key]
}

// suffix finds the shortest key equal to or ending in "/"+key
func (idx *moduleIndex) suffix(key string) []string {
	best := ""
	for _, k := range idx.keys {
		if k != key && !strings.HasSuffix(k, "/"+key) {
			continue
		}
		if best == "" || len(k) < len(best) {
			best = k
		}
	}
	if best == "" {
		return nil
	}
	return idx.exact(best)
}

// resolve maps an import of file from onto project files. Relative sources
// resolve against the importing file; package paths against the project
// root, the search paths and finally any directory suffix.
func (idx *moduleIndex) resolve(from string, lang types.Language, source string) []string {
	src := strings.Trim(strings.TrimSpace(source), "\"'<>`")
	if src == "" {
		return nil
	}
	dir := path.Dir(from)

	switch {
	case strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../"):
		return idx.without(from, idx.relative(path.Join(dir, src)))
	case lang == types.LangPython && strings.HasPrefix(src, "."):
		rest := strings.TrimLeft(src, ".")
		up := dir
		for i := 1; i < len(src)-len(rest); i++ {
			up = path.Dir(up)
		}
		return idx.without(from, idx.relative(path.Join(up, strings.ReplaceAll(rest, ".", "/"))))
	case hasSourceExt(src):
		if files := idx.relative(path.Join(dir, src)); len(files) > 0 {
			return idx.without(from, files)
		}
	}

	key := moduleKey(lang, src)
	if lang == types.LangGo {
		// Go import paths carry the module path before the repo-relative dir
		if files := idx.without(from, idx.modulePath(key)); len(files) > 0 {
			return files
		}
	}
	// The trailing segments may name symbols rather than modules
	for i := 0; i < 3 && key != "" && key != "."; i++ {
		if files := idx.without(from, idx.lookup(key)); len(files) > 0 {
			return files
		}
		key = path.Dir(key)
	}
	return nil
}

func (idx *moduleIndex) relative(base string) []string {
	base = path.Clean(base)
	if idx.files[base] {
		return []string{base}
	}
	return idx.exact(base)
}

func (idx *moduleIndex) lookup(key string) []string {
	if files := idx.exact(key); len(files) > 0 {
		return files
	}
	for _, sp := range idx.search {
		if files := idx.exact(sp + "/" + key); len(files) > 0 {
			return files
		}
	}
	return idx.suffix(key)
}

// modulePath finds the longest directory key that key ends with
func (idx *moduleIndex) modulePath(key string) []string {
	best := ""
	for dir := range idx.dirs {
		if dir == "." || (key != dir && !strings.HasSuffix(key, "/"+dir)) {
			continue
		}
		if len(dir) > len(best) {
			best = dir
		}
	}
	if best == "" {
		return nil
	}
	return idx.dirs[best]
}

func (idx *moduleIndex) without(self string, files []string) []string {
	var out []string
	for _, f := range files {
		if f != self {
			out = append(out, f)
		}
	}
	return out
}

// moduleKey turns a package-style import source into a slash path
func moduleKey(lang types.Language, src string) string {
	switch lang {
	case types.LangRust:
		src = strings.ReplaceAll(src, "::", "/")
		for _, p := range []string{"crate/", "self/", "super/"} {
			src = strings.TrimPrefix(src, p)
		}
	case types.LangPHP:
		src = strings.ReplaceAll(strings.TrimPrefix(src, "\\"), "\\", "/")
	case types.LangCPP:
		src = strings.ReplaceAll(src, "::", "/")
	case types.LangGo, types.LangJavaScript, types.LangTypeScript:
	default:
		if !strings.Contains(src, "/") {
			src = strings.ReplaceAll(src, ".", "/")
		}
	}
	return strings.Trim(path.Clean(src), "/")
}

var sourceExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".mjs": true, ".ts": true, ".tsx": true,
	".rs": true, ".java": true, ".cs": true, ".cpp": true, ".cc": true, ".hpp": true, ".h": true,
	".c": true, ".php": true, ".zig": true,
}

func hasSourceExt(src string) bool {
	return sourceExts[strings.ToLower(path.Ext(src))]
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
