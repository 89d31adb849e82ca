package types

import "strings"

// Language is a registered language tag such as "go" or "typescript"
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangCSharp     Language = "csharp"
	LangCPP        Language = "cpp"
	LangPHP        Language = "php"
	LangZig        Language = "zig"

	// LangUnsupported marks a path no registered language handles
	LangUnsupported Language = ""
)

// Import is one import/use statement entry
type Import struct {
	Source        string   `json:"src" yaml:"source"`
	ImportedNames []string `json:"names,omitempty" yaml:"imported_names,omitempty"`
	ModuleAlias   string   `json:"alias,omitempty" yaml:"module_alias,omitempty"`
	Wildcard      bool     `json:"wc,omitempty" yaml:"wildcard,omitempty"`
	Line          int      `json:"l,omitempty" yaml:"line,omitempty"`
}

// ToImportMap projects the import onto local name -> fully qualified name.
// Wildcard imports contribute nothing because their names are not known
// without reading the imported module.
func (imp Import) ToImportMap() map[string]string {
	out := make(map[string]string)
	if imp.Wildcard {
		return out
	}
	sep := "."
	switch {
	case strings.Contains(imp.Source, "::"):
		sep = "::"
	case strings.Contains(imp.Source, "/"):
		sep = "/"
	case strings.Contains(imp.Source, "\\"):
		sep = "\\"
	}
	if len(imp.ImportedNames) == 0 {
		local := imp.ModuleAlias
		if local == "" {
			local = lastSegment(imp.Source)
		}
		if local != "" {
			out[local] = imp.Source
		}
		return out
	}
	for _, name := range imp.ImportedNames {
		local, target := name, name
		if i := strings.Index(name, " as "); i >= 0 {
			target = strings.TrimSpace(name[:i])
			local = strings.TrimSpace(name[i+4:])
		}
		if len(imp.ImportedNames) == 1 && imp.ModuleAlias != "" {
			local = imp.ModuleAlias
		}
		out[local] = imp.Source + sep + target
	}
	return out
}

func lastSegment(source string) string {
	s := strings.Trim(source, `"'<>`)
	for _, sep := range []string{"::", "/", "\\", "."} {
		if i := strings.LastIndex(s, sep); i >= 0 {
			s = s[i+len(sep):]
		}
	}
	return s
}

// Xref groups the lines at which one symbol references one target
type Xref struct {
	ID     string `json:"id"`
	Target string `json:"t"`
	Lines  []int  `json:"l"`
}

// AnchorIndex offers line lookups by symbol id and by kind
type AnchorIndex struct {
	BySymbol map[string][2]int `json:"s"`
	ByType   map[string][]int  `json:"t"`
}

// AnchorVersion is the current anchor format version
const AnchorVersion = 1

// AnchorHeader is the per-file analysis artifact
type AnchorHeader struct {
	Version         int               `json:"v"`
	FileID          string            `json:"fid"`
	FileFingerprint string            `json:"fp"`
	Language        Language          `json:"lang"`
	Config          map[string]string `json:"cfg,omitempty"`
	Symbols         []Symbol          `json:"sym"`
	Imports         []Import          `json:"imp,omitempty"`
	Xrefs           map[string][]Xref `json:"xrefs"`
	Index           AnchorIndex       `json:"idx"`
	Timestamp       int64             `json:"ts"`
}

// Path returns the path part of the file id
func (h *AnchorHeader) Path() string {
	if i := strings.LastIndex(h.FileID, "@"); i >= 0 {
		return h.FileID[:i]
	}
	return h.FileID
}

// SymbolByID returns the symbol with the short id, or nil
func (h *AnchorHeader) SymbolByID(id string) *Symbol {
	for i := range h.Symbols {
		if h.Symbols[i].ID == id {
			return &h.Symbols[i]
		}
	}
	return nil
}

// InlineAnchor is a single-line per-symbol tag
type InlineAnchor struct {
	AnchorID    string
	Fingerprint string
	LineStart   int
	LineEnd     int
}

// FileAnalysis is the resolver output for one file
type FileAnalysis struct {
	Path        string
	Language    Language
	Fingerprint string
	Lines       int
	Truncated   bool
	Symbols     []Symbol
	Imports     []Import
	Unresolved  []string
	Warnings    []string
}

// ImportMap merges the import maps of every import in the file
func (fa *FileAnalysis) ImportMap() map[string]string {
	out := make(map[string]string)
	for _, imp := range fa.Imports {
		for k, v := range imp.ToImportMap() {
			out[k] = v
		}
	}
	return out
}
