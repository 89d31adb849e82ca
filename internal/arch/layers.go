package arch

import (
	"path"
	"sort"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Layer names
const (
	LayerPresentation   = "Presentation"
	LayerApplication    = "Application"
	LayerDomain         = "Domain"
	LayerInfrastructure = "Infrastructure"
	LayerData           = "Data"
)

// layerRules is checked in order; the first substring found in a lowercased
// path segment or symbol name wins
var layerRules = []struct {
	substr string
	layer  string
}{
	{"controller", LayerPresentation},
	{"handler", LayerPresentation},
	{"view", LayerPresentation},
	{"component", LayerPresentation},
	{"service", LayerApplication},
	{"usecase", LayerApplication},
	{"entity", LayerDomain},
	{"domain", LayerDomain},
	{"model", LayerDomain},
	{"repository", LayerInfrastructure},
	{"repo", LayerInfrastructure},
	{"adapter", LayerInfrastructure},
	{"database", LayerData},
	{"migration", LayerData},
	{"schema", LayerData},
}

var layerOrder = []string{LayerPresentation, LayerApplication, LayerDomain, LayerInfrastructure, LayerData}

// LayerOf classifies a name, returning "" when no rule matches
func LayerOf(name string) string {
	lower := strings.ToLower(name)
	for _, r := range layerRules {
		if strings.Contains(lower, r.substr) {
			return r.layer
		}
	}
	return ""
}

// fileLayer looks at the directories first, then the file name, then the
// names of its type-like symbols
func fileLayer(p string, symbols []types.Symbol) string {
	dir, file := path.Split(p)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if l := LayerOf(seg); l != "" {
			return l
		}
	}
	if l := LayerOf(strings.TrimSuffix(file, path.Ext(file))); l != "" {
		return l
	}
	for i := range symbols {
		if symbols[i].Owner == "" && symbols[i].Kind.IsClassLike() {
			if l := LayerOf(symbols[i].Name); l != "" {
				return l
			}
		}
	}
	return ""
}

// groupLayers collects file paths per layer in layer order
func groupLayers(files []FileInfo) []Layer {
	byLayer := map[string][]string{}
	for _, f := range files {
		if f.Layer != "" {
			byLayer[f.Layer] = append(byLayer[f.Layer], f.Path)
		}
	}
	var out []Layer
	for _, name := range layerOrder {
		if paths := byLayer[name]; len(paths) > 0 {
			sort.Strings(paths)
			out = append(out, Layer{Name: name, Files: paths})
		}
	}
	return out
}
