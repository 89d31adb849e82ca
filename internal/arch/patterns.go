package arch

import (
	"sort"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Pattern names
const (
	PatternSingleton  = "Singleton"
	PatternFactory    = "Factory"
	PatternRepository = "Repository"
	PatternObserver   = "Observer"
)

var (
	instanceAccessors = map[string]bool{
		"getinstance": true, "instance": true, "shared": true, "sharedinstance": true, "default": true, "get_instance": true,
	}
	factoryPrefixes = []string{"new", "create", "make", "build"}
	crudPrefixes    = []string{"find", "get", "save", "insert", "update", "delete", "remove", "list", "fetch", "store"}
	observerMethods = map[string]bool{
		"subscribe": true, "unsubscribe": true, "notify": true, "addlistener": true, "removelistener": true,
		"addobserver": true, "removeobserver": true, "on": true, "emit": true, "attach": true, "detach": true,
	}
)

// detectPatterns runs the name and role heuristics over one file's symbols
func detectPatterns(file string, symbols []types.Symbol) []Pattern {
	members := map[string][]*types.Symbol{}
	for i := range symbols {
		if owner := symbols[i].Owner; owner != "" {
			members[owner] = append(members[owner], &symbols[i])
		}
	}

	var out []Pattern
	for i := range symbols {
		s := &symbols[i]
		switch {
		case s.Kind.IsClassLike():
			out = append(out, typePatterns(file, s, members[s.ID])...)
		case s.Kind == types.KindFunction && s.Owner == "":
			if instanceAccessors[strings.ToLower(s.Name)] {
				out = append(out, Pattern{
					Name: PatternSingleton, Symbol: s.Name, File: file, Confidence: 0.6,
					Evidence: []string{"package-level instance accessor"},
				})
			}
			if prefix, ok := factoryPrefix(s.Name); ok {
				out = append(out, Pattern{
					Name: PatternFactory, Symbol: s.Name, File: file, Confidence: 0.6,
					Evidence: []string{"constructor function prefix " + prefix},
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func typePatterns(file string, s *types.Symbol, members []*types.Symbol) []Pattern {
	lower := strings.ToLower(s.Name)
	var out []Pattern

	var single []string
	if strings.Contains(lower, "singleton") {
		single = append(single, "name contains Singleton")
	}
	for _, m := range members {
		if instanceAccessors[strings.ToLower(m.Name)] && (m.HasRole(types.RoleStatic) || m.Kind == types.KindField || m.Kind == types.KindProperty) {
			single = append(single, "static accessor "+m.Name)
		}
	}
	if len(single) > 0 {
		out = append(out, Pattern{Name: PatternSingleton, Symbol: s.Name, File: file, Confidence: confidence(len(single)), Evidence: single})
	}

	if strings.HasSuffix(lower, "factory") {
		out = append(out, Pattern{Name: PatternFactory, Symbol: s.Name, File: file, Confidence: 0.9, Evidence: []string{"name ends with Factory"}})
	}

	var repo []string
	if strings.HasSuffix(lower, "repository") || strings.HasSuffix(lower, "repo") {
		repo = append(repo, "name ends with Repository")
	}
	crud := 0
	for _, m := range members {
		if m.Kind.IsCallable() && hasAnyPrefix(strings.ToLower(m.Name), crudPrefixes) {
			crud++
		}
	}
	if crud >= 3 {
		repo = append(repo, "data access methods")
	}
	if len(repo) > 0 {
		out = append(out, Pattern{Name: PatternRepository, Symbol: s.Name, File: file, Confidence: confidence(len(repo)), Evidence: repo})
	}

	var obs []string
	for _, m := range members {
		if m.Kind.IsCallable() && observerMethods[strings.ToLower(m.Name)] {
			obs = append(obs, "method "+m.Name)
		}
	}
	if len(obs) >= 2 {
		out = append(out, Pattern{Name: PatternObserver, Symbol: s.Name, File: file, Confidence: confidence(len(obs) - 1), Evidence: obs})
	}
	return out
}

// factoryPrefix matches NewCart, createUser, make_widget but not "news"
func factoryPrefix(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range factoryPrefixes {
		if !strings.HasPrefix(lower, p) || len(name) == len(p) {
			continue
		}
		next := name[len(p)]
		if next == '_' || next >= 'A' && next <= 'Z' {
			return p, true
		}
	}
	return "", false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// confidence grows with the number of independent signals
func confidence(signals int) float64 {
	switch {
	case signals >= 3:
		return 0.95
	case signals == 2:
		return 0.85
	}
	return 0.7
}
